package auth

// DefaultProfileFetchThreshold is the number of consecutive profile failures
// tolerated before the breaker opens.
const DefaultProfileFetchThreshold = 3

// Breaker counts consecutive profile-fetch failures. Once the count reaches
// the threshold, Allow reports false and callers substitute the minimal
// identity instead of querying again. The count never exceeds the threshold.
//
// Breaker is a value type; the Manager guards its copy with its own mutex.
type Breaker struct {
	attempts  int
	threshold int
}

// NewBreaker returns a closed breaker. Thresholds below 1 use the default.
func NewBreaker(threshold int) Breaker {
	if threshold < 1 {
		threshold = DefaultProfileFetchThreshold
	}
	return Breaker{threshold: threshold}
}

// Allow reports whether another fetch may be attempted.
func (b Breaker) Allow() bool {
	return b.attempts < b.threshold
}

// Failure records a failed fetch.
func (b *Breaker) Failure() {
	if b.attempts < b.threshold {
		b.attempts++
	}
}

// Success closes the breaker.
func (b *Breaker) Success() {
	b.attempts = 0
}

// Reset is Success under another name, used when the session changes hands.
func (b *Breaker) Reset() {
	b.attempts = 0
}

// Attempts returns the current consecutive failure count.
func (b Breaker) Attempts() int {
	return b.attempts
}

// Threshold returns the configured limit.
func (b Breaker) Threshold() int {
	return b.threshold
}
