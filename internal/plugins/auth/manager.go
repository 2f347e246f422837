package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/keyxmakerx/tailormade/internal/metrics"
)

// defaultCallTimeout bounds backend calls made from the manager's own
// goroutine (session check, SIGNED_IN profile fetch).
const defaultCallTimeout = 10 * time.Second

// ManagerConfig wires a Manager to its collaborators.
type ManagerConfig struct {
	ClientID              string
	Backend               AuthBackend
	Profiles              ProfileStore
	Notifier              Notifier
	Navigator             Navigator
	Metrics               *metrics.Metrics
	ProfileFetchThreshold int
	CallTimeout           time.Duration
}

// workKind identifies an item on the manager's queue.
type workKind int

const (
	workSessionCheck workKind = iota
	workSignedIn
)

// work is a queued unit processed by the manager goroutine. gen is taken
// when the item is queued so the newest item always wins.
type work struct {
	kind    workKind
	gen     uint64
	session *Session
}

// Manager is the single source of truth for who is signed in on one
// client. It owns the (user, loading) state, reconciles it with the auth
// backend, and notifies subscribers on every change.
//
// Every operation and every queued SIGNED_IN/SIGNED_OUT event takes a new
// generation. Only the completion holding the current generation may write
// the state; older completions are dropped, so a slow profile fetch can
// never resurrect a user after a later sign-out.
type Manager struct {
	clientID    string
	backend     AuthBackend
	profiles    ProfileStore
	notifier    Notifier
	navigator   Navigator
	metrics     *metrics.Metrics
	callTimeout time.Duration
	log         *slog.Logger

	mu            sync.Mutex
	user          *User
	loading       bool
	breaker       Breaker
	breakerUserID string
	gen           uint64
	changed       chan struct{}
	queue         []work
	closed        bool
	subscribers   map[int]func(State)
	nextSubID     int

	// notifyMu serializes subscriber delivery so the last callback always
	// carries the latest state.
	notifyMu sync.Mutex

	wake      chan struct{}
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	started   bool
	startOnce sync.Once
	closeOnce sync.Once
	sub       Subscription // guarded by mu
}

// NewManager creates a manager in its initial state: no user, loading.
// Call Start to run the initial session check.
func NewManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		clientID:    cfg.ClientID,
		backend:     cfg.Backend,
		profiles:    cfg.Profiles,
		notifier:    cfg.Notifier,
		navigator:   cfg.Navigator,
		metrics:     cfg.Metrics,
		callTimeout: cfg.CallTimeout,
		log:         slog.Default().With(slog.String("client_id", shortID(cfg.ClientID))),
		loading:     true,
		breaker:     NewBreaker(cfg.ProfileFetchThreshold),
		changed:     make(chan struct{}),
		subscribers: make(map[int]func(State)),
		wake:        make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	if m.notifier == nil {
		m.notifier = discardNotifier{}
	}
	if m.navigator == nil {
		m.navigator = ContextNavigator{}
	}
	if m.callTimeout <= 0 {
		m.callTimeout = defaultCallTimeout
	}
	return m
}

// ClientID returns the client this manager serves.
func (m *Manager) ClientID() string {
	return m.clientID
}

// Start registers the backend event listener and queues the initial
// session check. It returns immediately; use AwaitSettled to wait for the
// result. Calling Start more than once has no effect.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.started = true
		m.mu.Unlock()

		sub := m.backend.OnAuthStateChange(m.handleEvent)
		go m.run()

		m.mu.Lock()
		if m.closed {
			// Close ran while subscribing and could not see sub.
			m.mu.Unlock()
			sub.Unsubscribe()
			return
		}
		m.sub = sub
		gen := m.beginLocked()
		m.enqueueLocked(work{kind: workSessionCheck, gen: gen})
		m.mu.Unlock()
		m.publish()
	})
}

// Close releases the event subscription and stops the manager goroutine.
// Safe to call more than once.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		started := m.started
		sub := m.sub
		m.sub = nil
		m.queue = nil
		m.subscribers = make(map[int]func(State))
		m.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		m.cancel()
		if started {
			<-m.done
		}
	})
}

// State returns a snapshot of the current session state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe registers fn to receive every state change. The returned
// function removes the subscription.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}

// AwaitSettled blocks until loading is false or ctx is done, and returns
// the state observed at that moment.
func (m *Manager) AwaitSettled(ctx context.Context) (State, error) {
	for {
		m.mu.Lock()
		if !m.loading {
			s := m.snapshotLocked()
			m.mu.Unlock()
			return s, nil
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return m.State(), ctx.Err()
		}
	}
}

// Changed returns a channel closed at the next state change.
func (m *Manager) Changed() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// --- Operations ---

// GetProfile refetches the profile for the current backend session. With
// no session it returns a *StateError. Profile query failures are counted
// by the breaker and swallowed; once the breaker is open no query is made
// and the user falls back to the minimal identity.
func (m *Manager) GetProfile(ctx context.Context) error {
	gen := m.begin()

	sess, err := m.backend.CurrentSession(ctx)
	if err == nil && sess == nil {
		err = ErrNoSession
	}
	if err != nil {
		stateErr := &StateError{Op: "get profile", Err: err}
		m.log.Error("error fetching profile", slog.Any("error", stateErr))
		m.finish(gen, "get_profile", nil)
		return stateErr
	}

	id := sess.User
	if !m.fetchAllowed(id.ID) {
		m.metrics.ProfileFetch("skipped")
		m.log.Warn("profile fetch breaker open, using minimal identity",
			slog.String("user_id", id.ID),
		)
		m.finish(gen, "get_profile", func() {
			m.user = &User{ID: id.ID, Email: id.Email}
		})
		return nil
	}

	profile, err := m.profiles.FetchProfile(ctx, id.ID)
	if err != nil {
		m.metrics.ProfileFetch("error")
		m.log.Error("error fetching profile",
			slog.Any("error", &QueryError{Op: "fetch", UserID: id.ID, Err: err}),
		)
		m.finish(gen, "get_profile", func() {
			m.recordFetchLocked(id.ID, false)
		})
		return nil
	}

	m.metrics.ProfileFetch("ok")
	m.finish(gen, "get_profile", func() {
		m.recordFetchLocked(id.ID, true)
		m.user = mergeProfile(id, profile)
	})
	return nil
}

// SignIn verifies credentials with the backend. The user itself is set by
// the SIGNED_IN event the backend emits, not by SignIn. Failures are
// surfaced as an error notice and returned as *AuthError.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	gen := m.begin()
	err := m.backend.SignInWithPassword(ctx, email, password)
	m.finish(gen, "sign_in", nil)

	if err != nil {
		authErr := asAuthError(err, "Error signing in")
		m.metrics.AuthOperation("sign_in", "error")
		m.log.Info("sign in failed", slog.Any("error", err))
		m.notifier.Notify(ctx, Notice{Kind: NoticeError, Message: authErr.Message})
		return authErr
	}

	m.metrics.AuthOperation("sign_in", "ok")
	m.notifier.Notify(ctx, Notice{Kind: NoticeSuccess, Message: "Signed in successfully"})
	return nil
}

// SignUp creates a backend identity carrying the names as metadata, then
// makes a best-effort profile update with the same names.
func (m *Manager) SignUp(ctx context.Context, email, password, firstName, lastName string) error {
	gen := m.begin()

	identity, err := m.backend.SignUp(ctx, email, password, Metadata{FirstName: firstName, LastName: lastName})
	if err == nil && identity == nil {
		err = ErrNoIdentity
	}
	if err == nil {
		update := ProfileUpdate{FirstName: firstName, LastName: lastName}
		if uerr := m.profiles.UpdateProfile(ctx, identity.ID, update); uerr != nil {
			m.log.Error("error updating profile",
				slog.Any("error", &QueryError{Op: "update", UserID: identity.ID, Err: uerr}),
			)
		}
	}
	m.finish(gen, "sign_up", nil)

	if err != nil {
		authErr := asAuthError(err, "Error creating account")
		m.metrics.AuthOperation("sign_up", "error")
		m.log.Info("sign up failed", slog.Any("error", err))
		m.notifier.Notify(ctx, Notice{Kind: NoticeError, Message: authErr.Message})
		return authErr
	}

	m.metrics.AuthOperation("sign_up", "ok")
	m.log.Info("account created", slog.String("user_id", identity.ID))
	m.notifier.Notify(ctx, Notice{Kind: NoticeSuccess, Message: "Account created successfully"})
	return nil
}

// SignOut ends the backend session. On success the user is cleared and the
// client is sent home. On failure the user is left as it was, since the
// remote state is unknown.
func (m *Manager) SignOut(ctx context.Context) error {
	gen := m.begin()

	if err := m.backend.SignOut(ctx); err != nil {
		m.finish(gen, "sign_out", nil)
		authErr := asAuthError(err, "Error signing out")
		m.metrics.AuthOperation("sign_out", "error")
		m.log.Error("sign out failed", slog.Any("error", err))
		m.notifier.Notify(ctx, Notice{Kind: NoticeError, Message: authErr.Message})
		return authErr
	}

	m.finish(gen, "sign_out", func() {
		m.clearUserLocked()
	})
	m.metrics.AuthOperation("sign_out", "ok")
	m.navigator.Navigate(ctx, HomePath)
	m.notifier.Notify(ctx, Notice{Kind: NoticeSuccess, Message: "Signed out successfully"})
	return nil
}

// --- Event handling ---

// handleEvent is the backend listener. SIGNED_OUT is applied at once since
// it needs no I/O; SIGNED_IN is queued for a profile fetch. Both take a new
// generation so anything older in flight is superseded.
func (m *Manager) handleEvent(ev Event) {
	m.metrics.AuthEvent(string(ev.Type))

	switch ev.Type {
	case EventSignedIn:
		if ev.Session == nil {
			return
		}
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		gen := m.beginLocked()
		m.enqueueLocked(work{kind: workSignedIn, gen: gen, session: ev.Session})
		m.mu.Unlock()
		m.publish()

	case EventSignedOut:
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.gen++
		m.clearUserLocked()
		m.loading = false
		m.signalLocked()
		m.mu.Unlock()
		m.publish()

	default:
		m.log.Debug("ignoring auth event", slog.String("event", string(ev.Type)))
	}
}

// run processes queued work in order until the manager is closed.
func (m *Manager) run() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.wake:
		}

		for {
			item, ok := m.dequeue()
			if !ok {
				break
			}
			m.process(item)
		}
	}
}

// process runs one queued item against the backend.
func (m *Manager) process(item work) {
	m.mu.Lock()
	current := item.gen == m.gen
	m.mu.Unlock()
	if !current {
		m.metrics.StaleCompletion(item.opName())
		return
	}

	ctx, cancel := context.WithTimeout(m.ctx, m.callTimeout)
	defer cancel()

	switch item.kind {
	case workSessionCheck:
		sess, err := m.backend.CurrentSession(ctx)
		if err != nil {
			m.log.Error("error checking session", slog.Any("error", err))
			m.finish(item.gen, item.opName(), nil)
			return
		}
		if sess == nil {
			m.finish(item.gen, item.opName(), nil)
			return
		}
		m.applySession(ctx, item.gen, item.opName(), sess)

	case workSignedIn:
		m.applySession(ctx, item.gen, item.opName(), item.session)
	}
}

// applySession resolves the profile for sess and sets the merged user.
// A failed or skipped fetch still yields the minimal identity so the
// state always settles.
func (m *Manager) applySession(ctx context.Context, gen uint64, op string, sess *Session) {
	id := sess.User

	if !m.fetchAllowed(id.ID) {
		m.metrics.ProfileFetch("skipped")
		m.finish(gen, op, func() {
			m.user = &User{ID: id.ID, Email: id.Email}
		})
		return
	}

	profile, err := m.profiles.FetchProfile(ctx, id.ID)
	if err != nil {
		m.metrics.ProfileFetch("error")
		m.log.Error("error fetching profile",
			slog.Any("error", &QueryError{Op: "fetch", UserID: id.ID, Err: err}),
		)
		m.finish(gen, op, func() {
			m.recordFetchLocked(id.ID, false)
			m.user = &User{ID: id.ID, Email: id.Email}
		})
		return
	}

	m.metrics.ProfileFetch("ok")
	m.finish(gen, op, func() {
		m.recordFetchLocked(id.ID, true)
		m.user = mergeProfile(id, profile)
	})
}

func (w work) opName() string {
	if w.kind == workSessionCheck {
		return "session_check"
	}
	return "signed_in"
}

// --- State helpers ---

// begin starts a new generation of work and marks the state loading.
func (m *Manager) begin() uint64 {
	m.mu.Lock()
	gen := m.beginLocked()
	m.mu.Unlock()
	m.publish()
	return gen
}

func (m *Manager) beginLocked() uint64 {
	m.gen++
	m.loading = true
	m.signalLocked()
	return m.gen
}

// finish completes generation gen. If gen is still current, apply runs
// under the lock and loading is cleared; otherwise the completion is dropped.
func (m *Manager) finish(gen uint64, op string, apply func()) {
	m.mu.Lock()
	if gen != m.gen || m.closed {
		m.mu.Unlock()
		m.metrics.StaleCompletion(op)
		m.log.Debug("dropping stale completion", slog.String("operation", op))
		return
	}
	if apply != nil {
		apply()
	}
	m.loading = false
	m.signalLocked()
	m.mu.Unlock()
	m.publish()
}

// fetchAllowed reports whether the breaker permits a profile query for
// userID. A different user starts with a fresh breaker.
func (m *Manager) fetchAllowed(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUserID != userID {
		return true
	}
	return m.breaker.Allow()
}

func (m *Manager) recordFetchLocked(userID string, ok bool) {
	if m.breakerUserID != userID {
		m.breaker.Reset()
		m.breakerUserID = userID
	}
	if ok {
		m.breaker.Success()
	} else {
		m.breaker.Failure()
	}
}

func (m *Manager) clearUserLocked() {
	m.user = nil
	m.breaker.Reset()
	m.breakerUserID = ""
}

func (m *Manager) enqueueLocked(w work) {
	m.queue = append(m.queue, w)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) dequeue() (work, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 || m.closed {
		return work{}, false
	}
	item := m.queue[0]
	m.queue = m.queue[1:]
	return item, true
}

// signalLocked wakes AwaitSettled callers.
func (m *Manager) signalLocked() {
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Manager) snapshotLocked() State {
	s := State{Loading: m.loading, ProfileFetchAttempts: m.breaker.Attempts()}
	if m.user != nil {
		u := *m.user
		s.User = &u
	}
	return s
}

// publish delivers the latest state to every subscriber.
func (m *Manager) publish() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	state := m.snapshotLocked()
	subs := make([]func(State), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

func mergeProfile(id Identity, p *Profile) *User {
	u := &User{ID: id.ID, Email: id.Email}
	if p != nil {
		u.FirstName = p.FirstName
		u.LastName = p.LastName
	}
	return u
}

// asAuthError normalizes any backend failure into an *AuthError.
func asAuthError(err error, fallback string) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.Message != "" {
			return authErr
		}
		normalized := *authErr
		normalized.Message = fallback
		return &normalized
	}
	return &AuthError{Message: userMessage(err, fallback), Err: err}
}

// shortID trims a client id for log lines.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
