package local

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// Redis key prefixes for backend sessions.
const (
	sessionKeyPrefix = "auth:session:"
	clientKeyPrefix  = "auth:client:"
)

// sessionTokenBytes is the number of random bytes in a session token.
// 32 bytes = 256 bits of entropy, hex-encoded to 64 characters.
const sessionTokenBytes = 32

// SessionStore keeps one backend session per client in Redis. The client
// key points at the session token; the session key holds the identity.
type SessionStore struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionStore creates a session store with the given lifetime.
func NewSessionStore(rdb *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{redis: rdb, ttl: ttl, now: time.Now}
}

// Create starts a session for identity on clientID, replacing any previous
// one, and returns it.
func (s *SessionStore) Create(ctx context.Context, clientID string, identity auth.Identity) (*auth.Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generating session token: %w", err)
	}

	sess := &auth.Session{User: identity, ExpiresAt: s.now().Add(s.ttl).UTC()}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("marshaling session: %w", err)
	}

	clientKey := clientKeyPrefix + clientID
	old, err := s.redis.Get(ctx, clientKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("reading client session: %w", err)
	}

	pipe := s.redis.TxPipeline()
	if old != "" {
		pipe.Del(ctx, sessionKeyPrefix+old)
	}
	pipe.Set(ctx, sessionKeyPrefix+token, data, s.ttl)
	pipe.Set(ctx, clientKey, token, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("storing session in Redis: %w", err)
	}
	return sess, nil
}

// Current returns clientID's session, or nil if it has none or it expired.
func (s *SessionStore) Current(ctx context.Context, clientID string) (*auth.Session, error) {
	token, err := s.redis.Get(ctx, clientKeyPrefix+clientID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading client session: %w", err)
	}

	data, err := s.redis.Get(ctx, sessionKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session from Redis: %w", err)
	}

	var sess auth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling session: %w", err)
	}
	return &sess, nil
}

// Destroy removes clientID's session. Destroying a missing session is not
// an error.
func (s *SessionStore) Destroy(ctx context.Context, clientID string) error {
	clientKey := clientKeyPrefix + clientID
	token, err := s.redis.GetDel(ctx, clientKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting client session: %w", err)
	}
	if err := s.redis.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("deleting session from Redis: %w", err)
	}
	return nil
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
