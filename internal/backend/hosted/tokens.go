package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/tailormade/internal/plugins/auth"
)

// tokenKeyPrefix is the Redis key prefix for a client's hosted session.
const tokenKeyPrefix = "hosted:tokens:"

// storedSession is what a client's hosted session looks like at rest.
type storedSession struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresAt    time.Time     `json:"expires_at"`
	User         auth.Identity `json:"user"`
}

// TokenStore keeps each client's hosted session in Redis.
type TokenStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewTokenStore creates a token store. ttl bounds how long a refresh token
// is kept without use.
func NewTokenStore(rdb *redis.Client, ttl time.Duration) *TokenStore {
	return &TokenStore{redis: rdb, ttl: ttl}
}

// Save stores s for clientID.
func (s *TokenStore) Save(ctx context.Context, clientID string, sess *storedSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling tokens: %w", err)
	}
	if err := s.redis.Set(ctx, tokenKeyPrefix+clientID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing tokens: %w", err)
	}
	return nil
}

// Load returns clientID's session, or nil if none is stored.
func (s *TokenStore) Load(ctx context.Context, clientID string) (*storedSession, error) {
	data, err := s.redis.Get(ctx, tokenKeyPrefix+clientID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading tokens: %w", err)
	}

	var sess storedSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("unmarshaling tokens: %w", err)
	}
	return &sess, nil
}

// Delete removes clientID's session.
func (s *TokenStore) Delete(ctx context.Context, clientID string) error {
	if err := s.redis.Del(ctx, tokenKeyPrefix+clientID).Err(); err != nil {
		return fmt.Errorf("deleting tokens: %w", err)
	}
	return nil
}
