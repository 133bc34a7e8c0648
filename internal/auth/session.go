package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/neuroscan/internal/cache"
	"github.com/example/neuroscan/internal/domain"
)

// Sessions stores server-side login sessions in the cache. The session id
// is an opaque uuid; the value is the user id.
type Sessions struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSessions(c cache.Cache, ttl time.Duration) *Sessions {
	return &Sessions{cache: c, ttl: ttl}
}

// TTL is how long a session lives.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Create starts a session for userID and returns its id.
func (s *Sessions) Create(ctx context.Context, userID uint) (string, error) {
	id := uuid.NewString()
	if err := s.cache.Set(ctx, sessionKey(id), strconv.FormatUint(uint64(userID), 10), s.ttl); err != nil {
		return "", fmt.Errorf("store session: %w", err)
	}
	return id, nil
}

// Resolve returns the user behind a session id, or domain.ErrUnauthorized
// when the session is unknown or expired.
func (s *Sessions) Resolve(ctx context.Context, id string) (uint, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, domain.ErrUnauthorized
	}
	value, err := s.cache.Get(ctx, sessionKey(id))
	if errors.Is(err, cache.ErrMiss) {
		return 0, domain.ErrUnauthorized
	}
	if err != nil {
		return 0, err
	}
	userID, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt session %s: %w", id, err)
	}
	return uint(userID), nil
}

// Destroy ends a session. Unknown ids are not an error.
func (s *Sessions) Destroy(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, sessionKey(id))
}

func sessionKey(id string) string {
	return "session:" + id
}
