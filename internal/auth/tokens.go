package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/neuroscan/internal/cache"
)

// AdminRole is the only role currently issued.
const AdminRole = "admin"

// ErrTokenRevoked is returned by Verify for tokens that were logged out.
var ErrTokenRevoked = errors.New("token revoked")

// AdminClaims is the payload of an admin token.
type AdminClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// AdminID parses the subject back into the admin's numeric id.
func (c *AdminClaims) AdminID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subject %q: %w", c.Subject, err)
	}
	return uint(id), nil
}

// TokenManager issues, verifies and revokes HS256 admin tokens. Revoked
// token ids are kept in the cache until the token would have expired.
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	revoked  cache.Cache
	now      func() time.Time
}

// NewTokenManager builds a TokenManager. revoked may be nil, in which case
// Revoke is unsupported.
func NewTokenManager(secret, issuer, audience string, ttl time.Duration, revoked cache.Cache) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		revoked:  revoked,
		now:      time.Now,
	}
}

// Issue signs a token for the given admin.
func (m *TokenManager) Issue(adminID uint, username string) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := AdminClaims{
		Username: username,
		Role:     AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatUint(uint64(adminID), 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer, audience, role and revocation.
// A revocation lookup failure is treated as a rejection.
func (m *TokenManager) Verify(ctx context.Context, tokenString string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if m.audience != "" {
		opts = append(opts, jwt.WithAudience(m.audience))
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != AdminRole || claims.Subject == "" || claims.ID == "" {
		return nil, errors.New("token is not an admin token")
	}

	if m.revoked != nil {
		_, err := m.revoked.Get(ctx, revokedKey(claims.ID))
		switch {
		case err == nil:
			return nil, ErrTokenRevoked
		case !errors.Is(err, cache.ErrMiss):
			return nil, fmt.Errorf("check revocation: %w", err)
		}
	}
	return claims, nil
}

// Revoke denies the token for the rest of its lifetime.
func (m *TokenManager) Revoke(ctx context.Context, claims *AdminClaims) error {
	if m.revoked == nil {
		return errors.New("token revocation is not configured")
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Sub(m.now()); remaining > 0 {
			ttl = remaining
		}
	}
	return m.revoked.Set(ctx, revokedKey(claims.ID), "1", ttl)
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}
