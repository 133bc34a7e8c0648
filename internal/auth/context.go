package auth

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/example/neuroscan/internal/domain"
)

type contextKey string

const (
	principalKey   contextKey = "authPrincipal"
	sessionIDKey   contextKey = "authSessionID"
	adminClaimsKey contextKey = "authAdminClaims"
)

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal on ctx, or an anonymous one.
func PrincipalFrom(ctx context.Context) domain.Principal {
	if ctx == nil {
		return domain.AnonymousPrincipal()
	}
	if p, ok := ctx.Value(principalKey).(domain.Principal); ok {
		return p
	}
	return domain.AnonymousPrincipal()
}

// SessionID returns the session id resolved for this request, if any.
func SessionID(c *gin.Context) (string, bool) {
	id, ok := c.Get(string(sessionIDKey))
	if !ok {
		return "", false
	}
	s, ok := id.(string)
	return s, ok && s != ""
}

// AdminClaimsFrom returns the verified admin token claims for this request.
func AdminClaimsFrom(c *gin.Context) (*AdminClaims, bool) {
	v, ok := c.Get(string(adminClaimsKey))
	if !ok {
		return nil, false
	}
	claims, ok := v.(*AdminClaims)
	return claims, ok && claims != nil
}

func setPrincipal(c *gin.Context, p domain.Principal) {
	c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))
	c.Set(string(principalKey), p)
}
