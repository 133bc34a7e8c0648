package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/logging"
)

const (
	msgNoToken      = "No authorization token provided"
	msgInvalidToken = "Invalid token"
)

var (
	errMissingHeader = errors.New("authorization header required")
	errBadScheme     = errors.New("invalid authorization header")
	errEmptyToken    = errors.New("token missing")
)

// TokenVerifier validates an admin bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*AdminClaims, error)
}

// UserResolver loads the current principal for a session's user id.
type UserResolver interface {
	ResolveUser(ctx context.Context, userID uint) (domain.Principal, error)
}

// AdminMiddleware admits requests carrying exactly "Bearer <token>" with a
// token the verifier accepts. Every other outcome, including a panic in the
// verifier, is a 401.
func AdminMiddleware(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		claims, err := verifyAdmin(c.Request.Context(), verifier, c.GetHeader("Authorization"))
		if err != nil {
			message := msgInvalidToken
			if errors.Is(err, errMissingHeader) || errors.Is(err, errEmptyToken) {
				message = msgNoToken
			}
			logging.WithOperation(logger, "auth.admin", logging.RequestIDFrom(c.Request.Context())).
				Info("admin request rejected", zap.Error(err), zap.String("path", c.FullPath()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": message})
			return
		}

		id, _ := claims.AdminID()
		setPrincipal(c, domain.Principal{Kind: domain.AdminPrincipal, AdminID: id, Username: claims.Username})
		c.Set(string(adminClaimsKey), claims)
		c.Next()
	}
}

func verifyAdmin(ctx context.Context, verifier TokenVerifier, header string) (claims *AdminClaims, err error) {
	defer func() {
		if r := recover(); r != nil {
			claims = nil
			err = errors.New("token check panicked")
		}
	}()
	token, err := extractBearerToken(header)
	if err != nil {
		return nil, err
	}
	return verifier.Verify(ctx, token)
}

// extractBearerToken accepts only the exact "Bearer " prefix.
func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingHeader
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errBadScheme
	}
	token := parts[1]
	if token == "" {
		return "", errEmptyToken
	}
	if strings.TrimSpace(token) != token {
		return "", errBadScheme
	}
	return token, nil
}

// SessionMiddleware resolves the session cookie into a principal. Requests
// without a valid session continue as anonymous.
func SessionMiddleware(sessions *Sessions, users UserResolver, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		principal := domain.AnonymousPrincipal()

		if id, err := c.Cookie(cookieName); err == nil && id != "" {
			ctx := c.Request.Context()
			userID, err := sessions.Resolve(ctx, id)
			if err == nil {
				principal, err = users.ResolveUser(ctx, userID)
			}
			if err != nil {
				principal = domain.AnonymousPrincipal()
				if !errors.Is(err, domain.ErrUnauthorized) && !errors.Is(err, domain.ErrUserNotFound) {
					logging.WithOperation(logger, "auth.session", logging.RequestIDFrom(ctx)).
						Warn("session lookup failed", zap.Error(err))
				}
			} else {
				c.Set(string(sessionIDKey), id)
			}
		}

		setPrincipal(c, principal)
		c.Next()
	}
}

// RequireUser rejects anonymous requests.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !PrincipalFrom(c.Request.Context()).IsUser() {
			unauthorized(c, "Authentication required")
			return
		}
		c.Next()
	}
}

// RequireApprovedUser rejects anonymous (401) and pending (403) users when
// enabled. When disabled everyone passes.
func RequireApprovedUser(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		switch PrincipalFrom(c.Request.Context()).Kind {
		case domain.ApprovedUser:
			c.Next()
		case domain.PendingUser:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is pending approval"})
		default:
			unauthorized(c, "Authentication required")
		}
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}
