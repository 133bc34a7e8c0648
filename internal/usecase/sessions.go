package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/domain"
	"github.com/example/neuroscan/internal/logging"
	"github.com/example/neuroscan/internal/metrics"
	"github.com/example/neuroscan/internal/repository"
)

// LoginResult is returned by a successful user login.
type LoginResult struct {
	SessionID string
	User      *repository.User
}

// AdminToken is returned by a successful admin login.
type AdminToken struct {
	Token     string
	ExpiresAt time.Time
}

// AuthUseCase establishes and tears down user sessions and admin tokens.
type AuthUseCase struct {
	store    repository.Store
	sessions *auth.Sessions
	tokens   *auth.TokenManager
	logger   *zap.Logger
}

func NewAuthUseCase(store repository.Store, sessions *auth.Sessions, tokens *auth.TokenManager, logger *zap.Logger) *AuthUseCase {
	return &AuthUseCase{store: store, sessions: sessions, tokens: tokens, logger: logger.Named("auth_usecase")}
}

// Login checks credentials and opens a session. Pending users may log in;
// approval is enforced where it matters. Unknown email and wrong password
// are indistinguishable to the caller.
func (uc *AuthUseCase) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, domain.ErrMissingFields
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.login", logging.RequestIDFrom(ctx))

	user, err := uc.store.FindUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		auth.BurnPassword(password)
		metrics.RecordLogin("user", false)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		metrics.RecordLogin("user", false)
		opLogger.Info("login rejected", zap.Uint("user_id", user.ID))
		return nil, err
	}

	sessionID, err := uc.sessions.Create(ctx, user.ID)
	if err != nil {
		opLogger.Error("failed to create session", zap.Error(err))
		return nil, logging.NewOperationError("usecase.login", logging.RequestIDFrom(ctx), err)
	}
	metrics.RecordLogin("user", true)
	opLogger.Info("user logged in", zap.Uint("user_id", user.ID), zap.Bool("approved", user.IsApproved))
	return &LoginResult{SessionID: sessionID, User: user}, nil
}

// Logout ends the session.
func (uc *AuthUseCase) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return uc.sessions.Destroy(ctx, sessionID)
}

// SessionTTL is the lifetime of a new session.
func (uc *AuthUseCase) SessionTTL() time.Duration {
	return uc.sessions.TTL()
}

// AdminLogin checks admin credentials and issues a signed token.
func (uc *AuthUseCase) AdminLogin(ctx context.Context, username, password string) (*AdminToken, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, domain.ErrMissingFields
	}
	opLogger := logging.WithOperation(uc.logger, "usecase.admin_login", logging.RequestIDFrom(ctx))

	admin, err := uc.store.FindAdminByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		auth.BurnPassword(password)
		metrics.RecordLogin("admin", false)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(admin.PasswordHash, password); err != nil {
		metrics.RecordLogin("admin", false)
		opLogger.Warn("admin login rejected", zap.String("username", username))
		return nil, err
	}

	token, expiresAt, err := uc.tokens.Issue(admin.ID, admin.Username)
	if err != nil {
		return nil, logging.NewOperationError("usecase.admin_login", logging.RequestIDFrom(ctx), err)
	}
	metrics.RecordLogin("admin", true)
	opLogger.Info("admin logged in", zap.String("username", username))
	return &AdminToken{Token: token, ExpiresAt: expiresAt}, nil
}

// AdminLogout revokes the presented token.
func (uc *AuthUseCase) AdminLogout(ctx context.Context, claims *auth.AdminClaims) error {
	if claims == nil {
		return domain.ErrUnauthorized
	}
	return uc.tokens.Revoke(ctx, claims)
}
