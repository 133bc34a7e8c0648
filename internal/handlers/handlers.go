package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/metrics"
	"github.com/example/neuroscan/internal/repository"
	"github.com/example/neuroscan/internal/usecase"
)

// DefaultMaxUploadSize caps scan uploads when no limit is configured.
const DefaultMaxUploadSize = 10 << 20

// Predictor classifies uploaded scans.
type Predictor interface {
	Predict(ctx context.Context, data []byte) (*usecase.PredictionResult, error)
	ModelState() inference.State
}

// Accounts is the account lifecycle surface used by the API.
type Accounts interface {
	Register(ctx context.Context, name, email, password string) (*repository.User, error)
	GetUser(ctx context.Context, id uint) (*repository.User, error)
	SetApproval(ctx context.Context, userID uint, approve bool) (*repository.User, error)
	ListAccounts(ctx context.Context) ([]repository.User, error)
	ListFeedback(ctx context.Context) ([]repository.Feedback, error)
	SubmitFeedback(ctx context.Context, userID *uint, rating int, comment string) (*repository.Feedback, error)
	Stats(ctx context.Context) (*usecase.StatsSummary, error)
}

// Authenticator opens and closes user sessions and admin tokens.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*usecase.LoginResult, error)
	Logout(ctx context.Context, sessionID string) error
	SessionTTL() time.Duration
	AdminLogin(ctx context.Context, username, password string) (*usecase.AdminToken, error)
	AdminLogout(ctx context.Context, claims *auth.AdminClaims) error
}

var (
	_ Predictor     = (*usecase.PredictionUseCase)(nil)
	_ Accounts      = (*usecase.AccountUseCase)(nil)
	_ Authenticator = (*usecase.AuthUseCase)(nil)
)

// Config controls request limits and the session cookie.
type Config struct {
	MaxUploadSize int64
	SessionCookie string
	SecureCookies bool
	// Database is checked by /health when set.
	Database Pinger
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Middlewares are the auth gates applied to route groups. Nil entries are
// skipped.
type Middlewares struct {
	Session         gin.HandlerFunc
	Admin           gin.HandlerFunc
	LoginLimit      gin.HandlerFunc
	RequireApproval bool
}

// Handler serves the JSON API.
type Handler struct {
	predictor Predictor
	accounts  Accounts
	auth      Authenticator
	cfg       Config
	logger    *zap.Logger
}

func New(predictor Predictor, accounts Accounts, authenticator Authenticator, cfg Config, logger *zap.Logger) *Handler {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = DefaultMaxUploadSize
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "session"
	}
	return &Handler{
		predictor: predictor,
		accounts:  accounts,
		auth:      authenticator,
		cfg:       cfg,
		logger:    logger.Named("handlers"),
	}
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, h *Handler, mw Middlewares) {
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api", chain(mw.Session)...)
	api.POST("/predict", auth.RequireApprovedUser(mw.RequireApproval), h.predict)
	api.POST("/login", append(chain(mw.LoginLimit), h.login)...)
	api.POST("/logout", auth.RequireUser(), h.logout)
	api.GET("/me", auth.RequireUser(), h.me)
	api.POST("/register", h.register)
	api.POST("/feedback", h.submitFeedback)

	api.POST("/admin/login", append(chain(mw.LoginLimit), h.adminLogin)...)
	admin := api.Group("/admin", chain(mw.Admin)...)
	admin.POST("/logout", h.adminLogout)
	admin.GET("/users", h.listUsers)
	admin.GET("/feedback", h.listFeedback)
	admin.POST("/users/approve", h.approveUser)
	admin.GET("/stats", h.stats)
}

func chain(handlers ...gin.HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (h *Handler) health(c *gin.Context) {
	state := h.predictor.ModelState()
	metrics.SetModelState(int(state))
	body := gin.H{"status": "ok", "model": state.String()}
	status := http.StatusOK
	if state != inference.Ready {
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Database.Ping(ctx); err != nil {
			h.logger.Warn("database ping failed", zap.Error(err))
			body["status"] = "degraded"
			body["database"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			body["database"] = "ok"
		}
	}
	c.JSON(status, body)
}
