package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/neuroscan/internal/artifact"
	"github.com/example/neuroscan/internal/auth"
	"github.com/example/neuroscan/internal/cache"
	"github.com/example/neuroscan/internal/config"
	"github.com/example/neuroscan/internal/grpcclient"
	"github.com/example/neuroscan/internal/handlers"
	"github.com/example/neuroscan/internal/inference"
	"github.com/example/neuroscan/internal/inference/linear"
	"github.com/example/neuroscan/internal/metrics"
	"github.com/example/neuroscan/internal/middleware"
	"github.com/example/neuroscan/internal/narrative"
	"github.com/example/neuroscan/internal/repository"
	"github.com/example/neuroscan/internal/usecase"
)

func main() {
	os.Exit(execute())
}

// serve wires every component and blocks until the server stops. The model
// is loaded before the listener opens; a failed load leaves the service up
// but answering predictions with 500 and /health with 503.
func serve(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if cfg.UsesDefaultSecret() {
		logger.Warn("ADMIN_TOKEN_SECRET is the development default; set it before exposing the admin API")
	}

	db, err := initDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	store := repository.NewGormStore(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient, err := initRedis(redisCtx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()
	kv := cache.NewRetrying(cache.NewRedisCache(redisClient), logger)

	sessions := auth.NewSessions(kv, cfg.Auth.SessionTTL)
	tokens := auth.NewTokenManager(cfg.Auth.TokenSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenAudience, cfg.Auth.TokenTTL, kv)
	accounts := usecase.NewAccountUseCase(store, logger)
	authUC := usecase.NewAuthUseCase(store, sessions, tokens, logger)

	if cfg.Auth.BootstrapAdmin != "" {
		created, err := accounts.EnsureAdmin(ctx, cfg.Auth.BootstrapAdmin, cfg.Auth.BootstrapPassword, false)
		if err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("username", cfg.Auth.BootstrapAdmin))
		}
	}

	engine, closeEngine, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer closeEngine()

	// Load is bounded by the provisioner's fetch timeout, not the startup ctx.
	engine.Load(context.Background())
	metrics.SetModelState(int(engine.State()))
	logger.Info("model engine initialized",
		zap.String("state", engine.State().String()),
		zap.Int("input_size", engine.InputSize()),
	)

	var summarizer narrative.Summarizer
	if cfg.Gemini.APIKey != "" {
		gemini, err := narrative.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			return fmt.Errorf("init gemini: %w", err)
		}
		summarizer = gemini
	} else {
		logger.Info("GEMINI_API_KEY not set, summaries will use the fallback text")
	}
	enricher := narrative.NewEnricher(summarizer, kv, cfg.Gemini.Timeout, cfg.Gemini.CacheTTL, logger)
	predictions := usecase.NewPredictionUseCase(engine, enricher, logger)

	router := newRouter(cfg, logger)
	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.Auth.LoginRatePerSec,
		Burst:             cfg.Auth.LoginBurst,
	})
	h := handlers.New(predictions, accounts, authUC, handlers.Config{
		MaxUploadSize: cfg.Server.MaxUploadBytes,
		SessionCookie: cfg.Auth.SessionCookie,
		SecureCookies: cfg.Auth.SecureCookies,
		Database:      store,
	}, logger)
	handlers.RegisterRoutes(router, h, handlers.Middlewares{
		Session:         auth.SessionMiddleware(sessions, accounts, cfg.Auth.SessionCookie, logger),
		Admin:           auth.AdminMiddleware(tokens, logger),
		LoginLimit:      limiter.Middleware(),
		RequireApproval: cfg.Auth.RequireApproval,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("neuroscan API listening",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model_state", engine.State().String()),
		zap.Bool("require_approval", cfg.Auth.RequireApproval),
	)
	return serveHTTPServer(server, cfg.Server.ShutdownTimeout, logger)
}

func newRouter(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if cfg.Logger.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxUploadBytes
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.Metrics(),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)
	return r
}

// newEngine builds the inference engine for the configured runtime. The
// returned func releases the runtime and fetcher.
func newEngine(cfg *config.Config, logger *zap.Logger) (*inference.Engine, func(), error) {
	fetcher, err := artifact.NewFetcher(context.Background(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init model fetcher: %w", err)
	}
	provisioner := artifact.NewProvisioner(cfg.Model.Path, cfg.Model.RemoteID, fetcher, cfg.Model.FetchTimeout, logger)

	var (
		runtime inference.Runtime
		closers []io.Closer
	)
	if c, ok := fetcher.(io.Closer); ok {
		closers = append(closers, c)
	}
	switch cfg.Model.Runtime {
	case config.RuntimeGRPC:
		remote, err := grpcclient.Dial(cfg.Model.InferenceAddr, logger)
		if err != nil {
			closeAll(closers, logger)
			return nil, nil, fmt.Errorf("connect to model server: %w", err)
		}
		closers = append(closers, remote)
		runtime = remote
	default:
		runtime = linear.Runtime{}
	}

	engine := inference.NewEngine(provisioner, runtime, cfg.Model.InputSize, logger)
	closers = append([]io.Closer{engine}, closers...)
	return engine, func() { closeAll(closers, logger) }, nil
}

func closeAll(closers []io.Closer, logger *zap.Logger) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

func initDatabase(ctx context.Context, cfg config.DatabaseConfig, zapLogger *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access db handle: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}
	zapLogger.Info("database connected")
	return db, nil
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}

func initRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	return client, nil
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
