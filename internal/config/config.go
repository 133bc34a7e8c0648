package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Model sources understood by the artifact provisioner.
const (
	SourceGDrive = "gdrive"
	SourceHTTP   = "http"
	SourceS3     = "s3"
	SourceGCS    = "gcs"
	SourceAzure  = "azure"
)

// Inference runtimes.
const (
	RuntimeLinear = "linear"
	RuntimeGRPC   = "grpc"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Model    ModelConfig
	Storage  StorageConfig
	Gemini   GeminiConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxUploadBytes  int64
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggerConfig struct {
	Level string
}

type ModelConfig struct {
	Path          string
	Source        string
	RemoteID      string
	Runtime       string
	InputSize     int
	InferenceAddr string
	FetchTimeout  time.Duration
}

// StorageConfig carries the credentials for the cloud blob stores. Only the
// block matching Model.Source is read.
type StorageConfig struct {
	S3Region           string
	S3Endpoint         string
	S3KeyID            string
	S3Secret           string
	GCSCredentialsFile string
	AzureAccountName   string
	AzureAccountKey    string
}

type GeminiConfig struct {
	APIKey   string
	Model    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

type AuthConfig struct {
	TokenSecret       string
	TokenIssuer       string
	TokenAudience     string
	TokenTTL          time.Duration
	SessionTTL        time.Duration
	SessionCookie     string
	SecureCookies     bool
	RequireApproval   bool
	LoginRatePerSec   float64
	LoginBurst        int
	BootstrapAdmin    string
	BootstrapPassword string
}

// Load reads configuration from the environment, after merging an optional
// .env file (envFile may be empty). Variables already set in the process
// environment win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            v.GetString("SERVER_ADDR"),
			ShutdownTimeout: v.GetDuration("SHUTDOWN_TIMEOUT"),
			MaxUploadBytes:  v.GetInt64("MAX_UPLOAD_BYTES"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("DATABASE_DSN"),
			MaxIdleConns:    v.GetInt("DATABASE_MAX_IDLE_CONNS"),
			MaxOpenConns:    v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			ConnMaxLifetime: v.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Logger: LoggerConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
		Model: ModelConfig{
			Path:          v.GetString("MODEL_PATH"),
			Source:        strings.ToLower(v.GetString("MODEL_SOURCE")),
			RemoteID:      v.GetString("MODEL_REMOTE_ID"),
			Runtime:       strings.ToLower(v.GetString("MODEL_RUNTIME")),
			InputSize:     v.GetInt("MODEL_INPUT_SIZE"),
			InferenceAddr: v.GetString("INFERENCE_ADDR"),
			FetchTimeout:  v.GetDuration("MODEL_FETCH_TIMEOUT"),
		},
		Storage: StorageConfig{
			S3Region:           v.GetString("S3_REGION"),
			S3Endpoint:         v.GetString("S3_ENDPOINT"),
			S3KeyID:            v.GetString("S3_KEY_ID"),
			S3Secret:           v.GetString("S3_SECRET"),
			GCSCredentialsFile: v.GetString("GCS_CREDENTIALS_FILE"),
			AzureAccountName:   v.GetString("AZURE_ACCOUNT_NAME"),
			AzureAccountKey:    v.GetString("AZURE_ACCOUNT_KEY"),
		},
		Gemini: GeminiConfig{
			APIKey:   v.GetString("GEMINI_API_KEY"),
			Model:    v.GetString("GEMINI_MODEL"),
			Timeout:  v.GetDuration("GEMINI_TIMEOUT"),
			CacheTTL: v.GetDuration("SUMMARY_CACHE_TTL"),
		},
		Auth: AuthConfig{
			TokenSecret:       v.GetString("ADMIN_TOKEN_SECRET"),
			TokenIssuer:       v.GetString("ADMIN_TOKEN_ISSUER"),
			TokenAudience:     v.GetString("ADMIN_TOKEN_AUDIENCE"),
			TokenTTL:          v.GetDuration("ADMIN_TOKEN_TTL"),
			SessionTTL:        v.GetDuration("SESSION_TTL"),
			SessionCookie:     v.GetString("SESSION_COOKIE_NAME"),
			SecureCookies:     v.GetBool("SESSION_COOKIE_SECURE"),
			RequireApproval:   v.GetBool("REQUIRE_APPROVAL"),
			LoginRatePerSec:   v.GetFloat64("LOGIN_RATE_PER_SEC"),
			LoginBurst:        v.GetInt("LOGIN_BURST"),
			BootstrapAdmin:    v.GetString("BOOTSTRAP_ADMIN_USERNAME"),
			BootstrapPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")
	v.SetDefault("MAX_UPLOAD_BYTES", 10<<20)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")

	v.SetDefault("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=neuroscan port=5432 sslmode=disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("MODEL_PATH", "models/classifier.json")
	v.SetDefault("MODEL_SOURCE", SourceGDrive)
	v.SetDefault("MODEL_REMOTE_ID", "1aEc1Ni1mds5anu28giaiXkcM9_OOxV2y")
	v.SetDefault("MODEL_RUNTIME", RuntimeLinear)
	v.SetDefault("MODEL_INPUT_SIZE", 299)
	v.SetDefault("INFERENCE_ADDR", "model-server:50051")
	v.SetDefault("MODEL_FETCH_TIMEOUT", "10m")

	v.SetDefault("S3_REGION", "us-east-1")

	v.SetDefault("GEMINI_MODEL", "gemini-1.5-flash")
	v.SetDefault("GEMINI_TIMEOUT", "20s")
	v.SetDefault("SUMMARY_CACHE_TTL", "1h")

	v.SetDefault("ADMIN_TOKEN_SECRET", "dev-secret")
	v.SetDefault("ADMIN_TOKEN_ISSUER", "neuroscan")
	v.SetDefault("ADMIN_TOKEN_AUDIENCE", "neuroscan-admin")
	v.SetDefault("ADMIN_TOKEN_TTL", "12h")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SESSION_COOKIE_NAME", "neuroscan_session")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("REQUIRE_APPROVAL", false)
	v.SetDefault("LOGIN_RATE_PER_SEC", 1.0)
	v.SetDefault("LOGIN_BURST", 5)
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Model.Source {
	case SourceGDrive, SourceHTTP, SourceS3, SourceGCS, SourceAzure:
	default:
		return fmt.Errorf("unsupported MODEL_SOURCE %q", c.Model.Source)
	}
	switch c.Model.Runtime {
	case RuntimeLinear, RuntimeGRPC:
	default:
		return fmt.Errorf("unsupported MODEL_RUNTIME %q", c.Model.Runtime)
	}
	if c.Model.Path == "" {
		return errors.New("MODEL_PATH is required")
	}
	if c.Model.InputSize <= 0 {
		return fmt.Errorf("MODEL_INPUT_SIZE must be positive, got %d", c.Model.InputSize)
	}
	if c.Model.Runtime == RuntimeGRPC && c.Model.InferenceAddr == "" {
		return errors.New("INFERENCE_ADDR is required for the grpc runtime")
	}
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return errors.New("ADMIN_TOKEN_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return errors.New("ADMIN_TOKEN_TTL and SESSION_TTL must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.Server.MaxUploadBytes)
	}
	if (c.Auth.BootstrapAdmin == "") != (c.Auth.BootstrapPassword == "") {
		return errors.New("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together")
	}
	return nil
}

// UsesDefaultSecret reports whether the admin token secret was left at the
// development default.
func (c *Config) UsesDefaultSecret() bool {
	return c.Auth.TokenSecret == "dev-secret"
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
