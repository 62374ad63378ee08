package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	Auth       AuthConfig
	Log        LogConfig
	CORS       CORSConfig
	Processing ProcessingConfig
	Offload    OffloadConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds AWS S3 settings for the large-file upload path.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// AuthConfig holds settings for validating host-signed bearer tokens.
type AuthConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// ProcessingConfig holds local pipeline settings.
type ProcessingConfig struct {
	BatchSize          int   `mapstructure:"batch_size"`
	MaxFileSizeMB      int64 `mapstructure:"max_file_size_mb"`
	OffloadThresholdMB int64 `mapstructure:"offload_threshold_mb"`
	SessionTTLMins     int   `mapstructure:"session_ttl_mins"`
}

// OffloadConfig holds remote-processing settings. An empty base URL disables
// the offload path entirely.
type OffloadConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	RequestTimeoutSecs int    `mapstructure:"request_timeout_secs"`
	PollInitialMillis  int    `mapstructure:"poll_initial_millis"`
	PollMaxMillis      int    `mapstructure:"poll_max_millis"`
	MaxWaitSecs        int    `mapstructure:"max_wait_secs"`
}

// Load reads configuration from environment variables with the TABFLOW_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TABFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "tabflow")
	v.SetDefault("db.password", "tabflow_secret")
	v.SetDefault("db.name", "tabflow_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "tabflow-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	// Auth defaults
	v.SetDefault("auth.secret", "change-me-in-production")
	v.SetDefault("auth.issuer", "tabflow")

	// Log defaults
	v.SetDefault("log.level", "debug")
	v.SetDefault("log.format", "console")

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Processing defaults
	v.SetDefault("processing.batch_size", 2000)
	v.SetDefault("processing.max_file_size_mb", 100)
	v.SetDefault("processing.offload_threshold_mb", 10)
	v.SetDefault("processing.session_ttl_mins", 60)

	// Offload defaults
	v.SetDefault("offload.base_url", "")
	v.SetDefault("offload.api_key", "")
	v.SetDefault("offload.request_timeout_secs", 30)
	v.SetDefault("offload.poll_initial_millis", 500)
	v.SetDefault("offload.poll_max_millis", 10000)
	v.SetDefault("offload.max_wait_secs", 600)

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":                     "TABFLOW_SERVER_PORT",
		"server.read_timeout":             "TABFLOW_SERVER_READ_TIMEOUT",
		"server.write_timeout":            "TABFLOW_SERVER_WRITE_TIMEOUT",
		"server.environment":              "TABFLOW_SERVER_ENVIRONMENT",
		"db.host":                         "TABFLOW_DB_HOST",
		"db.port":                         "TABFLOW_DB_PORT",
		"db.user":                         "TABFLOW_DB_USER",
		"db.password":                     "TABFLOW_DB_PASSWORD",
		"db.name":                         "TABFLOW_DB_NAME",
		"db.sslmode":                      "TABFLOW_DB_SSLMODE",
		"db.max_open":                     "TABFLOW_DB_MAX_OPEN",
		"db.max_idle":                     "TABFLOW_DB_MAX_IDLE",
		"s3.region":                       "TABFLOW_S3_REGION",
		"s3.bucket":                       "TABFLOW_S3_BUCKET",
		"s3.endpoint":                     "TABFLOW_S3_ENDPOINT",
		"s3.access_key":                   "TABFLOW_S3_ACCESS_KEY",
		"s3.secret_key":                   "TABFLOW_S3_SECRET_KEY",
		"s3.presign_expiry":               "TABFLOW_S3_PRESIGN_EXPIRY",
		"auth.secret":                     "TABFLOW_AUTH_SECRET",
		"auth.issuer":                     "TABFLOW_AUTH_ISSUER",
		"log.level":                       "TABFLOW_LOG_LEVEL",
		"log.format":                      "TABFLOW_LOG_FORMAT",
		"cors.allowed_origins":            "TABFLOW_CORS_ALLOWED_ORIGINS",
		"processing.batch_size":           "TABFLOW_PROCESSING_BATCH_SIZE",
		"processing.max_file_size_mb":     "TABFLOW_PROCESSING_MAX_FILE_SIZE_MB",
		"processing.offload_threshold_mb": "TABFLOW_PROCESSING_OFFLOAD_THRESHOLD_MB",
		"processing.session_ttl_mins":     "TABFLOW_PROCESSING_SESSION_TTL_MINS",
		"offload.base_url":                "TABFLOW_OFFLOAD_BASE_URL",
		"offload.api_key":                 "TABFLOW_OFFLOAD_API_KEY",
		"offload.request_timeout_secs":    "TABFLOW_OFFLOAD_REQUEST_TIMEOUT_SECS",
		"offload.poll_initial_millis":     "TABFLOW_OFFLOAD_POLL_INITIAL_MILLIS",
		"offload.poll_max_millis":         "TABFLOW_OFFLOAD_POLL_MAX_MILLIS",
		"offload.max_wait_secs":           "TABFLOW_OFFLOAD_MAX_WAIT_SECS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if TABFLOW_SERVER_PORT is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("TABFLOW_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.Auth = AuthConfig{
		Secret: v.GetString("auth.secret"),
		Issuer: v.GetString("auth.issuer"),
	}
	cfg.Log = LogConfig{
		Level:  v.GetString("log.level"),
		Format: v.GetString("log.format"),
	}

	// Parse CORS allowed origins from comma-separated string
	var corsOrigins []string
	for _, o := range strings.Split(v.GetString("cors.allowed_origins"), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			corsOrigins = append(corsOrigins, o)
		}
	}
	cfg.CORS = CORSConfig{AllowedOrigins: corsOrigins}

	cfg.Processing = ProcessingConfig{
		BatchSize:          v.GetInt("processing.batch_size"),
		MaxFileSizeMB:      v.GetInt64("processing.max_file_size_mb"),
		OffloadThresholdMB: v.GetInt64("processing.offload_threshold_mb"),
		SessionTTLMins:     v.GetInt("processing.session_ttl_mins"),
	}
	cfg.Offload = OffloadConfig{
		BaseURL:            v.GetString("offload.base_url"),
		APIKey:             v.GetString("offload.api_key"),
		RequestTimeoutSecs: v.GetInt("offload.request_timeout_secs"),
		PollInitialMillis:  v.GetInt("offload.poll_initial_millis"),
		PollMaxMillis:      v.GetInt("offload.poll_max_millis"),
		MaxWaitSecs:        v.GetInt("offload.max_wait_secs"),
	}

	return cfg, nil
}
