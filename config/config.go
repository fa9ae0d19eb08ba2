package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Tenancy   TenancyConfig
	Platform  PlatformConfig
	Storage   StorageConfig
	AWS       AWSConfig
	Worker    WorkerConfig
	Scheduler SchedulerConfig
	Proxy     ProxyConfig
	Email     EmailConfig
	SMS       SMSConfig
}

// ServerConfig holds HTTP server settings for the application pool.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	RequestTimeout     int      // hard wall-clock limit per request, seconds
	CORSAllowedOrigins []string // exact origins, "*", or wildcard hosts like https://*.example.com
	CORSMaxAge         int      // preflight cache, seconds
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. Redis backs the cache, the job queues and pub/sub.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
	BcryptCost  int // cost for new password hashes
}

// LogConfig controls zap output.
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

// TenancyConfig controls host resolution.
type TenancyConfig struct {
	CacheTTL time.Duration
}

// PlatformConfig guards the shared-schema provisioning API.
type PlatformConfig struct {
	AdminToken string
}

// StorageConfig selects where tenant documents are stored.
type StorageConfig struct {
	Backend  string // "s3" or "local"
	LocalDir string
}

// AWSConfig holds AWS credentials and the documents bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	DocumentsBucket      string
	PresignExpireMinutes int
}

// WorkerConfig holds background task runner settings.
type WorkerConfig struct {
	Concurrency  int
	JobTimeout   time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PollInterval time.Duration
	HeartbeatTTL time.Duration
}

// SchedulerConfig holds periodic job settings.
type SchedulerConfig struct {
	File     string // optional YAML schedule; built-in defaults when empty
	TimeZone string
	Tick     time.Duration
}

// ProxyConfig holds edge reverse proxy settings.
type ProxyConfig struct {
	Listen                string
	TLSListen             string
	Upstream              string
	StaticRoot            string
	MediaRoot             string
	StaticMaxAge          time.Duration
	MediaMaxAge           time.Duration
	DialTimeout           time.Duration
	ResponseHeaderTimeout time.Duration
	TLSCert               string
	TLSKey                string
	AutocertHosts         []string
	AutocertCacheDir      string
}

// TLSEnabled reports whether the proxy terminates TLS.
func (p ProxyConfig) TLSEnabled() bool {
	return len(p.AutocertHosts) > 0 || (p.TLSCert != "" && p.TLSKey != "")
}

// EmailConfig for SMTP delivery.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
}

// SMSConfig for the HTTP SMS gateway.
type SMSConfig struct {
	GatewayURL string
	APIKey     string
	SenderID   string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 120),
			RequestTimeout:     getEnvInt("REQUEST_TIMEOUT_SEC", 120),
			CORSAllowedOrigins: splitTrim(getEnv("CORS_ALLOWED_ORIGINS", "*"), ","),
			CORSMaxAge:         getEnvInt("CORS_MAX_AGE_SEC", 600),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "vehicle_sales"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 20),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 12),
			BcryptCost:  getEnvInt("BCRYPT_COST", 12),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Tenancy: TenancyConfig{
			CacheTTL: getEnvSeconds("TENANT_CACHE_TTL_SEC", 300),
		},
		Platform: PlatformConfig{
			AdminToken: getEnv("PLATFORM_ADMIN_TOKEN", ""),
		},
		Storage: StorageConfig{
			Backend:  getEnv("STORAGE_BACKEND", "local"),
			LocalDir: getEnv("STORAGE_LOCAL_DIR", "data/documents"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			DocumentsBucket:      getEnv("AWS_S3_DOCUMENTS_BUCKET", "vehicle-sales-documents"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Worker: WorkerConfig{
			Concurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
			JobTimeout:   getEnvSeconds("JOB_TIMEOUT_SEC", 1800),
			MaxRetries:   getEnvInt("JOB_MAX_RETRIES", 3),
			RetryBackoff: getEnvSeconds("JOB_RETRY_BACKOFF_SEC", 60),
			PollInterval: getEnvMillis("WORKER_POLL_INTERVAL_MS", 500),
			HeartbeatTTL: getEnvSeconds("WORKER_HEARTBEAT_TTL_SEC", 30),
		},
		Scheduler: SchedulerConfig{
			File:     getEnv("SCHEDULE_FILE", ""),
			TimeZone: getEnv("TIME_ZONE", "Africa/Nairobi"),
			Tick:     getEnvSeconds("SCHEDULER_TICK_SEC", 30),
		},
		Proxy: ProxyConfig{
			Listen:                getEnv("PROXY_LISTEN", ":80"),
			TLSListen:             getEnv("PROXY_TLS_LISTEN", ":443"),
			Upstream:              getEnv("PROXY_UPSTREAM", "http://127.0.0.1:8000"),
			StaticRoot:            getEnv("PROXY_STATIC_ROOT", "static_collected"),
			MediaRoot:             getEnv("PROXY_MEDIA_ROOT", "media"),
			StaticMaxAge:          getEnvSeconds("PROXY_STATIC_MAX_AGE_SEC", 30*24*3600),
			MediaMaxAge:           getEnvSeconds("PROXY_MEDIA_MAX_AGE_SEC", 7*24*3600),
			DialTimeout:           getEnvSeconds("PROXY_DIAL_TIMEOUT_SEC", 5),
			ResponseHeaderTimeout: getEnvSeconds("PROXY_UPSTREAM_TIMEOUT_SEC", 120),
			TLSCert:               getEnv("PROXY_TLS_CERT", ""),
			TLSKey:                getEnv("PROXY_TLS_KEY", ""),
			AutocertHosts:         splitTrim(getEnv("PROXY_AUTOCERT_HOSTS", ""), ","),
			AutocertCacheDir:      getEnv("PROXY_AUTOCERT_CACHE_DIR", "data/certs"),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Vehicle Sales"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
		},
		SMS: SMSConfig{
			GatewayURL: getEnv("SMS_GATEWAY_URL", ""),
			APIKey:     getEnv("SMS_API_KEY", ""),
			SenderID:   getEnv("SMS_SENDER_ID", ""),
		},
	}

	if cfg.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", cfg.Worker.Concurrency)
	}
	if cfg.Worker.MaxRetries < 0 {
		return nil, fmt.Errorf("JOB_MAX_RETRIES must not be negative, got %d", cfg.Worker.MaxRetries)
	}
	switch cfg.Storage.Backend {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", cfg.Storage.Backend)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

func getEnvMillis(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Millisecond
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
