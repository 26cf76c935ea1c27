package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Auth         AuthConfig
	Relay        RelayConfig
	Wallet       WalletConfig
	Queue        QueueConfig
	Orchestrator OrchestratorConfig
	Media        MediaConfig
}

// AppConfig holds application configuration
type AppConfig struct {
	Name        string
	Environment string
	Port        string
	Debug       bool

	// per client IP limit on /api/v1; zero disables it
	RequestsPerSecond float64
	Burst             int
	ShutdownTimeout   time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	MaxIdle  int
	MaxOpen  int
	MaxLife  time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host      string
	Port      string
	Password  string
	DB        int
	PoolSize  int
	KeyPrefix string
}

// AuthConfig holds API bearer token configuration
type AuthConfig struct {
	AccessSecret   string
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
}

// RelayConfig holds the backend relay client configuration
type RelayConfig struct {
	BaseURL           string
	BearerToken       string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// WalletConfig selects and configures the signing capability
type WalletConfig struct {
	Mode          string
	RemoteURL     string
	RemoteTimeout time.Duration
	LocalKeypair  string
	IdentityName  string
	IdentityURI   string
	TokenTTL      time.Duration
}

// QueueConfig holds offline queue configuration
type QueueConfig struct {
	Store              string
	PollInterval       time.Duration
	BlockchainBase     time.Duration
	BlockchainMaxDelay time.Duration
	MediaBase          time.Duration
	MediaMaxDelay      time.Duration
	EnableJitter       bool
	DepthInterval      time.Duration
}

// OrchestratorConfig holds confirmation polling and compute budget defaults
type OrchestratorConfig struct {
	PollAttempts             int
	PollInterval             time.Duration
	ComputeUnitLimit         uint32
	PriorityFeeMicroLamports uint64
}

// MediaConfig holds media upload configuration
type MediaConfig struct {
	BackendURL          string
	Timeout             time.Duration
	MaxFileSize         int64
	AllowedMimePrefixes []string
	UploadURLTTL        time.Duration
}

const (
	WalletModeLocal  = "local"
	WalletModeRemote = "remote"

	QueueStoreRedis    = "redis"
	QueueStorePostgres = "postgres"
	QueueStoreMemory   = "memory"
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "socialtx"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Debug:       getEnvBool("APP_DEBUG", true),

			RequestsPerSecond: getEnvFloat("APP_RATE_LIMIT_RPS", 0),
			Burst:             getEnvInt("APP_RATE_LIMIT_BURST", 20),
			ShutdownTimeout:   getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", true),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     getEnv("DB_NAME", "socialtx"),
			User:     getEnv("DB_USER", "socialtx"),
			Password: getEnv("DB_PASSWORD", "socialtx"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxIdle:  getEnvInt("DB_MAX_IDLE", 5),
			MaxOpen:  getEnvInt("DB_MAX_OPEN", 20),
			MaxLife:  getEnvDuration("DB_MAX_LIFE", time.Hour),
		},
		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			PoolSize:  getEnvInt("REDIS_POOL_SIZE", 10),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "socialtx"),
		},
		Auth: AuthConfig{
			AccessSecret:   getEnv("AUTH_ACCESS_SECRET", getEnv("JWT_SECRET", "your-secret-key")),
			Issuer:         getEnv("AUTH_ISSUER", "socialtx"),
			Audience:       getEnv("AUTH_AUDIENCE", "socialtx-app"),
			AccessTokenTTL: getEnvDuration("AUTH_ACCESS_TTL", 24*time.Hour),
		},
		Relay: RelayConfig{
			BaseURL:           getEnv("RELAY_BASE_URL", "http://localhost:3000/api"),
			BearerToken:       getEnv("RELAY_BEARER_TOKEN", ""),
			Timeout:           getEnvDuration("RELAY_TIMEOUT", 30*time.Second),
			RequestsPerSecond: getEnvFloat("RELAY_RPS", 10),
			Burst:             getEnvInt("RELAY_BURST", 5),
		},
		Wallet: WalletConfig{
			Mode:          getEnv("WALLET_MODE", WalletModeLocal),
			RemoteURL:     getEnv("WALLET_REMOTE_URL", ""),
			RemoteTimeout: getEnvDuration("WALLET_REMOTE_TIMEOUT", 0),
			LocalKeypair:  getEnv("WALLET_LOCAL_KEYPAIR", ""),
			IdentityName:  getEnv("WALLET_IDENTITY_NAME", "socialtx"),
			IdentityURI:   getEnv("WALLET_IDENTITY_URI", ""),
			TokenTTL:      getEnvDuration("WALLET_TOKEN_TTL", 15*time.Minute),
		},
		Queue: QueueConfig{
			Store:              getEnv("QUEUE_STORE", QueueStoreRedis),
			PollInterval:       getEnvDuration("QUEUE_POLL_INTERVAL", 2*time.Second),
			BlockchainBase:     getEnvDuration("QUEUE_BLOCKCHAIN_BASE_DELAY", 2*time.Second),
			BlockchainMaxDelay: getEnvDuration("QUEUE_BLOCKCHAIN_MAX_DELAY", time.Minute),
			MediaBase:          getEnvDuration("QUEUE_MEDIA_BASE_DELAY", 5*time.Second),
			MediaMaxDelay:      getEnvDuration("QUEUE_MEDIA_MAX_DELAY", 5*time.Minute),
			EnableJitter:       getEnvBool("QUEUE_ENABLE_JITTER", true),
			DepthInterval:      getEnvDuration("QUEUE_DEPTH_INTERVAL", 15*time.Second),
		},
		Orchestrator: OrchestratorConfig{
			PollAttempts:             getEnvInt("ORCH_POLL_ATTEMPTS", 30),
			PollInterval:             getEnvDuration("ORCH_POLL_INTERVAL", 2*time.Second),
			ComputeUnitLimit:         uint32(getEnvInt64("ORCH_COMPUTE_UNIT_LIMIT", 200000)),
			PriorityFeeMicroLamports: uint64(getEnvInt64("ORCH_PRIORITY_FEE", 1000)),
		},
		Media: MediaConfig{
			BackendURL:          getEnv("MEDIA_BACKEND_URL", "http://localhost:3000/api"),
			Timeout:             getEnvDuration("MEDIA_TIMEOUT", 2*time.Minute),
			MaxFileSize:         getEnvInt64("MEDIA_MAX_FILE_SIZE", 50*1024*1024),
			AllowedMimePrefixes: getEnvSlice("MEDIA_ALLOWED_MIME", []string{"image/", "video/"}),
			UploadURLTTL:        getEnvDuration("MEDIA_UPLOAD_URL_TTL", 10*time.Minute),
		},
	}

	return config, nil
}

// GetDSN returns database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// GetRedisAddr returns Redis connection address
func (r *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// IsDevelopment returns true if environment is development
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if environment is production
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// Validate validates configuration
func (c *Config) Validate() error {
	if c.Relay.BaseURL == "" {
		return fmt.Errorf("relay base url is required")
	}
	if c.Relay.RequestsPerSecond <= 0 {
		return fmt.Errorf("relay requests per second must be positive")
	}

	switch c.Wallet.Mode {
	case WalletModeLocal:
	case WalletModeRemote:
		if c.Wallet.RemoteURL == "" {
			return fmt.Errorf("remote wallet url is required when WALLET_MODE=remote")
		}
	default:
		return fmt.Errorf("unknown wallet mode %q", c.Wallet.Mode)
	}

	switch c.Queue.Store {
	case QueueStoreRedis, QueueStoreMemory:
	case QueueStorePostgres:
		if !c.Database.Enabled {
			return fmt.Errorf("postgres queue store requires DB_ENABLED=true")
		}
	default:
		return fmt.Errorf("unknown queue store %q", c.Queue.Store)
	}

	if c.Queue.BlockchainBase <= 0 || c.Queue.MediaBase <= 0 {
		return fmt.Errorf("queue base delays must be positive")
	}
	if c.Queue.BlockchainMaxDelay < c.Queue.BlockchainBase || c.Queue.MediaMaxDelay < c.Queue.MediaBase {
		return fmt.Errorf("queue max delays must not be below base delays")
	}
	if c.Orchestrator.PollAttempts <= 0 {
		return fmt.Errorf("confirmation poll attempts must be positive")
	}
	if c.Media.MaxFileSize <= 0 {
		return fmt.Errorf("media max file size must be positive")
	}

	if c.App.IsProduction() && (c.Auth.AccessSecret == "" || c.Auth.AccessSecret == "your-secret-key") {
		return fmt.Errorf("AUTH_ACCESS_SECRET must be set and not use default value")
	}

	return nil
}

// Print prints configuration (excluding sensitive data)
func (c *Config) Print() {
	fmt.Printf("=== Configuration ===\n")
	fmt.Printf("App Name: %s\n", c.App.Name)
	fmt.Printf("Environment: %s\n", c.App.Environment)
	fmt.Printf("Port: %s\n", c.App.Port)
	fmt.Printf("Relay: %s (%.1f rps)\n", c.Relay.BaseURL, c.Relay.RequestsPerSecond)
	fmt.Printf("Wallet Mode: %s\n", c.Wallet.Mode)
	fmt.Printf("Queue Store: %s\n", c.Queue.Store)
	fmt.Printf("Redis: %s:%s/%d\n", c.Redis.Host, c.Redis.Port, c.Redis.DB)
	if c.Database.Enabled {
		fmt.Printf("Database: %s:%s/%s\n", c.Database.Host, c.Database.Port, c.Database.Name)
	}
	fmt.Printf("====================\n")
}
