// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pegahdev/hermes/utils"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	Messenger  MessengerConfig  `json:"messenger"`
	Queue      QueueConfig      `json:"queue"`
	Compliance ComplianceConfig `json:"compliance"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

type ServerConfig struct {
	Host              string        `json:"host"`
	Port              int           `json:"port"`
	ReadTimeout       time.Duration `json:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout"`
	BodyLimit         int           `json:"body_limit"`
	EnableMetrics     bool          `json:"enable_metrics"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	ProxyHeader       string        `json:"proxy_header"`
	EnableCompression bool          `json:"enable_compression"`
	CompressionLevel  int           `json:"compression_level"`
}

type SecurityConfig struct {
	// TLS/HTTPS
	TLSEnabled    bool   `json:"tls_enabled"`
	TLSCertFile   string `json:"tls_cert_file"`
	TLSKeyFile    string `json:"tls_key_file"`
	TLSMinVersion string `json:"tls_min_version"`

	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`
}

// MessengerConfig configures the external Send API client
type MessengerConfig struct {
	Provider    string        `json:"provider"` // graph, mock
	APIDomain   string        `json:"api_domain"`
	APIVersion  string        `json:"api_version"`
	SendTimeout time.Duration `json:"send_timeout"`
}

// QueueConfig configures the delivery queue and its worker pools
type QueueConfig struct {
	MessageWorkers   int           `json:"message_workers"`
	CampaignWorkers  int           `json:"campaign_workers"`
	ScheduledWorkers int           `json:"scheduled_workers"`
	MaxAttempts      int           `json:"max_attempts"`
	BackoffBase      time.Duration `json:"backoff_base"`
	KeepCompleted    int           `json:"keep_completed"`
	CompletedMaxAge  time.Duration `json:"completed_max_age"`
	KeepFailed       int           `json:"keep_failed"`
	FailedMaxAge     time.Duration `json:"failed_max_age"`
	JanitorInterval  time.Duration `json:"janitor_interval"`
}

// ComplianceConfig configures the compliance engine policy knobs
type ComplianceConfig struct {
	MessagingWindow   time.Duration `json:"messaging_window"`
	HumanAgentWindow  time.Duration `json:"human_agent_window"`
	RateLimitWindow   time.Duration `json:"rate_limit_window"`
	RateLimitWarn     int           `json:"rate_limit_warn"`
	RateLimitBlock    int           `json:"rate_limit_block"`
	TagUsageWindow    time.Duration `json:"tag_usage_window"`
	TagWarningRatio   float64       `json:"tag_warning_ratio"`
	DefaultCooldown   time.Duration `json:"default_cooldown"`
	CooldownKeyPrefix string        `json:"cooldown_key_prefix"`
}

type LoggingConfig struct {
	Level      string `json:"level"`  // debug, info, warn, error
	Output     string `json:"output"` // stdout, file, both
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled      bool   `json:"enabled"`
	Path         string `json:"path"`
	CollectDB    bool   `json:"collect_db_metrics"`
	CollectQueue bool   `json:"collect_queue_metrics"`
	CollectApp   bool   `json:"collect_app_metrics"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        string        `json:"provider"` // redis, memory
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DefaultTTL      time.Duration `json:"default_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
}

type DeploymentConfig struct {
	Domain        string `json:"domain"`
	APIDomain     string `json:"api_domain"`
	RedisPassword string `json:"redis_password"`
	Environment   string `json:"environment"`
	Version       string `json:"version"`
	CommitHash    string `json:"commit_hash"`
	BuildTime     string `json:"build_time"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "postgres"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:              getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:              getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:       getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:      getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout:   getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:         getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			EnableMetrics:     getEnvBool("SERVER_ENABLE_METRICS", true),
			TrustedProxies:    getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:       getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
			EnableCompression: getEnvBool("SERVER_ENABLE_COMPRESSION", true),
			CompressionLevel:  getEnvInt("SERVER_COMPRESSION_LEVEL", 6),
		},
		Security: SecurityConfig{
			TLSEnabled:       getEnvBool("TLS_ENABLED", false),
			TLSCertFile:      getEnvString("TLS_CERT_FILE", "/etc/ssl/certs/hermes.crt"),
			TLSKeyFile:       getEnvString("TLS_KEY_FILE", "/etc/ssl/private/hermes.key"),
			TLSMinVersion:    getEnvString("TLS_MIN_VERSION", "1.3"),
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"https://app.hermes-crm.com", "https://api.hermes-crm.com"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
		},
		Messenger: MessengerConfig{
			Provider:    getEnvString("MESSENGER_PROVIDER", "mock"),
			APIDomain:   getEnvString("MESSENGER_API_DOMAIN", "graph.facebook.com"),
			APIVersion:  getEnvString("MESSENGER_API_VERSION", "v19.0"),
			SendTimeout: getEnvDuration("MESSENGER_SEND_TIMEOUT", 15*time.Second),
		},
		Queue: QueueConfig{
			MessageWorkers:   getEnvInt("QUEUE_MESSAGE_WORKERS", 4),
			CampaignWorkers:  getEnvInt("QUEUE_CAMPAIGN_WORKERS", 8),
			ScheduledWorkers: getEnvInt("QUEUE_SCHEDULED_WORKERS", 2),
			MaxAttempts:      getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBase:      getEnvDuration("QUEUE_BACKOFF_BASE", 1*time.Second),
			KeepCompleted:    getEnvInt("QUEUE_KEEP_COMPLETED", 1000),
			CompletedMaxAge:  getEnvDuration("QUEUE_COMPLETED_MAX_AGE", 24*time.Hour),
			KeepFailed:       getEnvInt("QUEUE_KEEP_FAILED", 5000),
			FailedMaxAge:     getEnvDuration("QUEUE_FAILED_MAX_AGE", 7*24*time.Hour),
			JanitorInterval:  getEnvDuration("QUEUE_JANITOR_INTERVAL", 10*time.Minute),
		},
		Compliance: ComplianceConfig{
			MessagingWindow:   getEnvDuration("COMPLIANCE_MESSAGING_WINDOW", utils.MessagingWindow),
			HumanAgentWindow:  getEnvDuration("COMPLIANCE_HUMAN_AGENT_WINDOW", utils.HumanAgentWindow),
			RateLimitWindow:   getEnvDuration("COMPLIANCE_RATE_LIMIT_WINDOW", utils.RateLimitWindow),
			RateLimitWarn:     getEnvInt("COMPLIANCE_RATE_LIMIT_WARN", utils.RateLimitWarnThreshold),
			RateLimitBlock:    getEnvInt("COMPLIANCE_RATE_LIMIT_BLOCK", utils.RateLimitBlockThreshold),
			TagUsageWindow:    getEnvDuration("COMPLIANCE_TAG_USAGE_WINDOW", utils.TagUsageWindow),
			TagWarningRatio:   utils.TagWarningRatio,
			DefaultCooldown:   getEnvDuration("COMPLIANCE_DEFAULT_COOLDOWN", utils.DefaultCooldown),
			CooldownKeyPrefix: getEnvString("COMPLIANCE_COOLDOWN_KEY_PREFIX", "cooldown:"),
		},
		Logging: LoggingConfig{
			Level:      getEnvString("LOG_LEVEL", "info"),
			Output:     getEnvString("LOG_OUTPUT", "both"),
			FilePath:   getEnvString("LOG_FILE_PATH", "/var/log/hermes/app.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled:      getEnvBool("METRICS_ENABLED", true),
			Path:         getEnvString("METRICS_PATH", "/metrics"),
			CollectDB:    getEnvBool("METRICS_COLLECT_DB", true),
			CollectQueue: getEnvBool("METRICS_COLLECT_QUEUE", true),
			CollectApp:   getEnvBool("METRICS_COLLECT_APP", true),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			Provider:        getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "hermes:"),
			DefaultTTL:      getEnvDuration("CACHE_DEFAULT_TTL", 1*time.Hour),
			CleanupInterval: getEnvDuration("CACHE_CLEANUP_INTERVAL", 10*time.Minute),
		},
		Deployment: DeploymentConfig{
			Domain:        getEnvString("DOMAIN", "hermes-crm.com"),
			APIDomain:     getEnvString("API_DOMAIN", "api.hermes-crm.com"),
			RedisPassword: getEnvString("REDIS_PASSWORD", ""),
			Environment:   getEnvString("APP_ENV", "production"),
			Version:       getEnvString("VERSION", "1.0.0"),
			CommitHash:    getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:     getEnvString("BUILD_TIME", "unknown"),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists
func loadEnvFile() error {
	envFile := ".env"

	// Check if .env file exists
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		// .env file doesn't exist, continue with environment variables
		return nil
	}

	// Open .env file
	file, err := os.Open(envFile)
	if err != nil {
		return fmt.Errorf("failed to open .env file: %w", err)
	}
	defer file.Close()

	// Read file line by line
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value pairs
		if strings.Contains(line, "=") {
			parts := strings.SplitN(line, "=", 2)
			if len(parts) == 2 {
				key := strings.TrimSpace(parts[0])
				value := strings.TrimSpace(parts[1])

				// Remove quotes if present
				if (strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
					(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`)) {
					value = value[1 : len(value)-1]
				}

				// Set environment variable if not already set
				if os.Getenv(key) == "" {
					os.Setenv(key, value)
				}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}
	if cfg.Database.Password == "" {
		errors = append(errors, "DB_PASSWORD is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}
	if cfg.Server.IdleTimeout <= 0 {
		errors = append(errors, "SERVER_IDLE_TIMEOUT must be positive")
	}

	// Validate messenger configuration
	if cfg.Messenger.Provider != "mock" && cfg.Messenger.Provider != "graph" {
		errors = append(errors, "MESSENGER_PROVIDER must be one of: graph, mock")
	}
	if cfg.Messenger.SendTimeout <= 0 {
		errors = append(errors, "MESSENGER_SEND_TIMEOUT must be positive")
	}

	// Validate queue configuration
	if cfg.Queue.MaxAttempts < 1 {
		errors = append(errors, "QUEUE_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.Queue.BackoffBase <= 0 {
		errors = append(errors, "QUEUE_BACKOFF_BASE must be positive")
	}
	if cfg.Queue.MessageWorkers < 1 || cfg.Queue.CampaignWorkers < 1 || cfg.Queue.ScheduledWorkers < 1 {
		errors = append(errors, "queue worker counts must be at least 1")
	}

	// Validate compliance configuration
	if cfg.Compliance.RateLimitWarn >= cfg.Compliance.RateLimitBlock {
		errors = append(errors, "COMPLIANCE_RATE_LIMIT_WARN must be lower than COMPLIANCE_RATE_LIMIT_BLOCK")
	}

	// Validate TLS configuration if enabled
	if cfg.Security.TLSEnabled {
		if cfg.Security.TLSCertFile == "" {
			errors = append(errors, "TLS_CERT_FILE is required when TLS is enabled")
		}
		if cfg.Security.TLSKeyFile == "" {
			errors = append(errors, "TLS_KEY_FILE is required when TLS is enabled")
		}
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		valid := false
		for _, level := range validLevels {
			if cfg.Logging.Level == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled {
		if cfg.Cache.Provider == "redis" && cfg.Cache.RedisURL == "" {
			errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled with redis provider")
		}
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
