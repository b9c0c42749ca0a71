package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Identity      IdentityConfig
	Dispatch      DispatchConfig
	Classifier    ClassifierConfig
	Firewall      FirewallConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// IdentityConfig holds JWT verification configuration for user tokens
type IdentityConfig struct {
	Issuer   string
	JWKSURL  string
	Audience string
	CacheTTL time.Duration
}

// DispatchConfig holds task-dispatch service configuration. The worker
// verifier settings describe the credential the dispatch service attaches to
// worker invocations.
type DispatchConfig struct {
	QueueURL       string
	WorkerURL      string
	ServiceAccount string
	Timeout        time.Duration
	WorkerIssuer   string
	WorkerJWKSURL  string
	WorkerAudience string
	SkipVerify     bool
}

// ClassifierConfig holds the semantic scanning backend configuration.
// An empty APIKey disables the semantic stage.
type ClassifierConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// FirewallConfig holds content firewall configuration
type FirewallConfig struct {
	// PatternsFile optionally extends the built-in injection pattern set
	PatternsFile string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel         string
	LogFormat        string // json or console
	MetricsEnabled   bool
	MetricsNamespace string
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Identity: IdentityConfig{
			Issuer:   getEnv("IDENTITY_ISSUER", ""),
			JWKSURL:  getEnv("IDENTITY_JWKS_URL", ""),
			Audience: getEnv("IDENTITY_AUDIENCE", ""),
			CacheTTL: getEnvAsDuration("IDENTITY_JWKS_CACHE_TTL", time.Hour),
		},
		Dispatch: DispatchConfig{
			QueueURL:       getEnv("DISPATCH_QUEUE_URL", ""),
			WorkerURL:      getEnv("DISPATCH_WORKER_URL", ""),
			ServiceAccount: getEnv("DISPATCH_SERVICE_ACCOUNT", ""),
			Timeout:        getEnvAsDuration("DISPATCH_TIMEOUT", 10*time.Second),
			WorkerIssuer:   getEnv("DISPATCH_WORKER_ISSUER", ""),
			WorkerJWKSURL:  getEnv("DISPATCH_WORKER_JWKS_URL", ""),
			WorkerAudience: getEnv("DISPATCH_WORKER_AUDIENCE", ""),
			SkipVerify:     getEnvAsBool("DISPATCH_SKIP_VERIFY", false),
		},
		Classifier: ClassifierConfig{
			APIKey:     getEnv("CLASSIFIER_API_KEY", ""),
			BaseURL:    getEnv("CLASSIFIER_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("CLASSIFIER_MODEL", "gpt-4o-mini"),
			Timeout:    getEnvAsDuration("CLASSIFIER_TIMEOUT", 30*time.Second),
			MaxRetries: getEnvAsInt("CLASSIFIER_MAX_RETRIES", 3),
		},
		Firewall: FirewallConfig{
			PatternsFile: getEnv("FIREWALL_PATTERNS_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			LogFormat:        getEnv("LOG_FORMAT", "json"),
			MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
			MetricsNamespace: getEnv("METRICS_NAMESPACE", "veridoc"),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Identity validation (required in production)
	if c.IsProduction() {
		if c.Identity.Issuer == "" {
			return fmt.Errorf("identity issuer is required in production")
		}
		if c.Identity.JWKSURL == "" {
			return fmt.Errorf("identity JWKS URL is required in production")
		}
	}

	// Dispatch validation
	if c.IsProduction() {
		if c.Dispatch.QueueURL == "" {
			return fmt.Errorf("dispatch queue URL is required in production")
		}
		if c.Dispatch.WorkerURL == "" {
			return fmt.Errorf("dispatch worker URL is required in production")
		}
		if c.Dispatch.SkipVerify {
			return fmt.Errorf("DISPATCH_SKIP_VERIFY must not be set in production")
		}
		if c.Dispatch.ServiceAccount == "" {
			return fmt.Errorf("dispatch service account is required in production")
		}
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
