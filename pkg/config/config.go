package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for db-optimizer.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"8000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Target database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Schema context cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Redis configuration (used when cache.backend is "redis")
	Redis RedisConfig `yaml:"redis"`

	// SQL generation model configuration
	LLM LLMConfig `yaml:"llm"`

	// Per-stage timeout configuration
	Timeouts TimeoutConfig `yaml:"timeouts"`

	// SampleRowLimit caps sample rows fetched per table during introspection.
	SampleRowLimit int `yaml:"sample_row_limit" env:"SAMPLE_ROW_LIMIT" env-default:"5"`

	// WorkerPoolSize bounds concurrent per-table introspection work.
	WorkerPoolSize int `yaml:"worker_pool_size" env:"WORKER_POOL_SIZE" env-default:"4"`
}

// DatabaseConfig holds PostgreSQL connection configuration for the target
// database being queried and introspected.
type DatabaseConfig struct {
	Host            string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User            string `yaml:"user" env:"PGUSER" env-default:"postgres"`
	Password        string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database        string `yaml:"database" env:"PGDATABASE" env-default:"postgres"`
	Schema          string `yaml:"schema" env:"PGSCHEMA" env-default:"public"`
	SSLMode         string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections  int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
	MaxConnLifetime int    `yaml:"max_conn_lifetime_minutes" env:"PGMAX_CONN_LIFETIME_MINUTES" env-default:"30"`
	MaxConnIdleTime int    `yaml:"max_conn_idle_minutes" env:"PGMAX_CONN_IDLE_MINUTES" env-default:"5"`
}

// ConnectionString returns a PostgreSQL connection string with the
// configured schema applied as the search path.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s search_path=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode, c.Schema,
	)
}

// CacheConfig holds schema cache behavior settings.
type CacheConfig struct {
	// Enabled toggles caching entirely. With caching off every lookup is a
	// miss and the service rebuilds context on demand.
	Enabled bool `yaml:"enabled" env:"CACHE_ENABLED" env-default:"true"`

	// Backend selects the cache store: "memory" or "redis".
	Backend string `yaml:"backend" env:"CACHE_BACKEND" env-default:"memory"`

	// Prefix namespaces cache keys (useful when sharing a Redis instance).
	Prefix string `yaml:"prefix" env:"CACHE_PREFIX" env-default:"dbopt"`

	TTL CacheTTLConfig `yaml:"ttl"`
}

// CacheTTLConfig holds per-level TTL overrides, in seconds.
type CacheTTLConfig struct {
	SchemaSeconds        int `yaml:"schema_seconds" env:"CACHE_TTL_SCHEMA_SECONDS" env-default:"3600"`
	RelationshipsSeconds int `yaml:"relationships_seconds" env:"CACHE_TTL_RELATIONSHIPS_SECONDS" env-default:"1800"`
	StatisticsSeconds    int `yaml:"statistics_seconds" env:"CACHE_TTL_STATISTICS_SECONDS" env-default:"300"`
	SampleDataSeconds    int `yaml:"sample_data_seconds" env:"CACHE_TTL_SAMPLE_DATA_SECONDS" env-default:"600"`
	FullContextSeconds   int `yaml:"full_context_seconds" env:"CACHE_TTL_FULL_CONTEXT_SECONDS" env-default:"900"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LLMConfig holds the SQL generation model settings.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" or "anthropic".
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"512"`
	Temperature float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// TimeoutConfig holds per-stage timeout budgets, in seconds.
type TimeoutConfig struct {
	IntrospectionSeconds int `yaml:"introspection_seconds" env:"TIMEOUT_INTROSPECTION_SECONDS" env-default:"10"`
	GenerationSeconds    int `yaml:"generation_seconds" env:"TIMEOUT_GENERATION_SECONDS" env-default:"30"`
	ExecutionSeconds     int `yaml:"execution_seconds" env:"TIMEOUT_EXECUTION_SECONDS" env-default:"15"`
}

// Introspection returns the introspection budget as a duration.
func (t *TimeoutConfig) Introspection() time.Duration {
	return time.Duration(t.IntrospectionSeconds) * time.Second
}

// Generation returns the generation budget as a duration.
func (t *TimeoutConfig) Generation() time.Duration {
	return time.Duration(t.GenerationSeconds) * time.Second
}

// Execution returns the execution budget as a duration.
func (t *TimeoutConfig) Execution() time.Duration {
	return time.Duration(t.ExecutionSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. Secrets (PGPASSWORD, REDIS_PASSWORD, LLM_API_KEY) must
// come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be \"memory\" or \"redis\", got %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Redis.Host == "" {
		return fmt.Errorf("cache.backend is \"redis\" but redis.host is not set")
	}

	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be \"openai\" or \"anthropic\", got %q", c.LLM.Provider)
	}

	if c.SampleRowLimit < 1 {
		return fmt.Errorf("sample_row_limit must be at least 1, got %d", c.SampleRowLimit)
	}
	if c.SampleRowLimit > 5 {
		c.SampleRowLimit = 5
	}
	if c.WorkerPoolSize < 1 {
		return fmt.Errorf("worker_pool_size must be at least 1, got %d", c.WorkerPoolSize)
	}
	return nil
}
