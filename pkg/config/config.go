// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Search, Logging, Metrics).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Search    SearchConfig    `yaml:"search"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// CORSOrigins lists browser origins allowed to call the API. Empty
	// disables CORS headers entirely.
	CORSOrigins []string `yaml:"corsOrigins"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ContentEvents   string `yaml:"contentEvents"`
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// FieldWeights maps a searchable field name to its multi-field weight.
type FieldWeights map[string]float64

// SearchConfig is the tuning surface of the fuzzy search engine and the
// index store.
type SearchConfig struct {
	CacheEnabled        bool          `yaml:"cacheEnabled"`
	FuzzyThreshold      float64       `yaml:"fuzzyThreshold"`
	DistanceThreshold   int           `yaml:"distanceThreshold"`
	PhoneticEnabled     bool          `yaml:"phoneticEnabled"`
	PhoneticWeight      float64       `yaml:"phoneticWeight"`
	ResultCacheTTL      time.Duration `yaml:"resultCacheTTL"`
	SuggestionCacheTTL  time.Duration `yaml:"suggestionCacheTTL"`
	IndexCacheTTL       time.Duration `yaml:"indexCacheTTL"`
	FieldWeights        FieldWeights  `yaml:"fieldWeights"`
	MaxQueryLength      int           `yaml:"maxQueryLength"`
	MinSuggestionLength int           `yaml:"minSuggestionLength"`
	HighlightTag        string        `yaml:"highlightTag"`
	HighlightClass      string        `yaml:"highlightClass"`
	ContextLength       int           `yaml:"contextLength"`
	MaxIndexItems       int           `yaml:"maxIndexItems"`
	MaxCandidates       int           `yaml:"maxCandidates"`
	MaxDuration         time.Duration `yaml:"maxDuration"`
	DefaultLimit        int           `yaml:"defaultLimit"`
	MaxLimit            int           `yaml:"maxLimit"`
}

// Validate reports the first setting that would make scoring or caching
// behave nonsensically.
func (s SearchConfig) Validate() error {
	switch {
	case s.FuzzyThreshold < 0 || s.FuzzyThreshold > 100:
		return fmt.Errorf("search.fuzzyThreshold must be within [0,100], got %v", s.FuzzyThreshold)
	case s.DistanceThreshold < 0:
		return fmt.Errorf("search.distanceThreshold must not be negative, got %d", s.DistanceThreshold)
	case s.PhoneticWeight < 0 || s.PhoneticWeight > 1:
		return fmt.Errorf("search.phoneticWeight must be within [0,1], got %v", s.PhoneticWeight)
	case s.ResultCacheTTL < 0 || s.SuggestionCacheTTL < 0 || s.IndexCacheTTL < 0:
		return fmt.Errorf("search cache TTLs must not be negative")
	case s.MaxQueryLength <= 0:
		return fmt.Errorf("search.maxQueryLength must be positive, got %d", s.MaxQueryLength)
	case s.MaxCandidates <= 0 || s.MaxIndexItems <= 0:
		return fmt.Errorf("search.maxCandidates and search.maxIndexItems must be positive")
	}
	for field, w := range s.FieldWeights {
		if w <= 0 {
			return fmt.Errorf("search.fieldWeights.%s must be positive, got %v", field, w)
		}
	}
	return nil
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// RateLimitConfig bounds the request rate of the public search API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Search.Validate(); err != nil {
		return nil, fmt.Errorf("invalid search config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// DefaultSearch returns the default search tuning.
func DefaultSearch() SearchConfig {
	return defaultConfig().Search
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "newsblog",
			User:            "newsblog",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "newsblog-search",
			Topics: KafkaTopics{
				ContentEvents:   "content-events",
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		Search: SearchConfig{
			CacheEnabled:       true,
			FuzzyThreshold:     60,
			DistanceThreshold:  2,
			PhoneticEnabled:    false,
			PhoneticWeight:     0.3,
			ResultCacheTTL:     600 * time.Second,
			SuggestionCacheTTL: 3600 * time.Second,
			IndexCacheTTL:      86400 * time.Second,
			FieldWeights: FieldWeights{
				"title":    3.0,
				"excerpt":  2.0,
				"content":  1.0,
				"tags":     1.5,
				"category": 1.5,
			},
			MaxQueryLength:      200,
			MinSuggestionLength: 3,
			HighlightTag:        "mark",
			HighlightClass:      "search-highlight",
			ContextLength:       200,
			MaxIndexItems:       10000,
			MaxCandidates:       1000,
			MaxDuration:         time.Second,
			DefaultLimit:        20,
			MaxLimit:            100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_REDIS_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = enabled
		}
	}
	if v := os.Getenv("SP_SEARCH_FUZZY_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.FuzzyThreshold = threshold
		}
	}
	if v := os.Getenv("SP_SEARCH_PHONETIC_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Search.PhoneticEnabled = enabled
		}
	}
	if v := os.Getenv("SP_SEARCH_CACHE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Search.CacheEnabled = enabled
		}
	}
	if v := os.Getenv("SP_SEARCH_MAX_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Search.MaxDuration = d
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
