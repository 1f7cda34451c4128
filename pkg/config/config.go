package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Typesense TypesenseConfig
	OpenAI    OpenAIConfig
	OTEL      OTELConfig
	Engine    EngineConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host           string
	Port           int
	Environment    string
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// TypesenseConfig holds Typesense configuration
type TypesenseConfig struct {
	URL    string
	APIKey string
}

// OpenAIConfig holds OpenAI configuration for the embeddings endpoint
type OpenAIConfig struct {
	APIKey         string
	EmbeddingModel string
	EmbeddingDims  int
	RateLimitRPM   int
	RateLimitBurst int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// EngineConfig tunes the context retrieval engine. Values come from env
// and may be overridden by the YAML file named in ENGINE_CONFIG_FILE.
type EngineConfig struct {
	DiagnosisLimit      int           `yaml:"diagnosis_limit"`
	ProcedureLimit      int           `yaml:"procedure_limit"`
	TopDiagnosesForMaps int           `yaml:"top_diagnoses_for_mappings"`
	DocumentPreviewLen  int           `yaml:"document_preview_length"`
	WarmupBatchSize     int           `yaml:"warmup_batch_size"`
	WarmupOnStartup     bool          `yaml:"warmup_on_startup"`
	RareConditionLimit  int           `yaml:"rare_condition_limit"`
	CacheRetries        int           `yaml:"cache_retries"`
	CacheRetryDelay     time.Duration `yaml:"cache_retry_delay"`
	BreakerMaxFailures  uint32        `yaml:"breaker_max_failures"`
	BreakerOpenTimeout  time.Duration `yaml:"breaker_open_timeout"`
	ProbeTimeout        time.Duration `yaml:"probe_timeout"`
	CodeLookupTTL       time.Duration `yaml:"code_lookup_ttl"`
	SearchResultTTL     time.Duration `yaml:"search_result_ttl"`
	MappingSetTTL       time.Duration `yaml:"mapping_set_ttl"`
	DocumentTTL         time.Duration `yaml:"document_ttl"`
}

// Load loads configuration from environment variables. A .env file in the
// working directory is applied first when present; existing env wins.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Environment:    getEnv("APP_ENV", "production"),
			AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "clinical_order_validation"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Typesense: TypesenseConfig{
			URL:    getEnv("TYPESENSE_URL", "http://localhost:8108"),
			APIKey: getEnv("TYPESENSE_API_KEY", "xyz"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDims:  getEnvAsInt("OPENAI_EMBEDDING_DIMS", 1536),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "clinical-context-engine"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Engine: EngineConfig{
			DiagnosisLimit:      getEnvAsInt("ENGINE_DIAGNOSIS_LIMIT", 10),
			ProcedureLimit:      getEnvAsInt("ENGINE_PROCEDURE_LIMIT", 10),
			TopDiagnosesForMaps: getEnvAsInt("ENGINE_TOP_DIAGNOSES", 5),
			DocumentPreviewLen:  getEnvAsInt("ENGINE_DOCUMENT_PREVIEW", 500),
			WarmupBatchSize:     getEnvAsInt("ENGINE_WARMUP_BATCH_SIZE", 1000),
			WarmupOnStartup:     getEnvAsBool("ENGINE_WARMUP_ON_STARTUP", true),
			RareConditionLimit:  getEnvAsInt("ENGINE_RARE_CONDITION_LIMIT", 5),
			CacheRetries:        getEnvAsInt("ENGINE_CACHE_RETRIES", 2),
			CacheRetryDelay:     getEnvAsDuration("ENGINE_CACHE_RETRY_DELAY", 100*time.Millisecond),
			BreakerMaxFailures:  uint32(getEnvAsInt("ENGINE_BREAKER_MAX_FAILURES", 5)),
			BreakerOpenTimeout:  getEnvAsDuration("ENGINE_BREAKER_OPEN_TIMEOUT", 30*time.Second),
			ProbeTimeout:        getEnvAsDuration("ENGINE_PROBE_TIMEOUT", 2*time.Second),
			CodeLookupTTL:       getEnvAsDuration("ENGINE_CODE_LOOKUP_TTL", 24*time.Hour),
			SearchResultTTL:     getEnvAsDuration("ENGINE_SEARCH_RESULT_TTL", 5*time.Minute),
			MappingSetTTL:       getEnvAsDuration("ENGINE_MAPPING_SET_TTL", time.Hour),
			DocumentTTL:         getEnvAsDuration("ENGINE_DOCUMENT_TTL", 6*time.Hour),
		},
	}

	if path := os.Getenv("ENGINE_CONFIG_FILE"); path != "" {
		if err := cfg.Engine.loadFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// loadFile overlays the YAML file on top of the env-derived values.
// Keys missing from the file keep their current value.
func (e *EngineConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read engine config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, e); err != nil {
		return fmt.Errorf("failed to parse engine config %s: %w", path, err)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
