// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Resources, Search, LSA, Redis, Kafka, Postgres, etc.).
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
	Server     ServerConfig     `yaml:"server"`
	Resources  ResourcesConfig  `yaml:"resources"`
	Search     SearchConfig     `yaml:"search"`
	LSA        LSAConfig        `yaml:"lsa"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Analytics  AnalyticsConfig  `yaml:"analytics"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ResourcesConfig points at the static vocabulary and index files.
type ResourcesConfig struct {
	IndexPath      string `yaml:"indexPath"`
	LengthsPath    string `yaml:"lengthsPath"`
	ScientificPath string `yaml:"scientificPath"`
	TechnicalPath  string `yaml:"technicalPath"`
	ThesaurusPath  string `yaml:"thesaurusPath"`
	LookupPath     string `yaml:"lookupPath"`
	// LemmaPath is the surface-to-lemma table exported with the index.
	LemmaPath string `yaml:"lemmaPath"`
	// Lemmatizer is "dictionary", "identity" or "snowball". Empty picks
	// dictionary when LemmaPath is set and identity otherwise. snowball
	// emits stems and only suits an index built with the same stemmer.
	Lemmatizer string `yaml:"lemmatizer"`
}

// SearchConfig controls the vector-space ranker.
type SearchConfig struct {
	CutoffK         int           `yaml:"cutoffK"`
	MaxResults      int           `yaml:"maxResults"`
	DefaultLimit    int           `yaml:"defaultLimit"`
	MaxNGram        int           `yaml:"maxNGram"`
	ScientificBoost float64       `yaml:"scientificBoost"`
	ConceptBoost    float64       `yaml:"conceptBoost"`
	ThesaurusBoost  float64       `yaml:"thesaurusBoost"`
	Deboost         float64       `yaml:"deboost"`
	Timeout         time.Duration `yaml:"timeout"`
}

// LSAConfig controls the latent-semantic model build and query fold-in.
type LSAConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Rank            int     `yaml:"rank"`
	TopN            int     `yaml:"topN"`
	ScientificBoost float64 `yaml:"scientificBoost"`
	TechnicalBoost  float64 `yaml:"technicalBoost"`
	// MinSingularRatio drops singular values below ratio * sigma_max.
	MinSingularRatio float64 `yaml:"minSingularRatio"`
	BundleDir        string  `yaml:"bundleDir"`
}

// EvaluationConfig controls offline retrieval evaluation runs.
type EvaluationConfig struct {
	DatasetPath string `yaml:"datasetPath"`
	CutoffK     int    `yaml:"cutoffK"`
	Workers     int    `yaml:"workers"`
	Persist     bool   `yaml:"persist"`
}

// AnalyticsConfig controls search event collection. A zero SnapshotInterval
// disables PostgreSQL snapshots.
type AnalyticsConfig struct {
	Enabled          bool          `yaml:"enabled"`
	BufferSize       int           `yaml:"bufferSize"`
	BatchSize        int           `yaml:"batchSize"`
	FlushInterval    time.Duration `yaml:"flushInterval"`
	SnapshotInterval time.Duration `yaml:"snapshotInterval"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents    string `yaml:"analyticsEvents"`
	ArtifactsPublished string `yaml:"artifactsPublished"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig guards the administrative endpoints with API keys stored in
// PostgreSQL. Search endpoints stay public.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the ranker cannot work with.
func (c *Config) Validate() error {
	if c.Search.CutoffK <= 0 {
		return fmt.Errorf("search.cutoffK must be positive, got %d", c.Search.CutoffK)
	}
	if c.Search.MaxNGram <= 0 {
		return fmt.Errorf("search.maxNGram must be positive, got %d", c.Search.MaxNGram)
	}
	if c.LSA.Rank <= 0 {
		return fmt.Errorf("lsa.rank must be positive, got %d", c.LSA.Rank)
	}
	switch c.Resources.Lemmatizer {
	case "", "snowball", "identity":
	case "dictionary":
		if c.Resources.LemmaPath == "" {
			return fmt.Errorf("resources.lemmaPath is required for the dictionary lemmatizer")
		}
	default:
		return fmt.Errorf("unknown lemmatizer %q", c.Resources.Lemmatizer)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Resources: ResourcesConfig{
			IndexPath:      "data/index/inverted_index.json",
			LengthsPath:    "data/index/document_lengths.json",
			ScientificPath: "data/vocabulary/scientific_terms.json",
			TechnicalPath:  "data/vocabulary/technical_concepts.json",
			ThesaurusPath:  "data/vocabulary/thesaurus.json",
			LookupPath:     "data/vocabulary/lookup.json",
		},
		Search: SearchConfig{
			CutoffK:         30,
			MaxResults:      30,
			DefaultLimit:    30,
			MaxNGram:        4,
			ScientificBoost: 2.0,
			ConceptBoost:    2.0,
			ThesaurusBoost:  2.0,
			Deboost:         0.5,
			Timeout:         2 * time.Second,
		},
		LSA: LSAConfig{
			Enabled:          true,
			Rank:             30,
			TopN:             30,
			ScientificBoost:  5.0,
			TechnicalBoost:   1.2,
			MinSingularRatio: 1e-10,
			BundleDir:        "data/lsa",
		},
		Evaluation: EvaluationConfig{
			CutoffK: 10,
			Workers: 8,
		},
		Analytics: AnalyticsConfig{
			Enabled:       true,
			BufferSize:    10000,
			BatchSize:     100,
			FlushInterval: 2 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "phytosearch",
			User:            "phytosearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Enabled:       true,
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "phytosearch-group",
			Topics: KafkaTopics{
				AnalyticsEvents:    "search-analytics",
				ArtifactsPublished: "lsa-artifacts",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PS_RESOURCES_INDEX"); v != "" {
		cfg.Resources.IndexPath = v
	}
	if v := os.Getenv("PS_RESOURCES_LENGTHS"); v != "" {
		cfg.Resources.LengthsPath = v
	}
	if v := os.Getenv("PS_RESOURCES_SCIENTIFIC"); v != "" {
		cfg.Resources.ScientificPath = v
	}
	if v := os.Getenv("PS_RESOURCES_TECHNICAL"); v != "" {
		cfg.Resources.TechnicalPath = v
	}
	if v := os.Getenv("PS_RESOURCES_THESAURUS"); v != "" {
		cfg.Resources.ThesaurusPath = v
	}
	if v := os.Getenv("PS_RESOURCES_LOOKUP"); v != "" {
		cfg.Resources.LookupPath = v
	}
	if v := os.Getenv("PS_RESOURCES_LEMMAS"); v != "" {
		cfg.Resources.LemmaPath = v
	}
	if v := os.Getenv("PS_RESOURCES_LEMMATIZER"); v != "" {
		cfg.Resources.Lemmatizer = v
	}
	if v := os.Getenv("PS_SEARCH_CUTOFF_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.Search.CutoffK = k
		}
	}
	if v := os.Getenv("PS_LSA_BUNDLE_DIR"); v != "" {
		cfg.LSA.BundleDir = v
	}
	if v := os.Getenv("PS_LSA_RANK"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			cfg.LSA.Rank = k
		}
	}
	if v := os.Getenv("PS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("PS_ANALYTICS_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Analytics.SnapshotInterval = d
		}
	}
	if v := os.Getenv("PS_AUTH_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Auth.Enabled = b
		}
	}
	if v := os.Getenv("PS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
