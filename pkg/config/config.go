package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Database configuration
	Database DatabaseConfig `mapstructure:"database"`

	// NLP configuration
	NLP NLPConfig `mapstructure:"nlp"`

	// CircuitBreaker configuration
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`

	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Router    RouterConfig    `mapstructure:"router"`
	Reasoner  ReasonerConfig  `mapstructure:"reasoner"`
	Validator ValidatorConfig `mapstructure:"validator"`
	Report    ReportConfig    `mapstructure:"report"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// CircuitBreakerConfig holds configuration for circuit breaking
type CircuitBreakerConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	MaxRequests      uint32  `mapstructure:"max_requests"`
	Interval         int     `mapstructure:"interval"` // in seconds
	Timeout          int     `mapstructure:"timeout"`  // in seconds
	ReadyToTripRatio float64 `mapstructure:"ready_to_trip_ratio"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	// ParquetPath is the directory receiving per-question audit files.
	// Empty disables the audit log.
	ParquetPath    string `mapstructure:"parquet_path"`
	AuditBatchSize int    `mapstructure:"audit_batch_size"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text, json, color
}

// DatabaseConfig holds graph store configuration
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // memory, neo4j
	URI          string        `mapstructure:"uri"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	Database     string        `mapstructure:"database"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
}

// NLPConfig holds NLP configuration
type NLPConfig struct {
	// Models is a map of model configurations keyed by provider id ("default", "small")
	Models map[string]NLPModelConfig `mapstructure:"models"`

	// RouterRules maps pipeline stages (route, traversal, narrative, report) to models
	RouterRules []RouterRule `mapstructure:"router_rules"`

	MaxRetries int `mapstructure:"max_retries"`
}

// NLPModelConfig holds configuration for a specific model
type NLPModelConfig struct {
	Provider    string  `mapstructure:"provider"` // openai
	Model       string  `mapstructure:"model"`
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// RouterRule defines a rule for routing requests
type RouterRule struct {
	Usage    string `mapstructure:"usage"`    // Stage to match (e.g. "route", "narrative")
	Provider string `mapstructure:"provider"` // Provider ID to use
	Fallback string `mapstructure:"fallback"` // Fallback provider ID
}

// ResolverConfig tunes entity canonicalization.
type ResolverConfig struct {
	SimilarityThreshold float64           `mapstructure:"similarity_threshold"`
	AmbiguityMargin     float64           `mapstructure:"ambiguity_margin"`
	AliasPath           string            `mapstructure:"alias_path"` // badger directory, empty keeps aliases in memory
	Aliases             map[string]string `mapstructure:"aliases"`
	Abbreviations       map[string]string `mapstructure:"abbreviations"`
}

// IngestConfig tunes graph integration.
type IngestConfig struct {
	CombineRule   string  `mapstructure:"combine_rule"` // max, latest, mean
	DefaultWeight float64 `mapstructure:"default_weight"`
	Concurrency   int     `mapstructure:"concurrency"`
	CheckpointDir string  `mapstructure:"checkpoint_dir"`
}

// RouterConfig tunes question routing.
type RouterConfig struct {
	LiveKeywords []string      `mapstructure:"live_keywords"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// ReasonerConfig tunes multi-hop reasoning.
type ReasonerConfig struct {
	MaxHops          int           `mapstructure:"max_hops"`
	MaxPaths         int           `mapstructure:"max_paths"`
	MaxEvidence      int           `mapstructure:"max_evidence"`
	LengthDecay      float64       `mapstructure:"length_decay"`
	SpecRetries      int           `mapstructure:"spec_retries"`
	RelationTypes    []string      `mapstructure:"relation_types"`
	SpecTimeout      time.Duration `mapstructure:"spec_timeout"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
	NarrativeTimeout time.Duration `mapstructure:"narrative_timeout"`
}

// ValidatorConfig tunes citation validation.
type ValidatorConfig struct {
	OverlapThreshold       float64       `mapstructure:"overlap_threshold"`
	AccuracyWeight         float64       `mapstructure:"accuracy_weight"`
	SupportWeight          float64       `mapstructure:"support_weight"`
	MinConfidence          float64       `mapstructure:"min_confidence"`
	MissingCitationPenalty float64       `mapstructure:"missing_citation_penalty"`
	Timeout                time.Duration `mapstructure:"timeout"`
}

// ReportConfig tunes report rendering.
type ReportConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	// Set defaults
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Override with environment variables if present
	overrideWithEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects values that would break component invariants.
func (c *Config) Validate() error {
	if c.Resolver.SimilarityThreshold <= 0 || c.Resolver.SimilarityThreshold > 1 {
		return fmt.Errorf("resolver.similarity_threshold must be in (0,1], got %v", c.Resolver.SimilarityThreshold)
	}
	if c.Reasoner.MaxHops < 1 {
		return fmt.Errorf("reasoner.max_hops must be at least 1, got %d", c.Reasoner.MaxHops)
	}
	if c.Reasoner.MaxPaths < 1 {
		return fmt.Errorf("reasoner.max_paths must be at least 1, got %d", c.Reasoner.MaxPaths)
	}
	if c.Validator.AccuracyWeight < 0 || c.Validator.SupportWeight < 0 ||
		c.Validator.AccuracyWeight+c.Validator.SupportWeight == 0 {
		return fmt.Errorf("validator weights must be non-negative and not both zero")
	}
	if c.Validator.MinConfidence < 0 || c.Validator.MinConfidence > 1 {
		return fmt.Errorf("validator.min_confidence must be in [0,1], got %v", c.Validator.MinConfidence)
	}
	switch c.Database.Driver {
	case "memory", "neo4j":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Log defaults
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "color")

	// Database defaults
	viper.SetDefault("database.driver", "memory")
	viper.SetDefault("database.uri", "bolt://localhost:7687")
	viper.SetDefault("database.username", "neo4j")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.database", "neo4j")
	viper.SetDefault("database.query_timeout", 15*time.Second)

	viper.SetDefault("nlp.models.default.provider", "openai")
	viper.SetDefault("nlp.models.default.model", "gpt-4o-mini")
	viper.SetDefault("nlp.models.default.temperature", 0.0)
	viper.SetDefault("nlp.models.default.max_tokens", 2048)
	viper.SetDefault("nlp.max_retries", 2)

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", 60)
	viper.SetDefault("circuit_breaker.timeout", 30)
	viper.SetDefault("circuit_breaker.ready_to_trip_ratio", 0.6)

	viper.SetDefault("resolver.similarity_threshold", 0.85)
	viper.SetDefault("resolver.ambiguity_margin", 0.05)

	viper.SetDefault("ingest.combine_rule", "max")
	viper.SetDefault("ingest.default_weight", 1.0)
	viper.SetDefault("ingest.concurrency", 4)

	viper.SetDefault("router.timeout", 10*time.Second)

	viper.SetDefault("reasoner.max_hops", 3)
	viper.SetDefault("reasoner.max_paths", 100)
	viper.SetDefault("reasoner.max_evidence", 20)
	viper.SetDefault("reasoner.length_decay", 0.85)
	viper.SetDefault("reasoner.spec_retries", 1)
	viper.SetDefault("reasoner.spec_timeout", 20*time.Second)
	viper.SetDefault("reasoner.query_timeout", 15*time.Second)
	viper.SetDefault("reasoner.narrative_timeout", 30*time.Second)

	viper.SetDefault("validator.overlap_threshold", 0.3)
	viper.SetDefault("validator.accuracy_weight", 0.7)
	viper.SetDefault("validator.support_weight", 0.3)
	viper.SetDefault("validator.min_confidence", 0.7)
	viper.SetDefault("validator.missing_citation_penalty", 0.5)
	viper.SetDefault("validator.timeout", 5*time.Second)

	viper.SetDefault("report.timeout", 30*time.Second)

	viper.SetDefault("telemetry.audit_batch_size", 50)
	viper.SetDefault("telemetry.metrics_enabled", true)

	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("ingest.checkpoint_dir", fmt.Sprintf("%s/.groundgraph/checkpoints", home))
	}
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if config.NLP.Models == nil {
		config.NLP.Models = make(map[string]NLPModelConfig)
	}

	defaultModel := config.NLP.Models["default"]
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		defaultModel.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		defaultModel.BaseURL = baseURL
	}
	config.NLP.Models["default"] = defaultModel

	// Database credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Database.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Database.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Database.Password = pass
	}
	if dbDriver := os.Getenv("DB_DRIVER"); dbDriver != "" {
		config.Database.Driver = dbDriver
	}

	if path := os.Getenv("GROUNDGRAPH_ALIAS_PATH"); path != "" {
		config.Resolver.AliasPath = path
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
