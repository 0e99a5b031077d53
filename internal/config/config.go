package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input       InputConfig       `yaml:"input" mapstructure:"input"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Standardize StandardizeConfig `yaml:"standardize" mapstructure:"standardize"`
	Thresholds  Thresholds        `yaml:"thresholds" mapstructure:"thresholds"`
	Analytics   AnalyticsConfig   `yaml:"analytics" mapstructure:"analytics"`
	FTP         FTPConfig         `yaml:"ftp" mapstructure:"ftp"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" mapstructure:"monitoring"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the pipeline inputs. Paths may be local files
// (.csv or .xlsx), ftp:// URLs or http(s):// URLs.
type InputConfig struct {
	RawPath          string `yaml:"raw_path" mapstructure:"raw_path"`
	StandardizedPath string `yaml:"standardized_path" mapstructure:"standardized_path"`
}

// OutputConfig locates the regenerated output tables. XLSX additionally
// writes all three tables into one workbook next to the CSV files.
type OutputConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	XLSX bool   `yaml:"xlsx" mapstructure:"xlsx"`
}

// StoreConfig configures the optional database mirror of the outputs.
// Driver is one of "none", "sqlite" or "postgres".
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider    string     `yaml:"provider" mapstructure:"provider"`
	Dimensions  int        `yaml:"dimensions" mapstructure:"dimensions"`
	BatchSize   int        `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int        `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       bool       `yaml:"cache" mapstructure:"cache"`
	Jina        JinaConfig `yaml:"jina" mapstructure:"jina"`
}

// JinaConfig holds Jina embeddings API settings.
type JinaConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	BaseURL        string  `yaml:"base_url" mapstructure:"base_url"`
	Model          string  `yaml:"model" mapstructure:"model"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StandardizeConfig configures canonical item assignment.
type StandardizeConfig struct {
	TaxonomyPath string           `yaml:"taxonomy_path" mapstructure:"taxonomy_path"`
	Confidence   ConfidenceConfig `yaml:"confidence" mapstructure:"confidence"`
}

// ConfidenceConfig is the cluster-size step function behind confidence
// scores. It is a heuristic, not a statistical interval.
type ConfidenceConfig struct {
	Singleton float64 `yaml:"singleton" mapstructure:"singleton"`
	Small     float64 `yaml:"small" mapstructure:"small"`
	SmallMax  int     `yaml:"small_max" mapstructure:"small_max"`
	Large     float64 `yaml:"large" mapstructure:"large"`
}

// Thresholds gathers every tunable numeric rule of the pipeline. It is
// passed explicitly into each stage that needs it.
type Thresholds struct {
	// Epsilon is the cosine-distance radius of the density clustering.
	Epsilon float64 `yaml:"epsilon" mapstructure:"epsilon"`
	// StdMultiplier scales the group standard deviation in the anomaly rule.
	StdMultiplier float64 `yaml:"std_multiplier" mapstructure:"std_multiplier"`
	// AbsoluteRatio is the fraction of the median used when a group has no variance.
	AbsoluteRatio float64 `yaml:"absolute_ratio" mapstructure:"absolute_ratio"`
	// VolatilityThreshold is the coefficient of variation above which an item is volatile.
	VolatilityThreshold float64 `yaml:"volatility_threshold" mapstructure:"volatility_threshold"`
}

// AnalyticsConfig configures the analytics stages.
type AnalyticsConfig struct {
	// TrendLabels is "legacy" (UP/STABLE) or "volatility" (VOLATILE/STABLE).
	TrendLabels string   `yaml:"trend_labels" mapstructure:"trend_labels"`
	DateLayouts []string `yaml:"date_layouts" mapstructure:"date_layouts"`
}

// FTPConfig configures ftp:// input sources.
type FTPConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	User        string `yaml:"user" mapstructure:"user"`
	Password    string `yaml:"password" mapstructure:"password"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	Schedule       string   `yaml:"schedule" mapstructure:"schedule"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-health alerts raised while serving.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	AnomalyRateThreshold float64 `yaml:"anomaly_rate_threshold" mapstructure:"anomaly_rate_threshold"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Epsilon:             0.15,
		StdMultiplier:       2.5,
		AbsoluteRatio:       0.20,
		VolatilityThreshold: 0.15,
	}
}

// DefaultConfidence returns the production confidence steps.
func DefaultConfidence() ConfidenceConfig {
	return ConfidenceConfig{Singleton: 0.75, Small: 0.85, SmallMax: 3, Large: 0.95}
}

// Validate checks values that would make a run meaningless.
func (t Thresholds) Validate() error {
	if t.Epsilon <= 0 || t.Epsilon > 2 {
		return eris.Errorf("config: thresholds.epsilon must be in (0, 2], got %v", t.Epsilon)
	}
	if t.StdMultiplier <= 0 {
		return eris.Errorf("config: thresholds.std_multiplier must be positive, got %v", t.StdMultiplier)
	}
	if t.AbsoluteRatio <= 0 {
		return eris.Errorf("config: thresholds.absolute_ratio must be positive, got %v", t.AbsoluteRatio)
	}
	if t.VolatilityThreshold < 0 {
		return eris.Errorf("config: thresholds.volatility_threshold must not be negative, got %v", t.VolatilityThreshold)
	}
	return nil
}

// Validate checks the settings a command mode depends on. Mode is "run"
// or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "run":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Monitoring.Enabled && c.Monitoring.LookbackWindowHours <= 0 {
			errs = append(errs, "monitoring.lookback_window_hours must be > 0")
		}
		if c.Store.Driver == "" || c.Store.Driver == "none" {
			errs = append(errs, "store.driver must be sqlite or postgres to serve")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "", "none":
	case "sqlite", "postgres":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of none, sqlite, postgres", c.Store.Driver))
	}

	switch c.Embedding.Provider {
	case "hashing":
	case "jina":
		if c.Embedding.Jina.Key == "" {
			errs = append(errs, "embedding.jina.key is required for the jina provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("embedding.provider %q is not one of hashing, jina", c.Embedding.Provider))
	}

	if c.Embedding.BatchSize < 1 {
		errs = append(errs, "embedding.batch_size must be >= 1")
	}
	if c.Embedding.Concurrency < 1 || c.Embedding.Concurrency > 32 {
		errs = append(errs, "embedding.concurrency must be between 1 and 32")
	}

	switch c.Analytics.TrendLabels {
	case "legacy", "volatility":
	default:
		errs = append(errs, fmt.Sprintf("analytics.trend_labels %q is not one of legacy, volatility", c.Analytics.TrendLabels))
	}

	conf := c.Standardize.Confidence
	if conf.Singleton > conf.Small || conf.Small > conf.Large || conf.Large > 1 || conf.Singleton < 0 {
		errs = append(errs, "standardize.confidence steps must satisfy 0 <= singleton <= small <= large <= 1")
	}
	if conf.SmallMax < 2 {
		errs = append(errs, "standardize.confidence.small_max must be >= 2")
	}

	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s:\n  %s", mode, strings.Join(errs, "\n  "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COSTDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	th := DefaultThresholds()
	conf := DefaultConfidence()

	// Defaults
	v.SetDefault("input.raw_path", "data/raw/purchase_orders_raw.csv")
	v.SetDefault("input.standardized_path", "")
	v.SetDefault("output.dir", "data/processed")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.dimensions", 256)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.cache", true)
	v.SetDefault("embedding.jina.key", "")
	v.SetDefault("embedding.jina.base_url", "https://api.jina.ai")
	v.SetDefault("embedding.jina.model", "jina-embeddings-v3")
	v.SetDefault("embedding.jina.requests_per_sec", 5.0)
	v.SetDefault("embedding.jina.timeout_secs", 30)
	v.SetDefault("standardize.taxonomy_path", "")
	v.SetDefault("standardize.confidence.singleton", conf.Singleton)
	v.SetDefault("standardize.confidence.small", conf.Small)
	v.SetDefault("standardize.confidence.small_max", conf.SmallMax)
	v.SetDefault("standardize.confidence.large", conf.Large)
	v.SetDefault("thresholds.epsilon", th.Epsilon)
	v.SetDefault("thresholds.std_multiplier", th.StdMultiplier)
	v.SetDefault("thresholds.absolute_ratio", th.AbsoluteRatio)
	v.SetDefault("thresholds.volatility_threshold", th.VolatilityThreshold)
	v.SetDefault("analytics.trend_labels", "legacy")
	v.SetDefault("analytics.date_layouts", []string{})
	v.SetDefault("ftp.timeout_secs", 30)
	v.SetDefault("ftp.user", "anonymous")
	v.SetDefault("ftp.password", "anonymous@")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.anomaly_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
