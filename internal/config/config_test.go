package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/raw/purchase_orders_raw.csv", cfg.Input.RawPath)
	assert.Empty(t, cfg.Input.StandardizedPath)
	assert.Equal(t, "data/processed", cfg.Output.Dir)
	assert.False(t, cfg.Output.XLSX)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
	assert.Equal(t, 4, cfg.Embedding.Concurrency)
	assert.True(t, cfg.Embedding.Cache)
	assert.Equal(t, "https://api.jina.ai", cfg.Embedding.Jina.BaseURL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Embedding.Jina.Model)
	assert.InDelta(t, 0.15, cfg.Thresholds.Epsilon, 1e-9)
	assert.InDelta(t, 2.5, cfg.Thresholds.StdMultiplier, 1e-9)
	assert.InDelta(t, 0.20, cfg.Thresholds.AbsoluteRatio, 1e-9)
	assert.InDelta(t, 0.15, cfg.Thresholds.VolatilityThreshold, 1e-9)
	assert.InDelta(t, 0.75, cfg.Standardize.Confidence.Singleton, 1e-9)
	assert.InDelta(t, 0.85, cfg.Standardize.Confidence.Small, 1e-9)
	assert.Equal(t, 3, cfg.Standardize.Confidence.SmallMax)
	assert.InDelta(t, 0.95, cfg.Standardize.Confidence.Large, 1e-9)
	assert.Equal(t, "legacy", cfg.Analytics.TrendLabels)
	assert.Equal(t, 30, cfg.FTP.TimeoutSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Monitoring.Enabled)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 1e-9)
	assert.Equal(t, 24, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: costdb.db
output:
  xlsx: true
thresholds:
  epsilon: 0.25
  std_multiplier: 3
analytics:
  trend_labels: volatility
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "costdb.db", cfg.Store.DatabaseURL)
	assert.True(t, cfg.Output.XLSX)
	assert.InDelta(t, 0.25, cfg.Thresholds.Epsilon, 1e-9)
	assert.InDelta(t, 3.0, cfg.Thresholds.StdMultiplier, 1e-9)
	assert.Equal(t, "volatility", cfg.Analytics.TrendLabels)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.20, cfg.Thresholds.AbsoluteRatio, 1e-9)
	assert.Equal(t, 64, cfg.Embedding.BatchSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("COSTDB_STORE_DRIVER", "postgres")
	t.Setenv("COSTDB_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("COSTDB_SERVER_PORT", "3000")
	t.Setenv("COSTDB_THRESHOLDS_VOLATILITY_THRESHOLD", "0.3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 0.3, cfg.Thresholds.VolatilityThreshold, 1e-9)
}

func TestLoadRejectsInvalidThresholds(t *testing.T) {
	chdirTemp(t)

	t.Setenv("COSTDB_THRESHOLDS_EPSILON", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds.epsilon")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	return &Config{
		Store:       StoreConfig{Driver: "sqlite"},
		Embedding:   EmbeddingConfig{Provider: "hashing", BatchSize: 64, Concurrency: 4},
		Standardize: StandardizeConfig{Confidence: DefaultConfidence()},
		Thresholds:  DefaultThresholds(),
		Analytics:   AnalyticsConfig{TrendLabels: "legacy"},
		Server:      ServerConfig{Port: 8080},
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("run"))
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_ServeNeedsStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "none"

	assert.NoError(t, cfg.Validate("run"))
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres to serve")
}

func TestValidate_ServeInvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("run"))
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_ServeMonitoringLookback(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitoring = MonitoringConfig{Enabled: true}

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()

	cfg.Store.Driver = "postgres"
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/costdb"
	assert.NoError(t, cfg.Validate("run"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
}

func TestValidate_Embedding(t *testing.T) {
	cfg := validDefaults()

	cfg.Embedding.Provider = "jina"
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.jina.key is required")

	cfg.Embedding.Jina.Key = "jina_key"
	assert.NoError(t, cfg.Validate("run"))

	cfg.Embedding.Concurrency = 0
	err = cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.concurrency must be between 1 and 32")
}

func TestValidate_ConfidenceMustBeMonotone(t *testing.T) {
	cfg := validDefaults()
	cfg.Standardize.Confidence.Small = 0.7

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "singleton <= small <= large")
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validDefaults()
	cfg.Analytics.TrendLabels = "direction"
	cfg.Embedding.BatchSize = 0
	cfg.Thresholds.StdMultiplier = 0

	err := cfg.Validate("run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analytics.trend_labels")
	assert.Contains(t, err.Error(), "embedding.batch_size")
	assert.Contains(t, err.Error(), "thresholds.std_multiplier")
}

func TestThresholdsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Thresholds)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Thresholds) {}},
		{name: "zero epsilon", mutate: func(th *Thresholds) { th.Epsilon = 0 }, wantErr: "epsilon"},
		{name: "epsilon above cosine range", mutate: func(th *Thresholds) { th.Epsilon = 2.5 }, wantErr: "epsilon"},
		{name: "negative ratio", mutate: func(th *Thresholds) { th.AbsoluteRatio = -0.1 }, wantErr: "absolute_ratio"},
		{name: "negative volatility", mutate: func(th *Thresholds) { th.VolatilityThreshold = -1 }, wantErr: "volatility_threshold"},
		{name: "zero volatility allowed", mutate: func(th *Thresholds) { th.VolatilityThreshold = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			th := DefaultThresholds()
			tt.mutate(&th)
			err := th.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
