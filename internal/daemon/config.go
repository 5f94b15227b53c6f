package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/finquest-app/finquest/internal/domain"
	"github.com/finquest-app/finquest/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. FINQUEST_API_PORT.
const EnvPrefix = "FINQUEST_"

// Config is the daemon configuration, read from config.toml.
type Config struct {
	API        APIConfig        `toml:"api" envPrefix:"API_"`
	Storage    StorageConfig    `toml:"storage" envPrefix:"STORAGE_"`
	Simulation SimulationConfig `toml:"simulation" envPrefix:"SIMULATION_"`
	Logging    LoggingConfig    `toml:"logging" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `toml:"metrics" envPrefix:"METRICS_"`
	Catalog    CatalogConfig    `toml:"catalog" envPrefix:"CATALOG_"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host           string   `toml:"host" env:"HOST"`
	Port           int      `toml:"port" env:"PORT"`
	RequestTimeout string   `toml:"request_timeout" env:"REQUEST_TIMEOUT"`
	CORSOrigins    []string `toml:"cors_origins" env:"CORS_ORIGINS" envSeparator:","`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DataDir string `toml:"data_dir" env:"DATA_DIR"`
}

// SimulationConfig tunes the simulation core.
type SimulationConfig struct {
	// HistoryBaseYear is the calendar year of time point 0.
	HistoryBaseYear int `toml:"history_base_year" env:"HISTORY_BASE_YEAR"`
	// MaxPlanSteps caps ad-hoc /api/simulate requests.
	MaxPlanSteps int    `toml:"max_plan_steps" env:"MAX_PLAN_STEPS"`
	Granularity  string `toml:"default_granularity" env:"DEFAULT_GRANULARITY"`
	// CompareWorkers bounds how many plans /api/compare replays at once.
	CompareWorkers int `toml:"compare_workers" env:"COMPARE_WORKERS"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

// MetricsConfig controls the Prometheus endpoint and span buffer.
type MetricsConfig struct {
	Enabled   bool   `toml:"enabled" env:"ENABLED"`
	Path      string `toml:"path" env:"PATH"`
	TraceSize int    `toml:"trace_size" env:"TRACE_SIZE"`
}

// CatalogConfig lists extra YAML quest files.
type CatalogConfig struct {
	QuestFiles []string `toml:"quest_files" env:"QUEST_FILES" envSeparator:","`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:           "127.0.0.1",
			Port:           8484,
			RequestTimeout: "30s",
			CORSOrigins:    []string{"*"},
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Simulation: SimulationConfig{
			HistoryBaseYear: 2011,
			MaxPlanSteps:    1200,
			Granularity:     string(domain.GranularityMonth),
			CompareWorkers:  4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      "/metrics",
			TraceSize: 1000,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".finquest"
	}
	return filepath.Join(home, ".finquest")
}

// LoadConfig reads path over the defaults and then applies FINQUEST_*
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays FINQUEST_* environment variables. Unset variables
// leave the current values alone.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.API.Port <= 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	if _, err := time.ParseDuration(c.API.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("api.request_timeout: %w", err))
	}
	if c.Storage.DataDir == "" {
		errs = append(errs, errors.New("storage.data_dir is empty"))
	}
	if c.Simulation.HistoryBaseYear <= 0 {
		errs = append(errs, fmt.Errorf("simulation.history_base_year %d must be positive", c.Simulation.HistoryBaseYear))
	}
	if c.Simulation.MaxPlanSteps <= 0 {
		errs = append(errs, fmt.Errorf("simulation.max_plan_steps %d must be positive", c.Simulation.MaxPlanSteps))
	}
	if c.Simulation.CompareWorkers <= 0 {
		errs = append(errs, fmt.Errorf("simulation.compare_workers %d must be positive", c.Simulation.CompareWorkers))
	}
	if !domain.Granularity(c.Simulation.Granularity).Valid() {
		errs = append(errs, fmt.Errorf("%w: simulation.default_granularity %q", domain.ErrInvalidGranularity, c.Simulation.Granularity))
	}
	if !logging.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level %q unknown", c.Logging.Level))
	}
	if c.Metrics.Enabled && (c.Metrics.Path == "" || c.Metrics.Path[0] != '/') {
		errs = append(errs, fmt.Errorf("metrics.path %q must start with /", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// Timeout returns the per-request timeout.
func (c Config) Timeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// DefaultGranularity returns the granularity for ad-hoc simulations.
func (c Config) DefaultGranularity() domain.Granularity {
	return domain.Granularity(c.Simulation.Granularity)
}
