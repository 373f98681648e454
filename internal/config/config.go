package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	DAG      DAGConfig      `yaml:"dag" mapstructure:"dag"`
	Grapher  GrapherConfig  `yaml:"grapher" mapstructure:"grapher"`
	Origins  OriginsConfig  `yaml:"origins" mapstructure:"origins"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// CatalogConfig locates the reference catalog (regions, income groups, population).
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// DAGConfig locates the step DAG files and the step code tree.
type DAGConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	ArchivePath string `yaml:"archive_path" mapstructure:"archive_path"`
	StepsDir    string `yaml:"steps_dir" mapstructure:"steps_dir"`
	SnapshotDir string `yaml:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// GrapherConfig configures the grapher database connection.
type GrapherConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// OriginsConfig configures upstream origin probing.
type OriginsConfig struct {
	UserAgent      string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec     float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	MaxConcurrency int     `yaml:"max_concurrency" mapstructure:"max_concurrency"`
}

// ServerConfig configures the dashboard API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// PipelineConfig configures harmonization and aggregation defaults.
type PipelineConfig struct {
	CountryColumn string `yaml:"country_column" mapstructure:"country_column"`
	YearColumn    string `yaml:"year_column" mapstructure:"year_column"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.path", "catalog/reference.db")
	v.SetDefault("dag.path", "dag/main.yml")
	v.SetDefault("dag.archive_path", "dag/archive.yml")
	v.SetDefault("dag.steps_dir", "steps")
	v.SetDefault("dag.snapshot_dir", "snapshots")
	v.SetDefault("origins.user_agent", "etl-cli origin probe")
	v.SetDefault("origins.timeout_secs", 15)
	v.SetDefault("origins.max_retries", 2)
	v.SetDefault("origins.rate_per_sec", 2.0)
	v.SetDefault("origins.max_concurrency", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.country_column", "country")
	v.SetDefault("pipeline.year_column", "year")

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
