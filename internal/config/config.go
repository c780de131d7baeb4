package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig   `yaml:"store" mapstructure:"store"`
	Log       LogConfig     `yaml:"log" mapstructure:"log"`
	Build     BuildConfig   `yaml:"build" mapstructure:"build"`
	Match     MatchConfig   `yaml:"match" mapstructure:"match"`
	Materials BuilderConfig `yaml:"materials" mapstructure:"materials"`
	Molecules BuilderConfig `yaml:"molecules" mapstructure:"molecules"`
	Retry     RetryConfig   `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BuildConfig controls how a build run dispatches partitions.
type BuildConfig struct {
	Workers             int     `yaml:"workers" mapstructure:"workers"`
	PartitionsPerSecond float64 `yaml:"partitions_per_second" mapstructure:"partitions_per_second"`
	// ChunkSize caps the number of documents per bulk upsert.
	ChunkSize int `yaml:"chunk_size" mapstructure:"chunk_size"`
	// LogCollection records build runs; empty disables the build log.
	LogCollection string `yaml:"log_collection" mapstructure:"log_collection"`
}

// MatchConfig holds structure and molecule comparison tolerances.
type MatchConfig struct {
	LTol            float64 `yaml:"ltol" mapstructure:"ltol"`
	STol            float64 `yaml:"stol" mapstructure:"stol"`
	AngleTol        float64 `yaml:"angle_tol" mapstructure:"angle_tol"`
	Symprec         float64 `yaml:"symprec" mapstructure:"symprec"`
	FallbackSymprec float64 `yaml:"fallback_symprec" mapstructure:"fallback_symprec"`
	BondTolerance   float64 `yaml:"bond_tolerance" mapstructure:"bond_tolerance"`
}

// BuilderConfig configures one builder (materials or molecules).
type BuilderConfig struct {
	Source     string `yaml:"source" mapstructure:"source"`
	Target     string `yaml:"target" mapstructure:"target"`
	Validation string `yaml:"validation" mapstructure:"validation"`

	// IdentityKinds are the calculation kinds that may supply the entity id.
	IdentityKinds []string `yaml:"identity_kinds" mapstructure:"identity_kinds"`
	// GroupingKinds are the calculation kinds whose geometry takes part in grouping.
	GroupingKinds []string `yaml:"grouping_kinds" mapstructure:"grouping_kinds"`

	SeparateMagOrderings bool `yaml:"separate_mag_orderings" mapstructure:"separate_mag_orderings"`
	SeparateSpin         bool `yaml:"separate_spin" mapstructure:"separate_spin"`

	// PropertyTable is a YAML file path; empty selects the built-in table.
	PropertyTable string `yaml:"property_table" mapstructure:"property_table"`
}

// RetryConfig controls retries of transient store failures.
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MATERIALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "materials.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("build.workers", 4)
	v.SetDefault("build.partitions_per_second", 0)
	v.SetDefault("build.chunk_size", 500)
	v.SetDefault("build.log_collection", "build_log")

	v.SetDefault("match.ltol", 0.2)
	v.SetDefault("match.stol", 0.3)
	v.SetDefault("match.angle_tol", 5.0)
	v.SetDefault("match.symprec", 0.1)
	v.SetDefault("match.fallback_symprec", 0.5)
	v.SetDefault("match.bond_tolerance", 1.2)

	v.SetDefault("materials.source", "tasks")
	v.SetDefault("materials.target", "materials")
	v.SetDefault("materials.validation", "task_validation")
	v.SetDefault("materials.identity_kinds", []string{"structure_optimization"})
	v.SetDefault("materials.grouping_kinds", []string{"structure_optimization", "static", "nscf_line", "nscf_uniform"})
	v.SetDefault("materials.separate_mag_orderings", false)

	v.SetDefault("molecules.source", "molecule_tasks")
	v.SetDefault("molecules.target", "molecules")
	v.SetDefault("molecules.validation", "")
	v.SetDefault("molecules.identity_kinds", []string{"geometry_optimization", "frequency_flattening_geometry_optimization"})
	v.SetDefault("molecules.grouping_kinds", []string{"geometry_optimization", "frequency_flattening_geometry_optimization", "frequency", "single_point"})
	v.SetDefault("molecules.separate_spin", true)

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_backoff", "200ms")
	v.SetDefault("retry.max_backoff", "5s")
}

// Validate rejects configurations the builders cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required for postgres")
	}
	if c.Build.Workers < 1 {
		return eris.Errorf("config: build.workers must be positive, got %d", c.Build.Workers)
	}
	m := c.Match
	if m.LTol <= 0 || m.STol <= 0 || m.AngleTol <= 0 || m.Symprec <= 0 || m.BondTolerance <= 0 {
		return eris.New("config: match tolerances must be positive")
	}
	for name, b := range map[string]BuilderConfig{"materials": c.Materials, "molecules": c.Molecules} {
		if b.Source == "" || b.Target == "" {
			return eris.Errorf("config: %s.source and %s.target are required", name, name)
		}
		if len(b.IdentityKinds) == 0 {
			return eris.Errorf("config: %s.identity_kinds must not be empty", name)
		}
	}
	return nil
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
