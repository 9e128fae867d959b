package config

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/crashmap/internal/density"
	"github.com/sells-group/crashmap/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Dataset  DatasetConfig  `yaml:"dataset" mapstructure:"dataset"`
	Severity SeverityConfig `yaml:"severity" mapstructure:"severity"`
	Density  DensityConfig  `yaml:"density" mapstructure:"density"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// DatasetConfig locates the accident and lane datasets.
type DatasetConfig struct {
	// AccidentsPath is a GeoJSON, CSV, XLSX, or SQLite (.db) file.
	AccidentsPath string `yaml:"accidents_path" mapstructure:"accidents_path"`
	// LanesPath is a GeoJSON file or an ESRI shapefile (.shp).
	LanesPath string `yaml:"lanes_path" mapstructure:"lanes_path"`

	Properties store.PropertyNames `yaml:"properties" mapstructure:"properties"`
}

// Sources converts the dataset settings for store.Load.
func (d DatasetConfig) Sources() store.Sources {
	return store.Sources{
		AccidentsPath: d.AccidentsPath,
		LanesPath:     d.LanesPath,
		Properties:    d.Properties,
	}
}

// SeverityConfig selects the severity vocabulary. An empty path keeps the
// built-in markers.
type SeverityConfig struct {
	VocabularyPath string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// DensityConfig configures the hotspot estimator.
type DensityConfig struct {
	RadiusKM      float64 `yaml:"radius_km" mapstructure:"radius_km"`
	GridThreshold int     `yaml:"grid_threshold" mapstructure:"grid_threshold"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	// RateLimit is the sustained request rate per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CRASHMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	defaults := store.DefaultPropertyNames()
	v.SetDefault("dataset.accidents_path", "data/bikes.geojson")
	v.SetDefault("dataset.lanes_path", "data/reseau_cyclable.json")
	v.SetDefault("dataset.properties.id", defaults.ID)
	v.SetDefault("dataset.properties.severity", defaults.Severity)
	v.SetDefault("dataset.properties.weather", defaults.Weather)
	v.SetDefault("dataset.properties.lighting", defaults.Lighting)
	v.SetDefault("dataset.properties.bike_lane", defaults.BikeLane)
	v.SetDefault("dataset.properties.lon", defaults.Lon)
	v.SetDefault("dataset.properties.lat", defaults.Lat)
	v.SetDefault("severity.vocabulary_path", "")
	v.SetDefault("density.radius_km", density.DefaultRadiusKM)
	v.SetDefault("density.grid_threshold", density.DefaultGridThreshold)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)
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

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are "serve",
// "report", and "import".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RateLimit < 0 {
			problems = append(problems, "server.rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be >= 1 when rate limiting")
		}
		problems = append(problems, c.datasetProblems()...)
	case "report":
		problems = append(problems, c.datasetProblems()...)
	case "import":
		if c.Dataset.AccidentsPath == "" {
			problems = append(problems, "dataset.accidents_path is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) datasetProblems() []string {
	var problems []string
	if c.Dataset.AccidentsPath == "" {
		problems = append(problems, "dataset.accidents_path is required")
	}
	if c.Dataset.LanesPath == "" {
		problems = append(problems, "dataset.lanes_path is required")
	}
	if math.IsNaN(c.Density.RadiusKM) || c.Density.RadiusKM <= 0 {
		problems = append(problems, "density.radius_km must be > 0")
	}
	if c.Density.GridThreshold < 0 {
		problems = append(problems, "density.grid_threshold must be >= 0")
	}
	return problems
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
