// Package config loads geosafe settings from a YAML file, a .env file and
// GEOSAFE_* environment variables, in increasing order of precedence.
// Command-line flags override all three.
package config

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/geosafe/internal/ir"
	"github.com/roach88/geosafe/internal/repair"
	"github.com/roach88/geosafe/internal/telemetry"
	"github.com/roach88/geosafe/internal/validation"
)

// EnvPrefix prefixes every environment variable, e.g. GEOSAFE_LOG_LEVEL.
const EnvPrefix = "GEOSAFE"

// FileName is the config file searched for when none is given.
const FileName = "geosafe.yaml"

// Config is the resolved configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Repair     RepairConfig     `mapstructure:"repair"`
	Buffer     BufferConfig     `mapstructure:"buffer"`
	Safety     SafetyConfig     `mapstructure:"safety"`
	Provenance ProvenanceConfig `mapstructure:"provenance"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// RepairConfig configures the geometry validator.
type RepairConfig struct {
	Strategy []string `mapstructure:"strategy" validate:"min=1,dive,oneof=buffer_zero orient_rings make_valid"`
	Strict   bool     `mapstructure:"strict"`
}

// BufferConfig configures buffering.
type BufferConfig struct {
	Segments int `mapstructure:"segments" validate:"gte=1,lte=256"`
}

// SafetyConfig holds guard overrides applied to every operation.
type SafetyConfig struct {
	AllowGeographic bool `mapstructure:"allow_geographic"`
}

// ProvenanceConfig says where provenance goes.
type ProvenanceConfig struct {
	// Dir receives one <run-id>.json document per run.
	Dir string `mapstructure:"dir" validate:"required"`
	// DB is the SQLite archive path. Empty disables archiving.
	DB string `mapstructure:"db"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Insecure    bool          `mapstructure:"insecure"`
	ServiceName string        `mapstructure:"service_name" validate:"required"`
	Interval    time.Duration `mapstructure:"interval" validate:"gte=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("repair.strategy", stepNames(repair.DefaultStrategy))
	v.SetDefault("repair.strict", false)
	v.SetDefault("buffer.segments", 8)
	v.SetDefault("safety.allow_geographic", false)
	v.SetDefault("provenance.dir", "provenance")
	v.SetDefault("provenance.db", "")
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.service_name", "geosafe")
	v.SetDefault("telemetry.interval", 30*time.Second)
}

// Options selects the files Load reads.
type Options struct {
	// ConfigFile is an explicit config path. When set it must exist.
	ConfigFile string
	// EnvFile is an explicit .env path. When empty, ./.env is used if
	// present.
	EnvFile string
	// SearchDirs are searched for FileName when ConfigFile is empty.
	// Defaults to the working directory.
	SearchDirs []string
}

// Load resolves the configuration.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" && exists(".env") {
		envFile = ".env"
	}
	if envFile != "" {
		// godotenv never overrides variables already set in the process.
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := opts.ConfigFile
	if file == "" {
		dirs := opts.SearchDirs
		if len(dirs) == 0 {
			dirs = []string{"."}
		}
		for _, dir := range dirs {
			if p := filepath.Join(dir, FileName); exists(p) {
				file = p
				break
			}
		}
	} else if !exists(file) {
		return nil, fmt.Errorf("config file %s: %w", file, fs.ErrNotExist)
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.File = file
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no file or environment applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// RepairOptions returns the repairer options the config selects.
func (c *Config) RepairOptions() ([]repair.Option, error) {
	steps, err := repair.ParseStrategy(c.Repair.Strategy)
	if err != nil {
		return nil, err
	}
	return []repair.Option{repair.WithStrategy(steps...), repair.WithStrict(c.Repair.Strict)}, nil
}

// OTLP returns the telemetry export settings.
func (c *Config) OTLP() telemetry.Config {
	return telemetry.Config{
		ServiceName:    c.Telemetry.ServiceName,
		ServiceVersion: ir.ToolVersion,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		Interval:       c.Telemetry.Interval,
	}
}

// SlogLevel returns the configured slog level.
func (l LogConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func stepNames(steps []repair.Step) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}
