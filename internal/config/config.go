package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mdouchement/depot/internal/pipeline"
	"github.com/mdouchement/depot/internal/store"
	"github.com/pkg/errors"
)

const (
	DefaultBinding       = "0.0.0.0"
	DefaultPort          = "5000"
	DefaultSpecification = "@every 10m"
	DefaultGrace         = time.Hour
	DefaultLogLevel      = "info"

	envPrefix = "DEPOT_"
)

type (
	// Config defines the runtime configuration of depot.
	Config struct {
		Server    ServerConfig    `toml:"server"`
		Storage   store.Options   `toml:"storage"`
		Archive   ArchiveConfig   `toml:"archive"`
		Scheduler SchedulerConfig `toml:"scheduler"`
		Log       LogConfig       `toml:"log"`
	}

	// ServerConfig defines the HTTP listener.
	ServerConfig struct {
		Binding string `toml:"binding"`
		Port    string `toml:"port"`
		Debug   bool   `toml:"debug"`
	}

	// ArchiveConfig defines how archive entries are ingested.
	ArchiveConfig struct {
		MaxImageEdge int `toml:"max_image_edge"`
		// Concurrency bounds the in-flight entry writes, 0 means unbounded.
		Concurrency int `toml:"concurrency"`
	}

	// SchedulerConfig defines the orphaned blobs janitor.
	SchedulerConfig struct {
		Specification string   `toml:"specification"`
		Grace         Duration `toml:"grace"`
	}

	LogConfig struct {
		Level string `toml:"level"`
	}

	// Duration is a time.Duration decoded from a string like "1h30m".
	Duration struct {
		time.Duration
	}
)

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrapf(err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Binding: DefaultBinding,
			Port:    DefaultPort,
		},
		Storage: store.Options{
			Scheme:   store.DefaultScheme,
			Host:     store.DefaultHost,
			Port:     store.DefaultPort,
			Database: store.DefaultDatabase,
		},
		Archive: ArchiveConfig{
			MaxImageEdge: pipeline.MaxImageEdge,
		},
		Scheduler: SchedulerConfig{
			Specification: DefaultSpecification,
			Grace:         Duration{DefaultGrace},
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load returns the defaults overridden by the TOML file at path (if it exists) and then by the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFileIfExists(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func loadFileIfExists(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}

	_, err = toml.DecodeFile(path, cfg)
	return errors.Wrapf(err, "failed to parse config %s", path)
}

func applyEnv(cfg *Config) error {
	strs := map[string]*string{
		"STORAGE_URI":      &cfg.Storage.URI,
		"STORAGE_SCHEME":   &cfg.Storage.Scheme,
		"STORAGE_HOST":     &cfg.Storage.Host,
		"STORAGE_USERNAME": &cfg.Storage.Username,
		"STORAGE_PASSWORD": &cfg.Storage.Password,
		"STORAGE_DATABASE": &cfg.Storage.Database,
		"LOG_LEVEL":        &cfg.Log.Level,
	}
	for key, field := range strs {
		if v, ok := lookupEnv(key); ok {
			*field = v
		}
	}

	if v, ok := lookupEnv("STORAGE_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid %sSTORAGE_PORT", envPrefix)
		}
		cfg.Storage.Port = port
	}

	return nil
}

func lookupEnv(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}
