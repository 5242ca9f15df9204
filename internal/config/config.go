// Package config loads repcount settings from TOML, .env and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvAddr     = "REPCOUNT_ADDR"
	EnvDB       = "REPCOUNT_DB"
	EnvLogLevel = "REPCOUNT_LOG_LEVEL"
	EnvExercise = "REPCOUNT_EXERCISE"
	EnvMaxFPS   = "REPCOUNT_MAX_FPS"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Log       LogConfig       `toml:"log"`
	Database  DatabaseConfig  `toml:"database"`
	Exercises ExercisesConfig `toml:"exercises"`
	Feed      FeedConfig      `toml:"feed"`
	Plugins   PluginsConfig   `toml:"plugins"`
}

type ServerConfig struct {
	Addr      string `toml:"addr"`
	StaticDir string `toml:"static_dir,omitempty"`
}

type LogConfig struct {
	Level    string `toml:"level"`
	File     string `toml:"file,omitempty"`
	ToStdout bool   `toml:"to_stdout"`
	JSON     bool   `toml:"json"`
}

type DatabaseConfig struct {
	// Path of the sqlite file; empty disables persistence of exercise definitions.
	Path string `toml:"path"`
}

type ExercisesConfig struct {
	Dir     string `toml:"dir"`
	Default string `toml:"default"`
}

type FeedConfig struct {
	// Command is an external pose estimator printing NDJSON frames; empty disables it.
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
	MaxFPS  int      `toml:"max_fps"`
}

type PluginsConfig struct {
	// Dir holds one sub-directory per plugin; empty disables plugins.
	Dir       string `toml:"dir"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// Dir returns ~/.repcount.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".repcount"
	}
	return filepath.Join(home, ".repcount")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

func Default() Config {
	return Config{
		Server: ServerConfig{Addr: "127.0.0.1:8765"},
		Log:    LogConfig{Level: "info", ToStdout: true},
		Database: DatabaseConfig{
			Path: filepath.Join(Dir(), "repcount.db"),
		},
		Exercises: ExercisesConfig{
			Dir:     "exercises",
			Default: "pushup",
		},
		Feed: FeedConfig{MaxFPS: 30},
		Plugins: PluginsConfig{
			Dir:       filepath.Join(Dir(), "plugins"),
			TimeoutMs: 5000,
		},
	}
}

// Load reads path on top of Default. A missing file is not an error.
// A .env file in the working directory is loaded first, then environment
// overrides are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env is optional
	_ = godotenv.Load()

	// Keys absent from the file keep their defaults
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// run on defaults
		case err != nil:
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				return Config{}, fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides fields from REPCOUNT_* variables. An empty
// REPCOUNT_DB is honored and disables the store.
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv(EnvDB); ok {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvExercise); v != "" {
		c.Exercises.Default = v
	}
	if v := os.Getenv(EnvMaxFPS); v != "" {
		fps, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxFPS, err)
		}
		c.Feed.MaxFPS = fps
	}
	return nil
}

// Validate checks the values that would otherwise fail late, at serve time.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Feed.MaxFPS < 0 {
		return fmt.Errorf("feed.max_fps must not be negative, got %d", c.Feed.MaxFPS)
	}
	if c.Plugins.TimeoutMs <= 0 {
		return fmt.Errorf("plugins.timeout_ms must be positive, got %d", c.Plugins.TimeoutMs)
	}
	if c.Exercises.Default == "" {
		return errors.New("exercises.default is required")
	}
	return nil
}

// Save writes the configuration as TOML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("encode config: %w", err)
	}
	return f.Close()
}
