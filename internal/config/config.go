// Package config handles configuration loading and management for recursor.
// It supports an explicit file, a project-level .recursor.yaml, the XDG user
// config, and RECURSOR_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all configuration for recursor.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Engine EngineConfig `mapstructure:"engine"`
	Logger LoggerConfig `mapstructure:"logger"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// AllowedOrigins feeds the CORS middleware.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	// RequestIDHeader is read for an inbound request id before generating one.
	RequestIDHeader string `mapstructure:"request_id_header"`
	// AccessLog enables per-request access logging.
	AccessLog bool `mapstructure:"access_log"`
}

// Address returns host:port.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// EngineConfig holds recursion and simulation settings.
type EngineConfig struct {
	// DefaultMaxDepth applies when a request omits maxDepth.
	DefaultMaxDepth int `mapstructure:"default_max_depth"`
	// MaxDepthLimit is the largest maxDepth a request may ask for.
	MaxDepthLimit int `mapstructure:"max_depth_limit"`
	// MinLatency and MaxLatency bound the simulated processing wait.
	MinLatency time.Duration `mapstructure:"min_latency"`
	MaxLatency time.Duration `mapstructure:"max_latency"`
	// RulesFile optionally points at a YAML keyword table.
	RulesFile string `mapstructure:"rules_file"`
	// PatchBuffer sizes the run-scoped patch channel. 0 is unbuffered.
	PatchBuffer int `mapstructure:"patch_buffer"`
}

// LoggerConfig holds zap logger settings.
type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Load loads configuration.
// Precedence (highest to lowest):
// 1. Environment variables (RECURSOR_ENGINE_DEFAULT_MAX_DEPTH, ...)
// 2. The file at path, or .recursor.yaml in the current directory or a parent
// 3. User config (~/.config/recursor/config.yaml)
// 4. Built-in defaults
func Load(path string) (*Config, error) {
	v := newViper()

	if path == "" {
		path = findProjectConfig()
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(getUserConfigDir())
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading user config: %w", err)
			}
		}
	}

	return decode(v)
}

// LoadFromPath loads configuration from a specific file, which must exist.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

// Watch reloads the file at path whenever it changes and hands the result to
// onChange. A reload that fails to parse or validate is passed as err and the
// previous configuration should be kept by the caller.
func Watch(path string, onChange func(cfg *Config, err error)) error {
	if path == "" {
		return errors.New("watch requires a config file path")
	}

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config from %s: %w", path, err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		onChange(decode(v))
	})
	v.WatchConfig()
	return nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Engine.MaxDepthLimit < 1 {
		return fmt.Errorf("engine.max_depth_limit must be at least 1, got %d", c.Engine.MaxDepthLimit)
	}
	if c.Engine.DefaultMaxDepth < 1 || c.Engine.DefaultMaxDepth > c.Engine.MaxDepthLimit {
		return fmt.Errorf("engine.default_max_depth must be in [1, %d], got %d",
			c.Engine.MaxDepthLimit, c.Engine.DefaultMaxDepth)
	}
	if c.Engine.MinLatency < 0 {
		return fmt.Errorf("engine.min_latency must not be negative")
	}
	if c.Engine.MaxLatency < c.Engine.MinLatency {
		return fmt.Errorf("engine.max_latency (%s) is below engine.min_latency (%s)",
			c.Engine.MaxLatency, c.Engine.MinLatency)
	}
	if c.Engine.PatchBuffer < 0 {
		return fmt.Errorf("engine.patch_buffer must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	switch c.Logger.Encoding {
	case "console", "json":
	default:
		return fmt.Errorf("logger.encoding must be console or json, got %q", c.Logger.Encoding)
	}
	return nil
}

// Locate returns the config file Load would read for path, or "" when Load
// would fall back to defaults.
func Locate(path string) string {
	if path != "" {
		return path
	}
	if project := findProjectConfig(); project != "" {
		return project
	}
	if user := GetUserConfigPath(); fileExists(user) {
		return user
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RECURSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Engine.RulesFile = os.ExpandEnv(cfg.Engine.RulesFile)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "0s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.request_id_header", "X-Request-ID")
	v.SetDefault("server.access_log", true)

	v.SetDefault("engine.default_max_depth", 3)
	v.SetDefault("engine.max_depth_limit", 5)
	v.SetDefault("engine.min_latency", "800ms")
	v.SetDefault("engine.max_latency", "1500ms")
	v.SetDefault("engine.rules_file", "")
	v.SetDefault("engine.patch_buffer", 0)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "console")
	v.SetDefault("logger.output_paths", []string{"stderr"})
	v.SetDefault("logger.error_output_paths", []string{"stderr"})
}

// getUserConfigDir returns the XDG config directory for recursor.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "recursor")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "recursor")
	}
	return filepath.Join(home, ".config", "recursor")
}

// findProjectConfig searches for .recursor.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".recursor.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     60 * time.Second,
			AllowedOrigins:  []string{"http://localhost:3000"},
			RequestIDHeader: "X-Request-ID",
			AccessLog:       true,
		},
		Engine: EngineConfig{
			DefaultMaxDepth: 3,
			MaxDepthLimit:   5,
			MinLatency:      800 * time.Millisecond,
			MaxLatency:      1500 * time.Millisecond,
		},
		Logger: LoggerConfig{
			Level:            "info",
			Encoding:         "console",
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		},
	}
}
