// Package config resolves client settings from defaults, YAML files and
// TASKS_* environment variables, in that order of precedence (last wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	dirName  = ".tasks"
	fileName = "config.yaml"
	envPref  = "TASKS"
)

// Config is read once at startup and treated as immutable.
type Config struct {
	// Dir holds the session file, the log file and the global config.
	Dir string `mapstructure:"dir" yaml:"-"`

	APIURL     string        `mapstructure:"api_url" yaml:"api_url"`
	LiveURL    string        `mapstructure:"live_url" yaml:"live_url"`
	AuthHeader string        `mapstructure:"auth_header" yaml:"auth_header"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Reconnect         bool          `mapstructure:"reconnect" yaml:"reconnect"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" yaml:"reconnect_interval"`

	Theme    string `mapstructure:"theme" yaml:"theme"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	Mock Mock `mapstructure:"mock" yaml:"mock"`
}

// Mock configures the bundled development backend.
type Mock struct {
	Addr     string        `mapstructure:"addr" yaml:"addr"`
	Secret   string        `mapstructure:"secret" yaml:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		APIURL:            "http://localhost:5000/api",
		LiveURL:           "ws://localhost:5000/ws",
		AuthHeader:        "x-auth-token",
		Timeout:           10 * time.Second,
		ReconnectInterval: 2 * time.Second,
		Theme:             "classic",
		LogLevel:          "info",
		Mock: Mock{
			Addr:     ":5000",
			Secret:   "dev-secret-change-me",
			TokenTTL: 24 * time.Hour,
		},
	}
}

// DefaultDir is ~/.tasks.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Load merges defaults, <dir>/config.yaml, ./.tasks/config.yaml and the
// environment. An empty dir means DefaultDir.
func Load(dir string) (*Config, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}

	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPref)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, p := range []string{filepath.Join(dir, fileName), ProjectPath()} {
		if err := mergeFile(v, p); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Dir = dir
	if cfg.LogFile == "" {
		cfg.LogFile = filepath.Join(dir, "tasks.log")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GlobalPath is the config file under dir.
func GlobalPath(dir string) string { return filepath.Join(dir, fileName) }

// ProjectPath is ./.tasks/config.yaml.
func ProjectPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, dirName, fileName)
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("api_url", d.APIURL)
	v.SetDefault("live_url", d.LiveURL)
	v.SetDefault("auth_header", d.AuthHeader)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("reconnect", d.Reconnect)
	v.SetDefault("reconnect_interval", d.ReconnectInterval)
	v.SetDefault("theme", d.Theme)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("mock.addr", d.Mock.Addr)
	v.SetDefault("mock.secret", d.Mock.Secret)
	v.SetDefault("mock.token_ttl", d.Mock.TokenTTL)
}

func (c *Config) validate() error {
	var missing []string
	if c.APIURL == "" {
		missing = append(missing, "api_url")
	}
	if c.LiveURL == "" {
		missing = append(missing, "live_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: required settings are empty: %v", missing)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

// Origin is the value sent in the live channel handshake: the scheme and
// host of the API.
func (c *Config) Origin() string {
	u := c.APIURL
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			return u[:i+3+j]
		}
	}
	return u
}

// WriteDefaults writes the built-in settings to path as YAML. Existing files
// are left alone unless force is set.
func WriteDefaults(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	b, err := Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Marshal renders cfg as YAML, durations in Go notation.
func Marshal(cfg *Config) ([]byte, error) {
	doc := map[string]any{
		"api_url":            cfg.APIURL,
		"live_url":           cfg.LiveURL,
		"auth_header":        cfg.AuthHeader,
		"timeout":            cfg.Timeout.String(),
		"reconnect":          cfg.Reconnect,
		"reconnect_interval": cfg.ReconnectInterval.String(),
		"theme":              cfg.Theme,
		"log_level":          cfg.LogLevel,
		"mock": map[string]any{
			"addr":      cfg.Mock.Addr,
			"secret":    cfg.Mock.Secret,
			"token_ttl": cfg.Mock.TokenTTL.String(),
		},
	}
	if cfg.LogFile != "" {
		doc["log_file"] = cfg.LogFile
	}
	b, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	return b, nil
}
