package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/loykin/hotkeyd/internal/logger"
)

const (
	DefaultStartupDelay = 100 * time.Millisecond
	DefaultGracePeriod  = 5 * time.Second
	DefaultFileName     = "config.json"
	EnvPrefix           = "HOTKEYD"
	DefaultTokenTTL     = 24 * time.Hour
)

// ErrMissingLogDirectory is fatal: nothing can be logged without it.
var ErrMissingLogDirectory = errors.New("missing 'log_directory' in 'global_settings'")

// Config is the whole configuration file.
type Config struct {
	Path    string
	Global  Global
	Scripts []Script
}

// Global holds the global_settings section.
type Global struct {
	LogDirectory    string         `mapstructure:"log_directory"`
	Interpreter     string         `mapstructure:"interpreter"`
	StopGracePeriod time.Duration  `mapstructure:"stop_grace_period"`
	StartupDelay    time.Duration  `mapstructure:"startup_delay"`
	MaxModuleLogs   int            `mapstructure:"max_module_logs"`
	Env             []string       `mapstructure:"env"`
	Log             LogConfig      `mapstructure:"log"`
	Keyboard        KeyboardConfig `mapstructure:"keyboard"`
	Server          ServerConfig   `mapstructure:"server"`
	Metrics         MetricsConfig  `mapstructure:"metrics"`
	History         HistoryConfig  `mapstructure:"history"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type KeyboardConfig struct {
	// Devices overrides keyboard auto-detection.
	Devices []string `mapstructure:"devices"`
}

type ServerConfig struct {
	Listen   string     `mapstructure:"listen"`
	BasePath string     `mapstructure:"base_path"`
	TLS      TLSConfig  `mapstructure:"tls"`
	Auth     AuthConfig `mapstructure:"auth"`
}

// TLSConfig serves the control API over HTTPS. Explicit cert/key files win
// over Dir; with AutoGenerate a self-signed pair is written to Dir on first use.
type TLSConfig struct {
	Enabled      bool       `mapstructure:"enabled"`
	CertFile     string     `mapstructure:"cert_file"`
	KeyFile      string     `mapstructure:"key_file"`
	Dir          string     `mapstructure:"dir"`
	AutoGenerate bool       `mapstructure:"auto_generate"`
	MinVersion   string     `mapstructure:"min_version"`
	AutoGen      AutoGenTLS `mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName  string   `mapstructure:"common_name"`
	DNSNames    []string `mapstructure:"dns_names"`
	IPAddresses []string `mapstructure:"ip_addresses"`
	ValidDays   int      `mapstructure:"valid_days"`
}

// AuthConfig protects the control API with HMAC-signed bearer tokens.
type AuthConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Secret   string        `mapstructure:"secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

type MetricsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	UsageInterval time.Duration `mapstructure:"usage_interval"`
}

type HistoryConfig struct {
	DSNs []string `mapstructure:"dsns"`
}

// Script is one entry of the scripts list, as written in the file.
type Script struct {
	Name          string            `mapstructure:"name"`
	Path          string            `mapstructure:"path"`
	Args          []string          `mapstructure:"args"`
	Environment   map[string]string `mapstructure:"environment"`
	Enabled       bool              `mapstructure:"enabled"`
	RunOnStartup  bool              `mapstructure:"run_on_startup"`
	RunHotkey     bool              `mapstructure:"run_hotkey"`
	Hotkey        any               `mapstructure:"hotkey"`
	HotkeyAction  string            `mapstructure:"hotkey_action"`
	IsExternalApp bool              `mapstructure:"is_external_app"`
	NeedsGUI      bool              `mapstructure:"needs_gui"`
	Interpreter   string            `mapstructure:"interpreter"`
}

// DefaultPath is config.json next to the running executable.
func DefaultPath() string {
	exe, err := os.Executable()
	if err != nil {
		return DefaultFileName
	}
	return filepath.Join(filepath.Dir(exe), DefaultFileName)
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Load reads and decodes the configuration file. Global settings may be
// overridden by HOTKEYD_GLOBAL_SETTINGS_<KEY> environment variables.
func Load(path string) (*Config, error) {
	format := formatOf(path)
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType(format)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Unmarshal rather than UnmarshalKey so nested env overrides apply.
	var doc struct {
		Global Global `mapstructure:"global_settings"`
	}
	if err := v.Unmarshal(&doc); err != nil {
		return nil, fmt.Errorf("decode global_settings: %w", err)
	}
	c := &Config{Path: path, Global: doc.Global}
	if strings.TrimSpace(c.Global.LogDirectory) == "" {
		return nil, ErrMissingLogDirectory
	}

	// viper folds map keys to lower case; environment variable names must
	// keep theirs, so the scripts list is decoded from the raw document.
	scripts, err := readScripts(path, format)
	if err != nil {
		return nil, err
	}
	c.Scripts = scripts
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("global_settings.log_directory", "")
	v.SetDefault("global_settings.interpreter", "")
	v.SetDefault("global_settings.stop_grace_period", DefaultGracePeriod)
	v.SetDefault("global_settings.startup_delay", DefaultStartupDelay)
	v.SetDefault("global_settings.max_module_logs", logger.DefaultMaxModuleLogs)
	v.SetDefault("global_settings.log.level", "info")
	v.SetDefault("global_settings.log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("global_settings.log.max_backups", logger.DefaultMaxBackups)
	v.SetDefault("global_settings.log.max_age_days", logger.DefaultMaxAgeDays)
	v.SetDefault("global_settings.log.compress", false)
	v.SetDefault("global_settings.server.listen", "")
	v.SetDefault("global_settings.server.base_path", "/api")
	v.SetDefault("global_settings.server.tls.enabled", false)
	v.SetDefault("global_settings.server.tls.min_version", "1.2")
	v.SetDefault("global_settings.server.auth.enabled", false)
	v.SetDefault("global_settings.server.auth.secret", "")
	v.SetDefault("global_settings.server.auth.token_ttl", DefaultTokenTTL)
	v.SetDefault("global_settings.metrics.enabled", false)
}

func readScripts(path, format string) ([]Script, error) {
	// #nosec G304 the operator names the config file
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc map[string]any
	switch format {
	case "toml":
		err = toml.Unmarshal(b, &doc)
	case "yaml":
		err = yaml.Unmarshal(b, &doc)
	default:
		err = json.Unmarshal(b, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	raw, ok := doc["scripts"]
	if !ok || raw == nil {
		return nil, nil
	}
	var scripts []Script
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &scripts,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode scripts: %w", err)
	}
	return scripts, nil
}

// LoggerConfig maps the log settings onto the logger package.
func (g Global) LoggerConfig(console bool) logger.Config {
	return logger.Config{
		Dir:        g.LogDirectory,
		Level:      g.Log.Level,
		MaxSizeMB:  g.Log.MaxSizeMB,
		MaxBackups: g.Log.MaxBackups,
		MaxAgeDays: g.Log.MaxAgeDays,
		Compress:   g.Log.Compress,
		Console:    console,
	}
}
