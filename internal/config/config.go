// Package config provides configuration management for pagesmith using Viper
// for loading from files, environment variables and command-line flags.
//
// Configuration is handled in two phases. Load produces a raw Config from
// the merged Viper sources with defaults applied. Resolve binds that Config
// to a project root, registers filters and extensions, and returns an
// immutable Resolved value that the pipeline reads for the rest of the
// process lifetime.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultFormat is the value of the "format" global when none is configured.
const DefaultFormat = "html"

type Config struct {
	Root          string                 `mapstructure:"root" yaml:"root"`
	Reload        interface{}            `mapstructure:"reload" yaml:"reload"`
	Formats       []string               `mapstructure:"formats" yaml:"formats"`
	Data          []string               `mapstructure:"data" yaml:"data"`
	IgnoredPaths  []string               `mapstructure:"ignored_paths" yaml:"ignored_paths"`
	Globals       map[string]interface{} `mapstructure:"globals" yaml:"globals"`
	Filters       map[string]string      `mapstructure:"filters" yaml:"filters"`
	Extensions    []string               `mapstructure:"extensions" yaml:"extensions"`
	EngineOptions map[string]interface{} `mapstructure:"engine_options" yaml:"engine_options"`
	Server        ServerConfig           `mapstructure:"server" yaml:"server"`
	Build         BuildConfig            `mapstructure:"build" yaml:"build"`
	Log           LogConfig              `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type BuildConfig struct {
	Input   []string `mapstructure:"input" yaml:"input"`
	OutDir  string   `mapstructure:"out_dir" yaml:"out_dir"`
	Workers int      `mapstructure:"workers" yaml:"workers"`
	Clean   bool     `mapstructure:"clean" yaml:"clean"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// ReloadSetting is the raw reload option: a flag, a glob list or a predicate.
type ReloadSetting struct {
	Enabled   bool
	Patterns  []string
	Predicate func(file string) bool
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, false)
	return cfg
}

// Load decodes and validates the configuration held by Viper.
func Load() (*Config, error) {
	config, err := Decode()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Decode reads the configuration held by Viper and applies defaults without
// validating it.
func Decode() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Viper lowercases nested keys; template globals must keep their case.
	if file := viper.ConfigFileUsed(); file != "" {
		globals, err := readGlobals(file)
		if err != nil {
			return nil, fmt.Errorf("reading globals from %s: %w", file, err)
		}
		if globals != nil {
			config.Globals = globals
		}
	}

	applyDefaults(&config, viper.IsSet("reload"))

	// Handle build settings set via viper (workaround for viper bool handling)
	if viper.IsSet("build.clean") {
		config.Build.Clean = viper.GetBool("build.clean")
	}

	return &config, nil
}

func applyDefaults(config *Config, reloadSet bool) {
	if !reloadSet && config.Reload == nil {
		config.Reload = true
	}
	if len(config.Formats) == 0 {
		config.Formats = []string{".html", ".njk"}
	}
	if len(config.Data) == 0 {
		config.Data = []string{"data/**/*.json"}
	}
	if config.IgnoredPaths == nil {
		config.IgnoredPaths = []string{}
	}
	if config.Globals == nil {
		config.Globals = make(map[string]interface{})
	}
	if _, ok := config.Globals["format"]; !ok {
		config.Globals["format"] = DefaultFormat
	}
	if config.Filters == nil {
		config.Filters = make(map[string]string)
	}
	if config.EngineOptions == nil {
		config.EngineOptions = make(map[string]interface{})
	}

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 3000
	}

	if len(config.Build.Input) == 0 {
		config.Build.Input = []string{"**/*.html"}
	}
	if config.Build.OutDir == "" {
		config.Build.OutDir = "dist"
	}
	if config.Build.Workers <= 0 {
		config.Build.Workers = runtime.NumCPU()
	}
	if !viper.IsSet("build.clean") {
		config.Build.Clean = true
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

// readGlobals extracts the globals block from a YAML config file with key
// case preserved. Other formats fall back to what Viper produced.
func readGlobals(file string) (map[string]interface{}, error) {
	if !strings.HasSuffix(file, ".yml") && !strings.HasSuffix(file, ".yaml") {
		return nil, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Globals map[string]interface{} `yaml:"globals"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.Globals, nil
}

// ParseReload interprets the raw reload value: a bool (or bool-like string)
// or a list of glob patterns.
func ParseReload(raw interface{}) (ReloadSetting, error) {
	switch v := raw.(type) {
	case nil:
		return ReloadSetting{Enabled: true}, nil
	case func(string) bool:
		return ReloadSetting{Enabled: true, Predicate: v}, nil
	case []string, []interface{}:
		patterns, err := cast.ToStringSliceE(v)
		if err != nil {
			return ReloadSetting{}, fmt.Errorf("reload: %w", err)
		}
		return ReloadSetting{Enabled: len(patterns) > 0, Patterns: patterns}, nil
	}

	enabled, err := cast.ToBoolE(raw)
	if err != nil {
		return ReloadSetting{}, fmt.Errorf("reload must be a boolean or a list of globs, got %T", raw)
	}
	return ReloadSetting{Enabled: enabled}, nil
}
