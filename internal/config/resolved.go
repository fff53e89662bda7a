package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/knadh/koanf/maps"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/plugins"
)

// Resolved is a Config bound to a project root. It never changes after
// Resolve returns; every accessor hands out a copy.
type Resolved struct {
	projectRoot   string
	templateRoot  string
	reload        ReloadSetting
	formats       []string
	data          []string
	ignoredPaths  []string
	globals       map[string]interface{}
	engineOptions map[string]interface{}
	registry      *plugins.Registry
	server        ServerConfig
	build         BuildConfig
	log           LogConfig
}

// Option customizes Resolve with values that cannot come from a file.
type Option func(*resolveOptions)

type namedValue struct {
	name  string
	value interface{}
}

type resolveOptions struct {
	filters    []namedValue
	extensions []namedValue
	reload     func(string) bool
}

// WithFilter registers a Go function as a template filter.
func WithFilter(name string, fn interface{}) Option {
	return func(o *resolveOptions) {
		o.filters = append(o.filters, namedValue{name: name, value: fn})
	}
}

// WithExtension registers an extension constructor.
func WithExtension(name string, ctor interface{}) Option {
	return func(o *resolveOptions) {
		o.extensions = append(o.extensions, namedValue{name: name, value: ctor})
	}
}

// WithReloadFunc replaces the reload setting with a predicate.
func WithReloadFunc(fn func(file string) bool) Option {
	return func(o *resolveOptions) {
		o.reload = fn
	}
}

// Resolve binds cfg to projectRoot. An empty projectRoot means the working
// directory. The template root must exist.
func Resolve(cfg *Config, projectRoot string, opts ...Option) (*Resolved, error) {
	if cfg == nil {
		cfg = Default()
	}

	var o resolveOptions
	for _, opt := range opts {
		opt(&o)
	}

	project, err := canonicalDir(projectRoot)
	if err != nil {
		return nil, &errors.PipelineError{
			Type:    errors.ErrorTypeConfig,
			Code:    errors.ErrCodeConfigInvalid,
			Message: "invalid project root",
			Cause:   err,
		}
	}

	templateRoot := cfg.Root
	if templateRoot == "" {
		templateRoot = project
	} else if !filepath.IsAbs(templateRoot) {
		templateRoot = filepath.Join(project, templateRoot)
	}
	templateRoot, err = canonicalDir(templateRoot)
	if err != nil {
		return nil, &errors.PipelineError{
			Type:    errors.ErrorTypeConfig,
			Code:    errors.ErrCodeConfigInvalid,
			Message: "invalid template root",
			Cause:   err,
		}
	}

	reload, err := ParseReload(cfg.Reload)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, err.Error())
	}
	if o.reload != nil {
		reload = ReloadSetting{Enabled: true, Predicate: o.reload}
	}

	registry, err := buildRegistry(cfg, &o)
	if err != nil {
		return nil, err
	}

	formats := make([]string, 0, len(cfg.Formats))
	for _, f := range cfg.Formats {
		formats = append(formats, NormalizeFormat(f))
	}

	data := make([]string, 0, len(cfg.Data))
	for _, pattern := range cfg.Data {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(project, pattern)
		}
		data = append(data, filepath.ToSlash(pattern))
	}

	globals := maps.Copy(cfg.Globals)
	if globals == nil {
		globals = make(map[string]interface{})
	}
	if _, ok := globals["format"]; !ok {
		globals["format"] = DefaultFormat
	}

	return &Resolved{
		projectRoot:   project,
		templateRoot:  templateRoot,
		reload:        reload,
		formats:       formats,
		data:          data,
		ignoredPaths:  append([]string(nil), cfg.IgnoredPaths...),
		globals:       globals,
		engineOptions: maps.Copy(cfg.EngineOptions),
		registry:      registry,
		server:        cfg.Server,
		build:         cfg.Build,
		log:           cfg.Log,
	}, nil
}

// buildRegistry registers configured builtins first, in sorted order, then
// the programmatic options in the order given.
func buildRegistry(cfg *Config, o *resolveOptions) (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	aliases := make([]string, 0, len(cfg.Filters))
	for alias := range cfg.Filters {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	for _, alias := range aliases {
		fn, err := plugins.BuiltinFilter(cfg.Filters[alias])
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterFilter(alias, fn); err != nil {
			return nil, err
		}
	}

	for _, name := range cfg.Extensions {
		ctor, err := plugins.BuiltinExtension(name)
		if err != nil {
			return nil, err
		}
		if err := registry.RegisterExtension(name, ctor); err != nil {
			return nil, err
		}
	}

	for _, f := range o.filters {
		if err := registry.RegisterFilter(f.name, f.value); err != nil {
			return nil, err
		}
	}
	for _, e := range o.extensions {
		if err := registry.RegisterExtension(e.name, e.value); err != nil {
			return nil, err
		}
	}

	registry.Seal()
	return registry, nil
}

func canonicalDir(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return real, nil
}

// ProjectRoot is the absolute, symlink-free project directory.
func (r *Resolved) ProjectRoot() string { return r.projectRoot }

// TemplateRoot is the absolute, symlink-free directory named templates
// resolve against.
func (r *Resolved) TemplateRoot() string { return r.templateRoot }

// Reload returns the reload setting.
func (r *Resolved) Reload() ReloadSetting {
	s := r.reload
	s.Patterns = append([]string(nil), r.reload.Patterns...)
	return s
}

// Formats returns the normalized eligible suffixes.
func (r *Resolved) Formats() []string { return append([]string(nil), r.formats...) }

// Data returns the absolute data glob patterns.
func (r *Resolved) Data() []string { return append([]string(nil), r.data...) }

// IgnoredPaths returns the ignored path globs.
func (r *Resolved) IgnoredPaths() []string { return append([]string(nil), r.ignoredPaths...) }

// Globals returns a deep copy of the configured globals.
func (r *Resolved) Globals() map[string]interface{} { return maps.Copy(r.globals) }

// EngineOptions returns a deep copy of the engine options.
func (r *Resolved) EngineOptions() map[string]interface{} { return maps.Copy(r.engineOptions) }

// Plugins returns the sealed plugin registry.
func (r *Resolved) Plugins() *plugins.Registry { return r.registry }

// Server returns the dev server settings.
func (r *Resolved) Server() ServerConfig {
	s := r.server
	s.AllowedOrigins = append([]string(nil), r.server.AllowedOrigins...)
	return s
}

// Build returns the build settings.
func (r *Resolved) Build() BuildConfig {
	b := r.build
	b.Input = append([]string(nil), r.build.Input...)
	return b
}

// Log returns the logging settings.
func (r *Resolved) Log() LogConfig { return r.log }
