package renderer

import (
	"context"

	"github.com/spf13/cast"

	"github.com/conneroisu/pagesmith/internal/plugins"
)

// Engine compiles and executes templates. Configure, AddFilter and
// AddExtension run during setup; the render methods may then be called
// concurrently.
type Engine interface {
	Configure(root string, opts Options) error
	AddFilter(name string, fn interface{}) error
	AddExtension(name string, ext plugins.Extension) error
	RenderNamed(ctx context.Context, name string, data map[string]interface{}) *Future
	RenderString(ctx context.Context, name, src string, data map[string]interface{}) *Future
}

// Options are the engine settings read from engine_options.
type Options struct {
	// Markdown enables Markdown conversion for .md templates.
	Markdown bool
	// AllowGoStmt permits the go statement in templates.
	AllowGoStmt bool
}

// ParseOptions reads engine options, ignoring unknown keys.
func ParseOptions(raw map[string]interface{}) Options {
	opts := Options{Markdown: true}
	if v, ok := raw["markdown"]; ok {
		opts.Markdown = cast.ToBool(v)
	}
	if v, ok := raw["allow_go_stmt"]; ok {
		opts.AllowGoStmt = cast.ToBool(v)
	}
	return opts
}
