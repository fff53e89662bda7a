// Package datactx builds the data context handed to every render.
//
// A context is assembled from scratch for each request by deep-merging, in
// increasing precedence, the configured globals, every data file matched by
// the configured globs, and the per-request override. Objects merge
// recursively; arrays and scalars are replaced. Files matched by one glob are
// merged in lexical order, but the relative order of files from different
// filesystems is not something callers should rely on.
package datactx

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/knadh/koanf/maps"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
)

// Context is the merged data a template renders with.
type Context map[string]interface{}

// Builder reads data files and merges contexts.
type Builder struct {
	fs      afero.Fs
	baseDir string
	logger  logging.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithFs reads data files from fsys instead of the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(b *Builder) { b.fs = fsys }
}

// WithBaseDir resolves relative glob patterns against dir instead of the
// working directory.
func WithBaseDir(dir string) Option {
	return func(b *Builder) { b.baseDir = dir }
}

// WithLogger sets the builder logger.
func WithLogger(logger logging.Logger) Option {
	return func(b *Builder) { b.logger = logger.WithComponent("datactx") }
}

// NewBuilder creates a Builder over the OS filesystem.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		fs:     afero.NewOsFs(),
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build merges every file matched by patterns over a deep copy of globals.
// A file that cannot be read or parsed fails the whole build.
func (b *Builder) Build(patterns []string, globals map[string]interface{}) (Context, error) {
	ctx := Context(copyMap(globals))

	for _, pattern := range patterns {
		files, err := b.glob(pattern)
		if err != nil {
			return nil, errors.NewDataFileParseError(pattern, err)
		}
		for _, file := range files {
			data, err := b.ParseFile(file)
			if err != nil {
				return nil, err
			}
			maps.Merge(data, ctx)
		}
	}

	return ctx, nil
}

// Override returns a copy of ctx with override merged on top.
func (b *Builder) Override(ctx Context, override map[string]interface{}) Context {
	out := copyMap(ctx)
	if len(override) > 0 {
		maps.Merge(copyMap(override), out)
	}
	return out
}

// SiblingCandidates lists the override files checked for filename, most
// specific first: "page.njk.json" then "page.njk.html.json" for
// "page.njk.html".
func SiblingCandidates(filename string) []string {
	if strings.HasSuffix(filename, ".html") {
		return []string{strings.TrimSuffix(filename, ".html") + ".json", filename + ".json"}
	}
	return []string{filename + ".json"}
}

// LoadSibling loads the first existing sibling override of filename.
func (b *Builder) LoadSibling(filename string) (map[string]interface{}, bool, error) {
	if filename == "" {
		return nil, false, nil
	}
	for _, candidate := range SiblingCandidates(filename) {
		info, err := b.fs.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := b.ParseFile(candidate)
		if err != nil {
			return nil, false, err
		}
		b.logger.Debug(context.Background(), "loaded sibling override", "file", candidate)
		return data, true, nil
	}
	return nil, false, nil
}

// ParseFile reads a JSON or YAML object from file.
func (b *Builder) ParseFile(file string) (map[string]interface{}, error) {
	raw, err := afero.ReadFile(b.fs, file)
	if err != nil {
		return nil, &errors.PipelineError{
			Type:     errors.ErrorTypeDataParse,
			Code:     errors.ErrCodeDataRead,
			Message:  "cannot read data file",
			Cause:    err,
			FilePath: file,
		}
	}

	var parsed interface{}
	switch strings.ToLower(path.Ext(filepath.ToSlash(file))) {
	case ".yaml", ".yml":
		var doc map[string]interface{}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.NewDataFileParseError(file, err)
		}
		if doc == nil {
			doc = map[string]interface{}{}
		}
		parsed = doc
	default:
		parsed, err = oj.Parse(raw)
		if err != nil {
			return nil, errors.NewDataFileParseError(file, err)
		}
	}

	obj, ok := parsed.(map[string]interface{})
	if !ok {
		return nil, errors.NewDataFileParseError(file, fmt.Errorf("top level must be an object, got %T", parsed))
	}
	return obj, nil
}

// glob expands pattern against the builder filesystem. Matches are sorted.
func (b *Builder) glob(pattern string) ([]string, error) {
	pattern = filepath.ToSlash(pattern)
	if !path.IsAbs(pattern) && !filepath.IsAbs(pattern) && b.baseDir != "" {
		pattern = path.Join(filepath.ToSlash(b.baseDir), pattern)
	}

	base, rest := doublestar.SplitPattern(pattern)
	if rest == "" {
		return nil, nil
	}

	fsys := afero.NewIOFS(afero.NewBasePathFs(b.fs, filepath.FromSlash(base)))
	matches, err := doublestar.Glob(fsys, rest, doublestar.WithFilesOnly())
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(matches))
	for _, m := range matches {
		files = append(files, filepath.FromSlash(path.Join(base, m)))
	}
	sort.Strings(files)
	return files, nil
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if len(m) == 0 {
		return make(map[string]interface{})
	}
	return maps.Copy(m)
}
