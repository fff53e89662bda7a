// Package build runs the one-shot static build.
//
// The Builder discovers entry files, brackets the output step with the
// host's BuildStart and BuildEnd hooks, and transforms entries on a bounded
// worker pool. Each entry is written to the output directory under its
// (possibly re-keyed) entry key; a file the pipeline skips is copied as is
// and a file that fails to render produces no output.
package build

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
)

// excludedDirs are never searched for entries.
var excludedDirs = []string{".git", "node_modules"}

// Hooks is the host hook surface the builder drives.
type Hooks interface {
	Transform(ctx context.Context, urlPath, filename, content string, dev errors.DevServer) (string, bool, error)
	BuildStart(entries Entries) error
	BuildEnd(entries Entries, bundle Bundle) error
}

// Options configures a build.
type Options struct {
	ProjectRoot string
	// Input are entry globs relative to ProjectRoot.
	Input []string
	// OutDir is relative to ProjectRoot.
	OutDir  string
	Workers int
	Clean   bool
}

// OptionsFromConfig derives build options from a resolved configuration.
func OptionsFromConfig(cfg *config.Resolved) Options {
	b := cfg.Build()
	return Options{
		ProjectRoot: cfg.ProjectRoot(),
		Input:       b.Input,
		OutDir:      b.OutDir,
		Workers:     b.Workers,
		Clean:       b.Clean,
	}
}

// Result summarises a finished build.
type Result struct {
	Entries  int
	Files    []FileResult
	Metrics  BuildMetrics
	Duration time.Duration
}

// Builder performs static builds.
type Builder struct {
	fs      afero.Fs
	hooks   Hooks
	opts    Options
	metrics *BuildMetrics
	logger  logging.Logger
}

// NewBuilder creates a builder reading and writing through fsys.
func NewBuilder(fsys afero.Fs, hooks Hooks, opts Options, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.OutDir == "" {
		opts.OutDir = "dist"
	}
	return &Builder{
		fs:      fsys,
		hooks:   hooks,
		opts:    opts,
		metrics: NewBuildMetrics(),
		logger:  logger.WithComponent("builder"),
	}
}

// OutDir returns the absolute output directory.
func (b *Builder) OutDir() string {
	return filepath.Join(b.opts.ProjectRoot, filepath.FromSlash(b.opts.OutDir))
}

// Discover returns the entries matched by the input globs, keyed by their
// slash-separated path relative to the project root.
func (b *Builder) Discover() (Entries, error) {
	root := afero.NewIOFS(afero.NewBasePathFs(b.fs, b.opts.ProjectRoot))
	outDir := path.Clean(filepath.ToSlash(b.opts.OutDir))

	entries := make(Entries)
	for _, pattern := range b.opts.Input {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "/")
		matches, err := doublestar.Glob(root, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid input pattern %q: %w", pattern, err)
		}
		for _, key := range matches {
			if excluded(key, outDir) {
				continue
			}
			entries[key] = filepath.Join(b.opts.ProjectRoot, filepath.FromSlash(key))
		}
	}
	return entries, nil
}

func excluded(key, outDir string) bool {
	if key == outDir || strings.HasPrefix(key, outDir+"/") {
		return true
	}
	for _, dir := range excludedDirs {
		if key == dir || strings.HasPrefix(key, dir+"/") || strings.Contains(key, "/"+dir+"/") {
			return true
		}
	}
	return false
}

// Build runs a complete build. Per-file failures do not stop the other
// files but make Build return an error; a malformed data file or a hook
// failure aborts the build.
func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	b.metrics.Reset()

	entries, err := b.Discover()
	if err != nil {
		return nil, err
	}
	b.logger.Info(ctx, "discovered entries", "count", len(entries))

	outDir := b.OutDir()
	if b.opts.Clean {
		if err := b.fs.RemoveAll(outDir); err != nil {
			return nil, fmt.Errorf("failed to clean output directory: %w", err)
		}
	}
	if err := b.fs.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := b.hooks.BuildStart(entries); err != nil {
		return nil, err
	}

	results, runErr := b.run(ctx, entries)

	bundle := Bundle{Fs: b.fs, OutDir: outDir}
	for _, r := range results {
		if r.Outcome != OutcomeFailed {
			bundle.Files = append(bundle.Files, r.Key)
		}
	}
	if err := b.hooks.BuildEnd(entries, bundle); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}

	result := &Result{
		Entries:  len(entries),
		Files:    results,
		Metrics:  b.metrics.GetSnapshot(),
		Duration: time.Since(start),
	}

	collector := errors.NewErrorCollector()
	for _, r := range results {
		collector.Add(r.Key, r.Error)
	}
	b.logger.Info(ctx, "build finished",
		"entries", result.Entries,
		"rendered", result.Metrics.RenderedFiles,
		"copied", result.Metrics.CopiedFiles,
		"failed", result.Metrics.FailedFiles,
		"duration", result.Duration)

	return result, collector.Err()
}

type task struct {
	key    string
	source string
}

// run processes entries on the worker pool. Results are sorted by key.
func (b *Builder) run(ctx context.Context, entries Entries) ([]FileResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := make(chan task)
	out := make(chan FileResult)

	var (
		wg       sync.WaitGroup
		fatal    error
		fatalMux sync.Mutex
	)
	abort := func(err error) {
		fatalMux.Lock()
		if fatal == nil {
			fatal = err
		}
		fatalMux.Unlock()
		cancel()
	}

	workers := b.opts.Workers
	if workers > len(entries) {
		workers = len(entries)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				r := b.process(ctx, t)
				if errors.TypeOf(r.Error) == errors.ErrorTypeDataParse {
					abort(r.Error)
				}
				select {
				case out <- r:
				case <-ctx.Done():
				}
			}
		}()
	}

	go func() {
		defer close(tasks)
		keys := make([]string, 0, len(entries))
		for key := range entries {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			select {
			case tasks <- task{key: key, source: entries[key]}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var results []FileResult
	for r := range out {
		b.metrics.RecordFile(r)
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })

	fatalMux.Lock()
	defer fatalMux.Unlock()
	if fatal != nil {
		return results, fatal
	}
	if err := ctx.Err(); err != nil && len(results) < len(entries) {
		return results, err
	}
	return results, nil
}

// process transforms one entry and writes its output.
func (b *Builder) process(ctx context.Context, t task) (result FileResult) {
	start := time.Now()
	result.Key = t.key
	defer func() { result.Duration = time.Since(start) }()

	raw, err := afero.ReadFile(b.fs, t.source)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = fmt.Errorf("failed to read %s: %w", t.source, err)
		return result
	}

	content, transformed, err := b.hooks.Transform(ctx, b.urlPath(t.source), t.source, string(raw), nil)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result
	}
	if !transformed {
		content = string(raw)
		result.Outcome = OutcomeCopied
	} else {
		result.Outcome = OutcomeRendered
	}

	target := filepath.Join(b.OutDir(), filepath.FromSlash(t.key))
	if err := b.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result
	}
	if err := afero.WriteFile(b.fs, target, []byte(content), 0o644); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = fmt.Errorf("failed to write %s: %w", target, err)
		return result
	}

	result.Output = target
	result.Bytes = len(content)
	b.logger.Debug(ctx, "wrote entry", "key", t.key, "output", target)
	return result
}

// urlPath is the request path a source file would be served under.
func (b *Builder) urlPath(source string) string {
	rel, err := filepath.Rel(b.opts.ProjectRoot, source)
	if err != nil {
		return "/" + filepath.Base(source)
	}
	return "/" + filepath.ToSlash(rel)
}

// Metrics returns a snapshot of the current build metrics.
func (b *Builder) Metrics() BuildMetrics {
	return b.metrics.GetSnapshot()
}
