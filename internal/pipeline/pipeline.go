// Package pipeline is the host hook surface of pagesmith. A host (the dev
// server, the static builder, or an embedding program) configures one
// Pipeline per project and calls its hooks for every candidate file, every
// change notification and around bundling.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/conneroisu/pagesmith/internal/build"
	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/datactx"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/reload"
	"github.com/conneroisu/pagesmith/internal/renderer"
	"github.com/conneroisu/pagesmith/internal/router"
	"github.com/conneroisu/pagesmith/internal/websocket"
)

// Source names pagesmith in reported errors.
const Source = "pagesmith"

// Pipeline wires routing, context assembly, rendering, error reporting,
// reload decisions and build renaming together.
type Pipeline struct {
	cfg        *config.Config
	cfgOptions []config.Option
	fs         afero.Fs
	engine     renderer.Engine
	channel    *errors.Channel
	logger     logging.Logger

	mutex    sync.RWMutex
	resolved *config.Resolved
	renderer *renderer.Renderer
	data     *datactx.Builder
	policy   *reload.Policy
	renamer  *build.Renamer
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithFs sets the filesystem used for data files, templates and renaming.
func WithFs(fsys afero.Fs) Option {
	return func(p *Pipeline) { p.fs = fsys }
}

// WithEngine replaces the Scriggo engine.
func WithEngine(engine renderer.Engine) Option {
	return func(p *Pipeline) { p.engine = engine }
}

// WithChannel sets the error channel.
func WithChannel(channel *errors.Channel) Option {
	return func(p *Pipeline) { p.channel = channel }
}

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithConfigOptions passes programmatic filters, extensions or a reload
// predicate to configuration resolution.
func WithConfigOptions(opts ...config.Option) Option {
	return func(p *Pipeline) { p.cfgOptions = append(p.cfgOptions, opts...) }
}

// New creates an unconfigured pipeline for cfg.
func New(cfg *config.Config, opts ...Option) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	p := &Pipeline{cfg: cfg, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logging.Nop()
	}
	if p.channel == nil {
		p.channel = errors.NewChannel(nil)
	}
	if p.engine == nil {
		p.engine = renderer.NewScriggoEngine(p.fs, p.logger)
	}
	p.logger = p.logger.WithComponent("pipeline")
	return p
}

// Configure resolves the configuration against projectRoot and sets up the
// engine. Calling it again with the same root is a no-op; a different root
// is a configuration error.
func (p *Pipeline) Configure(projectRoot string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.resolved != nil {
		if sameDir(p.resolved.ProjectRoot(), projectRoot) {
			return nil
		}
		return errors.NewConfigError(errors.ErrCodeAlreadyConfigured,
			fmt.Sprintf("pipeline already configured for %s, cannot reconfigure for %s",
				p.resolved.ProjectRoot(), projectRoot))
	}

	resolved, err := config.Resolve(p.cfg, projectRoot, p.cfgOptions...)
	if err != nil {
		return err
	}
	r, err := renderer.New(resolved, p.engine, p.logger)
	if err != nil {
		return err
	}

	p.resolved = resolved
	p.renderer = r
	p.data = datactx.NewBuilder(
		datactx.WithFs(p.fs),
		datactx.WithBaseDir(resolved.ProjectRoot()),
		datactx.WithLogger(p.logger),
	)
	p.policy = reload.FromConfig(resolved)
	p.renamer = build.NewRenamer(p.fs, resolved.Formats(), p.logger)

	p.logger.Info(context.Background(), "pipeline configured",
		"project_root", resolved.ProjectRoot(),
		"template_root", resolved.TemplateRoot(),
		"formats", resolved.Formats())
	return nil
}

func sameDir(resolved, candidate string) bool {
	if abs, err := filepath.Abs(candidate); err == nil {
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		return abs == resolved
	}
	return false
}

// Config returns the resolved configuration, or nil before Configure.
func (p *Pipeline) Config() *config.Resolved {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.resolved
}

func (p *Pipeline) state() (*config.Resolved, *renderer.Renderer, *datactx.Builder, error) {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	if p.resolved == nil {
		return nil, nil, nil, errors.NewConfigError(errors.ErrCodeNotConfigured, "pipeline is not configured")
	}
	return p.resolved, p.renderer, p.data, nil
}

// Transform renders one candidate file. It returns the replacement content
// and true when the file was rendered, or false when it passes through
// untouched. A render failure is reported through the error channel (to dev
// when it is non-nil) and then returned.
func (p *Pipeline) Transform(ctx context.Context, urlPath, filename, content string, dev errors.DevServer) (string, bool, error) {
	cfg, r, data, err := p.state()
	if err != nil {
		return "", false, err
	}

	req := router.Request{Path: urlPath, Filename: filename, Content: content, IsDevServer: dev != nil}
	route := router.Classify(req, cfg.Formats(), cfg.IgnoredPaths())
	if !route.Renderable() {
		p.logger.Debug(ctx, "skipping file", "path", urlPath, "reason", string(route.Reason))
		return "", false, nil
	}

	perf := logging.StartOperation(p.logger, "transform")

	dataCtx, err := data.Build(cfg.Data(), cfg.Globals())
	if err != nil {
		perf.EndWithError(ctx, err)
		return "", false, err
	}

	switch route.Action {
	case router.RenderNamed:
		dataCtx = data.Override(dataCtx, route.Body)
	case router.RenderString:
		sibling, ok, err := data.LoadSibling(filename)
		if err != nil {
			perf.EndWithError(ctx, err)
			return "", false, err
		}
		if ok {
			dataCtx = data.Override(dataCtx, sibling)
		}
	}

	out, err := r.Render(ctx, req, route, dataCtx)
	if err != nil {
		perf.EndWithError(ctx, err)
		return "", false, err
	}
	perf.End(ctx)
	if !out.OK() {
		renderErr := out.Err
		if pe, ok := renderErr.(*errors.PipelineError); ok && pe.FilePath == "" {
			renderErr = pe.WithLocation(filename, pe.Line, pe.Column)
		}
		p.channel.Report(ctx, renderErr, dev, Source)
		return "", false, renderErr
	}
	return out.Content, true, nil
}

// FileChanged tells dev to reload the page when the changed file is
// relevant, and reports whether it did.
func (p *Pipeline) FileChanged(ctx context.Context, file string, dev errors.DevServer) bool {
	p.mutex.RLock()
	policy := p.policy
	p.mutex.RUnlock()

	if policy == nil || !policy.ShouldReload(file) {
		return false
	}
	p.logger.Debug(ctx, "file change triggers reload", "file", file)
	if dev != nil {
		dev.Send(websocket.UpdateMessage{
			Type:      websocket.MessageFullReload,
			Path:      "*",
			Source:    Source,
			Timestamp: time.Now(),
		})
	}
	return true
}

// BuildStart re-keys multi-suffix entries before bundling.
func (p *Pipeline) BuildStart(entries build.Entries) error {
	p.mutex.RLock()
	renamer := p.renamer
	p.mutex.RUnlock()
	if renamer == nil {
		return errors.NewConfigError(errors.ErrCodeNotConfigured, "pipeline is not configured")
	}
	return renamer.BuildStart(entries)
}

// BuildEnd restores entry keys and renames emitted outputs after bundling.
func (p *Pipeline) BuildEnd(entries build.Entries, bundle build.Bundle) error {
	p.mutex.RLock()
	renamer := p.renamer
	p.mutex.RUnlock()
	if renamer == nil {
		return errors.NewConfigError(errors.ErrCodeNotConfigured, "pipeline is not configured")
	}
	return renamer.BuildEnd(entries, bundle)
}

var _ build.Hooks = (*Pipeline)(nil)
