// Package renderer turns a routed request and its data context into
// rendered output.
//
// The Renderer owns template path resolution and engine setup. Engines are
// configured once per resolved configuration with every registered filter
// and extension; a render then either produces content or an engine
// diagnostic. Only setup failures and a missing "template" field are
// returned as Go errors: everything else is a reportable render error.
package renderer

import (
	"context"
	stderrors "errors"
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strings"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/datactx"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/router"
)

// DevVariable is the template variable set to true inside the dev server.
const DevVariable = "dev"

// TemplateField names the template of a JSON page.
const TemplateField = "template"

// inlinePrefix names in-place renders of files outside the template root.
// They are staged at the top of the root so relative references resolve
// from the root.
const inlinePrefix = "__pagesmith_"

// Output is the result of one render. Exactly one of Content and Err is
// meaningful.
type Output struct {
	Content          string
	Err              error
	IsTemplateRender bool
}

// OK reports whether the render produced content.
func (o Output) OK() bool {
	return o.Err == nil
}

// Renderer renders requests with a configured Engine.
type Renderer struct {
	engine       Engine
	projectRoot  string
	templateRoot string
	logger       logging.Logger
}

// New configures engine from cfg and returns a Renderer using it. A filter
// or extension the engine rejects fails setup.
func New(cfg *config.Resolved, engine Engine, logger logging.Logger) (*Renderer, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	if err := engine.Configure(cfg.TemplateRoot(), ParseOptions(cfg.EngineOptions())); err != nil {
		return nil, err
	}
	for _, f := range cfg.Plugins().Filters() {
		if err := engine.AddFilter(f.Name, f.Fn); err != nil {
			return nil, err
		}
	}
	for _, ext := range cfg.Plugins().Extensions() {
		if err := engine.AddExtension(ext.Name, ext.Extension); err != nil {
			return nil, err
		}
	}

	return &Renderer{
		engine:       engine,
		projectRoot:  cfg.ProjectRoot(),
		templateRoot: cfg.TemplateRoot(),
		logger:       logger.WithComponent("renderer"),
	}, nil
}

// Render executes route for req with data. The returned error is non-nil
// only for a JSON page without a template and for a cancelled ctx.
func (r *Renderer) Render(ctx context.Context, req router.Request, route router.Route, data datactx.Context) (Output, error) {
	vars := make(map[string]interface{}, len(data)+1)
	for k, v := range data {
		vars[k] = v
	}
	vars[DevVariable] = req.IsDevServer

	var future *Future
	var staged string
	output := Output{IsTemplateRender: route.Action == router.RenderNamed}

	switch route.Action {
	case router.RenderNamed:
		name, ok := data[TemplateField].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return Output{}, errors.NewMissingTemplateField(req.Filename)
		}
		resolved, err := r.ResolveTemplate(name)
		if err != nil {
			output.Err = err
			return output, nil
		}
		r.logger.Debug(ctx, "rendering named template", "file", req.Filename, "template", resolved)
		future = r.engine.RenderNamed(ctx, resolved, vars)

	case router.RenderString:
		staged = r.inlineName(req.Filename)
		future = r.engine.RenderString(ctx, staged, req.Content, vars)

	default:
		return Output{}, fmt.Errorf("route %s does not render", route.Action)
	}

	content, err := future.Await(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && err == ctxErr {
			return Output{}, err
		}
		if errors.TypeOf(err) == errors.ErrorTypeConfig {
			return Output{}, err
		}
		output.Err = r.relocate(err, staged, req.Filename)
		return output, nil
	}
	output.Content = content
	return output, nil
}

// ResolveTemplate maps a template reference to a slash-separated path
// relative to the template root. The reference is tried against the
// project root first and kept if it lands under the template root;
// otherwise it is taken relative to the template root.
func (r *Renderer) ResolveTemplate(name string) (string, error) {
	ref := filepath.FromSlash(name)

	var candidates []string
	if filepath.IsAbs(ref) {
		candidates = []string{filepath.Clean(ref)}
	} else {
		candidates = []string{
			filepath.Join(r.projectRoot, ref),
			filepath.Join(r.templateRoot, ref),
		}
	}

	for _, abs := range candidates {
		if rel, ok := within(r.templateRoot, abs); ok {
			return rel, nil
		}
	}

	return "", errors.NewRenderError(errors.ErrCodeTemplateOutside,
		fmt.Sprintf("template %q resolves outside the template root %s", name, r.templateRoot), nil)
}

// inlineName is the engine name for in-place source of filename: its path
// under the template root, or a top-level name unique to filename when it
// lives elsewhere.
func (r *Renderer) inlineName(filename string) string {
	abs := filename
	if filename != "" {
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.projectRoot, abs)
		}
		if rel, ok := within(r.templateRoot, abs); ok && rel != "." {
			return rel
		}
	}
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "index.html"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(abs))
	return fmt.Sprintf("%s%08x_%s", inlinePrefix, h.Sum32(), base)
}

// relocate points a diagnostic on a staged name back at the source file.
func (r *Renderer) relocate(err error, staged, filename string) error {
	if staged == "" || !strings.HasPrefix(staged, inlinePrefix) || filename == "" {
		return err
	}
	var pe *errors.PipelineError
	if stderrors.As(err, &pe) && strings.TrimPrefix(pe.FilePath, "/") == staged {
		pe.FilePath = filename
	}
	return err
}

func within(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
