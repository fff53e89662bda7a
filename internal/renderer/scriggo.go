package renderer

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"reflect"
	"sync"

	"github.com/open2b/scriggo"
	"github.com/open2b/scriggo/native"
	"github.com/spf13/afero"
	"github.com/yuin/goldmark"

	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
)

// templateKeywords cannot be declared as template globals.
var templateKeywords = map[string]bool{
	"and": true, "contains": true, "end": true, "extends": true, "in": true,
	"macro": true, "not": true, "or": true, "raw": true, "show": true,
	"using": true,
}

// ScriggoEngine renders templates with Scriggo. Templates are compiled on
// every render so edits on disk are always picked up.
type ScriggoEngine struct {
	fs         afero.Fs
	root       afero.Fs
	opts       Options
	filters    native.Declarations
	extensions native.Declarations
	owners     map[string]string
	logger     logging.Logger
	mutex      sync.RWMutex
}

// NewScriggoEngine creates an engine reading templates from fsys. A nil
// fsys means the OS filesystem.
func NewScriggoEngine(fsys afero.Fs, logger logging.Logger) *ScriggoEngine {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &ScriggoEngine{
		fs:         fsys,
		filters:    make(native.Declarations),
		extensions: make(native.Declarations),
		owners:     make(map[string]string),
		logger:     logger.WithComponent("engine"),
	}
}

// Configure binds the engine to the template root.
func (e *ScriggoEngine) Configure(root string, opts Options) error {
	info, err := e.fs.Stat(root)
	if err != nil {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("template root %s: %v", root, err))
	}
	if !info.IsDir() {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("template root %s is not a directory", root))
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.root = afero.NewBasePathFs(e.fs, root)
	e.opts = opts
	return nil
}

// AddFilter declares fn as a template function.
func (e *ScriggoEngine) AddFilter(name string, fn interface{}) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return errors.NewInvalidPluginValue("filter", name, fn)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	if owner, ok := e.owners[name]; ok {
		return errors.NewConfigError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("filter %q conflicts with %s", name, owner))
	}
	e.owners[name] = "filter " + name
	e.filters[name] = fn
	return nil
}

// AddExtension declares every global contributed by ext.
func (e *ScriggoEngine) AddExtension(name string, ext plugins.Extension) error {
	if ext == nil {
		return errors.NewInvalidPluginValue("extension", name, ext)
	}
	decls := ext.Declarations()

	e.mutex.Lock()
	defer e.mutex.Unlock()
	for key := range decls {
		if owner, ok := e.owners[key]; ok {
			return errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("extension %q declares %q, already declared by %s", name, key, owner))
		}
	}
	for key, value := range decls {
		e.owners[key] = "extension " + name
		e.extensions[key] = value
	}
	return nil
}

// RenderNamed renders the template at name, relative to the template root.
func (e *ScriggoEngine) RenderNamed(ctx context.Context, name string, data map[string]interface{}) *Future {
	e.mutex.RLock()
	root := e.root
	e.mutex.RUnlock()
	if root == nil {
		return Resolved("", errors.NewConfigError(errors.ErrCodeNotConfigured, "engine is not configured"))
	}
	return e.run(ctx, root, name, data)
}

// RenderString renders src as if it were the file name under the template
// root, so relative extends and imports resolve from its directory.
func (e *ScriggoEngine) RenderString(ctx context.Context, name, src string, data map[string]interface{}) *Future {
	e.mutex.RLock()
	root := e.root
	e.mutex.RUnlock()
	if root == nil {
		return Resolved("", errors.NewConfigError(errors.ErrCodeNotConfigured, "engine is not configured"))
	}

	fsys, err := overlayFS(root, name, src)
	if err != nil {
		return Resolved("", errors.NewRenderError(errors.ErrCodeRenderFailed, "cannot stage template source", err))
	}
	return e.run(ctx, fsys, name, data)
}

func (e *ScriggoEngine) run(ctx context.Context, fsys afero.Fs, name string, data map[string]interface{}) *Future {
	future := newFuture()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				future.resolve("", errors.NewRenderError(errors.ErrCodeRenderFailed,
					fmt.Sprintf("template %s panicked", name), fmt.Errorf("%v", r)).WithLocation(name, 0, 0))
			}
		}()

		content, err := e.execute(ctx, fsys, name, data)
		future.resolve(content, err)
	}()

	return future
}

func (e *ScriggoEngine) execute(ctx context.Context, fsys afero.Fs, name string, data map[string]interface{}) (string, error) {
	globals := e.declarations(data)

	e.mutex.RLock()
	opts := &scriggo.BuildOptions{
		Globals:     globals,
		AllowGoStmt: e.opts.AllowGoStmt,
	}
	if e.opts.Markdown {
		opts.MarkdownConverter = markdownConverter
	}
	e.mutex.RUnlock()

	template, err := scriggo.BuildTemplate(newTemplateFS(fsys), name, opts)
	if err != nil {
		return "", translateError(name, err)
	}

	var buf bytes.Buffer
	if err := template.Run(&buf, nil, &scriggo.RunOptions{Context: ctx}); err != nil {
		return "", translateError(name, err)
	}
	return buf.String(), nil
}

// declarations merges plugin globals with the data context. Plugin names
// win over data keys of the same name. Keys that are not identifiers, or
// are template keywords, cannot be declared and stay reachable only through
// their parent map.
func (e *ScriggoEngine) declarations(data map[string]interface{}) native.Declarations {
	e.mutex.RLock()
	decls := make(native.Declarations, len(e.filters)+len(e.extensions)+len(data))
	for k, v := range e.filters {
		decls[k] = v
	}
	for k, v := range e.extensions {
		decls[k] = v
	}
	e.mutex.RUnlock()

	for key, value := range data {
		if _, taken := decls[key]; taken {
			e.logger.Debug(context.Background(), "data key shadowed by plugin", "key", key)
			continue
		}
		if !isDeclarable(key) {
			e.logger.Debug(context.Background(), "data key is not a template identifier", "key", key)
			continue
		}
		decls[key] = variable(value)
	}
	return decls
}

// variable wraps value in a pointer so the engine declares a variable of the
// value's dynamic type.
func variable(value interface{}) interface{} {
	if value == nil {
		return new(interface{})
	}
	v := reflect.ValueOf(value)
	ptr := reflect.New(v.Type())
	ptr.Elem().Set(v)
	return ptr.Interface()
}

func isDeclarable(name string) bool {
	return plugins.IsIdentifier(name) && !templateKeywords[name]
}

func markdownConverter(src []byte, out io.Writer) error {
	return goldmark.Convert(src, out)
}

// translateError turns an engine failure into a render error carrying the
// template location when one is known.
func translateError(name string, err error) error {
	if stderrors.Is(err, fs.ErrNotExist) {
		return errors.NewRenderError(errors.ErrCodeTemplateNotFound,
			fmt.Sprintf("template %s not found", name), err).WithLocation(name, 0, 0)
	}

	var buildErr *scriggo.BuildError
	if stderrors.As(err, &buildErr) {
		pos := buildErr.Position()
		return errors.NewRenderError(errors.ErrCodeRenderFailed, buildErr.Message(), nil).
			WithLocation(buildErr.Path(), pos.Line, pos.Column)
	}

	var panicErr *scriggo.PanicError
	if stderrors.As(err, &panicErr) {
		return errors.NewRenderError(errors.ErrCodeRenderFailed, panicErr.Error(), nil).
			WithLocation(name, 0, 0)
	}

	return errors.NewRenderError(errors.ErrCodeRenderFailed, "render failed", err).WithLocation(name, 0, 0)
}
