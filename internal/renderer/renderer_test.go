package renderer

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/datactx"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
	"github.com/conneroisu/pagesmith/internal/router"
	"github.com/conneroisu/pagesmith/internal/testutils"
)

// recordingEngine records calls and resolves every render immediately.
type recordingEngine struct {
	mutex      sync.Mutex
	root       string
	filters    []string
	extensions []string
	named      []string
	inline     []string
	lastData   map[string]interface{}
	result     string
	err        error
}

func (e *recordingEngine) Configure(root string, _ Options) error {
	e.root = root
	return nil
}

func (e *recordingEngine) AddFilter(name string, _ interface{}) error {
	e.filters = append(e.filters, name)
	return nil
}

func (e *recordingEngine) AddExtension(name string, _ plugins.Extension) error {
	e.extensions = append(e.extensions, name)
	return nil
}

func (e *recordingEngine) RenderNamed(_ context.Context, name string, data map[string]interface{}) *Future {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.named = append(e.named, name)
	e.lastData = data
	return Resolved(e.result, e.err)
}

func (e *recordingEngine) RenderString(_ context.Context, name, _ string, data map[string]interface{}) *Future {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.inline = append(e.inline, name)
	e.lastData = data
	return Resolved(e.result, e.err)
}

type project struct {
	root      string
	templates string
}

func newProject(t *testing.T, files map[string]string) project {
	t.Helper()
	root := testutils.CreateTempProject(t, files)
	p := project{root: root, templates: filepath.Join(root, "templates")}
	require.NoError(t, os.MkdirAll(p.templates, 0o755))
	return p
}

func resolve(t *testing.T, p project, mutate func(*config.Config), opts ...config.Option) *config.Resolved {
	t.Helper()
	cfg := config.Default()
	cfg.Root = "templates"
	if mutate != nil {
		mutate(cfg)
	}
	resolved, err := config.Resolve(cfg, p.root, opts...)
	require.NoError(t, err)
	return resolved
}

func TestNewRegistersPlugins(t *testing.T) {
	p := newProject(t, nil)
	cfg := resolve(t, p, func(c *config.Config) {
		c.Filters = map[string]string{"shout": "upper"}
		c.Extensions = []string{"time"}
	})

	engine := &recordingEngine{}
	_, err := New(cfg, engine, nil)
	require.NoError(t, err)

	assert.Equal(t, p.templates, engine.root)
	assert.Equal(t, []string{"shout"}, engine.filters)
	assert.Equal(t, []string{"time"}, engine.extensions)
}

func TestResolveTemplate(t *testing.T) {
	p := newProject(t, nil)
	r, err := New(resolve(t, p, nil), &recordingEngine{}, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		ref     string
		want    string
		outside bool
	}{
		{name: "project relative", ref: "templates/layouts/page.html", want: "layouts/page.html"},
		{name: "template relative", ref: "layouts/page.html", want: "layouts/page.html"},
		{name: "absolute inside", ref: filepath.Join(p.templates, "a.html"), want: "a.html"},
		{name: "escapes root", ref: "../secret.html", outside: true},
		{name: "absolute outside", ref: filepath.Join(p.root, "other", "a.html"), outside: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.ResolveTemplate(tt.ref)
			if tt.outside {
				require.Error(t, err)
				assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeRender, Code: errors.ErrCodeTemplateOutside})
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderMissingTemplateField(t *testing.T) {
	p := newProject(t, nil)
	engine := &recordingEngine{}
	r, err := New(resolve(t, p, nil), engine, nil)
	require.NoError(t, err)

	req := router.Request{Filename: filepath.Join(p.root, "feed.json.html"), Content: `{}`}
	_, err = r.Render(context.Background(), req, router.Route{Action: router.RenderNamed}, datactx.Context{"title": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrMissingTemplateField)
	assert.Empty(t, engine.named)
}

func TestRenderPassesDevFlagAndData(t *testing.T) {
	p := newProject(t, nil)
	engine := &recordingEngine{result: "ok"}
	r, err := New(resolve(t, p, nil), engine, nil)
	require.NoError(t, err)

	req := router.Request{
		Filename:    filepath.Join(p.templates, "pages", "about.njk.html"),
		Content:     "{{ title }}",
		IsDevServer: true,
	}
	out, err := r.Render(context.Background(), req, router.Route{Action: router.RenderString}, datactx.Context{"title": "About"})
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.False(t, out.IsTemplateRender)
	assert.Equal(t, "ok", out.Content)

	assert.Equal(t, []string{"pages/about.njk.html"}, engine.inline)
	assert.Equal(t, true, engine.lastData[DevVariable])
	assert.Equal(t, "About", engine.lastData["title"])
}

func TestRenderInlineOutsideTemplateRoot(t *testing.T) {
	p := newProject(t, nil)
	engine := &recordingEngine{}
	r, err := New(resolve(t, p, nil), engine, nil)
	require.NoError(t, err)

	render := func(filename string) string {
		req := router.Request{Filename: filename, Content: "x"}
		_, err := r.Render(context.Background(), req, router.Route{Action: router.RenderString}, nil)
		require.NoError(t, err)
		return engine.inline[len(engine.inline)-1]
	}

	index := render(filepath.Join(p.root, "index.html"))
	assert.True(t, strings.HasPrefix(index, inlinePrefix))
	assert.True(t, strings.HasSuffix(index, "_index.html"))
	assert.NotContains(t, index, "/")
	assert.Equal(t, index, render(filepath.Join(p.root, "index.html")))
	assert.NotEqual(t, index, render(filepath.Join(p.root, "blog", "index.html")))
}

func TestRenderEngineErrorIsOutput(t *testing.T) {
	p := newProject(t, nil)
	engine := &recordingEngine{err: errors.NewRenderError(errors.ErrCodeRenderFailed, "undefined: title", nil)}
	r, err := New(resolve(t, p, nil), engine, nil)
	require.NoError(t, err)

	out, err := r.Render(context.Background(), router.Request{Content: "{{ title }}"}, router.Route{Action: router.RenderString}, nil)
	require.NoError(t, err)
	assert.False(t, out.OK())
	assert.Empty(t, out.Content)
	assert.True(t, errors.IsRenderError(out.Err))
}

func TestRenderRejectsSkip(t *testing.T) {
	p := newProject(t, nil)
	r, err := New(resolve(t, p, nil), &recordingEngine{}, nil)
	require.NoError(t, err)

	_, err = r.Render(context.Background(), router.Request{}, router.Route{Action: router.Skip}, nil)
	assert.Error(t, err)
}

func TestFutureResolvesOnce(t *testing.T) {
	f := newFuture()
	assert.True(t, f.resolve("first", nil))
	assert.False(t, f.resolve("second", nil))

	content, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", content)
}

func TestFutureAwaitHonoursContext(t *testing.T) {
	f := newFuture()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseOptions(t *testing.T) {
	assert.Equal(t, Options{Markdown: true}, ParseOptions(nil))
	assert.Equal(t, Options{Markdown: false, AllowGoStmt: true}, ParseOptions(map[string]interface{}{
		"markdown":      "false",
		"allow_go_stmt": true,
		"unknown":       1,
	}))
}

func newScriggoRenderer(t *testing.T, p project, opts ...config.Option) *Renderer {
	t.Helper()
	cfg := resolve(t, p, func(c *config.Config) {
		c.Filters = map[string]string{"shout": "upper"}
	}, opts...)
	r, err := New(cfg, NewScriggoEngine(nil, nil), nil)
	require.NoError(t, err)
	return r
}

func TestScriggoRenderString(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p, config.WithFilter("greet", func(name string) string { return "Hello, " + name }))

	req := router.Request{
		Filename: filepath.Join(p.templates, "index.html"),
		Content:  `<h1>{{ shout(title) }}</h1><p>{{ greet(name) }}</p>{% if dev %}<i>dev</i>{% end %}`,
	}
	data := datactx.Context{"title": "welcome", "name": "Ada"}

	out, err := r.Render(context.Background(), req, router.Route{Action: router.RenderString}, data)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, "<h1>WELCOME</h1><p>Hello, Ada</p>", out.Content)

	req.IsDevServer = true
	out, err = r.Render(context.Background(), req, router.Route{Action: router.RenderString}, data)
	require.NoError(t, err)
	assert.Equal(t, "<h1>WELCOME</h1><p>Hello, Ada</p><i>dev</i>", out.Content)
}

func TestScriggoRenderLoopsOverData(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p)

	data := datactx.Context{"items": []interface{}{"a", "b", "c"}}
	out, err := r.Render(context.Background(),
		router.Request{Filename: filepath.Join(p.templates, "list.html"), Content: `{% for item in items %}[{{ item }}]{% end %}`},
		router.Route{Action: router.RenderString}, data)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, "[a][b][c]", out.Content)
}

func TestScriggoRenderNamed(t *testing.T) {
	p := newProject(t, map[string]string{
		"templates/layouts/feed.html": `<title>{{ title }}</title>`,
	})
	r := newScriggoRenderer(t, p)

	data := datactx.Context{"template": "templates/layouts/feed.html", "title": "Feed"}
	out, err := r.Render(context.Background(),
		router.Request{Filename: filepath.Join(p.root, "feed.json.html")},
		router.Route{Action: router.RenderNamed}, data)
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.True(t, out.IsTemplateRender)
	assert.Equal(t, "<title>Feed</title>", out.Content)
}

func TestScriggoRenderPicksUpEdits(t *testing.T) {
	p := newProject(t, map[string]string{
		"templates/page.html": `v1`,
	})
	r := newScriggoRenderer(t, p)
	render := func() string {
		out, err := r.Render(context.Background(), router.Request{},
			router.Route{Action: router.RenderNamed}, datactx.Context{"template": "page.html"})
		require.NoError(t, err)
		require.NoError(t, out.Err)
		return out.Content
	}

	assert.Equal(t, "v1", render())
	require.NoError(t, os.WriteFile(filepath.Join(p.templates, "page.html"), []byte("v2"), 0o644))
	assert.Equal(t, "v2", render())
}

func TestScriggoRenderErrors(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p)

	t.Run("undefined variable", func(t *testing.T) {
		out, err := r.Render(context.Background(),
			router.Request{Filename: filepath.Join(p.templates, "broken.html"), Content: "line one\n{{ missing }}"},
			router.Route{Action: router.RenderString}, nil)
		require.NoError(t, err)
		require.Error(t, out.Err)
		assert.True(t, errors.IsRenderError(out.Err))
		assert.Contains(t, out.Err.Error(), "missing")

		var pe *errors.PipelineError
		require.ErrorAs(t, out.Err, &pe)
		assert.Equal(t, 2, pe.Line)
	})

	t.Run("template not found", func(t *testing.T) {
		out, err := r.Render(context.Background(), router.Request{},
			router.Route{Action: router.RenderNamed}, datactx.Context{"template": "nope.html"})
		require.NoError(t, err)
		assert.ErrorIs(t, out.Err, &errors.PipelineError{Type: errors.ErrorTypeRender, Code: errors.ErrCodeTemplateNotFound})
	})

	t.Run("outside root", func(t *testing.T) {
		out, err := r.Render(context.Background(), router.Request{},
			router.Route{Action: router.RenderNamed}, datactx.Context{"template": "../../etc/passwd"})
		require.NoError(t, err)
		assert.ErrorIs(t, out.Err, &errors.PipelineError{Type: errors.ErrorTypeRender, Code: errors.ErrCodeTemplateOutside})
	})
}

func TestScriggoExtendsFromRoot(t *testing.T) {
	p := newProject(t, map[string]string{
		"templates/layouts/base.html":   `<main>{{ Body() }}</main>`,
		"templates/partials/nav.html":   `<nav>{{ title }}</nav>`,
		"templates/layouts/nested.html": `{% include "partials/nav.html" %}<main>{{ Body() }}</main>`,
	})
	r := newScriggoRenderer(t, p)
	render := func(filename, src string) Output {
		out, err := r.Render(context.Background(),
			router.Request{Filename: filename, Content: src},
			router.Route{Action: router.RenderString}, datactx.Context{"title": "Home"})
		require.NoError(t, err)
		return out
	}

	tests := []struct {
		name     string
		filename string
		src      string
		want     string
	}{
		{
			name:     "page outside the root",
			filename: filepath.Join(p.root, "index.html"),
			src:      `{% extends "layouts/base.html" %}{% macro Body %}hi{% end %}`,
			want:     "<main>hi</main>",
		},
		{
			name:     "page in a subdirectory of the root",
			filename: filepath.Join(p.templates, "blog", "post.html"),
			src:      `{% extends "layouts/base.html" %}{% macro Body %}post{% end %}`,
			want:     "<main>post</main>",
		},
		{
			name:     "absolute reference",
			filename: filepath.Join(p.root, "about.html"),
			src:      `{% extends "/layouts/base.html" %}{% macro Body %}about{% end %}`,
			want:     "<main>about</main>",
		},
		{
			name:     "layout including a partial",
			filename: filepath.Join(p.root, "nested.html"),
			src:      `{% extends "layouts/nested.html" %}{% macro Body %}x{% end %}`,
			want:     "<nav>Home</nav><main>x</main>",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := render(tc.filename, tc.src)
			require.NoError(t, out.Err)
			assert.Equal(t, tc.want, out.Content)
		})
	}

	t.Run("missing layout", func(t *testing.T) {
		out := render(filepath.Join(p.root, "index.html"), `{% extends "layouts/none.html" %}`)
		require.Error(t, out.Err)
		assert.True(t, errors.IsRenderError(out.Err))
	})
}

func TestScriggoErrorNamesSourceFile(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p)

	filename := filepath.Join(p.root, "index.html")
	out, err := r.Render(context.Background(),
		router.Request{Filename: filename, Content: "{{ missing }}"},
		router.Route{Action: router.RenderString}, nil)
	require.NoError(t, err)

	var pe *errors.PipelineError
	require.ErrorAs(t, out.Err, &pe)
	assert.Equal(t, filename, pe.FilePath)
	assert.NotContains(t, out.Err.Error(), inlinePrefix)
}

func TestScriggoPluginNamesShadowData(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p)

	out, err := r.Render(context.Background(),
		router.Request{Filename: filepath.Join(p.templates, "x.html"), Content: `{{ shout("hi") }}`},
		router.Route{Action: router.RenderString},
		datactx.Context{"shout": "not a function", "bad-key": 1, "in": 2})
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, "HI", out.Content)
}

func TestScriggoLogsUndeclarableKeys(t *testing.T) {
	p := newProject(t, nil)
	var logs bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "text", Output: &logs})

	r, err := New(resolve(t, p, nil), NewScriggoEngine(nil, logger), nil)
	require.NoError(t, err)

	out, err := r.Render(context.Background(),
		router.Request{Filename: filepath.Join(p.templates, "x.html"), Content: `{{ site["site-name"] }}`},
		router.Route{Action: router.RenderString},
		datactx.Context{"site-name": "a", "in": "b", "site": map[string]interface{}{"site-name": "Demo"}})
	require.NoError(t, err)
	require.NoError(t, out.Err)
	assert.Equal(t, "Demo", out.Content)

	assert.Contains(t, logs.String(), "site-name")
	assert.Contains(t, logs.String(), "key=in")
}

func TestScriggoEngineRejectsInvalidFilter(t *testing.T) {
	engine := NewScriggoEngine(nil, nil)
	err := engine.AddFilter("bad", 42)
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeConfig, Code: errors.ErrCodeInvalidPluginValue})
}

func TestScriggoEngineNotConfigured(t *testing.T) {
	engine := NewScriggoEngine(nil, nil)
	_, err := engine.RenderString(context.Background(), "a.html", "x", nil).Await(context.Background())
	assert.ErrorIs(t, err, errors.ErrConfiguration)
}

func TestScriggoConcurrentRenders(t *testing.T) {
	p := newProject(t, nil)
	r := newScriggoRenderer(t, p)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := strings.Repeat("x", i+1)
			out, err := r.Render(context.Background(),
				router.Request{Filename: filepath.Join(p.templates, name+".html"), Content: "{{ n }}"},
				router.Route{Action: router.RenderString}, datactx.Context{"n": name})
			if err == nil && out.Err == nil {
				results[i] = out.Content
			}
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		assert.Equal(t, strings.Repeat("x", i+1), got)
	}
}
