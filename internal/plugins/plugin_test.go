package plugins

import (
	"testing"
	"time"

	"github.com/open2b/scriggo/builtin"
	"github.com/open2b/scriggo/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/errors"
)

func TestRegisterFilter(t *testing.T) {
	tests := []struct {
		name    string
		filter  string
		value   interface{}
		wantErr bool
	}{
		{name: "function", filter: "shout", value: func(s string) string { return s + "!" }},
		{name: "builtin", filter: "up", value: builtinFilters["upper"]},
		{name: "string value", filter: "bad", value: "upper", wantErr: true},
		{name: "nil", filter: "bad", value: nil, wantErr: true},
		{name: "nil func", filter: "bad", value: (func(string) string)(nil), wantErr: true},
		{name: "invalid identifier", filter: "to-upper", value: func() {}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			err := r.RegisterFilter(tt.filter, tt.value)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errors.ErrConfiguration)
				assert.Empty(t, r.Filters())
				return
			}
			require.NoError(t, err)
			require.Len(t, r.Filters(), 1)
			assert.Equal(t, tt.filter, r.Filters()[0].Name)
		})
	}
}

func TestRegisterFilterNotInvokableCode(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterFilter("answer", 42)
	assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeConfig, Code: errors.ErrCodeInvalidPluginValue})
}

func TestRegisterExtension(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterExtension("site", ExtensionConstructor(func() Extension {
		return DeclarationSet{"siteName": "pagesmith"}
	})))
	require.NoError(t, r.RegisterExtension("plain", func() Extension {
		return DeclarationSet{"answer": func() int { return 42 }}
	}))

	err := r.RegisterExtension("broken", DeclarationSet{})
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	err = r.RegisterExtension("empty", func() Extension { return nil })
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	exts := r.Extensions()
	require.Len(t, exts, 2)
	assert.Equal(t, "site", exts[0].Name)
	assert.Equal(t, native.Declarations{"siteName": "pagesmith"}, exts[0].Extension.Declarations())
}

type counterExtension struct{ start int }

func (c *counterExtension) Declarations() native.Declarations {
	return native.Declarations{"start": c.start}
}

func TestRegisterExtensionConcreteConstructor(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterExtension("counter", func() *counterExtension {
		return &counterExtension{start: 3}
	}))
	exts := r.Extensions()
	require.Len(t, exts, 1)
	assert.Equal(t, native.Declarations{"start": 3}, exts[0].Extension.Declarations())

	rejected := map[string]interface{}{
		"nilPointer":  func() *counterExtension { return nil },
		"takesArgs":   func(int) Extension { return DeclarationSet{} },
		"twoResults":  func() (Extension, error) { return DeclarationSet{}, nil },
		"wrongResult": func() string { return "x" },
		"nilFunc":     (func() Extension)(nil),
	}
	for name, ctor := range rejected {
		t.Run(name, func(t *testing.T) {
			err := r.RegisterExtension(name, ctor)
			assert.ErrorIs(t, err, &errors.PipelineError{Type: errors.ErrorTypeConfig, Code: errors.ErrCodeInvalidPluginValue})
		})
	}
	assert.Len(t, r.Extensions(), 1)
}

func TestRegistryOrderAndDuplicates(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"b", "a", "c"} {
		require.NoError(t, r.RegisterFilter(name, Title))
	}
	err := r.RegisterFilter("a", Slug)
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	var names []string
	for _, f := range r.Filters() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)
	assert.True(t, r.Has("c"))
	assert.False(t, r.Has("d"))
}

func TestSealedRegistry(t *testing.T) {
	r := NewRegistry()
	r.Seal()
	assert.Error(t, r.RegisterFilter("late", Title))
}

func TestBuiltins(t *testing.T) {
	fn, err := BuiltinFilter("title")
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = BuiltinFilter("nope")
	assert.ErrorIs(t, err, errors.ErrConfiguration)

	ctor, err := BuiltinExtension("strings")
	require.NoError(t, err)
	assert.Contains(t, ctor().Declarations(), "join")

	_, err = BuiltinExtension("nope")
	assert.Error(t, err)

	filters, extensions := BuiltinNames()
	assert.Contains(t, filters, "markdown")
	assert.Equal(t, []string{"crypto", "markdown", "strings", "time"}, extensions)
}

func TestTitleAndSlug(t *testing.T) {
	assert.Equal(t, "Hello World", Title("hello world"))
	assert.Equal(t, "hello-world-2", Slug("  Hello, World! 2 "))
	assert.Equal(t, "", Slug("!!!"))
}

func TestMarkdown(t *testing.T) {
	out := Markdown("# Hi\n\n*there*")
	assert.Contains(t, string(out), "<h1>Hi</h1>")
	assert.Contains(t, string(out), "<em>there</em>")
}

func TestDate(t *testing.T) {
	ts := builtin.NewTime(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, "2024-03-01", Date(ts, "2006-01-02"))
	assert.Equal(t, "2024-03-01T12:00:00Z", Date(ts, ""))
}
