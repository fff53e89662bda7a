package build

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/errors"
)

func sourceFs(t *testing.T, files ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fsys, f, []byte("x"), 0o644))
	}
	return fsys
}

func TestRenamerVirtual(t *testing.T) {
	r := NewRenamer(afero.NewMemMapFs(), []string{".html", ".njk", "xml", ".json"}, nil)

	tests := []struct {
		key  string
		want Mapping
		ok   bool
	}{
		{key: "feed.xml.html", want: Mapping{Virtual: "feed.xml.html", Canonical: "feed.html", Real: "feed.xml"}, ok: true},
		{key: "blog/page.njk.html", want: Mapping{Virtual: "blog/page.njk.html", Canonical: "blog/page.html", Real: "blog/page.njk"}, ok: true},
		{key: "api.json.html", want: Mapping{Virtual: "api.json.html", Canonical: "api.html", Real: "api.json"}, ok: true},
		{key: "index.html"},
		{key: "feed.xml"},
		{key: "notes.txt.html"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := r.Virtual(tt.key)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRenamerRoundTripWithoutBundle(t *testing.T) {
	fsys := sourceFs(t, "/p/feed.xml.html", "/p/index.html")
	r := NewRenamer(fsys, []string{"xml"}, nil)

	original := Entries{
		"feed.xml.html": "/p/feed.xml.html",
		"index.html":    "/p/index.html",
	}
	entries := Entries{}
	for k, v := range original {
		entries[k] = v
	}

	require.NoError(t, r.BuildStart(entries))
	assert.Equal(t, Entries{"feed.html": "/p/feed.xml.html", "index.html": "/p/index.html"}, entries)
	assert.Len(t, r.Mapping(), 1)

	require.NoError(t, r.BuildEnd(entries, Bundle{}))
	assert.Equal(t, original, entries)
	assert.Empty(t, r.Mapping())
}

func TestRenamerMissingSource(t *testing.T) {
	r := NewRenamer(afero.NewMemMapFs(), []string{"xml"}, nil)
	entries := Entries{"feed.xml.html": "/p/feed.xml.html"}

	err := r.BuildStart(entries)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRenameIO)
	assert.Equal(t, Entries{"feed.xml.html": "/p/feed.xml.html"}, entries)
}

func TestRenamerCollision(t *testing.T) {
	t.Run("with plain entry", func(t *testing.T) {
		fsys := sourceFs(t, "/p/feed.xml.html", "/p/feed.html")
		r := NewRenamer(fsys, []string{"xml"}, nil)
		entries := Entries{"feed.xml.html": "/p/feed.xml.html", "feed.html": "/p/feed.html"}

		err := r.BuildStart(entries)
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrRenameIO)
		assert.Contains(t, err.Error(), "collides")
		assert.Len(t, entries, 2)
		assert.Contains(t, entries, "feed.xml.html")
	})

	t.Run("between virtual entries", func(t *testing.T) {
		fsys := sourceFs(t, "/p/feed.xml.html", "/p/feed.rss.html")
		r := NewRenamer(fsys, []string{"xml", "rss"}, nil)
		entries := Entries{"feed.xml.html": "/p/feed.xml.html", "feed.rss.html": "/p/feed.rss.html"}

		err := r.BuildStart(entries)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "both map to feed.html")
		assert.Contains(t, entries, "feed.xml.html")
		assert.Contains(t, entries, "feed.rss.html")
	})
}

func TestRenamerRenamesOutputs(t *testing.T) {
	fsys := sourceFs(t, "/p/feed.xml.html", "/p/blog/atom.xml.html", "/p/index.html")
	r := NewRenamer(fsys, []string{"xml"}, nil)
	entries := Entries{
		"feed.xml.html":      "/p/feed.xml.html",
		"blog/atom.xml.html": "/p/blog/atom.xml.html",
		"index.html":         "/p/index.html",
	}
	require.NoError(t, r.BuildStart(entries))

	out := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(out, "/dist/feed.html", []byte("<rss/>"), 0o644))
	require.NoError(t, afero.WriteFile(out, "/dist/blog/atom.html", []byte("<feed/>"), 0o644))
	require.NoError(t, afero.WriteFile(out, "/dist/index.html", []byte("<html/>"), 0o644))

	err := r.BuildEnd(entries, Bundle{
		Fs:     out,
		OutDir: "/dist",
		Files:  []string{"feed.html", "blog/atom.html", "index.html"},
	})
	require.NoError(t, err)

	content, err := afero.ReadFile(out, "/dist/feed.xml")
	require.NoError(t, err)
	assert.Equal(t, "<rss/>", string(content))

	exists, _ := afero.Exists(out, "/dist/feed.html")
	assert.False(t, exists)
	exists, _ = afero.Exists(out, "/dist/blog/atom.xml")
	assert.True(t, exists)
	exists, _ = afero.Exists(out, "/dist/index.html")
	assert.True(t, exists)

	assert.Contains(t, entries, "feed.xml.html")
	assert.Contains(t, entries, "blog/atom.xml.html")
}

func TestRenamerMissingOutput(t *testing.T) {
	fsys := sourceFs(t, "/p/feed.xml.html")
	r := NewRenamer(fsys, []string{"xml"}, nil)
	entries := Entries{"feed.xml.html": "/p/feed.xml.html"}
	require.NoError(t, r.BuildStart(entries))

	err := r.BuildEnd(entries, Bundle{Fs: afero.NewMemMapFs(), OutDir: "/dist", Files: []string{"feed.html"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrRenameIO)
	assert.Empty(t, r.Mapping())
}

func TestRenamerPhaseOrder(t *testing.T) {
	r := NewRenamer(afero.NewMemMapFs(), nil, nil)

	assert.Error(t, r.BuildEnd(Entries{}, Bundle{}))
	require.NoError(t, r.BuildStart(Entries{}))
	assert.Error(t, r.BuildStart(Entries{}))
	require.NoError(t, r.BuildEnd(Entries{}, Bundle{}))
}

func TestRealName(t *testing.T) {
	r := NewRenamer(afero.NewMemMapFs(), []string{"xml"}, nil)
	assert.Equal(t, "feed.xml", r.RealName("feed.xml.html"))
	assert.Equal(t, "index.html", r.RealName("/index.html"))
}
