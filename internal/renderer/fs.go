package renderer

import (
	"errors"
	"io/fs"
	"path"
	"strings"

	"github.com/open2b/scriggo"
	"github.com/spf13/afero"
)

// templateFS exposes an afero filesystem to the engine and assigns each file
// a format from its extension. Unknown extensions render as text.
type templateFS struct {
	fs.FS
}

func newTemplateFS(fsys afero.Fs) *templateFS {
	return &templateFS{FS: afero.NewIOFS(fsys)}
}

// Open opens name. The engine resolves a relative reference from the
// directory of the referring template; when nothing exists there, the
// reference is retried with leading directories dropped, so a name written
// relative to the template root still resolves.
func (t *templateFS) Open(name string) (fs.File, error) {
	f, err := t.FS.Open(name)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return f, err
	}
	for rest := name; ; {
		i := strings.IndexByte(rest, '/')
		if i < 0 {
			return nil, err
		}
		rest = rest[i+1:]
		if f, ferr := t.FS.Open(rest); ferr == nil {
			return f, nil
		}
	}
}

// Format implements scriggo.FormatFS.
func (t *templateFS) Format(name string) (scriggo.Format, error) {
	return formatOf(name), nil
}

func formatOf(name string) scriggo.Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm", ".njk":
		return scriggo.FormatHTML
	case ".css":
		return scriggo.FormatCSS
	case ".js", ".mjs":
		return scriggo.FormatJS
	case ".json":
		return scriggo.FormatJSON
	case ".md", ".mkd", ".mkdn", ".mdown", ".markdown":
		return scriggo.FormatMarkdown
	default:
		return scriggo.FormatText
	}
}

// overlayFS layers one in-memory file over a read-only view of base.
func overlayFS(base afero.Fs, name, src string) (afero.Fs, error) {
	layer := afero.NewMemMapFs()
	if err := afero.WriteFile(layer, name, []byte(src), 0o644); err != nil {
		return nil, err
	}
	return afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(base), layer), nil
}
