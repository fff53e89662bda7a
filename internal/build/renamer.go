package build

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/router"
)

// Entries maps entry keys (slash-separated, relative to the project root)
// to source file paths.
type Entries map[string]string

// Bundle describes what the bundling step emitted. A nil Fs means nothing
// was emitted.
type Bundle struct {
	Fs     afero.Fs
	OutDir string
	// Files are the emitted entry keys, relative to OutDir.
	Files []string
}

// Mapping records one renamed entry for the duration of a build.
type Mapping struct {
	// Virtual is the authored key, e.g. "feed.xml.html".
	Virtual string
	// Canonical is the key handed to bundling, e.g. "feed.html".
	Canonical string
	// Real is the final output name, e.g. "feed.xml".
	Real string
}

// Renamer gives multi-suffix entries a plain ".html" key while bundling and
// moves their outputs to the real name afterwards. BuildStart and BuildEnd
// must bracket bundling and must not overlap.
type Renamer struct {
	fs      afero.Fs
	formats []string
	mapping []Mapping
	active  bool
	logger  logging.Logger
	mutex   sync.Mutex
}

// NewRenamer creates a renamer for the given formats. Source files are
// checked on fsys.
func NewRenamer(fsys afero.Fs, formats []string, logger logging.Logger) *Renamer {
	if logger == nil {
		logger = logging.Nop()
	}
	normalized := make([]string, 0, len(formats))
	for _, f := range formats {
		if f = config.NormalizeFormat(f); f != ".html" {
			normalized = append(normalized, f)
		}
	}
	return &Renamer{
		fs:      fsys,
		formats: normalized,
		logger:  logger.WithComponent("renamer"),
	}
}

// Virtual derives the mapping for key, if it carries a renamed format.
func (r *Renamer) Virtual(key string) (Mapping, bool) {
	suffix, wrapped := router.LogicalSuffix(key)
	if !wrapped {
		return Mapping{}, false
	}
	for _, format := range r.formats {
		if suffix == format {
			real := key[:len(key)-len(".html")]
			canonical := real[:len(real)-len(suffix)] + ".html"
			return Mapping{Virtual: key, Canonical: canonical, Real: real}, true
		}
	}
	return Mapping{}, false
}

// BuildStart re-keys every multi-suffix entry to its canonical name. Either
// every entry is re-keyed or, on error, none is.
func (r *Renamer) BuildStart(entries Entries) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.active {
		return errors.NewRenameIOError(errors.ErrCodeRenameFailed, "", "build already started", nil)
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var mapping []Mapping
	claimed := make(map[string]string)
	for _, key := range keys {
		m, ok := r.Virtual(key)
		if !ok {
			continue
		}

		source := entries[key]
		if info, err := r.fs.Stat(source); err != nil || info.IsDir() {
			return errors.NewRenameIOError(errors.ErrCodeRenameMissing, source,
				fmt.Sprintf("source of entry %s is missing", key), err)
		}

		if _, exists := entries[m.Canonical]; exists {
			return errors.NewRenameIOError(errors.ErrCodeRenameCollision, source,
				fmt.Sprintf("entry %s collides with existing entry %s", key, m.Canonical), nil)
		}
		if other, taken := claimed[m.Canonical]; taken {
			return errors.NewRenameIOError(errors.ErrCodeRenameCollision, source,
				fmt.Sprintf("entries %s and %s both map to %s", other, key, m.Canonical), nil)
		}
		claimed[m.Canonical] = key
		mapping = append(mapping, m)
	}

	for _, m := range mapping {
		entries[m.Canonical] = entries[m.Virtual]
		delete(entries, m.Virtual)
		r.logger.Debug(context.Background(), "renamed entry", "virtual", m.Virtual, "canonical", m.Canonical)
	}

	r.mapping = mapping
	r.active = true
	return nil
}

// BuildEnd restores the authored entry keys and moves every emitted output
// to its real name. The mapping is discarded even when it fails.
func (r *Renamer) BuildEnd(entries Entries, bundle Bundle) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.active {
		return errors.NewRenameIOError(errors.ErrCodeRenameFailed, "", "build was not started", nil)
	}
	mapping := r.mapping
	r.mapping = nil
	r.active = false

	for _, m := range mapping {
		source, ok := entries[m.Canonical]
		if !ok {
			return errors.NewRenameIOError(errors.ErrCodeRenameMissing, m.Canonical,
				fmt.Sprintf("entry %s disappeared during the build", m.Canonical), nil)
		}
		delete(entries, m.Canonical)
		entries[m.Virtual] = source
	}

	if bundle.Fs == nil {
		return nil
	}

	emitted := make(map[string]bool, len(bundle.Files))
	for _, f := range bundle.Files {
		emitted[path.Clean(filepath.ToSlash(f))] = true
	}

	for _, m := range mapping {
		if !emitted[m.Canonical] {
			continue
		}
		from := filepath.Join(bundle.OutDir, filepath.FromSlash(m.Canonical))
		to := filepath.Join(bundle.OutDir, filepath.FromSlash(m.Real))

		if _, err := bundle.Fs.Stat(from); err != nil {
			return errors.NewRenameIOError(errors.ErrCodeRenameMissing, from,
				fmt.Sprintf("emitted output for %s is missing", m.Virtual), err)
		}
		if err := bundle.Fs.Rename(from, to); err != nil {
			return errors.NewRenameIOError(errors.ErrCodeRenameFailed, from,
				fmt.Sprintf("cannot rename output to %s", to), err)
		}
		r.logger.Debug(context.Background(), "renamed output", "from", from, "to", to)
	}
	return nil
}

// Mapping returns the renames recorded by the current build.
func (r *Renamer) Mapping() []Mapping {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Mapping(nil), r.mapping...)
}

// RealName returns the final output name of key.
func (r *Renamer) RealName(key string) string {
	if m, ok := r.Virtual(key); ok {
		return m.Real
	}
	return strings.TrimPrefix(key, "/")
}
