// Package reload decides which file changes trigger a full page reload.
package reload

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/pagesmith/internal/config"
)

// dataSuffixes always count as relevant when reload is enabled.
var dataSuffixes = []string{".html", ".json", ".yaml", ".yml"}

// Policy answers ShouldReload for changed files.
type Policy struct {
	setting  config.ReloadSetting
	suffixes map[string]bool
	root     string
}

// New builds a policy from the reload setting. Glob patterns are matched
// against paths relative to root.
func New(setting config.ReloadSetting, formats []string, root string) *Policy {
	suffixes := make(map[string]bool, len(formats)+len(dataSuffixes))
	for _, s := range dataSuffixes {
		suffixes[s] = true
	}
	for _, f := range formats {
		suffixes[config.NormalizeFormat(f)] = true
	}
	return &Policy{setting: setting, suffixes: suffixes, root: root}
}

// FromConfig builds the policy for a resolved configuration.
func FromConfig(cfg *config.Resolved) *Policy {
	return New(cfg.Reload(), cfg.Formats(), cfg.ProjectRoot())
}

// ShouldReload reports whether a change to file calls for a full reload.
// A predicate is authoritative; glob patterns replace the suffix check.
func (p *Policy) ShouldReload(file string) bool {
	if p.setting.Predicate != nil {
		return p.setting.Predicate(file)
	}
	if !p.setting.Enabled {
		return false
	}
	if len(p.setting.Patterns) > 0 {
		return p.matchesPattern(file)
	}
	return p.suffixes[strings.ToLower(filepath.Ext(file))]
}

func (p *Policy) matchesPattern(file string) bool {
	name := filepath.ToSlash(file)
	if p.root != "" && filepath.IsAbs(file) {
		if rel, err := filepath.Rel(p.root, file); err == nil && !strings.HasPrefix(rel, "..") {
			name = filepath.ToSlash(rel)
		}
	}
	for _, pattern := range p.setting.Patterns {
		pattern = filepath.ToSlash(pattern)
		if ok, _ := doublestar.Match(pattern, name); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, path.Base(name)); ok {
			return true
		}
	}
	return false
}
