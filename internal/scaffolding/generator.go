// Package scaffolding creates starter pagesmith projects.
package scaffolding

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	"github.com/spf13/afero"
)

// Generator writes starter projects.
type Generator struct {
	fs        afero.Fs
	templates map[string]SiteTemplate
	now       func() time.Time
}

// Options selects what Generate writes.
type Options struct {
	Template string
	SiteName string
	// Force overwrites files that already exist.
	Force bool
}

// TemplateInfo describes a starter project.
type TemplateInfo struct {
	Name        string
	Description string
	Files       int
}

// NewGenerator creates a generator writing to fsys.
func NewGenerator(fsys afero.Fs) *Generator {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Generator{
		fs:        fsys,
		templates: GetBuiltinTemplates(),
		now:       time.Now,
	}
}

// AddCustomTemplate adds or replaces a starter project.
func (g *Generator) AddCustomTemplate(tmpl SiteTemplate) {
	g.templates[tmpl.Name] = tmpl
}

// ListTemplates returns the starter projects sorted by name.
func (g *Generator) ListTemplates() []TemplateInfo {
	infos := make([]TemplateInfo, 0, len(g.templates))
	for _, tmpl := range g.templates {
		infos = append(infos, TemplateInfo{
			Name:        tmpl.Name,
			Description: tmpl.Description,
			Files:       len(tmpl.Files),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Generate writes the selected starter project into dir and returns the
// written paths relative to dir, sorted. Nothing is written when a file
// already exists and opts.Force is unset.
func (g *Generator) Generate(dir string, opts Options) ([]string, error) {
	if opts.Template == "" {
		opts.Template = "minimal"
	}
	if opts.SiteName == "" {
		opts.SiteName = "My Site"
	}

	tmpl, ok := g.templates[opts.Template]
	if !ok {
		return nil, fmt.Errorf("template '%s' not found", opts.Template)
	}

	names := make([]string, 0, len(tmpl.Files))
	for name := range tmpl.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	if !opts.Force {
		for _, name := range names {
			target := filepath.Join(dir, filepath.FromSlash(name))
			if _, err := g.fs.Stat(target); err == nil {
				return nil, fmt.Errorf("%s already exists (use --force to overwrite)", target)
			} else if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	ctx := TemplateContext{
		SiteName: opts.SiteName,
		Date:     g.now().Format("2006-01-02"),
	}
	for _, name := range names {
		content, err := render(name, tmpl.Files[name], ctx)
		if err != nil {
			return nil, err
		}
		target := filepath.Join(dir, filepath.FromSlash(name))
		if err := g.fs.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", name, err)
		}
		if err := afero.WriteFile(g.fs, target, content, 0o644); err != nil {
			return nil, fmt.Errorf("failed to create file %s: %w", name, err)
		}
	}
	return names, nil
}

func render(name, content string, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(name).Delims("[[", "]]").Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("failed to execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
