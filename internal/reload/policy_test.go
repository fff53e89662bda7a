package reload

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/pagesmith/internal/config"
)

func TestShouldReload(t *testing.T) {
	formats := []string{".html", ".njk"}

	tests := []struct {
		name    string
		setting config.ReloadSetting
		file    string
		want    bool
	}{
		{name: "enabled template", setting: config.ReloadSetting{Enabled: true}, file: "/p/page.njk", want: true},
		{name: "enabled data json", setting: config.ReloadSetting{Enabled: true}, file: "/p/data/site.json", want: true},
		{name: "enabled data yaml", setting: config.ReloadSetting{Enabled: true}, file: "/p/data/nav.YML", want: true},
		{name: "enabled unrelated", setting: config.ReloadSetting{Enabled: true}, file: "/p/style.css", want: false},
		{name: "disabled", setting: config.ReloadSetting{Enabled: false}, file: "/p/page.njk", want: false},
		{
			name:    "predicate wins over suffix",
			setting: config.ReloadSetting{Enabled: false, Predicate: func(f string) bool { return f == "/p/style.css" }},
			file:    "/p/style.css",
			want:    true,
		},
		{
			name:    "predicate can refuse",
			setting: config.ReloadSetting{Enabled: true, Predicate: func(string) bool { return false }},
			file:    "/p/page.html",
			want:    false,
		},
		{
			name:    "glob relative to root",
			setting: config.ReloadSetting{Enabled: true, Patterns: []string{"content/**/*.md"}},
			file:    "/p/content/blog/post.md",
			want:    true,
		},
		{
			name:    "glob replaces suffix check",
			setting: config.ReloadSetting{Enabled: true, Patterns: []string{"content/**"}},
			file:    "/p/page.html",
			want:    false,
		},
		{
			name:    "glob on base name",
			setting: config.ReloadSetting{Enabled: true, Patterns: []string{"*.tmpl"}},
			file:    "/p/deep/dir/x.tmpl",
			want:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.setting, formats, "/p")
			assert.Equal(t, tt.want, p.ShouldReload(tt.file))
		})
	}
}

func TestCustomFormatIsRelevant(t *testing.T) {
	p := New(config.ReloadSetting{Enabled: true}, []string{"xml"}, "")
	assert.True(t, p.ShouldReload("feed.xml"))
	assert.False(t, p.ShouldReload("feed.txt"))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Reload = []interface{}{"data/**"}
	resolved, err := config.Resolve(cfg, t.TempDir())
	if !assert.NoError(t, err) {
		return
	}
	p := FromConfig(resolved)
	assert.True(t, p.ShouldReload(resolved.ProjectRoot()+"/data/a.json"))
	assert.False(t, p.ShouldReload(resolved.ProjectRoot()+"/index.html"))
}
