package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/pagesmith/internal/build"
	"github.com/conneroisu/pagesmith/internal/config"
	"github.com/conneroisu/pagesmith/internal/errors"
	"github.com/conneroisu/pagesmith/internal/testutils"
)

func TestRenderConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Globals["siteName"] = "Demo"

	out, err := renderConfig(cfg, "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "siteName: Demo")
	assert.Contains(t, out, "out_dir: dist")

	out, err = renderConfig(cfg, "json")
	require.NoError(t, err)
	parsed, err := oj.ParseString(out)
	require.NoError(t, err)
	doc := parsed.(map[string]interface{})
	assert.Equal(t, "Demo", doc["globals"].(map[string]interface{})["siteName"])
	assert.Equal(t, true, doc["reload"])

	_, err = renderConfig(cfg, "toml")
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	require.NoError(t, runConfigValidate(cmd, nil))
	assert.Contains(t, out.String(), "Configuration is valid")

	viper.Set("server.port", 70000)
	viper.Set("log.format", "xml")
	err := runConfigValidate(cmd, nil)
	assert.Error(t, err)
	assert.Contains(t, errOut.String(), "server.port")
	assert.Contains(t, errOut.String(), "log.format")
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() { versionFormat, versionShort = "text", false })

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	versionFormat = "json"
	require.NoError(t, runVersionCommand(cmd, nil))
	parsed, err := oj.ParseString(out.String())
	require.NoError(t, err)
	assert.Contains(t, parsed.(map[string]interface{}), "engine")

	out.Reset()
	versionFormat, versionShort = "text", true
	require.NoError(t, runVersionCommand(cmd, nil))
	assert.NotEmpty(t, out.String())

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestBuildCommand(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := testutils.CreateTempProject(t, map[string]string{
		"data/site.json": `{"siteName": "Demo"}`,
		"index.html":     `<h1>{{ siteName }}</h1>`,
		"feed.xml.html":  `<rss>{{ siteName }}</rss>`,
		"style.css":      `body {}`,
	})
	viper.Set("log.level", "error")
	viper.Set("build.input", []string{"**/*.html", "**/*.css"})

	require.NoError(t, runBuild(&cobra.Command{}, []string{dir}))

	index, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>Demo</h1>", string(index))

	feed, err := os.ReadFile(filepath.Join(dir, "dist", "feed.xml"))
	require.NoError(t, err)
	assert.Equal(t, "<rss>Demo</rss>", string(feed))

	assert.FileExists(t, filepath.Join(dir, "dist", "style.css"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "feed.xml.html"))
}

func TestBuildCommandFailsOnRenderError(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := testutils.CreateTempProject(t, map[string]string{
		"index.html": `{{ missing }}`,
	})
	viper.Set("log.level", "error")

	assert.Error(t, runBuild(&cobra.Command{}, []string{dir}))
}

func TestPrintBuildSummaryListsRenderFailuresOnce(t *testing.T) {
	result := &build.Result{
		Entries: 3,
		Files: []build.FileResult{
			{Key: "index.html", Outcome: build.OutcomeRendered},
			{Key: "broken.html", Outcome: build.OutcomeFailed,
				Error: errors.NewRenderError(errors.ErrCodeRenderFailed, "undefined: missing", nil)},
			{Key: "data.html", Outcome: build.OutcomeFailed,
				Error: errors.NewDataFileParseError("data/site.json", assert.AnError)},
		},
	}

	var out, errOut bytes.Buffer
	printBuildSummary(&out, &errOut, result)

	assert.Contains(t, out.String(), "Built 3 entries")
	assert.Contains(t, errOut.String(), "failed: broken.html\n")
	assert.NotContains(t, errOut.String(), "undefined: missing")
	assert.Contains(t, errOut.String(), "failed: data.html: ")
	assert.Contains(t, errOut.String(), "data/site.json")
}

func TestInitThenBuild(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Cleanup(func() { initTemplate, initName, initForce, initList = "minimal", "My Site", false, false })

	dir := testutils.CreateTempProject(t, nil)
	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)

	initTemplate, initName = "blog", "Field Notes"
	require.NoError(t, runInit(cmd, []string{dir}))
	assert.Contains(t, out.String(), "feed.xml.html")
	assert.Error(t, runInit(cmd, []string{dir}), "existing files are kept")

	viper.SetConfigFile(filepath.Join(dir, ".pagesmith.yml"))
	require.NoError(t, viper.ReadInConfig())
	viper.Set("log.level", "error")
	require.NoError(t, runBuild(&cobra.Command{}, []string{dir}))

	index, err := os.ReadFile(filepath.Join(dir, "dist", "index.html"))
	require.NoError(t, err)
	assert.Contains(t, string(index), "<h1>Field Notes</h1>")
	assert.Contains(t, string(index), "NOTES AND ARTICLES")

	post, err := os.ReadFile(filepath.Join(dir, "dist", "posts", "hello-world.html"))
	require.NoError(t, err)
	assert.Contains(t, string(post), "<h1>Hello, world</h1>")
	assert.Contains(t, string(post), "<strong>first</strong>")

	feed, err := os.ReadFile(filepath.Join(dir, "dist", "feed.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(feed), "<title>Field Notes</title>")
	assert.Contains(t, string(feed), "<title>hello-world</title>")
	assert.FileExists(t, filepath.Join(dir, "dist", "style.css"))
}

func TestInitList(t *testing.T) {
	t.Cleanup(func() { initList = false })
	initList = true

	cmd := &cobra.Command{}
	var out bytes.Buffer
	cmd.SetOut(&out)
	require.NoError(t, runInit(cmd, nil))
	assert.Contains(t, out.String(), "blog")
	assert.Contains(t, out.String(), "minimal")
}

func TestFlagNormalization(t *testing.T) {
	assert.NotNil(t, buildCmd.Flags().Lookup("out_dir"))
	assert.Same(t, buildCmd.Flags().Lookup("out-dir"), buildCmd.Flags().Lookup("out_dir"))
}

func TestProjectDir(t *testing.T) {
	assert.Equal(t, ".", projectDir(nil))
	assert.Equal(t, "site", projectDir([]string{"site"}))
}
