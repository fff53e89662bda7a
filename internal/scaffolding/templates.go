package scaffolding

// SiteTemplate is a starter project. File contents are Go text templates
// with [[ ]] delimiters, so the page templates keep their own {{ }}.
type SiteTemplate struct {
	Name        string
	Description string
	Files       map[string]string
}

// TemplateContext is passed to every scaffold file.
type TemplateContext struct {
	SiteName string
	Date     string
}

const configFile = `# pagesmith configuration
reload: true
formats: [".html", ".njk"]
data: ["data/**/*.json"]
ignored_paths: []
globals:
  siteName: "[[ .SiteName ]]"
build:
  input: ["**/*.html", "**/*.css"]
  out_dir: dist
`

const blogConfigFile = configFile + `filters:
  upper: upper
  markdown: markdown
`

const styleFile = `body {
  font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
  line-height: 1.6;
  max-width: 48rem;
  margin: 0 auto;
  padding: 2rem 1rem;
  color: #1f2937;
}
`

// GetBuiltinTemplates returns the starter projects shipped with pagesmith.
func GetBuiltinTemplates() map[string]SiteTemplate {
	return map[string]SiteTemplate{
		"minimal": {
			Name:        "minimal",
			Description: "A single page with site data",
			Files: map[string]string{
				".pagesmith.yml": configFile,
				"style.css":      styleFile,
				"data/site.json": `{
  "tagline": "Built with pagesmith",
  "links": ["Home", "About"]
}
`,
				"index.html": `<!doctype html>
<html>
<head>
  <title>{{ siteName }}</title>
  <link rel="stylesheet" href="/style.css">
</head>
<body>
  <h1>{{ siteName }}</h1>
  <p>{{ tagline }}</p>
  <ul>
  {% for link in links %}
    <li>{{ link }}</li>
  {% end %}
  </ul>
  {% if dev %}<p><small>development build</small></p>{% end %}
</body>
</html>
`,
			},
		},
		"blog": {
			Name:        "blog",
			Description: "Pages with per-page data, markdown and an RSS feed",
			Files: map[string]string{
				".pagesmith.yml": blogConfigFile,
				"style.css":      styleFile,
				"data/site.json": `{
  "tagline": "Notes and articles",
  "posts": ["hello-world"]
}
`,
				"index.html": `<!doctype html>
<html>
<head>
  <title>{{ siteName }}</title>
  <link rel="stylesheet" href="/style.css">
  <link rel="alternate" type="application/rss+xml" href="/feed.xml">
</head>
<body>
  <h1>{{ siteName }}</h1>
  <p>{{ upper(tagline) }}</p>
  <ul>
  {% for post in posts %}
    <li><a href="/posts/{{ post }}.html">{{ post }}</a></li>
  {% end %}
  </ul>
</body>
</html>
`,
				"posts/hello-world.html": `<!doctype html>
<html>
<head><title>{{ title }} | {{ siteName }}</title></head>
<body>
  <h1>{{ title }}</h1>
  <p><time>{{ published }}</time></p>
  {{ markdown(body) }}
</body>
</html>
`,
				"posts/hello-world.html.json": `{
  "title": "Hello, world",
  "published": "[[ .Date ]]",
  "body": "This is the **first** post of [[ .SiteName ]]."
}
`,
				"feed.xml.html": `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>{{ siteName }}</title>
  <description>{{ tagline }}</description>
  {% for post in posts %}
  <item><title>{{ post }}</title><link>/posts/{{ post }}.html</link></item>
  {% end %}
</channel>
</rss>
`,
			},
		},
	}
}
