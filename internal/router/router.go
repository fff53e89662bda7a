// Package router decides, for every candidate file, whether the pipeline
// renders it and how.
//
// A file is identified by its logical suffix: the extension that remains
// once the universal ".html" output wrapper is removed. "page.njk.html" is a
// Nunjucks-style page, "feed.json.html" is a JSON page naming a template,
// and a plain "index.html" stays ".html".
package router

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/ohler55/ojg/oj"
)

// Action is the outcome of classification.
type Action int

const (
	// Skip leaves the file untouched.
	Skip Action = iota
	// RenderString renders the file content as template source.
	RenderString
	// RenderNamed renders the template named by the JSON body.
	RenderNamed
)

func (a Action) String() string {
	switch a {
	case RenderString:
		return "render-string"
	case RenderNamed:
		return "render-named"
	default:
		return "skip"
	}
}

// Reason explains a Skip.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonFormatMismatch Reason = "format-mismatch"
	ReasonInvalidJSON    Reason = "invalid-json"
	ReasonIgnoredPath    Reason = "ignored-path"
)

const (
	htmlSuffix = ".html"
	jsonSuffix = ".json"
)

// Request is one transform candidate.
type Request struct {
	Path        string
	Filename    string
	Content     string
	IsDevServer bool
}

// Route is the classification of a Request.
type Route struct {
	Action Action
	Reason Reason
	// Suffix is the logical suffix of the filename.
	Suffix string
	// Body is the parsed JSON object of a RenderNamed route.
	Body map[string]interface{}
}

// Renderable reports whether the route renders.
func (r Route) Renderable() bool {
	return r.Action != Skip
}

func skip(suffix string, reason Reason) Route {
	return Route{Action: Skip, Reason: reason, Suffix: suffix}
}

// Classify routes req. formats must be normalized (lowercase, leading dot).
// The result depends only on its arguments.
func Classify(req Request, formats, ignoredPaths []string) Route {
	suffix, wrapped := LogicalSuffix(req.Filename)
	isJSON := suffix == jsonSuffix

	if !matchesFormat(suffix, formats) {
		if !(isJSON && wrapped && sniffJSON(req.Content)) {
			return skip(suffix, ReasonFormatMismatch)
		}
	}

	var body map[string]interface{}
	if isJSON {
		parsed, err := oj.ParseString(req.Content)
		if err != nil {
			return skip(suffix, ReasonInvalidJSON)
		}
		obj, ok := parsed.(map[string]interface{})
		if !ok {
			return skip(suffix, ReasonInvalidJSON)
		}
		if format, ok := obj["format"]; ok {
			name, _ := format.(string)
			if !declaredFormatAllowed(name, formats) {
				return skip(suffix, ReasonFormatMismatch)
			}
		}
		body = obj
	}

	if IsIgnored(req.Path, ignoredPaths) {
		return skip(suffix, ReasonIgnoredPath)
	}

	if isJSON {
		return Route{Action: RenderNamed, Suffix: suffix, Body: body}
	}
	return Route{Action: RenderString, Suffix: suffix}
}

// LogicalSuffix returns the format suffix of name and whether a trailing
// ".html" wrapper was removed to find it.
func LogicalSuffix(name string) (suffix string, wrapped bool) {
	base := strings.ToLower(path.Base(toSlash(name)))
	ext := path.Ext(base)
	if ext == htmlSuffix {
		if inner := path.Ext(strings.TrimSuffix(base, htmlSuffix)); inner != "" {
			return inner, true
		}
	}
	return ext, false
}

// StripWrapper removes the ".html" wrapper from name when the remaining name
// still carries an extension.
func StripWrapper(name string) string {
	if _, wrapped := LogicalSuffix(name); wrapped {
		return name[:len(name)-len(htmlSuffix)]
	}
	return name
}

// IsIgnored reports whether urlPath, with its wrapper stripped, matches one of
// the patterns. Patterns match with or without a leading slash.
func IsIgnored(urlPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	p := StripWrapper(toSlash(urlPath))
	trimmed := strings.TrimPrefix(p, "/")
	for _, pattern := range patterns {
		pattern = toSlash(pattern)
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
		if ok, _ := doublestar.Match(strings.TrimPrefix(pattern, "/"), trimmed); ok {
			return true
		}
	}
	return false
}

func matchesFormat(suffix string, formats []string) bool {
	if suffix == "" {
		return false
	}
	for _, format := range formats {
		if strings.HasSuffix(suffix, format) {
			return true
		}
	}
	return false
}

// declaredFormatAllowed checks a JSON body's "format" value, which may be
// written with or without its leading dot.
func declaredFormatAllowed(name string, formats []string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}
	for _, format := range formats {
		if name == format {
			return true
		}
	}
	return false
}

func sniffJSON(content string) bool {
	trimmed := strings.TrimLeft(content, " \t\r\n\uFEFF")
	return strings.HasPrefix(trimmed, "{")
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
