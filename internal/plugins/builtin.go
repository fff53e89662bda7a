package plugins

import (
	"bytes"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/open2b/scriggo/builtin"
	"github.com/open2b/scriggo/native"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/pagesmith/internal/errors"
)

// builtinFilters can be enabled from configuration by alias.
var builtinFilters = map[string]interface{}{
	"upper":      builtin.ToUpper,
	"lower":      builtin.ToLower,
	"capitalize": builtin.Capitalize,
	"abbreviate": builtin.Abbreviate,
	"kebab":      builtin.ToKebab,
	"trim":       strings.TrimSpace,
	"json":       builtin.MarshalJSON,
	"escape":     builtin.HtmlEscape,
	"title":      Title,
	"slug":       Slug,
	"markdown":   Markdown,
	"date":       Date,
}

// builtinExtensions can be enabled from configuration by name.
var builtinExtensions = map[string]ExtensionConstructor{
	"strings": func() Extension {
		return DeclarationSet{
			"hasPrefix":  builtin.HasPrefix,
			"hasSuffix":  builtin.HasSuffix,
			"index":      builtin.Index,
			"join":       builtin.Join,
			"split":      builtin.Split,
			"replaceAll": builtin.ReplaceAll,
			"sprintf":    builtin.Sprintf,
		}
	},
	"time": func() Extension {
		return DeclarationSet{
			"now":       builtin.Now,
			"parseTime": builtin.ParseTime,
		}
	},
	"markdown": func() Extension {
		return DeclarationSet{
			"markdown":   Markdown,
			"escapeHTML": builtin.HtmlEscape,
		}
	},
	"crypto": func() Extension {
		return DeclarationSet{
			"base64": builtin.Base64,
			"hex":    builtin.Hex,
			"md5":    builtin.Md5,
			"sha256": builtin.Sha256,
		}
	},
}

// DeclarationSet is an Extension backed by a fixed set of declarations.
type DeclarationSet native.Declarations

// Declarations implements Extension.
func (d DeclarationSet) Declarations() native.Declarations {
	out := make(native.Declarations, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// BuiltinFilter returns the builtin filter called name.
func BuiltinFilter(name string) (interface{}, error) {
	fn, ok := builtinFilters[name]
	if !ok {
		return nil, errors.NewConfigError(errors.ErrCodeUnknownBuiltin, "unknown builtin filter "+quote(name))
	}
	return fn, nil
}

// BuiltinExtension returns the constructor of the builtin extension called name.
func BuiltinExtension(name string) (ExtensionConstructor, error) {
	ctor, ok := builtinExtensions[name]
	if !ok {
		return nil, errors.NewConfigError(errors.ErrCodeUnknownBuiltin, "unknown builtin extension "+quote(name))
	}
	return ctor, nil
}

// BuiltinNames lists the builtin filters and extensions, sorted.
func BuiltinNames() (filters, extensions []string) {
	for name := range builtinFilters {
		filters = append(filters, name)
	}
	for name := range builtinExtensions {
		extensions = append(extensions, name)
	}
	sort.Strings(filters)
	sort.Strings(extensions)
	return filters, extensions
}

func quote(s string) string {
	return `"` + s + `"`
}

// Title upper-cases the first letter of every word.
func Title(s string) string {
	return cases.Title(language.Und).String(s)
}

// Slug lowercases s and joins its alphanumeric runs with dashes.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	return b.String()
}

// Markdown converts CommonMark source to HTML.
func Markdown(src string) native.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return native.HTML(builtin.HtmlEscape(src))
	}
	return native.HTML(buf.String())
}

// Date formats t with a Go reference layout, RFC 3339 when layout is empty.
func Date(t builtin.Time, layout string) string {
	if layout == "" {
		layout = time.RFC3339
	}
	return t.Format(layout)
}
