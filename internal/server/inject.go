package server

import (
	"strings"

	"golang.org/x/net/html"
)

// InjectBeforeClose inserts snippet before the closing </body> tag of doc,
// or before </head> when there is no body, or at the end otherwise. Tags
// inside scripts, styles and comments are not mistaken for the real ones.
func InjectBeforeClose(doc, snippet string) string {
	if snippet == "" {
		return doc
	}

	z := html.NewTokenizer(strings.NewReader(doc))
	offset := 0
	headEnd, bodyEnd := -1, -1

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		size := len(z.Raw())
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			switch string(name) {
			case "head":
				if headEnd < 0 {
					headEnd = offset
				}
			case "body":
				bodyEnd = offset
			}
		}
		offset += size
	}

	pos := bodyEnd
	if pos < 0 {
		pos = headEnd
	}
	if pos < 0 || pos > len(doc) {
		return doc + snippet
	}
	return doc[:pos] + snippet + doc[pos:]
}
