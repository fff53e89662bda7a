package errors

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// OverlayID is the element id of the in-page error overlay.
const OverlayID = "__pagesmith-overlay"

// FormatOverlay renders err as a self-contained overlay element for the dev
// server to place in a page that failed to render.
func FormatOverlay(err error, source string) string {
	if err == nil {
		return ""
	}

	var builder strings.Builder

	builder.WriteString(fmt.Sprintf(`<div id="%s">`, OverlayID))
	builder.WriteString(`
<style>
    #` + OverlayID + ` { position: fixed; inset: 0; z-index: 2147483647; overflow: auto; font-family: monospace; padding: 20px; background-color: rgba(30, 30, 30, 0.96); color: #ffffff; }
    #` + OverlayID + ` .error { margin: 20px 0; padding: 15px; border-left: 4px solid #ff4444; background-color: #2d2d2d; }
    #` + OverlayID + ` .error-header { font-weight: bold; font-size: 1.1em; margin-bottom: 10px; }
    #` + OverlayID + ` .error-location { color: #88ccff; font-size: 0.9em; }
    #` + OverlayID + ` .error-message { margin: 10px 0; white-space: pre-wrap; }
    #` + OverlayID + ` .error-hint { color: #88ff88; font-style: italic; margin-top: 10px; }
</style>
`)

	header := "Render error"
	var pe *PipelineError
	if errors.As(err, &pe) {
		header = overlayHeader(pe.Type)
	}
	builder.WriteString(`<div class="error">`)
	builder.WriteString(fmt.Sprintf(`<div class="error-header">[%s] %s</div>`,
		html.EscapeString(source), html.EscapeString(header)))

	message := err.Error()
	if pe != nil {
		if pe.FilePath != "" {
			location := pe.FilePath
			if pe.Line > 0 {
				location += fmt.Sprintf(":%d", pe.Line)
				if pe.Column > 0 {
					location += fmt.Sprintf(":%d", pe.Column)
				}
			}
			builder.WriteString(fmt.Sprintf(`<div class="error-location">%s</div>`, html.EscapeString(location)))
		}
		message = pe.Message
		if pe.Cause != nil {
			message += ": " + pe.Cause.Error()
		}
	}
	builder.WriteString(fmt.Sprintf(`<div class="error-message">%s</div>`, html.EscapeString(message)))
	builder.WriteString(`<div class="error-hint">The page is shown unrendered. Fix the error and save to reload.</div>`)
	builder.WriteString("</div>\n</div>")

	return builder.String()
}

func overlayHeader(t ErrorType) string {
	switch t {
	case ErrorTypeMissingTemplate:
		return "Missing template"
	case ErrorTypeDataParse:
		return "Invalid data file"
	case ErrorTypeConfig:
		return "Configuration error"
	case ErrorTypeRenameIO:
		return "Build rename error"
	default:
		return "Render error"
	}
}
