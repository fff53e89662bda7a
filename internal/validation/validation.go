// Package validation checks request input of the dev server: request paths,
// CORS origins and the URL handed to the system browser.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ValidateURL validates URLs for browser auto-open. The URL ends up on a
// command line, so shell metacharacters are rejected.
func ValidateURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http/https allowed)", parsed.Scheme)
	}

	dangerous := []string{";", "&", "|", "`", "$", "(", ")", "<", ">", "\"", "'", "\\", "\n", "\r", " "}
	for _, char := range dangerous {
		if strings.Contains(rawURL, char) {
			return fmt.Errorf("URL contains dangerous character: %q", char)
		}
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a valid hostname")
	}
	return nil
}

// ValidateOrigin accepts origins listed in allowedOrigins, loopback origins
// and origins on host.
func ValidateOrigin(origin string, allowedOrigins []string, host string) error {
	if origin == "" {
		return fmt.Errorf("origin header is required")
	}
	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return nil
		}
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin format: %w", err)
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return fmt.Errorf("invalid origin scheme '%s': only http and https are allowed", originURL.Scheme)
	}

	hostname := originURL.Hostname()
	if hostname == "localhost" || (host != "" && hostname == host) {
		return nil
	}
	if ip := net.ParseIP(hostname); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("origin '%s' is not in allowed origins list", origin)
}

// ContainedPath maps a slash-separated request path onto root. It fails
// when the cleaned path would leave root.
func ContainedPath(root, requestPath string) (string, error) {
	if strings.ContainsRune(requestPath, 0) {
		return "", fmt.Errorf("path contains NUL byte")
	}
	if strings.Contains(requestPath, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", requestPath)
	}

	clean := path.Clean("/" + requestPath)
	full := filepath.Join(root, filepath.FromSlash(clean))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes root: %s", requestPath)
	}
	return full, nil
}
