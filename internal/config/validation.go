package config

import (
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/pagesmith/internal/logging"
	"github.com/conneroisu/pagesmith/internal/plugins"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  - %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("      hint: %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs comprehensive validation with detailed feedback
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{}

	if _, err := ParseReload(config.Reload); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "reload",
			Value:   config.Reload,
			Message: err.Error(),
			Suggestions: []string{
				"Use true or false",
				`Use a list of globs, e.g. ["**/*.html", "data/**"]`,
			},
		})
	}

	validateFormats(config.Formats, result)
	validateGlobs("data", config.Data, result)
	validateGlobs("ignored_paths", config.IgnoredPaths, result)
	validateGlobs("build.input", config.Build.Input, result)
	validatePlugins(config, result)
	validateServerConfigDetails(&config.Server, result)
	validateBuildConfigDetails(&config.Build, result)

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.level",
			Value:       config.Log.Level,
			Message:     err.Error(),
			Suggestions: []string{"Use one of: debug, info, warn, error, fatal"},
		})
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "log.format",
			Value:       config.Log.Format,
			Message:     "unknown log format",
			Suggestions: []string{"Use 'text' or 'json'"},
		})
	}

	result.Valid = !result.HasErrors()

	return result
}

// validateConfig validates configuration values for correctness
func validateConfig(config *Config) error {
	result := ValidateConfigWithDetails(config)
	if result.HasErrors() {
		first := result.Errors[0]
		return &first
	}
	return nil
}

func validateFormats(formats []string, result *ValidationResult) {
	for _, format := range formats {
		ext := NormalizeFormat(format)
		if ext == "." || strings.ContainsAny(ext[1:], `./\`) {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "formats",
				Value:       format,
				Message:     fmt.Sprintf("format %q is not a single file extension", format),
				Suggestions: []string{`Use extensions like ".html" or ".njk"`},
			})
		}
	}
}

func validateGlobs(field string, patterns []string, result *ValidationResult) {
	for _, pattern := range patterns {
		if pattern == "" || !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob pattern %q", pattern),
				Suggestions: []string{
					"Use ** to match any number of directories",
					"Check for unbalanced [ or { characters",
				},
			})
		}
	}
}

func validatePlugins(config *Config, result *ValidationResult) {
	filters, extensions := plugins.BuiltinNames()

	for alias, name := range config.Filters {
		if _, err := plugins.BuiltinFilter(name); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "filters." + alias,
				Value:       name,
				Message:     err.Error(),
				Suggestions: []string{"Available filters: " + strings.Join(filters, ", ")},
			})
		}
	}

	for _, name := range config.Extensions {
		if _, err := plugins.BuiltinExtension(name); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       "extensions",
				Value:       name,
				Message:     err.Error(),
				Suggestions: []string{"Available extensions: " + strings.Join(extensions, ", ")},
			})
		}
	}
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	// Validate port
	if config.Port < 0 || config.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Value:   config.Port,
			Message: fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			Suggestions: []string{
				"Use a port between 1024-65535 for non-privileged access",
				"Port 0 allows system to assign an available port",
			},
		})
	} else if config.Port > 0 && config.Port < 1024 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "server.port",
			Value:       config.Port,
			Message:     "port below 1024 requires elevated privileges",
			Suggestions: []string{"Consider using a port above 1024 for development"},
		})
	}

	// Validate host
	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.host",
				Value:   config.Host,
				Message: err.Error(),
				Suggestions: []string{
					"Use 'localhost' for local development",
					"Use '0.0.0.0' to bind to all interfaces",
				},
			})
		}
	}
}

func validateBuildConfigDetails(config *BuildConfig, result *ValidationResult) {
	if err := validatePath(config.OutDir); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "build.out_dir",
			Value:       config.OutDir,
			Message:     err.Error(),
			Suggestions: []string{"Use a relative directory inside the project, e.g. 'dist'"},
		})
	}

	if config.Workers > 64 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:   "build.workers",
			Value:   config.Workers,
			Message: "unusually high worker count",
		})
	}
}

// Helper validation functions

func validateHostname(host string) error {
	// Check for dangerous characters
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}

// validatePath validates an output path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}
	if cleanPath == "." || cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path must name a directory inside the project: %s", path)
	}

	return nil
}

// NormalizeFormat lowercases format and ensures a leading dot.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if !strings.HasPrefix(format, ".") {
		format = "." + format
	}
	return format
}
