package middleware

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Input validation and sanitization for scan requests

// knownPlugins are the analyzer plugins tavo-scanner ships with.
var knownPlugins = map[string]bool{
	"llm-security":     true,
	"prompt-injection": true,
	"secrets":          true,
	"injection":        true,
	"dependency":       true,
	"sast":             true,
}

// ValidatePlugin checks a plugin name. Unknown names are rejected before
// they reach the child argv.
func ValidatePlugin(plugin string) error {
	if plugin == "" {
		return fmt.Errorf("plugin name cannot be empty")
	}
	if !knownPlugins[strings.ToLower(plugin)] {
		return fmt.Errorf("unknown plugin: %s", plugin)
	}
	return nil
}

// ValidateOutputFormat checks the requested scanner output format.
func ValidateOutputFormat(format string) error {
	if format == "" {
		return nil // defaulted downstream
	}
	switch strings.ToLower(format) {
	case "json", "sarif", "text":
		return nil
	}
	return fmt.Errorf("invalid output format: %s (allowed: json, sarif, text)", format)
}

// ValidateBundleID validates rule bundle identifiers (used as object keys
// and cache file names, so no separators allowed).
func ValidateBundleID(bundleID string) error {
	if bundleID == "" {
		return fmt.Errorf("bundle ID cannot be empty")
	}
	pattern := `^[a-zA-Z0-9._-]{1,128}$`
	matched, _ := regexp.MatchString(pattern, bundleID)
	if !matched {
		return fmt.Errorf("invalid bundle ID format (alphanumeric, dot, dash, underscore only, max 128 chars)")
	}
	if strings.Contains(bundleID, "..") {
		return fmt.Errorf("invalid bundle ID format")
	}
	return nil
}

// ValidateTimeout bounds a per-scan timeout in seconds.
func ValidateTimeout(seconds int) error {
	if seconds < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if seconds > 3600 {
		return fmt.Errorf("timeout too large (max 3600 seconds)")
	}
	return nil
}

// ValidatePath validates scan target paths (for security)
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	cleaned := filepath.Clean(path)

	// Block path traversal attempts
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("path traversal detected")
	}

	// Block absolute paths to sensitive directories
	blocked := []string{"/etc", "/proc", "/sys", "/dev", "/root", "/boot"}
	for _, b := range blocked {
		if cleaned == b || strings.HasPrefix(cleaned, b+"/") {
			return fmt.Errorf("access to %s is not allowed", b)
		}
	}

	// Block shell metacharacters
	dangerous := []string{"$(", "`", "&", "|", ";", "\n", "\r"}
	for _, d := range dangerous {
		if strings.Contains(path, d) {
			return fmt.Errorf("invalid characters in path")
		}
	}

	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateScanID validates scan ID format: scan-<uuid>
func ValidateScanID(scanID string) error {
	if scanID == "" {
		return fmt.Errorf("scan ID cannot be empty")
	}

	pattern := `^scan-[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`
	matched, _ := regexp.MatchString(pattern, scanID)
	if !matched {
		return fmt.Errorf("invalid scan ID format")
	}

	return nil
}
