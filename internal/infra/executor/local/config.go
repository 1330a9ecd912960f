package local

import (
	"os"
	"os/exec"
	"path/filepath"

	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
)

const (
	// DefaultTimeoutSeconds is the wall-clock budget for one scan.
	DefaultTimeoutSeconds = 300

	// DefaultOutputFormat is the structured format requested from the child.
	DefaultOutputFormat = "json"

	scannerBinary = "tavo-scanner"
)

// Config is the orchestrator's base configuration. All fields are optional;
// New fills in documented defaults. The value is read-only after
// construction, so one Orchestrator can serve concurrent calls.
type Config struct {
	// ScannerPath locates the tavo-scanner executable. When empty it is
	// resolved once at construction: first a sibling tavo-cli install next
	// to this process, then the search path.
	ScannerPath string

	Plugins      []string
	PluginConfig map[string]any

	// RulesPath points at a rules definition file. CustomRules is an inline
	// payload; when set without RulesPath it is materialized to a temporary
	// file for the duration of a single call.
	RulesPath   string
	CustomRules map[string]any

	TimeoutSeconds   int
	WorkingDirectory string

	OutputFormat string
	OutputFile   string
}

func (c Config) withDefaults() Config {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultOutputFormat
	}
	return c
}

// merged applies non-empty per-call overrides onto a copy of the base.
// The field list is fixed on purpose so precedence stays enumerable.
func (c Config) merged(opts *domain.Options) Config {
	out := c
	out.Plugins = append([]string(nil), c.Plugins...)
	if opts == nil {
		return out
	}
	if len(opts.Plugins) > 0 {
		out.Plugins = append([]string(nil), opts.Plugins...)
	}
	if opts.RulesPath != "" {
		out.RulesPath = opts.RulesPath
	}
	if opts.TimeoutSeconds > 0 {
		out.TimeoutSeconds = opts.TimeoutSeconds
	}
	if opts.OutputFormat != "" {
		out.OutputFormat = opts.OutputFormat
	}
	if opts.OutputFile != "" {
		out.OutputFile = opts.OutputFile
	}
	return out
}

// resolveScannerPath finds the tavo-scanner binary. Returning "" is not an
// error here; the miss surfaces as a Failure outcome on first use.
func resolveScannerPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	// A tavo-cli install shipped next to this process.
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "..", "tavo-cli", "bin", scannerBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}

	if p, err := exec.LookPath(scannerBinary); err == nil {
		return p
	}
	return ""
}
