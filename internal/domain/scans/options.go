package scans

// Options are per-call overrides applied on top of the orchestrator's base
// configuration. A field that is non-empty replaces the corresponding base
// field for that call only; the base configuration is never mutated.
type Options struct {
	Plugins         []string
	RulesPath       string
	RulesBundle     string // bundle id resolved through the bundle store
	TimeoutSeconds  int
	OutputFormat    string
	OutputFile      string
	IncludePatterns []string
	ExcludePatterns []string
}
