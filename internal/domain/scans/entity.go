package scans

import "strings"

// ScanID identifier type
type ScanID string

// Status enum
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// SeverityCounts value object
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add increments the counter matching a severity label. Unknown labels
// (and "info") still count toward Total.
func (c *SeverityCounts) Add(severity string) {
	switch strings.ToLower(severity) {
	case "critical":
		c.Critical++
	case "high":
		c.High++
	case "medium":
		c.Medium++
	case "low", "info", "informational":
		c.Low++
	}
	c.Total++
}

// Finding is a single result row reported by tavo-scanner.
type Finding struct {
	CheckID  string `json:"check_id,omitempty"`
	RuleID   string `json:"rule_id,omitempty"`
	Severity string `json:"severity,omitempty"`
	Message  string `json:"message,omitempty"`
	Path     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
	Category string `json:"category,omitempty"`
}

// Report is the structured document tavo-scanner writes to stdout when the
// scan completes.
type Report struct {
	Vulnerabilities []Finding `json:"vulnerabilities"`
	Passed          bool      `json:"passed"`
	ScanTime        float64   `json:"scan_time,omitempty"`
	Bundle          string    `json:"bundle,omitempty"`
	RulesUsed       int       `json:"rules_used,omitempty"`
}

// Counts tallies findings by severity.
func (r *Report) Counts() SeverityCounts {
	var c SeverityCounts
	for _, f := range r.Vulnerabilities {
		c.Add(f.Severity)
	}
	return c
}

// Outcome is the result of one scanner invocation. Exactly one of the three
// shapes holds:
//   - Status == StatusSuccess with Report != nil (structured output)
//   - Status == StatusSuccess with RawOutput set (output was not decodable)
//   - Status == StatusFailed with Message set (spawn error, timeout, or
//     non-zero exit)
//
// Use the constructors below; they keep the variants mutually exclusive.
type Outcome struct {
	Status     Status  `json:"status"`
	Report     *Report `json:"report,omitempty"`
	RawOutput  string  `json:"raw_output,omitempty"`
	Message    string  `json:"message,omitempty"`
	ExitCode   int     `json:"exit_code"`
	DurationMS int64   `json:"duration_ms"`
}

// StructuredSuccess builds a success outcome carrying a decoded report.
func StructuredSuccess(r *Report) *Outcome {
	if r == nil {
		r = &Report{Passed: true}
	}
	return &Outcome{Status: StatusSuccess, Report: r}
}

// RawSuccess builds a success outcome for output that did not decode.
func RawSuccess(output string) *Outcome {
	return &Outcome{Status: StatusSuccess, RawOutput: output}
}

// Failure builds a failed outcome with a diagnostic message.
func Failure(message string) *Outcome {
	return &Outcome{Status: StatusFailed, Message: message}
}

// Ok reports whether the scan itself succeeded.
func (o *Outcome) Ok() bool { return o.Status == StatusSuccess }

// Structured reports whether a decoded report is available.
func (o *Outcome) Structured() bool { return o.Report != nil }
