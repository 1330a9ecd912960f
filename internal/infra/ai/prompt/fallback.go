package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	ai "github.com/tavoai/scanner-orchestrator/internal/domain/ai"
	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
)

// Advisor is the offline analyst used when no AI provider is configured.
// It derives the same JSON schema from the report without a model call.
type Advisor struct{}

var _ ai.Client = Advisor{}

func (Advisor) AnalyzeReport(_ context.Context, reportJSON string) (ai.Analysis, error) {
	return ai.Analysis{Result: AnalyzeReportContent(reportJSON)}, nil
}

// AnalyzeReportContent summarizes a scan report into a JSON string matching
// the advisor schema. It never prints; it only returns the JSON string.
func AnalyzeReportContent(reportJSON string) string {
	type finding struct {
		Title          string `json:"title"`
		Severity       string `json:"severity"`
		Summary        string `json:"summary"`
		Recommendation string `json:"recommendation"`
	}
	type output struct {
		Counts   domain.SeverityCounts `json:"counts"`
		Findings []finding             `json:"findings"`
		Advice   string                `json:"advice"`
	}

	trim := func(s string, n int) string {
		if len(s) <= n {
			return s
		}
		return s[:n] + "..."
	}

	var report domain.Report
	out := output{Findings: []finding{}}
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		out.Advice = "Report was not structured; re-run the scan with --format json for a detailed analysis."
		data, _ := json.Marshal(out)
		return string(data)
	}

	out.Counts = report.Counts()
	for _, v := range report.Vulnerabilities {
		title := v.RuleID
		if title == "" {
			title = v.CheckID
		}
		if title == "" {
			title = "Unnamed finding"
		}

		where := v.Path
		if where != "" && v.Line > 0 {
			where = fmt.Sprintf("%s:%d", where, v.Line)
		}
		summary := trim(v.Message, 200)
		if where != "" {
			summary = where + ": " + summary
		}

		out.Findings = append(out.Findings, finding{
			Title:          title,
			Severity:       strings.ToLower(v.Severity),
			Summary:        summary,
			Recommendation: recommendationFor(v),
		})
		if len(out.Findings) >= 20 {
			break
		}
	}

	switch {
	case out.Counts.Critical > 0:
		out.Advice = "Immediate action required: address critical findings first, then re-run the scan to confirm the fixes."
	case out.Counts.High+out.Counts.Medium > 0:
		out.Advice = "Schedule fixes for the high and medium findings and add the failing rules to CI to prevent regressions."
	case out.Counts.Total > 0:
		out.Advice = "Only low-severity findings present; review them during routine maintenance."
	default:
		out.Advice = "No findings reported. Keep the rule bundles current and scan on every merge."
	}

	data, err := json.Marshal(out)
	if err != nil {
		fb := output{Advice: "Analysis error; re-run the scan and try again.", Findings: []finding{}}
		data, _ = json.Marshal(fb)
	}
	return string(data)
}

func recommendationFor(f domain.Finding) string {
	switch strings.ToLower(f.Category) {
	case "secrets":
		return "Rotate the exposed credential and move it to a secret manager."
	case "injection":
		return "Validate and parameterize all externally controlled input."
	default:
		return "Review the flagged code and consult the rule documentation."
	}
}
