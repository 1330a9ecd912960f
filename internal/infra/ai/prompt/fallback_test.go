package prompt

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
)

func decodeAnalysis(t *testing.T, result string) (domain.SeverityCounts, []map[string]any, string) {
	t.Helper()
	var out struct {
		Counts   domain.SeverityCounts `json:"counts"`
		Findings []map[string]any      `json:"findings"`
		Advice   string                `json:"advice"`
	}
	if err := json.Unmarshal([]byte(result), &out); err != nil {
		t.Fatalf("result is not JSON: %v\n%s", err, result)
	}
	return out.Counts, out.Findings, out.Advice
}

func TestAnalyzeReportContent(t *testing.T) {
	report := domain.Report{
		Vulnerabilities: []domain.Finding{
			{RuleID: "llm-001", Severity: "critical", Message: "prompt injection sink", Path: "app.py", Line: 10, Category: "injection"},
			{CheckID: "sec-002", Severity: "low", Message: "hardcoded token", Category: "secrets"},
		},
	}
	data, _ := json.Marshal(report)

	counts, findings, advice := decodeAnalysis(t, AnalyzeReportContent(string(data)))

	if counts.Critical != 1 || counts.Low != 1 || counts.Total != 2 {
		t.Errorf("counts = %+v", counts)
	}
	if len(findings) != 2 {
		t.Fatalf("findings = %d", len(findings))
	}
	if findings[0]["title"] != "llm-001" {
		t.Errorf("title = %v", findings[0]["title"])
	}
	if s, _ := findings[0]["summary"].(string); !strings.Contains(s, "app.py:10") {
		t.Errorf("summary = %q", s)
	}
	if r, _ := findings[1]["recommendation"].(string); !strings.Contains(r, "secret manager") {
		t.Errorf("recommendation = %q", r)
	}
	if !strings.Contains(advice, "Immediate action") {
		t.Errorf("advice = %q", advice)
	}
}

func TestAnalyzeReportContentCleanReport(t *testing.T) {
	counts, findings, advice := decodeAnalysis(t, AnalyzeReportContent(`{"vulnerabilities":[],"passed":true}`))
	if counts.Total != 0 || len(findings) != 0 {
		t.Errorf("counts = %+v findings = %d", counts, len(findings))
	}
	if !strings.Contains(advice, "No findings") {
		t.Errorf("advice = %q", advice)
	}
}

func TestAnalyzeReportContentUnstructuredInput(t *testing.T) {
	_, findings, advice := decodeAnalysis(t, AnalyzeReportContent("not json at all"))
	if len(findings) != 0 {
		t.Errorf("findings = %d", len(findings))
	}
	if !strings.Contains(advice, "--format json") {
		t.Errorf("advice = %q", advice)
	}
}

func TestAnalyzeReportContentCapsFindings(t *testing.T) {
	report := domain.Report{}
	for i := 0; i < 50; i++ {
		report.Vulnerabilities = append(report.Vulnerabilities, domain.Finding{RuleID: "r", Severity: "medium"})
	}
	data, _ := json.Marshal(report)

	counts, findings, _ := decodeAnalysis(t, AnalyzeReportContent(string(data)))
	if len(findings) != 20 {
		t.Errorf("findings = %d, want 20", len(findings))
	}
	if counts.Total != 50 {
		t.Errorf("counts.Total = %d, want 50", counts.Total)
	}
}

func TestAdvisorImplementsClient(t *testing.T) {
	a, err := Advisor{}.AnalyzeReport(context.Background(), `{"vulnerabilities":[]}`)
	if err != nil {
		t.Fatalf("AnalyzeReport: %v", err)
	}
	if a.TokensUsed != 0 {
		t.Errorf("local advisor reported token usage: %d", a.TokensUsed)
	}
	if a.Result == "" {
		t.Error("empty result")
	}
}
