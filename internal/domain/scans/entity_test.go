package scans

import "testing"

func TestSeverityCountsAdd(t *testing.T) {
	var c SeverityCounts
	for _, s := range []string{"CRITICAL", "high", "Medium", "low", "info", "informational", "bizarre"} {
		c.Add(s)
	}
	if c.Critical != 1 || c.High != 1 || c.Medium != 1 {
		t.Errorf("counts = %+v", c)
	}
	if c.Low != 3 {
		t.Errorf("low = %d, want 3 (low + info + informational)", c.Low)
	}
	if c.Total != 7 {
		t.Errorf("total = %d, want 7", c.Total)
	}
}

func TestReportCounts(t *testing.T) {
	r := Report{Vulnerabilities: []Finding{
		{Severity: "high"},
		{Severity: "high"},
		{Severity: "low"},
	}}
	c := r.Counts()
	if c.High != 2 || c.Low != 1 || c.Total != 3 {
		t.Errorf("counts = %+v", c)
	}
}

func TestOutcomeConstructors(t *testing.T) {
	s := StructuredSuccess(&Report{Passed: true})
	if !s.Ok() || !s.Structured() {
		t.Errorf("structured = %+v", s)
	}

	nilReport := StructuredSuccess(nil)
	if nilReport.Report == nil || !nilReport.Report.Passed {
		t.Errorf("nil report not normalized: %+v", nilReport)
	}

	raw := RawSuccess("text")
	if !raw.Ok() || raw.Structured() || raw.RawOutput != "text" {
		t.Errorf("raw = %+v", raw)
	}

	f := Failure("boom")
	if f.Ok() || f.Structured() || f.Message != "boom" {
		t.Errorf("failure = %+v", f)
	}
}
