package scans

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tavoai/scanner-orchestrator/internal/application"
	ai "github.com/tavoai/scanner-orchestrator/internal/domain/ai"
	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
	"github.com/tavoai/scanner-orchestrator/internal/infra/usage"
)

type fakeRunner struct {
	outcome  *domain.Outcome
	err      error
	lastOpts *domain.Options
	target   string
}

func (f *fakeRunner) Scan(_ context.Context, target string, opts *domain.Options) (*domain.Outcome, error) {
	f.target = target
	f.lastOpts = opts
	return f.outcome, f.err
}

type fakeResolver struct {
	path string
	err  error
	last string
}

func (f *fakeResolver) Resolve(_ context.Context, bundleID string) (string, error) {
	f.last = bundleID
	return f.path, f.err
}

type fakeAdvisor struct {
	analysis ai.Analysis
	err      error
	calls    int
}

func (f *fakeAdvisor) AnalyzeReport(_ context.Context, _ string) (ai.Analysis, error) {
	f.calls++
	return f.analysis, f.err
}

type fakeUsage struct {
	block   bool
	records []usage.Record
}

func (f *fakeUsage) Record(rec usage.Record) error { f.records = append(f.records, rec); return nil }
func (f *fakeUsage) ShouldBlock() bool             { return f.block }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func structuredOutcome() *domain.Outcome {
	out := domain.StructuredSuccess(&domain.Report{
		Vulnerabilities: []domain.Finding{{RuleID: "r1", Severity: "high"}},
	})
	out.DurationMS = 42
	return out
}

func newService(r *fakeRunner) *Service {
	return &Service{Runner: r, Clock: application.SystemClock{}}
}

func TestTriggerScanSuccess(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	svc := newService(runner)

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: "/src/app"})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if runner.target != "/src/app" {
		t.Errorf("target = %q", runner.target)
	}
	if res.Status != string(domain.StatusSuccess) {
		t.Errorf("status = %q", res.Status)
	}
	if res.Counts.High != 1 || res.Counts.Total != 1 {
		t.Errorf("counts = %+v", res.Counts)
	}
	if !strings.HasPrefix(res.ID, "scan-") {
		t.Errorf("id = %q", res.ID)
	}
	if res.DurationMS != 42 {
		t.Errorf("duration = %d", res.DurationMS)
	}
}

func TestTriggerScanFailedOutcomeIsNotAnError(t *testing.T) {
	runner := &fakeRunner{outcome: domain.Failure("tavo-scanner timed out after 300 seconds")}
	svc := newService(runner)

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: "."})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if res.Status != string(domain.StatusFailed) {
		t.Errorf("status = %q", res.Status)
	}
	if res.Message == "" {
		t.Error("failure message missing")
	}
}

func TestTriggerScanResolvesBundle(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	resolver := &fakeResolver{path: "/cache/llm-top10-1.0.0.json"}
	svc := newService(runner)
	svc.Bundles = resolver

	_, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: ".", Bundle: "llm-top10"})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if resolver.last != "llm-top10" {
		t.Errorf("resolved bundle = %q", resolver.last)
	}
	if runner.lastOpts.RulesPath != "/cache/llm-top10-1.0.0.json" {
		t.Errorf("rules path = %q", runner.lastOpts.RulesPath)
	}
}

func TestTriggerScanExplicitRulesPathWinsOverBundle(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	resolver := &fakeResolver{path: "/cache/x.json"}
	svc := newService(runner)
	svc.Bundles = resolver

	_, err := svc.TriggerScan(context.Background(), TriggerScanCommand{
		Target:    ".",
		Bundle:    "llm-top10",
		RulesPath: "/my/rules.json",
	})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if resolver.last != "" {
		t.Error("bundle resolved despite explicit rules path")
	}
	if runner.lastOpts.RulesPath != "/my/rules.json" {
		t.Errorf("rules path = %q", runner.lastOpts.RulesPath)
	}
}

func TestTriggerScanBundleResolutionFailureIsFailedResult(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	svc := newService(runner)
	svc.Bundles = &fakeResolver{err: errors.New("bundle \"x\" not found")}

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: ".", Bundle: "x"})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if res.Status != string(domain.StatusFailed) {
		t.Errorf("status = %q", res.Status)
	}
	if !strings.Contains(res.Message, "resolve bundle") {
		t.Errorf("message = %q", res.Message)
	}
	if runner.target != "" {
		t.Error("runner invoked despite resolution failure")
	}
}

func TestTriggerScanWithAnalysis(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	advisor := &fakeAdvisor{analysis: ai.Analysis{Result: `{"advice":"fix it"}`, Model: "o3", TokensUsed: 321}}
	tracker := &fakeUsage{}
	svc := newService(runner)
	svc.Advisor = advisor
	svc.Usage = tracker

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: ".", Analyze: true})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if res.Analysis == nil || res.Analysis.Result != `{"advice":"fix it"}` {
		t.Fatalf("analysis = %+v", res.Analysis)
	}
	if advisor.calls != 1 {
		t.Errorf("advisor calls = %d", advisor.calls)
	}
	if len(tracker.records) != 1 {
		t.Fatalf("usage records = %d", len(tracker.records))
	}
	rec := tracker.records[0]
	if rec.TokensUsed != 321 || rec.Operation != "ai_analysis" || rec.ScanID != res.ID {
		t.Errorf("record = %+v", rec)
	}
}

func TestTriggerScanAnalysisBlockedByBudget(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	advisor := &fakeAdvisor{analysis: ai.Analysis{Result: "{}"}}
	svc := newService(runner)
	svc.Advisor = advisor
	svc.Usage = &fakeUsage{block: true}

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: ".", Analyze: true})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if res.Analysis != nil {
		t.Error("analysis ran despite blocked budget")
	}
	if advisor.calls != 0 {
		t.Errorf("advisor calls = %d", advisor.calls)
	}
	if !strings.Contains(res.Message, "analysis unavailable") {
		t.Errorf("message = %q", res.Message)
	}
	if res.Status != string(domain.StatusSuccess) {
		t.Errorf("scan result downgraded: %q", res.Status)
	}
}

func TestTriggerScanNoAnalysisForRawOutput(t *testing.T) {
	runner := &fakeRunner{outcome: domain.RawSuccess("plain output")}
	advisor := &fakeAdvisor{}
	svc := newService(runner)
	svc.Advisor = advisor

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: ".", Analyze: true})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if advisor.calls != 0 {
		t.Error("advisor called for raw output")
	}
	if res.RawOutput != "plain output" {
		t.Errorf("raw output = %q", res.RawOutput)
	}
}

func TestTriggerScanExcludePatternSkipsScan(t *testing.T) {
	runner := &fakeRunner{outcome: structuredOutcome()}
	svc := newService(runner)

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{
		Target:          "/src/vendor",
		ExcludePatterns: []string{"vendor"},
	})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if runner.target != "" {
		t.Error("scanner spawned for excluded target")
	}
	if res.Status != string(domain.StatusSuccess) || res.Report == nil || !res.Report.Passed {
		t.Errorf("result = %+v", res)
	}
	if !strings.Contains(res.Message, "excluded") {
		t.Errorf("message = %q", res.Message)
	}
}

func TestTargetFiltered(t *testing.T) {
	tests := []struct {
		name    string
		target  string
		include []string
		exclude []string
		want    bool
	}{
		{"no patterns", "/src/app", nil, nil, false},
		{"exclude base match", "/src/node_modules", nil, []string{"node_modules"}, true},
		{"exclude glob", "/src/main_test.go", nil, []string{"*_test.go"}, true},
		{"exclude miss", "/src/app", nil, []string{"vendor"}, false},
		{"include match", "/src/app.py", []string{"*.py"}, nil, false},
		{"include miss", "/src/app.go", []string{"*.py"}, nil, true},
		{"exclude wins over include", "/src/gen.py", []string{"*.py"}, []string{"gen.py"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := targetFiltered(tt.target, tt.include, tt.exclude); got != tt.want {
				t.Errorf("targetFiltered = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTriggerScanUsesFixedClock(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	runner := &fakeRunner{outcome: structuredOutcome()}
	svc := &Service{Runner: runner, Clock: fixedClock{t: at}}

	res, err := svc.TriggerScan(context.Background(), TriggerScanCommand{Target: "."})
	if err != nil {
		t.Fatalf("TriggerScan: %v", err)
	}
	if !res.TriggeredAt.Equal(at) {
		t.Errorf("triggered at = %s", res.TriggeredAt)
	}
}

func TestAnalyzeBudgetExceeded(t *testing.T) {
	svc := &Service{
		Runner:  &fakeRunner{},
		Advisor: &fakeAdvisor{},
		Usage:   &fakeUsage{block: true},
		Clock:   application.SystemClock{},
	}

	_, err := svc.Analyze(context.Background(), "{}")
	if !errors.Is(err, ai.ErrBudgetExceeded) {
		t.Fatalf("err = %v, want ErrBudgetExceeded", err)
	}
}

func TestAnalyzeRecordsUsage(t *testing.T) {
	tracker := &fakeUsage{}
	svc := &Service{
		Runner:  &fakeRunner{},
		Advisor: &fakeAdvisor{analysis: ai.Analysis{Result: "{}", TokensUsed: 10}},
		Usage:   tracker,
		Clock:   application.SystemClock{},
	}

	if _, err := svc.Analyze(context.Background(), "{}"); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(tracker.records) != 1 {
		t.Errorf("records = %d", len(tracker.records))
	}
}

func TestAnalyzeWithoutAdvisor(t *testing.T) {
	svc := newService(&fakeRunner{})
	if _, err := svc.Analyze(context.Background(), "{}"); err == nil {
		t.Fatal("want error without advisor")
	}
}
