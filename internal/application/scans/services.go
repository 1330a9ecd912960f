package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	application "github.com/tavoai/scanner-orchestrator/internal/application"
	ai "github.com/tavoai/scanner-orchestrator/internal/domain/ai"
	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
	"github.com/tavoai/scanner-orchestrator/internal/infra/usage"
)

// UsageTracker gates AI analysis behind the monthly token budget.
// Satisfied by *usage.Tracker.
type UsageTracker interface {
	Record(rec usage.Record) error
	ShouldBlock() bool
}

// Service implements the scan use-cases. It is safe for concurrent use:
// the runner, resolver, and tracker all carry their own synchronization.
type Service struct {
	Runner  domain.Runner
	Bundles domain.BundleResolver // optional
	Advisor ai.Client             // optional
	Usage   UsageTracker          // optional
	Clock   application.Clock
}

// TriggerScanCommand carries everything one scan needs.
type TriggerScanCommand struct {
	Target          string
	Plugins         []string
	RulesPath       string
	Bundle          string
	TimeoutSeconds  int
	OutputFormat    string
	OutputFile      string
	IncludePatterns []string
	ExcludePatterns []string
	Analyze         bool
}

type TriggerScanResult struct {
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	Counts      domain.SeverityCounts `json:"counts"`
	Report      *domain.Report        `json:"report,omitempty"`
	RawOutput   string                `json:"raw_output,omitempty"`
	Message     string                `json:"message,omitempty"`
	ExitCode    int                   `json:"exit_code"`
	DurationMS  int64                 `json:"duration_ms"`
	TriggeredAt time.Time             `json:"triggered_at"`
	Analysis    *ai.Analysis          `json:"analysis,omitempty"`
}

// TriggerScanUntilDone runs the scan with context.Background(), meant for
// goroutines detached from the request so they don't die with it.
func (s *Service) TriggerScanUntilDone(cmd TriggerScanCommand) (TriggerScanResult, error) {
	return s.TriggerScan(context.Background(), cmd)
}

// TriggerScan resolves the rule bundle, runs tavo-scanner once, and
// optionally runs AI analysis over the structured report. Scan failures
// (timeout, spawn error, non-zero exit) come back as a failed result, not
// an error; the error return is for unrecoverable conditions only.
func (s *Service) TriggerScan(ctx context.Context, cmd TriggerScanCommand) (TriggerScanResult, error) {
	now := s.Clock.Now()
	id := fmt.Sprintf("scan-%s", uuid.NewString())

	if targetFiltered(cmd.Target, cmd.IncludePatterns, cmd.ExcludePatterns) {
		return TriggerScanResult{
			ID:          id,
			Status:      string(domain.StatusSuccess),
			Report:      &domain.Report{Passed: true},
			Message:     "target excluded by patterns, scan skipped",
			TriggeredAt: now,
		}, nil
	}

	opts := &domain.Options{
		Plugins:         cmd.Plugins,
		RulesPath:       cmd.RulesPath,
		RulesBundle:     cmd.Bundle,
		TimeoutSeconds:  cmd.TimeoutSeconds,
		OutputFormat:    cmd.OutputFormat,
		OutputFile:      cmd.OutputFile,
		IncludePatterns: cmd.IncludePatterns,
		ExcludePatterns: cmd.ExcludePatterns,
	}

	// A bundle reference only matters when no explicit rules path wins over it.
	if cmd.Bundle != "" && cmd.RulesPath == "" {
		if s.Bundles == nil {
			return TriggerScanResult{ID: id, Status: string(domain.StatusFailed)},
				fmt.Errorf("bundle %q requested but no bundle resolver is configured", cmd.Bundle)
		}
		path, err := s.Bundles.Resolve(ctx, cmd.Bundle)
		if err != nil {
			return TriggerScanResult{
				ID:          id,
				Status:      string(domain.StatusFailed),
				Message:     fmt.Sprintf("resolve bundle %q: %v", cmd.Bundle, err),
				TriggeredAt: now,
			}, nil
		}
		opts.RulesPath = path
	}

	outcome, err := s.Runner.Scan(ctx, cmd.Target, opts)
	if err != nil {
		return TriggerScanResult{ID: id, Status: string(domain.StatusFailed), TriggeredAt: now}, err
	}

	res := TriggerScanResult{
		ID:          id,
		Status:      string(outcome.Status),
		Report:      outcome.Report,
		RawOutput:   outcome.RawOutput,
		Message:     outcome.Message,
		ExitCode:    outcome.ExitCode,
		DurationMS:  outcome.DurationMS,
		TriggeredAt: now,
	}
	if outcome.Structured() {
		res.Counts = outcome.Report.Counts()
	}

	if cmd.Analyze && outcome.Structured() {
		analysis, aerr := s.analyzeReport(ctx, outcome.Report, cmd.Bundle, id)
		if aerr != nil {
			// Analysis is best-effort; the scan result stands on its own.
			res.Message = fmt.Sprintf("analysis unavailable: %v", aerr)
		} else {
			res.Analysis = &analysis
		}
	}

	return res, nil
}

// Analyze runs AI analysis over a raw report document, enforcing the
// monthly budget.
func (s *Service) Analyze(ctx context.Context, reportJSON string) (ai.Analysis, error) {
	if s.Advisor == nil {
		return ai.Analysis{}, fmt.Errorf("no AI advisor configured")
	}
	if s.Usage != nil && s.Usage.ShouldBlock() {
		return ai.Analysis{}, fmt.Errorf("%w: monthly token budget reached", ai.ErrBudgetExceeded)
	}

	analysis, err := s.Advisor.AnalyzeReport(ctx, reportJSON)
	if err != nil {
		return ai.Analysis{}, err
	}
	s.recordUsage(analysis, "", "")
	return analysis, nil
}

func (s *Service) analyzeReport(ctx context.Context, report *domain.Report, bundleID, scanID string) (ai.Analysis, error) {
	if s.Advisor == nil {
		return ai.Analysis{}, fmt.Errorf("no AI advisor configured")
	}
	if s.Usage != nil && s.Usage.ShouldBlock() {
		return ai.Analysis{}, fmt.Errorf("%w: monthly token budget reached", ai.ErrBudgetExceeded)
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return ai.Analysis{}, fmt.Errorf("encode report: %w", err)
	}

	analysis, err := s.Advisor.AnalyzeReport(ctx, string(reportJSON))
	if err != nil {
		return ai.Analysis{}, err
	}
	s.recordUsage(analysis, bundleID, scanID)
	return analysis, nil
}

// targetFiltered applies the caller's include/exclude globs to the target
// path before any child process is spawned. Patterns match the full path or
// its base name. The child argv never carries these patterns.
func targetFiltered(target string, include, exclude []string) bool {
	match := func(pattern string) bool {
		if ok, _ := filepath.Match(pattern, target); ok {
			return true
		}
		ok, _ := filepath.Match(pattern, filepath.Base(target))
		return ok
	}

	for _, p := range exclude {
		if match(p) {
			return true
		}
	}
	if len(include) == 0 {
		return false
	}
	for _, p := range include {
		if match(p) {
			return false
		}
	}
	return true
}

func (s *Service) recordUsage(analysis ai.Analysis, bundleID, scanID string) {
	if s.Usage == nil || analysis.TokensUsed == 0 {
		return
	}
	_ = s.Usage.Record(usage.Record{
		Timestamp:  s.Clock.Now().Unix(),
		Operation:  "ai_analysis",
		TokensUsed: analysis.TokensUsed,
		Model:      analysis.Model,
		BundleID:   bundleID,
		ScanID:     scanID,
	})
}
