package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	usageFile  = "usage.json"
	budgetFile = "budget.json"

	retention   = 90 * 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// Record is one AI usage entry.
type Record struct {
	Timestamp  int64   `json:"timestamp"` // unix seconds
	Operation  string  `json:"operation"` // e.g. "ai_analysis"
	TokensUsed int     `json:"tokens_used"`
	CostUSD    float64 `json:"cost_usd"`
	Model      string  `json:"model,omitempty"`
	BundleID   string  `json:"bundle_id,omitempty"`
	ScanID     string  `json:"scan_id,omitempty"`
}

// BudgetLimits holds the monthly token budget and its alert thresholds.
type BudgetLimits struct {
	MonthlyLimitTokens   int `json:"monthly_limit_tokens"`
	WarningThresholdPct  int `json:"warning_threshold_pct"`
	CriticalThresholdPct int `json:"critical_threshold_pct"`
	BlockThresholdPct    int `json:"block_threshold_pct"`
}

// DefaultBudgetLimits: 100K tokens/month, warn 80%, critical 90%, block 95%.
func DefaultBudgetLimits() BudgetLimits {
	return BudgetLimits{
		MonthlyLimitTokens:   100_000,
		WarningThresholdPct:  80,
		CriticalThresholdPct: 90,
		BlockThresholdPct:    95,
	}
}

func (b BudgetLimits) warningLimit() int  { return b.MonthlyLimitTokens * b.WarningThresholdPct / 100 }
func (b BudgetLimits) criticalLimit() int { return b.MonthlyLimitTokens * b.CriticalThresholdPct / 100 }
func (b BudgetLimits) blockLimit() int    { return b.MonthlyLimitTokens * b.BlockThresholdPct / 100 }

// MonthUsage summarizes the trailing 30 days.
type MonthUsage struct {
	TotalTokens     int     `json:"total_tokens"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	RemainingTokens int     `json:"remaining_tokens"`
	UsagePercent    float64 `json:"usage_percent"`
	RecordCount     int     `json:"record_count"`
}

// Warning is one budget alert.
type Warning struct {
	Level   string `json:"level"` // warning | critical | block
	Message string `json:"message"`
}

// BudgetStatus is the tracker's verdict for the current month.
type BudgetStatus struct {
	Usage    MonthUsage `json:"current_usage"`
	Warnings []Warning  `json:"warnings"`
	Blocked  bool       `json:"blocked"`
}

// Tracker records AI token usage in a JSON file and enforces a monthly
// budget. Safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	dir     string
	limits  BudgetLimits
	records []Record
}

// NewTracker opens (or creates) the usage store under dir.
func NewTracker(dir string, limits *BudgetLimits) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create usage dir: %w", err)
	}

	t := &Tracker{dir: dir, limits: DefaultBudgetLimits()}
	if limits != nil {
		t.limits = *limits
	}
	t.loadBudget()
	t.loadHistory()
	return t, nil
}

// loadBudget prefers limits persisted on disk; first run writes the
// configured (or default) limits out.
func (t *Tracker) loadBudget() {
	path := filepath.Join(t.dir, budgetFile)
	data, err := os.ReadFile(path)
	if err != nil {
		_ = t.saveBudgetLocked()
		return
	}
	var limits BudgetLimits
	if err := json.Unmarshal(data, &limits); err != nil {
		return
	}
	t.limits = limits
}

func (t *Tracker) saveBudgetLocked() error {
	data, err := json.MarshalIndent(t.limits, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.dir, budgetFile), data, 0o600)
}

func (t *Tracker) loadHistory() {
	data, err := os.ReadFile(filepath.Join(t.dir, usageFile))
	if err != nil {
		return
	}
	var doc struct {
		Records []Record `json:"records"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return
	}
	t.records = doc.Records
}

func (t *Tracker) saveHistoryLocked() error {
	doc := struct {
		Records []Record `json:"records"`
	}{Records: t.records}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(t.dir, usageFile), data, 0o600)
}

// SetLimits replaces the budget limits and persists them.
func (t *Tracker) SetLimits(limits BudgetLimits) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.limits = limits
	return t.saveBudgetLocked()
}

// Limits returns the active budget limits.
func (t *Tracker) Limits() BudgetLimits {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.limits
}

// Record appends a usage entry, expires records past retention, and
// persists the history.
func (t *Tracker) Record(rec Record) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().Unix()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.records = append(t.records, rec)

	cutoff := time.Now().Add(-retention).Unix()
	kept := t.records[:0]
	for _, r := range t.records {
		if r.Timestamp > cutoff {
			kept = append(kept, r)
		}
	}
	t.records = kept

	return t.saveHistoryLocked()
}

func (t *Tracker) monthUsageLocked() MonthUsage {
	since := time.Now().Add(-monthWindow).Unix()

	var usage MonthUsage
	for _, r := range t.records {
		if r.Timestamp <= since {
			continue
		}
		usage.TotalTokens += r.TokensUsed
		usage.TotalCostUSD += r.CostUSD
		usage.RecordCount++
	}

	if remaining := t.limits.MonthlyLimitTokens - usage.TotalTokens; remaining > 0 {
		usage.RemainingTokens = remaining
	}
	if t.limits.MonthlyLimitTokens > 0 {
		usage.UsagePercent = float64(usage.TotalTokens) / float64(t.limits.MonthlyLimitTokens) * 100
	}
	return usage
}

// MonthUsage reports usage over the trailing 30 days.
func (t *Tracker) MonthUsage() MonthUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monthUsageLocked()
}

// BudgetStatus evaluates the month's usage against the thresholds.
func (t *Tracker) BudgetStatus() BudgetStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	usage := t.monthUsageLocked()
	status := BudgetStatus{Usage: usage, Warnings: []Warning{}}

	switch {
	case usage.TotalTokens >= t.limits.blockLimit():
		status.Blocked = true
		status.Warnings = append(status.Warnings, Warning{
			Level:   "block",
			Message: fmt.Sprintf("monthly budget exceeded (%.1f%%), AI analysis blocked", usage.UsagePercent),
		})
	case usage.TotalTokens >= t.limits.criticalLimit():
		status.Warnings = append(status.Warnings, Warning{
			Level:   "critical",
			Message: fmt.Sprintf("critical: %.1f%% of monthly budget used", usage.UsagePercent),
		})
	case usage.TotalTokens >= t.limits.warningLimit():
		status.Warnings = append(status.Warnings, Warning{
			Level:   "warning",
			Message: fmt.Sprintf("warning: %.1f%% of monthly budget used", usage.UsagePercent),
		})
	}
	return status
}

// ShouldBlock reports whether AI analysis must be refused this month.
func (t *Tracker) ShouldBlock() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.monthUsageLocked().TotalTokens >= t.limits.blockLimit()
}

// ClearHistory drops every record.
func (t *Tracker) ClearHistory() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = nil
	return t.saveHistoryLocked()
}
