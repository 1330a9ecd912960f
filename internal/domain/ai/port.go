package ai

import "context"

// Analysis is the advisor's verdict on a scan report, plus the token cost
// of producing it (zero for the local heuristic advisor).
type Analysis struct {
	Result     string `json:"result"` // JSON string following the advisor schema
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

type Client interface {
	AnalyzeReport(ctx context.Context, reportJSON string) (Analysis, error)
}
