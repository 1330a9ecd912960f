package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrBudgetExceeded indicates the local monthly token budget is exhausted
// and analysis was blocked before any provider call.
var ErrBudgetExceeded = errors.New("ai token budget exceeded")
