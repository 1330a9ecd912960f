package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appscans "github.com/tavoai/scanner-orchestrator/internal/application/scans"
	domai "github.com/tavoai/scanner-orchestrator/internal/domain/ai"
	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
	"github.com/tavoai/scanner-orchestrator/internal/infra/rules"
	"github.com/tavoai/scanner-orchestrator/internal/infra/usage"
	"github.com/tavoai/scanner-orchestrator/internal/middleware"
)

// BundleLister exposes the cached bundle inventory. Satisfied by
// *rules.Cache.
type BundleLister interface {
	List() map[string]rules.CacheEntry
	Stats() rules.CacheStats
}

// UsageReporter exposes the AI budget state. Satisfied by *usage.Tracker.
type UsageReporter interface {
	BudgetStatus() usage.BudgetStatus
}

type Router struct {
	svc     *appscans.Service
	bundles BundleLister  // optional
	usage   UsageReporter // optional
}

// NewRouter assembles the HTTP surface. checkers feed /health; bundles and
// tracker may be nil when the daemon runs without a bundle cache or budget.
func NewRouter(svc *appscans.Service, bundles BundleLister, tracker UsageReporter, checkers map[string]middleware.HealthChecker) http.Handler {
	r := &Router{svc: svc, bundles: bundles, usage: tracker}
	mux := chi.NewRouter()

	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(30, 1))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	mux.Get("/health", middleware.HealthHandler(checkers))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scan", r.wrap(r.handleScan))
		rt.Post("/analyze", r.wrap(r.handleAnalyze))
		rt.Get("/bundles", r.wrap(r.handleBundles))
		rt.Get("/usage", r.wrap(r.handleUsage))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type badRequestError struct{ msg string }

func (e badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return badRequestError{msg: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequestError
			if errors.As(err, &br) {
				http.Error(w, br.msg, http.StatusBadRequest)
				return
			}
			if errors.Is(err, domai.ErrQuotaExceeded) {
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
				return
			}
			if errors.Is(err, domai.ErrBudgetExceeded) {
				http.Error(w, "ai budget exceeded", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

// POST /v1/scan
// Runs the scan synchronously: the scanner result (including failed scans)
// comes back in the response body with status 200. Only transport and
// validation problems map to error codes.
func (r *Router) handleScan(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Target          string   `json:"target"`
		Plugins         []string `json:"plugins"`
		RulesPath       string   `json:"rules_path"`
		Bundle          string   `json:"bundle"`
		TimeoutSeconds  int      `json:"timeout_seconds"`
		OutputFormat    string   `json:"output_format"`
		IncludePatterns []string `json:"include_patterns"`
		ExcludePatterns []string `json:"exclude_patterns"`
		Analyze         bool     `json:"analyze"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body: %v", err)
	}

	if err := middleware.ValidatePath(body.Target); err != nil {
		return badRequest("target: %v", err)
	}
	for _, p := range body.Plugins {
		if err := middleware.ValidatePlugin(p); err != nil {
			return badRequest("%v", err)
		}
	}
	if err := middleware.ValidateOutputFormat(body.OutputFormat); err != nil {
		return badRequest("%v", err)
	}
	if body.Bundle != "" {
		if err := middleware.ValidateBundleID(body.Bundle); err != nil {
			return badRequest("%v", err)
		}
	}
	if err := middleware.ValidateTimeout(body.TimeoutSeconds); err != nil {
		return badRequest("%v", err)
	}

	cmd := appscans.TriggerScanCommand{
		Target:          body.Target,
		Plugins:         body.Plugins,
		RulesPath:       body.RulesPath,
		Bundle:          body.Bundle,
		TimeoutSeconds:  body.TimeoutSeconds,
		OutputFormat:    body.OutputFormat,
		IncludePatterns: body.IncludePatterns,
		ExcludePatterns: body.ExcludePatterns,
		Analyze:         body.Analyze,
	}

	middleware.IncrementScans()
	middleware.IncrementScansRunning()
	defer middleware.DecrementScansRunning()

	result, err := r.svc.TriggerScan(req.Context(), cmd)
	if err != nil {
		middleware.IncrementScansFailed()
		return err
	}
	if result.Status == string(domain.StatusFailed) {
		middleware.IncrementScansFailed()
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(result)
}

// POST /v1/analyze
// Body: {"report": {...}} — a raw scan report document.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Report json.RawMessage `json:"report"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	if len(body.Report) == 0 {
		return badRequest("report is required")
	}

	analysis, err := r.svc.Analyze(req.Context(), string(body.Report))
	if err != nil {
		return err
	}
	middleware.IncrementAnalyses()

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(analysis)
}

// GET /v1/bundles
func (r *Router) handleBundles(w http.ResponseWriter, req *http.Request) error {
	if r.bundles == nil {
		return badRequest("no bundle cache configured")
	}

	resp := map[string]any{
		"bundles": r.bundles.List(),
		"stats":   r.bundles.Stats(),
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(resp)
}

// GET /v1/usage
func (r *Router) handleUsage(w http.ResponseWriter, req *http.Request) error {
	if r.usage == nil {
		return badRequest("no usage tracker configured")
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(r.usage.BudgetStatus())
}
