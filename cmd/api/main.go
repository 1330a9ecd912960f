package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tavoai/scanner-orchestrator/internal/application"
	appscans "github.com/tavoai/scanner-orchestrator/internal/application/scans"
	"github.com/tavoai/scanner-orchestrator/internal/config"
	domai "github.com/tavoai/scanner-orchestrator/internal/domain/ai"
	openaiclient "github.com/tavoai/scanner-orchestrator/internal/infra/ai/openai"
	"github.com/tavoai/scanner-orchestrator/internal/infra/ai/prompt"
	local "github.com/tavoai/scanner-orchestrator/internal/infra/executor/local"
	"github.com/tavoai/scanner-orchestrator/internal/infra/httpserver"
	"github.com/tavoai/scanner-orchestrator/internal/infra/rules"
	minioStore "github.com/tavoai/scanner-orchestrator/internal/infra/storage"
	"github.com/tavoai/scanner-orchestrator/internal/infra/usage"
	"github.com/tavoai/scanner-orchestrator/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// init scanner orchestrator
	runner := local.New(local.Config{
		ScannerPath:      cfg.Scanner.Path,
		Plugins:          cfg.Scanner.Plugins,
		RulesPath:        cfg.Scanner.RulesPath,
		TimeoutSeconds:   cfg.Scanner.TimeoutSeconds,
		WorkingDirectory: cfg.Scanner.WorkingDirectory,
		OutputFormat:     cfg.Scanner.OutputFormat,
	})
	if runner.ScannerPath() == "" {
		log.Printf("warning: tavo-scanner executable not found; scans will fail until it is installed")
	}

	// init bundle cache + resolver
	cache, err := rules.NewCache(cfg.Bundles.CacheDir, cfg.Bundles.CacheSizeMB, cfg.Bundles.CacheTTLDays)
	if err != nil {
		log.Fatalf("bundle cache init error: %v", err)
	}

	checkers := map[string]middleware.HealthChecker{
		"scanner": &middleware.ScannerHealthChecker{Path: runner.ScannerPath()},
	}

	var fetcher rules.Fetcher
	if cfg.Bundles.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Bundles.Minio.Endpoint,
			cfg.Bundles.Minio.Region,
			cfg.Bundles.Minio.BucketName,
			cfg.Bundles.Minio.Prefix,
			cfg.Bundles.Minio.AccessKey,
			cfg.Bundles.Minio.SecretKey,
			cfg.Bundles.Minio.UseSSL,
		)
		if err != nil {
			log.Fatalf("bundle store init error: %v", err)
		}
		fetcher = store
		checkers["bundle_store"] = store
	}
	resolver := rules.NewResolver(cfg.Bundles.LocalDir, fetcher, cache)

	// init usage tracker
	var limits *usage.BudgetLimits
	if cfg.Usage.MonthlyLimitTokens > 0 {
		l := usage.DefaultBudgetLimits()
		l.MonthlyLimitTokens = cfg.Usage.MonthlyLimitTokens
		limits = &l
	}
	tracker, err := usage.NewTracker(cfg.Usage.Dir, limits)
	if err != nil {
		log.Fatalf("usage tracker init error: %v", err)
	}

	// init advisor: OpenAI when configured, offline fallback otherwise
	var advisor domai.Client = prompt.Advisor{}
	if cfg.AI.Enabled && cfg.AI.APIKey != "" {
		advisor = openaiclient.NewClient(cfg.AI.APIKey, cfg.AI.Model)
	}

	svc := &appscans.Service{
		Runner:  runner,
		Bundles: resolver,
		Advisor: advisor,
		Usage:   tracker,
		Clock:   application.SystemClock{},
	}

	handler := httpserver.NewRouter(svc, cache, tracker, checkers)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Scans run synchronously inside the request; keep writes open long
		// enough for the longest allowed scan.
		WriteTimeout: 3700 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
