package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	domain "github.com/tavoai/scanner-orchestrator/internal/domain/scans"
)

// maxCaptureBytes caps each captured stream. tavo-scanner reports on very
// large targets can run away; anything past the cap is dropped rather than
// buffered without bound.
const maxCaptureBytes = 32 << 20

// Orchestrator runs tavo-scanner as a supervised child process. The zero
// value is not usable; build one with New. It holds no mutable state, so a
// single Orchestrator serves concurrent Scan calls.
type Orchestrator struct {
	cfg Config
}

var _ domain.Runner = (*Orchestrator)(nil)

// New resolves the scanner location once and caches it. Resolution failure
// does not fail construction; it surfaces as a Failure outcome on first use.
func New(cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	cfg.ScannerPath = resolveScannerPath(cfg.ScannerPath)
	return &Orchestrator{cfg: cfg}
}

// ScannerPath exposes the resolved executable location ("" when not found).
func (o *Orchestrator) ScannerPath() string { return o.cfg.ScannerPath }

// Scan runs one scanner invocation against target and classifies the
// result. Expected failures (missing binary, spawn error, timeout, non-zero
// exit) come back inside the Outcome; the error return is reserved for
// unrecoverable conditions such as temp-file creation.
func (o *Orchestrator) Scan(ctx context.Context, target string, opts *domain.Options) (*domain.Outcome, error) {
	if target == "" {
		return nil, errors.New("target path is required")
	}
	if o.cfg.ScannerPath == "" {
		return domain.Failure("tavo-scanner executable not found: install tavo-cli or set the scanner path"), nil
	}

	cfg := o.cfg.merged(opts)
	inv, err := buildInvocation(cfg, target)
	if err != nil {
		return nil, err
	}
	defer inv.cleanup()

	return o.execute(ctx, cfg, inv), nil
}

// ScanWithPlugins is sugar: Scan with the plugin list injected into the
// per-call options.
func (o *Orchestrator) ScanWithPlugins(ctx context.Context, target string, plugins []string, opts *domain.Options) (*domain.Outcome, error) {
	merged := domain.Options{}
	if opts != nil {
		merged = *opts
	}
	merged.Plugins = plugins
	return o.Scan(ctx, target, &merged)
}

// ScanWithRules is sugar: Scan with the rules path injected into the
// per-call options.
func (o *Orchestrator) ScanWithRules(ctx context.Context, target, rulesPath string, opts *domain.Options) (*domain.Outcome, error) {
	merged := domain.Options{}
	if opts != nil {
		merged = *opts
	}
	merged.RulesPath = rulesPath
	return o.Scan(ctx, target, &merged)
}

// execute spawns the child and races natural exit against the timeout.
// exec.CommandContext kills the process when the deadline (or the caller's
// cancellation) fires, and the deferred cancel stops the timer as soon as
// the process exits on its own.
func (o *Orchestrator) execute(parent context.Context, cfg Config, inv *invocation) *domain.Outcome {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.ScannerPath, inv.args...)
	cmd.Dir = inv.dir

	var stdout, stderr cappedBuffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	durationMS := time.Since(start).Milliseconds()

	outcome := o.classify(ctx, cfg, runErr, stdout.String(), stderr.String())
	outcome.DurationMS = durationMS
	return outcome
}

func (o *Orchestrator) classify(ctx context.Context, cfg Config, runErr error, stdout, stderr string) *domain.Outcome {
	if runErr != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			out := domain.Failure(fmt.Sprintf("tavo-scanner timed out after %d seconds", cfg.TimeoutSeconds))
			out.ExitCode = -1
			return out
		case errors.Is(ctx.Err(), context.Canceled):
			out := domain.Failure("scan canceled by caller")
			out.ExitCode = -1
			return out
		}

		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			msg := strings.TrimSpace(stderr)
			if msg == "" {
				msg = fmt.Sprintf("tavo-scanner exited with code %d", code)
			}
			out := domain.Failure(msg)
			out.ExitCode = code
			return out
		}

		// Spawn failure: missing file, permission denied, bad workdir.
		out := domain.Failure(fmt.Sprintf("failed to start %s: %v", cfg.ScannerPath, runErr))
		out.ExitCode = -1
		return out
	}

	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return domain.StructuredSuccess(&domain.Report{Passed: true})
	}

	var report domain.Report
	if err := json.Unmarshal([]byte(trimmed), &report); err != nil {
		// Output-format mismatch is not a scan failure; keep the raw text.
		return domain.RawSuccess(trimmed)
	}
	return domain.StructuredSuccess(&report)
}

// cappedBuffer accepts every write but retains at most maxCaptureBytes.
type cappedBuffer struct {
	buf       bytes.Buffer
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if remain := maxCaptureBytes - b.buf.Len(); remain > 0 {
		if len(p) > remain {
			p = p[:remain]
			b.truncated = true
		}
		b.buf.Write(p)
	} else if n > 0 {
		b.truncated = true
	}
	return n, nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
