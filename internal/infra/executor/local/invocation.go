package local

import (
	"fmt"
	"os"
	"strconv"
)

// invocation is the concrete, call-scoped shape of one child process run:
// the argument vector, the working directory, and any temporary files
// created for the call. Temp files belong to this invocation alone and are
// removed on every exit path.
type invocation struct {
	args      []string
	dir       string
	tempFiles []string
}

// buildInvocation derives the argument vector from an effective (already
// merged) configuration. Argument ordering is a compatibility contract with
// tavo-scanner and must not change: target, --plugin pairs in list order,
// --rules, --format, --output, --timeout.
func buildInvocation(cfg Config, target string) (*invocation, error) {
	inv := &invocation{dir: cfg.WorkingDirectory}

	rulesPath := cfg.RulesPath
	if rulesPath == "" && len(cfg.CustomRules) > 0 {
		p, err := CreateRulesFile(cfg.CustomRules)
		if err != nil {
			return nil, fmt.Errorf("materialize custom rules: %w", err)
		}
		inv.tempFiles = append(inv.tempFiles, p)
		rulesPath = p
	}

	args := []string{target}
	for _, plugin := range cfg.Plugins {
		args = append(args, "--plugin", plugin)
	}
	if rulesPath != "" {
		args = append(args, "--rules", rulesPath)
	}
	if cfg.OutputFormat != "" {
		args = append(args, "--format", cfg.OutputFormat)
	}
	if cfg.OutputFile != "" {
		args = append(args, "--output", cfg.OutputFile)
	}
	if cfg.TimeoutSeconds > 0 {
		args = append(args, "--timeout", strconv.Itoa(cfg.TimeoutSeconds))
	}

	inv.args = args
	return inv, nil
}

// cleanup removes every temp file the invocation created. Safe to call on
// all exit paths; misses are ignored.
func (inv *invocation) cleanup() {
	for _, f := range inv.tempFiles {
		_ = os.Remove(f)
	}
}
