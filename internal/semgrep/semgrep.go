// Package semgrep invokes the semgrep CLI and parses its JSON output.
//
// Semgrep is treated as an opaque external tool: this package shells out,
// captures stdout, and decodes the documented results shape. Exit code 1
// means findings were reported and is not an error.
package semgrep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// ErrSemgrepFailed indicates the semgrep process exited abnormally.
var ErrSemgrepFailed = errors.New("semgrep execution failed")

// Position is a line location within a scanned file.
type Position struct {
	Line int `json:"line"`
}

// Result is one raw semgrep finding as emitted by `semgrep --json`.
type Result struct {
	CheckID string   `json:"check_id"`
	Path    string   `json:"path"`
	Start   Position `json:"start"`
	End     Position `json:"end"`
	Extra   struct {
		Message  string `json:"message"`
		Severity string `json:"severity"` // INFO | WARNING | ERROR
		Lines    string `json:"lines"`
	} `json:"extra"`
}

// Output is the top-level semgrep JSON document.
type Output struct {
	Results []Result `json:"results"`
}

// Runner executes semgrep scans against a local working copy.
type Runner interface {
	Scan(ctx context.Context, path string) ([]Result, error)
}

// Config holds semgrep invocation settings.
type Config struct {
	// Binary is the semgrep executable name or path. Default "semgrep".
	Binary string

	// Rulesets are passed as repeated --config flags. Default: auto.
	Rulesets []string
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Binary == "" {
		c.Binary = "semgrep"
	}
	if len(c.Rulesets) == 0 {
		c.Rulesets = []string{"auto"}
	}
}

// CLIRunner runs the semgrep binary as a subprocess.
type CLIRunner struct {
	config Config
	logger *zap.Logger
}

// NewCLIRunner creates a subprocess-backed Runner.
func NewCLIRunner(cfg Config, logger *zap.Logger) *CLIRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &CLIRunner{config: cfg, logger: logger}
}

// Scan runs semgrep against path and returns the raw results in emission
// order. Exit codes 0 and 1 are both success (1 = findings present).
func (r *CLIRunner) Scan(ctx context.Context, path string) ([]Result, error) {
	args := make([]string, 0, 2*len(r.config.Rulesets)+2)
	for _, rs := range r.config.Rulesets {
		args = append(args, "--config", rs)
	}
	args = append(args, "--json", path)

	cmd := exec.CommandContext(ctx, r.config.Binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running semgrep",
		zap.String("path", path),
		zap.Strings("rulesets", r.config.Rulesets),
	)

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		// Exit code 1 means semgrep found issues.
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("%w: %v: %s", ErrSemgrepFailed, err, stderr.String())
		}
	}

	results, err := Parse(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	r.logger.Info("semgrep scan finished",
		zap.String("path", path),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Parse decodes semgrep JSON output into raw results.
func Parse(data []byte) ([]Result, error) {
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parsing semgrep output: %w", err)
	}
	return out.Results, nil
}

var _ Runner = (*CLIRunner)(nil)
