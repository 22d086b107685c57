// Package scanner implements the static-analysis stage: clone, scan,
// normalize, persist.
package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/github"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
	"github.com/fyrsmithlabs/dispatchd/internal/semgrep"
)

// ErrRepoURLRequired indicates a scan request without a repository URL.
var ErrRepoURLRequired = errors.New("repo_url is required")

// InitialConfidence is assigned to findings before analysis.
const InitialConfidence = 0.9

// initialSummary is the analysis placeholder written by this stage.
const initialSummary = "Initial scan complete. Awaiting LLM analysis."

// CloneFunc obtains a working copy of repoURL at branch under targetDir.
type CloneFunc func(ctx context.Context, repoURL, branch, targetDir, token string) error

// Config holds scanner stage settings.
type Config struct {
	// WorkDir is where repositories are cloned. Default: os.TempDir().
	WorkDir string
}

// Request is the scanner stage input.
type Request struct {
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
	ScanID  string `json:"scan_id,omitempty"`
}

// Result is the scanner stage output.
type Result struct {
	ScanID        string `json:"scan_id"`
	FindingsCount int    `json:"findings_count"`
	Location      string `json:"location"`
}

// Stage runs the scan pipeline step. All collaborators are injected.
type Stage struct {
	store  blobstore.Store
	runner semgrep.Runner
	clone  CloneFunc
	tokens github.TokenSource
	config Config
	logger *zap.Logger
}

// NewStage creates the scanner stage. tokens may be nil for anonymous clones.
func NewStage(store blobstore.Store, runner semgrep.Runner, clone CloneFunc, tokens github.TokenSource, cfg Config, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Stage{
		store:  store,
		runner: runner,
		clone:  clone,
		tokens: tokens,
		config: cfg,
		logger: logger,
	}
}

// Run clones the repository, scans it, normalizes the results into a scan
// document and persists it. Exactly one write happens per invocation; any
// failure before that write is fatal and leaves storage untouched.
func (s *Stage) Run(ctx context.Context, req Request) (*Result, error) {
	if req.RepoURL == "" {
		return nil, ErrRepoURLRequired
	}

	branch := req.Branch
	if branch == "" {
		branch = "main"
	}
	scanID := req.ScanID
	if scanID == "" {
		scanID = scan.NewScanID()
	}

	logger := s.logger.With(zap.String("scan_id", scanID), zap.String("repo_url", req.RepoURL))

	token := s.resolveToken(ctx, req.RepoURL, logger)

	tmpDir, err := os.MkdirTemp(s.config.WorkDir, "dispatchd-scan-")
	if err != nil {
		return nil, fmt.Errorf("creating scan workspace: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	repoPath := filepath.Join(tmpDir, "repo")
	if err := s.clone(ctx, req.RepoURL, branch, repoPath, token); err != nil {
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	results, err := s.runner.Scan(ctx, repoPath)
	if err != nil {
		return nil, fmt.Errorf("running static analysis: %w", err)
	}

	doc := Normalize(results, req.RepoURL, scanID)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding scan document: %w", err)
	}
	key := scan.Key(scanID)
	if err := s.store.Put(ctx, key, data, "application/json"); err != nil {
		return nil, fmt.Errorf("persisting scan document: %w", err)
	}

	logger.Info("scan complete",
		zap.Int("findings", len(doc.Findings)),
		zap.String("key", key))

	return &Result{
		ScanID:        scanID,
		FindingsCount: len(doc.Findings),
		Location:      key,
	}, nil
}

// resolveToken fetches a token for github.com clones. Failure is a warning:
// the clone proceeds anonymously, which works for public repositories.
func (s *Stage) resolveToken(ctx context.Context, repoURL string, logger *zap.Logger) string {
	if s.tokens == nil || !strings.Contains(repoURL, "github.com") {
		return ""
	}
	token, err := s.tokens.Token(ctx)
	if err != nil {
		logger.Warn("could not resolve github token, cloning anonymously", zap.Error(err))
		return ""
	}
	return token
}

// Normalize converts raw semgrep results into a fresh scan document.
//
// Finding ids are assigned as finding_{index} in emission order, so re-running
// against identical scanner output reproduces identical ids.
func Normalize(results []semgrep.Result, repoURL, scanID string) *scan.Document {
	findings := make([]scan.Finding, 0, len(results))
	for i, r := range results {
		endLine := r.End.Line
		if endLine == 0 {
			endLine = r.Start.Line
		}
		findings = append(findings, scan.Finding{
			ID:             fmt.Sprintf("finding_%d", i),
			Severity:       mapSeverity(r.Extra.Severity),
			Type:           checkIDOrUnknown(r.CheckID),
			File:           r.Path,
			Line:           r.Start.Line,
			EndLine:        endLine,
			Description:    r.Extra.Message,
			CodeSnippet:    r.Extra.Lines,
			LLMAnalysis:    scan.PendingAnalysis,
			RecommendedFix: scan.PendingFix,
			Confidence:     InitialConfidence,
		})
	}

	doc := &scan.Document{
		ScanID:    scanID,
		RepoURL:   repoURL,
		Findings:  findings,
		PatchPlan: []scan.PatchPlanEntry{},
		DependencyVulnerabilities: scan.DependencyVulnerabilities{
			Vulnerabilities: []interface{}{},
		},
		Analysis: scan.Analysis{
			Summary:  initialSummary,
			Findings: make([]string, 0, len(findings)),
		},
	}
	doc.Analysis.Findings = doc.FindingIDs()
	doc.ComputeStats()
	doc.Touch(scan.StageScanner, scan.StatusScanned)
	return doc
}

func mapSeverity(raw string) scan.Severity {
	switch strings.ToLower(raw) {
	case "error":
		return scan.SeverityHigh
	case "warning":
		return scan.SeverityMedium
	case "info":
		return scan.SeverityLow
	default:
		return scan.SeverityUnknown
	}
}

func checkIDOrUnknown(checkID string) string {
	if checkID == "" {
		return "Unknown"
	}
	return checkID
}
