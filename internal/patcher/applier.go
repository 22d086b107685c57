package patcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/gitrepo"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
)

const commitMessage = "Apply patch from dispatchd"

// truncateAt bounds the inserted-code excerpt recorded per summary entry.
const truncateAt = 150

// SummaryEntry records the outcome for one patch item. Failed items carry
// Error; applied items carry the inserted-code excerpt.
type SummaryEntry struct {
	File         string `json:"file,omitempty"`
	Description  string `json:"description,omitempty"`
	InsertedCode string `json:"inserted_code,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Report is the patch metadata persisted to the blob store.
type Report struct {
	Branch       string         `json:"branch"`
	PatchedFiles int            `json:"patched_files"`
	Timestamp    string         `json:"timestamp"`
	PatchSummary []SummaryEntry `json:"patch_summary"`
	UploadError  string         `json:"upload_error,omitempty"`
}

// ApplyResult is returned to the caller after an apply run.
type ApplyResult struct {
	Status         string         `json:"status"`
	Branch         string         `json:"branch"`
	PatchedFiles   int            `json:"patched_files"`
	ReportPath     string         `json:"report_path,omitempty"`
	PullRequestURL string         `json:"pull_request_url,omitempty"`
	Details        []SummaryEntry `json:"details"`
}

// ApplierConfig holds applier settings.
type ApplierConfig struct {
	// Push pushes the fix branch to origin after committing.
	Push bool
}

// Applier applies patch suggestions to a local working copy on a fresh
// branch and commits them once.
type Applier struct {
	strategy PatchStrategy
	store    blobstore.Store
	config   ApplierConfig
	logger   *zap.Logger
}

// NewApplier creates an applier. store may be nil to skip report uploads;
// strategy nil defaults to AppendStrategy.
func NewApplier(strategy PatchStrategy, store blobstore.Store, cfg ApplierConfig, logger *zap.Logger) *Applier {
	if strategy == nil {
		strategy = AppendStrategy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Applier{
		strategy: strategy,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// Apply patches the working copy at projectPath on a timestamped branch.
//
// Missing target files are skipped silently: they are simply absent from the
// summary. Per-file apply errors are recorded in the summary and do not stop
// the run. Push and report-upload failures are recorded inline; the local
// commit is never rolled back.
func (a *Applier) Apply(ctx context.Context, projectPath string, patches []Suggestion, token string) (*ApplyResult, error) {
	wc, err := gitrepo.Open(projectPath)
	if err != nil {
		return nil, err
	}

	branch := fmt.Sprintf("fix/autopatch-%s", time.Now().Format("20060102150405"))
	if err := wc.CheckoutNewBranch(branch); err != nil {
		return nil, fmt.Errorf("creating branch %s: %w", branch, err)
	}

	logger := a.logger.With(zap.String("branch", branch), zap.String("path", projectPath))

	var summary []SummaryEntry
	patched := 0

	for _, patch := range patches {
		absPath := filepath.Join(projectPath, patch.File)
		info, err := os.Stat(absPath)
		if err != nil || info.IsDir() {
			logger.Debug("patch target missing, skipping", zap.String("file", patch.File))
			continue
		}

		if err := a.strategy.Apply(absPath, patch); err != nil {
			summary = append(summary, SummaryEntry{File: patch.File, Error: err.Error()})
			continue
		}
		if err := wc.Add(patch.File); err != nil {
			summary = append(summary, SummaryEntry{File: patch.File, Error: err.Error()})
			continue
		}

		patched++
		summary = append(summary, SummaryEntry{
			File:         patch.File,
			Description:  patch.Description,
			InsertedCode: truncate(patch.Suggestion, truncateAt),
		})
	}

	// Nothing staged leaves a clean tree; go-git refuses empty commits and
	// there is nothing to push. The run still succeeds with zero patched
	// files and the report records the outcome.
	if patched > 0 {
		if _, err := wc.Commit(commitMessage); err != nil {
			return nil, fmt.Errorf("committing patches: %w", err)
		}

		if a.config.Push {
			if err := wc.Push(ctx, branch, token); err != nil {
				logger.Warn("push failed, keeping local commit", zap.Error(err))
				summary = append(summary, SummaryEntry{Error: fmt.Sprintf("push failed: %v", err)})
			}
		}
	}

	report := Report{
		Branch:       branch,
		PatchedFiles: patched,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PatchSummary: summary,
	}
	reportPath := a.uploadReport(ctx, &report, logger)

	logger.Info("patches applied", zap.Int("patched_files", patched))

	return &ApplyResult{
		Status:       "success",
		Branch:       branch,
		PatchedFiles: patched,
		ReportPath:   reportPath,
		Details:      report.PatchSummary,
	}, nil
}

// uploadReport persists the report and returns its key, or "" when no store
// is configured or the upload failed (recorded inline on the report).
func (a *Applier) uploadReport(ctx context.Context, report *Report, logger *zap.Logger) string {
	if a.store == nil {
		return ""
	}

	key := fmt.Sprintf("patch_reports/%s.json", report.Branch)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		report.UploadError = err.Error()
		return ""
	}
	if err := a.store.Put(ctx, key, data, "application/json"); err != nil {
		logger.Warn("report upload failed", zap.Error(err))
		report.UploadError = err.Error()
		return ""
	}
	return key
}

// SuggestionsFromPlan converts scan-document plan entries into applier input.
// Entries whose finding was rejected are excluded.
func SuggestionsFromPlan(doc *scan.Document) []Suggestion {
	suggestions := make([]Suggestion, 0, len(doc.PatchPlan))
	for _, e := range doc.PatchPlan {
		if f := doc.FindingByID(e.FindingID); f != nil && f.Approval() == scan.ApprovalRejected {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			File:        e.File,
			Line:        e.Line,
			Suggestion:  e.FixedCode,
			Description: e.Explanation,
		})
	}
	return suggestions
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
