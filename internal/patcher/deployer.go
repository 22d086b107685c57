package patcher

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dispatchd/internal/blobstore"
	"github.com/fyrsmithlabs/dispatchd/internal/github"
	"github.com/fyrsmithlabs/dispatchd/internal/scan"
)

// CloneFunc clones repoURL at branch into targetDir. token may be empty for
// anonymous clones.
type CloneFunc func(ctx context.Context, repoURL, branch, targetDir, token string) error

// DeployRequest asks for a scan's patch plan to be applied to its repository.
type DeployRequest struct {
	ScanID  string `json:"scan_id"`
	RepoURL string `json:"repo_url"`
	Branch  string `json:"branch,omitempty"`
}

// DeployerConfig holds deployer settings.
type DeployerConfig struct {
	// WorkDir is where clones are created. Empty means the system temp dir.
	WorkDir string
	// CreatePR opens a pull request after a successful push.
	CreatePR bool
}

// Deployer turns an analyzed scan document into an applied patch branch:
// load the plan, clone the repository, apply each suggestion, commit, and
// optionally push and open a pull request.
type Deployer struct {
	store   blobstore.Store
	clone   CloneFunc
	applier *Applier
	tokens  github.TokenSource
	pr      github.PullRequestCreator
	config  DeployerConfig
	logger  *zap.Logger
}

// NewDeployer creates a deployer. tokens and pr may be nil: clones fall back
// to anonymous access and no pull request is opened.
func NewDeployer(store blobstore.Store, clone CloneFunc, applier *Applier, tokens github.TokenSource, pr github.PullRequestCreator, cfg DeployerConfig, logger *zap.Logger) *Deployer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deployer{
		store:   store,
		clone:   clone,
		applier: applier,
		tokens:  tokens,
		pr:      pr,
		config:  cfg,
		logger:  logger,
	}
}

// Run applies the scan's patch plan. Rejected findings are excluded from the
// plan. An empty plan is not an error; the run reports zero patched files
// and leaves the document untouched.
func (d *Deployer) Run(ctx context.Context, req DeployRequest) (*ApplyResult, error) {
	logger := d.logger.With(zap.String("scan_id", req.ScanID), zap.String("repo_url", req.RepoURL))

	data, err := d.store.Get(ctx, scan.Key(req.ScanID))
	if err != nil {
		return nil, fmt.Errorf("loading scan %s: %w", req.ScanID, err)
	}
	var doc scan.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding scan %s: %w", req.ScanID, err)
	}

	suggestions := SuggestionsFromPlan(&doc)
	if len(suggestions) == 0 {
		logger.Info("patch plan empty, nothing to apply")
		return &ApplyResult{Status: "no_patches"}, nil
	}

	branch := req.Branch
	if branch == "" {
		branch = "main"
	}
	token := d.resolveToken(ctx, req.RepoURL, logger)

	dir, err := os.MkdirTemp(d.config.WorkDir, "dispatchd-patch-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := d.clone(ctx, req.RepoURL, branch, dir, token); err != nil {
		return nil, fmt.Errorf("cloning %s: %w", req.RepoURL, err)
	}

	result, err := d.applier.Apply(ctx, dir, suggestions, token)
	if err != nil {
		return nil, err
	}

	if d.config.CreatePR && d.pr != nil {
		d.openPullRequest(ctx, req, &doc, result, logger)
	}

	doc.Touch(scan.StageDeployer, scan.StatusPatched)
	if updated, err := json.MarshalIndent(&doc, "", "  "); err == nil {
		if err := d.store.Put(ctx, scan.Key(req.ScanID), updated, "application/json"); err != nil {
			logger.Warn("persisting patched status failed", zap.Error(err))
		}
	}

	return result, nil
}

func (d *Deployer) resolveToken(ctx context.Context, repoURL string, logger *zap.Logger) string {
	if d.tokens == nil || !strings.Contains(repoURL, "github.com") {
		return ""
	}
	token, err := d.tokens.Token(ctx)
	if err != nil {
		logger.Warn("token lookup failed, proceeding anonymously", zap.Error(err))
		return ""
	}
	return token
}

func (d *Deployer) openPullRequest(ctx context.Context, req DeployRequest, doc *scan.Document, result *ApplyResult, logger *zap.Logger) {
	base := req.Branch
	if base == "" {
		base = "main"
	}
	title := fmt.Sprintf("Automated security patches for scan %s", req.ScanID)
	body := fmt.Sprintf("Applies %d automated patch(es) generated from scan `%s` (%d findings).",
		result.PatchedFiles, req.ScanID, len(doc.Findings))

	url, err := d.pr.CreatePullRequest(ctx, req.RepoURL, result.Branch, base, title, body)
	if err != nil {
		logger.Warn("pull request creation failed", zap.Error(err))
		result.Details = append(result.Details, SummaryEntry{Error: fmt.Sprintf("pull request failed: %v", err)})
		return
	}
	logger.Info("pull request opened", zap.String("url", url))
	result.PullRequestURL = url
}
