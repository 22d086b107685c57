// Package gitrepo wraps the go-git operations the pipeline needs: shallow
// clones for scanning, and branch/commit/push for patch application.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

var (
	// ErrCloneFailed indicates the repository or branch could not be fetched.
	ErrCloneFailed = errors.New("clone failed")

	// ErrNotGitRepo indicates the path is not a git working copy.
	ErrNotGitRepo = errors.New("not a git repository")
)

// tokenAuth builds HTTP basic auth from a bearer token, or nil when empty.
func tokenAuth(token string) transport.AuthMethod {
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

// Clone fetches a single branch of repoURL into targetDir at depth 1.
//
// An unreachable repository or missing branch is fatal: the error wraps
// ErrCloneFailed and nothing is left behind at targetDir.
func Clone(ctx context.Context, repoURL, branch, targetDir, token string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Debug("cloning repository",
		zap.String("repo_url", repoURL),
		zap.String("branch", branch),
		zap.String("target", targetDir),
	)

	_, err := git.PlainCloneContext(ctx, targetDir, false, &git.CloneOptions{
		URL:           repoURL,
		Auth:          tokenAuth(token),
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
	})
	if err != nil {
		os.RemoveAll(targetDir)
		return fmt.Errorf("%w: %s@%s: %v", ErrCloneFailed, repoURL, branch, err)
	}

	logger.Info("repository cloned",
		zap.String("repo_url", repoURL),
		zap.String("branch", branch),
	)
	return nil
}

// WorkingCopy is an open git working copy used by the patch applier.
type WorkingCopy struct {
	repo *git.Repository
	path string
}

// Open opens the working copy at path. Returns ErrNotGitRepo when the path is
// not a directory or not under git control.
func Open(path string) (*WorkingCopy, error) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, path)
	}
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotGitRepo, path, err)
	}
	return &WorkingCopy{repo: repo, path: path}, nil
}

// Path returns the working copy root.
func (w *WorkingCopy) Path() string {
	return w.path
}

// CheckoutNewBranch creates and checks out a branch from the current HEAD.
// If the branch already exists it is checked out instead.
func (w *WorkingCopy) CheckoutNewBranch(name string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	ref := plumbing.NewBranchReferenceName(name)
	err = wt.Checkout(&git.CheckoutOptions{Branch: ref, Create: true})
	if err != nil {
		// Branch collision within the same second; reuse it.
		return wt.Checkout(&git.CheckoutOptions{Branch: ref})
	}
	return nil
}

// Add stages a file given by its path relative to the working copy root.
func (w *WorkingCopy) Add(relPath string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if _, err := wt.Add(relPath); err != nil {
		return fmt.Errorf("staging %s: %w", relPath, err)
	}
	return nil
}

// Commit records all staged changes as a single commit and returns its hash.
func (w *WorkingCopy) Commit(message string) (string, error) {
	wt, err := w.repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("getting worktree: %w", err)
	}

	hash, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "dispatchd",
			Email: "dispatchd@fyrsmithlabs.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("committing: %w", err)
	}
	return hash.String(), nil
}

// Push pushes the named branch to origin. The local commit is kept on failure;
// callers record the error instead of rolling back.
func (w *WorkingCopy) Push(ctx context.Context, branch, token string) error {
	refSpec := fmt.Sprintf("refs/heads/%s:refs/heads/%s", branch, branch)
	err := w.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       tokenAuth(token),
		RefSpecs:   []config.RefSpec{config.RefSpec(refSpec)},
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}
