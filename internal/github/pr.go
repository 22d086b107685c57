package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// PullRequestCreator opens a pull request for a pushed fix branch.
type PullRequestCreator interface {
	CreatePullRequest(ctx context.Context, repoURL, head, base, title, body string) (string, error)
}

// Client wraps the GitHub REST API.
type Client struct {
	gh     *gh.Client
	tokens TokenSource
	logger *zap.Logger
}

// NewClient creates an authenticated GitHub client.
func NewClient(ctx context.Context, tokens TokenSource, logger *zap.Logger) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("github client requires a token source")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	token, err := tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     gh.NewClient(tc),
		tokens: tokens,
		logger: logger,
	}, nil
}

// CreatePullRequest opens a PR from head into base and returns its URL.
func (c *Client) CreatePullRequest(ctx context.Context, repoURL, head, base, title, body string) (string, error) {
	owner, repo, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.String(title),
		Head:  gh.String(head),
		Base:  gh.String(base),
		Body:  gh.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("creating pull request: %w", err)
	}

	c.logger.Info("pull request created",
		zap.String("repo", owner+"/"+repo),
		zap.String("head", head),
		zap.String("url", pr.GetHTMLURL()))

	return pr.GetHTMLURL(), nil
}

// ParseRepoURL extracts owner and repository name from an https github.com
// clone URL.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(repoURL, ".git")
	const prefix = "https://github.com/"
	if !strings.HasPrefix(trimmed, prefix) {
		return "", "", fmt.Errorf("not a github.com repository URL: %s", repoURL)
	}

	parts := strings.Split(strings.TrimPrefix(trimmed, prefix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed github repository URL: %s", repoURL)
	}
	return parts[0], parts[1], nil
}

var _ PullRequestCreator = (*Client)(nil)
