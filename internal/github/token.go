// Package github resolves repository credentials and opens pull requests for
// pushed fix branches.
package github

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"

	"github.com/fyrsmithlabs/dispatchd/internal/config"
)

// TokenSource resolves the GitHub token used for clones, pushes and PRs.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns a fixed token from configuration.
type StaticTokenSource struct {
	token config.Secret
}

// NewStaticTokenSource wraps a configured secret.
func NewStaticTokenSource(token config.Secret) *StaticTokenSource {
	return &StaticTokenSource{token: token}
}

func (s *StaticTokenSource) Token(ctx context.Context) (string, error) {
	if !s.token.IsSet() {
		return "", fmt.Errorf("github token not set")
	}
	return s.token.Value(), nil
}

// SecretsManagerTokenSource fetches the token from AWS Secrets Manager and
// caches it for the process lifetime.
type SecretsManagerTokenSource struct {
	client   secretsmanageriface.SecretsManagerAPI
	secretID string

	mu     sync.Mutex
	cached string
}

// NewSecretsManagerTokenSource creates a token source backed by Secrets
// Manager.
func NewSecretsManagerTokenSource(region, endpoint, secretID string) (*SecretsManagerTokenSource, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:   aws.String(region),
		Endpoint: endpointOrNil(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return NewSecretsManagerTokenSourceWithClient(secretsmanager.New(sess), secretID), nil
}

// NewSecretsManagerTokenSourceWithClient injects the Secrets Manager client,
// for tests.
func NewSecretsManagerTokenSourceWithClient(client secretsmanageriface.SecretsManagerAPI, secretID string) *SecretsManagerTokenSource {
	return &SecretsManagerTokenSource{client: client, secretID: secretID}
}

func (s *SecretsManagerTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" {
		return s.cached, nil
	}

	out, err := s.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", fmt.Errorf("fetching github token from secrets manager: %w", err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return "", fmt.Errorf("secret %s has no string value", s.secretID)
	}

	s.cached = *out.SecretString
	return s.cached, nil
}

// ResolveTokenSource picks the token source from configuration: a directly
// configured token wins over a Secrets Manager lookup. Returns nil when
// neither is configured; anonymous access is fine for public repositories.
func ResolveTokenSource(cfg config.GitHubConfig, awsCfg config.AWSConfig) (TokenSource, error) {
	if cfg.Token.IsSet() {
		return NewStaticTokenSource(cfg.Token), nil
	}
	if cfg.TokenSecretID != "" {
		return NewSecretsManagerTokenSource(awsCfg.Region, awsCfg.Endpoint, cfg.TokenSecretID)
	}
	return nil, nil
}

func endpointOrNil(endpoint string) *string {
	if endpoint == "" {
		return nil
	}
	return aws.String(endpoint)
}

var _ TokenSource = (*StaticTokenSource)(nil)
var _ TokenSource = (*SecretsManagerTokenSource)(nil)
