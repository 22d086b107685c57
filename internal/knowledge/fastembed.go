package knowledge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// ErrEmptyInput indicates empty embedding input.
var ErrEmptyInput = errors.New("empty embedding input")

// FastEmbedConfig holds configuration for the local embedding provider.
type FastEmbedConfig struct {
	// Model is the embedding model. Default: BAAI/bge-small-en-v1.5.
	Model string

	// CacheDir caches downloaded model files.
	// Default: ~/.cache/dispatchd/models
	CacheDir string

	// MaxLength is the maximum input sequence length. Default 512.
	MaxLength int
}

var fastEmbedModels = map[string]fastembed.EmbeddingModel{
	"BAAI/bge-small-en-v1.5":                 fastembed.BGESmallENV15,
	"BAAI/bge-base-en-v1.5":                  fastembed.BGEBaseENV15,
	"sentence-transformers/all-MiniLM-L6-v2": fastembed.AllMiniLML6V2,
}

// FastEmbedProvider generates embeddings with a local ONNX model, so the
// knowledge store works without any embedding API dependency.
type FastEmbedProvider struct {
	model *fastembed.FlagEmbedding
	mu    sync.RWMutex
}

// NewFastEmbedProvider initializes the local embedding model.
func NewFastEmbedProvider(cfg FastEmbedConfig) (*FastEmbedProvider, error) {
	name := cfg.Model
	if name == "" {
		name = "BAAI/bge-small-en-v1.5"
	}
	model, ok := fastEmbedModels[name]
	if !ok {
		return nil, fmt.Errorf("unsupported embedding model %q", name)
	}

	cacheDir := cfg.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache dir: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache", "dispatchd", "models")
	}

	maxLength := cfg.MaxLength
	if maxLength == 0 {
		maxLength = 512
	}

	showProgress := false
	flagEmbed, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                model,
		CacheDir:             cacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing fastembed: %w", err)
	}

	return &FastEmbedProvider{model: flagEmbed}, nil
}

// EmbedQuery generates an embedding for a single text. The model adds its
// "query: " prefix itself.
func (p *FastEmbedProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	embedding, err := p.model.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return embedding, nil
}

var _ Embedder = (*FastEmbedProvider)(nil)
