package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedQuery generates an embedding for a single text.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChromemConfig holds configuration for the embedded vector store.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/dispatchd/knowledge"
	Path string

	// Collection is the knowledge collection name.
	// Default: "security_standards"
	Collection string

	// Compress enables gzip compression of stored data.
	Compress bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/dispatchd/knowledge"
	}
	if c.Collection == "" {
		c.Collection = "security_standards"
	}
}

// ChromemRetriever implements Retriever with an embedded chromem-go database.
//
// chromem-go is a pure-Go embeddable vector store with no external service
// dependency, which keeps the knowledge base self-contained: passages are
// indexed once (see Index) and queried per finding during analysis.
type ChromemRetriever struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemRetriever opens (or creates) the persistent store at the
// configured path.
func NewChromemRetriever(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("opening chromem DB: %w", err)
	}

	logger.Info("knowledge store opened",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
	)

	return &ChromemRetriever{db: db, embedder: embedder, config: cfg, logger: logger}, nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (r *ChromemRetriever) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, text)
	}
}

func (r *ChromemRetriever) collection() (*chromem.Collection, error) {
	col, err := r.db.GetOrCreateCollection(r.config.Collection, nil, r.embeddingFunc())
	if err != nil {
		return nil, fmt.Errorf("getting collection %s: %w", r.config.Collection, err)
	}
	return col, nil
}

// IndexDocument is one knowledge passage to add to the store.
type IndexDocument struct {
	ID      string
	Content string
	Source  string
}

// Index adds passages to the knowledge collection.
func (r *ChromemRetriever) Index(ctx context.Context, docs []IndexDocument) error {
	if len(docs) == 0 {
		return nil
	}
	col, err := r.collection()
	if err != nil {
		return err
	}

	converted := make([]chromem.Document, 0, len(docs))
	for _, d := range docs {
		converted = append(converted, chromem.Document{
			ID:       d.ID,
			Content:  d.Content,
			Metadata: map[string]string{"source": d.Source},
		})
	}
	if err := col.AddDocuments(ctx, converted, 1); err != nil {
		return fmt.Errorf("indexing %d documents: %w", len(docs), err)
	}

	r.logger.Info("knowledge passages indexed", zap.Int("count", len(docs)))
	return nil
}

// Retrieve queries the collection and returns ranked passages.
func (r *ChromemRetriever) Retrieve(ctx context.Context, query string, maxResults int) ([]Passage, error) {
	col, err := r.collection()
	if err != nil {
		return nil, err
	}

	// chromem rejects a query for more results than stored documents.
	if count := col.Count(); maxResults > count {
		maxResults = count
	}
	if maxResults == 0 {
		return nil, nil
	}

	results, err := col.Query(ctx, query, maxResults, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge store: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, res := range results {
		passages = append(passages, Passage{
			Text:   res.Content,
			Score:  float64(res.Similarity),
			Source: res.Metadata["source"],
		})
	}
	return passages, nil
}

var _ Retriever = (*ChromemRetriever)(nil)
