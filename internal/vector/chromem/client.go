// Package chromem provides an embedded vector index backed by chromem-go.
// Embeddings come from an OpenAI-compatible endpoint, so the same client
// works against api.openai.com, a local Ollama, or any proxy in between.
package chromem

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"

	chromem "github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"github.com/enzo-wego/claude-mem/internal/vector"
)

const collectionName = "claude_mem"

// Config holds the settings for the chromem client.
type Config struct {
	// Path is the on-disk directory for the persistent index.
	Path string
	// EmbeddingBaseURL is an OpenAI-compatible embeddings endpoint.
	EmbeddingBaseURL string
	// EmbeddingModel is the embedding model name.
	EmbeddingModel string
	// EmbeddingAPIKey authenticates against the endpoint. May be empty for
	// local endpoints.
	EmbeddingAPIKey string
}

// Client is a vector.Client backed by a persistent chromem-go database.
type Client struct {
	db        *chromem.DB
	col       *chromem.Collection
	healthy   atomic.Bool
	embedding string
}

var _ vector.Client = (*Client)(nil)

// NewClient opens (or creates) the persistent index at cfg.Path.
func NewClient(cfg Config) (*Client, error) {
	db, err := chromem.NewPersistentDB(cfg.Path, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	embeddingFunc := chromem.NewEmbeddingFuncOpenAICompat(
		cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, nil)

	col, err := db.GetOrCreateCollection(collectionName, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}

	c := &Client{
		db:        db,
		col:       col,
		embedding: cfg.EmbeddingModel,
	}
	c.healthy.Store(true)

	log.Info().
		Str("path", cfg.Path).
		Str("model", cfg.EmbeddingModel).
		Int("documents", col.Count()).
		Msg("Vector index opened")

	return c, nil
}

// AddDocuments embeds and stores documents. Embedding failures mark the
// client unhealthy until a later call succeeds.
func (c *Client) AddDocuments(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	converted := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		converted[i] = chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		}
	}

	if err := c.col.AddDocuments(ctx, converted, runtime.NumCPU()); err != nil {
		c.healthy.Store(false)
		return fmt.Errorf("add documents: %w", err)
	}
	c.healthy.Store(true)
	return nil
}

// Query embeds the query text and returns the closest documents.
// chromem rejects result counts above the collection size, so the limit is
// clamped first.
func (c *Client) Query(ctx context.Context, query string, limit int, where map[string]string) ([]vector.QueryResult, error) {
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}
	if limit <= 0 {
		limit = 1
	}

	// A where filter can shrink the candidate set below the limit, which
	// chromem rejects rather than clamps. Halve until it fits.
	var results []chromem.Result
	var err error
	for n := limit; n >= 1; n /= 2 {
		results, err = c.col.Query(ctx, query, n, where, nil)
		if err == nil {
			break
		}
		if !isInsufficientDocsError(err) {
			c.healthy.Store(false)
			return nil, fmt.Errorf("vector query: %w", err)
		}
		if n == 1 {
			// Nothing matches the filter.
			return nil, nil
		}
	}
	c.healthy.Store(true)

	converted := make([]vector.QueryResult, len(results))
	for i, r := range results {
		converted[i] = vector.QueryResult{
			ID:         r.ID,
			Content:    r.Content,
			Metadata:   r.Metadata,
			Similarity: r.Similarity,
		}
	}
	return converted, nil
}

// IsConnected reports whether the last embedding round-trip succeeded.
func (c *Client) IsConnected() bool {
	return c.healthy.Load()
}

// Count returns the number of documents in the index.
func (c *Client) Count(ctx context.Context) (int64, error) {
	return int64(c.col.Count()), nil
}

// Close releases resources. The persistent store flushes on every write,
// so there is nothing to sync here.
func (c *Client) Close() error {
	return nil
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
