// Package vector provides common types for vector index implementations.
package vector

import "context"

// Document is a single unit of embeddable content. Metadata values are
// strings because the underlying stores filter on exact string equality.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// QueryResult is a similarity search hit.
type QueryResult struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// Client defines the interface for vector index operations.
type Client interface {
	// AddDocuments embeds and stores documents in the index.
	AddDocuments(ctx context.Context, docs []Document) error

	// Query performs a semantic similarity search.
	Query(ctx context.Context, query string, limit int, where map[string]string) ([]QueryResult, error)

	// IsConnected reports whether the index and its embedding backend are
	// usable.
	IsConnected() bool

	// Count returns the total number of documents in the index.
	Count(ctx context.Context) (int64, error)

	// Close releases resources.
	Close() error
}

// DocType identifies the kind of record a document was derived from.
type DocType string

const (
	DocTypeObservation    DocType = "observation"
	DocTypeSessionSummary DocType = "session_summary"
	DocTypeUserPrompt     DocType = "user_prompt"
)

// BuildWhereFilter creates a metadata filter for index queries. Empty
// arguments are omitted.
func BuildWhereFilter(docType DocType, project string) map[string]string {
	where := make(map[string]string)
	if docType != "" {
		where["doc_type"] = string(docType)
	}
	if project != "" {
		where["project"] = project
	}
	return where
}
