// Package vector provides context-search backends behind a priority-ordered
// fallback manager. A local backend consumes raw text and embeds it itself;
// a remote backend expects the query to carry a precomputed embedding. The
// manager skips a backend whose input representation does not match rather
// than failing the search.
package vector

import "context"

// Store kinds. Kind decides which query representation a store consumes.
const (
	KindLocal  = "local"
	KindRemote = "remote"
)

// Document is one stored text snippet.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Match is a search hit with its similarity score, higher is closer.
type Match struct {
	Document
	Score float64
}

// Query describes one similarity search. Text serves local stores,
// Embedding serves remote ones; carrying both serves either.
type Query struct {
	Text      string
	Embedding []float32
	TopK      int
	Filter    map[string]string
}

// Store is a single search backend.
type Store interface {
	Add(ctx context.Context, docs []Document, embeddings [][]float32) ([]string, error)
	Search(ctx context.Context, q Query) ([]Match, error)
	// Get returns nil, nil when the id is unknown.
	Get(ctx context.Context, id string) (*Document, error)
	Delete(ctx context.Context, ids []string) (bool, error)
	Kind() string
	Name() string
	Close() error
}
