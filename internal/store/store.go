// Package store defines the uniform capability contract over the backing
// stores (vector, temporal graph, cache) and their adapters.
package store

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by adapters whose backing service is unreachable.
var ErrUnavailable = errors.New("store unavailable")

// Query carries everything an adapter may need to rank results. Vector
// stores use the embedding, the graph store uses the raw text.
type Query struct {
	Text   string
	Vector []float32
	Limit  int
}

// Result is a single ranked hit from a store.
type Result struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
	Sources  []string          `json:"sources,omitempty"` // provenance labels, filled by fusion
}

// Adapter is the capability contract every backing store implements. The
// orchestrator fans operations out across adapters and never branches on
// the concrete store type.
type Adapter interface {
	// Name identifies the adapter in logs, warnings and provenance labels.
	Name() string
	// Insert stores content with its vector and metadata, returning the
	// store-assigned id. Adapters that reuse an upstream id read it from
	// metadata["id"].
	Insert(ctx context.Context, content string, vector []float32, metadata map[string]string) (string, error)
	// Search returns ranked hits. Adapters without a ranking capability
	// return an empty slice.
	Search(ctx context.Context, q Query) ([]Result, error)
	Delete(ctx context.Context, id string) error
	// DeleteAll wipes the store and returns the number of removed entries.
	DeleteAll(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
	Health(ctx context.Context) bool
}

// Scroller is implemented by adapters that can enumerate their contents,
// used by the consolidation engine to sample the corpus.
type Scroller interface {
	Scroll(ctx context.Context, limit int) ([]Result, error)
}
