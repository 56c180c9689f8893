package corpus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/refreshapp/refresh/storage"
)

// ErrCorpusNotFound is returned by Query when the corpus id has never been
// imported into.
var ErrCorpusNotFound = errors.New("corpus not found")

// Passage is one ranked retrieval result.
type Passage struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Source  string  `json:"source"`
}

// ImportResult reports a completed ingestion. CorpusID echoes the target
// corpus so tool results can surface it.
type ImportResult struct {
	CorpusID string `json:"corpus_id"`
	URI      string `json:"uri"`
	Chunks   int    `json:"chunks"`
}

// Service is the ingestion and retrieval contract.
type Service interface {
	// Import loads the document at uri, chunks it, and indexes the chunks
	// under corpusID.
	Import(ctx context.Context, corpusID, uri string) (ImportResult, error)

	// Query returns up to topK passages from corpusID ranked by relevance
	// to text, best first.
	Query(ctx context.Context, corpusID, text string, topK int) ([]Passage, error)
}

// Loader fetches raw document bytes by URI.
type Loader func(ctx context.Context, uri string) ([]byte, error)

// NewObjectStoreLoader adapts an ObjectStore into a Loader for URIs of the
// form scheme://bucket/object.
func NewObjectStoreLoader(store storage.ObjectStore) Loader {
	return func(ctx context.Context, uri string) ([]byte, error) {
		_, rest, ok := strings.Cut(uri, "://")
		if !ok {
			return nil, fmt.Errorf("malformed document uri %q", uri)
		}
		bucket, name, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || name == "" {
			return nil, fmt.Errorf("malformed document uri %q", uri)
		}
		return store.ReadObject(ctx, bucket, name)
	}
}
