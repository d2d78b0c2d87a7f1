// Package vector persists and searches content embeddings backed by
// PostgreSQL + pgvector. Rows are grouped into namespaces so text
// embeddings, image-description embeddings, and raw image embeddings
// never mix in a single search.
package vector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/wayfare-app/wayfare/internal/gateway"
	"github.com/wayfare-app/wayfare/internal/log"
)

// Namespace partitions the embeddings table. Searches are always scoped
// to one namespace.
type Namespace string

const (
	// NamespaceRawText holds embeddings of the content's own text.
	NamespaceRawText Namespace = "raw_text"

	// NamespaceImageDescription holds embeddings of model-generated
	// image descriptions.
	NamespaceImageDescription Namespace = "image_description"

	// NamespaceImageVector holds embeddings computed directly from
	// image bytes.
	NamespaceImageVector Namespace = "image_vector"
)

// Valid reports whether ns is one of the known namespaces.
func (ns Namespace) Valid() bool {
	switch ns {
	case NamespaceRawText, NamespaceImageDescription, NamespaceImageVector:
		return true
	}
	return false
}

// searchTimeout bounds vector similarity queries so a slow index scan
// cannot hold a request open indefinitely.
const searchTimeout = 10 * time.Second

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Embedder is the slice of the embedding client the store needs.
type Embedder interface {
	EmbedText(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedImage(ctx context.Context, data []byte, mimeType string) ([]float32, error)
}

// insertEmbeddingSQL is a plain INSERT: re-indexing the same content id
// appends a fresh row rather than replacing the old one.
const insertEmbeddingSQL = `INSERT INTO embeddings (namespace, content_id, content, embedding)
	VALUES ($1, $2, $3, $4)`

const searchEmbeddingsSQL = `SELECT content_id, content, 1 - (embedding <=> $1) AS similarity
	FROM embeddings
	WHERE namespace = $2
	ORDER BY embedding <=> $1
	LIMIT $3`

// Hit is a single similarity-search result.
type Hit struct {
	ContentID  string
	Content    string
	Similarity float64
}

// Store manages embedding rows for one embeddings table.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db       querier
	embedder Embedder
	logger   log.Logger
}

// New creates a Store. db is typically a *pgxpool.Pool.
func New(db querier, embedder Embedder, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

// IndexText embeds text and stores the vector under ns for contentID.
// The stored content column keeps the original text so search hits can
// be returned without a second lookup.
func (s *Store) IndexText(ctx context.Context, ns Namespace, contentID, text string) error {
	if err := validateIndexInput(ns, contentID); err != nil {
		return err
	}
	if text == "" {
		return errors.New("text must not be empty")
	}

	values, err := s.embedder.EmbedText(ctx, text, gateway.TaskRetrievalDocument)
	if err != nil {
		return fmt.Errorf("embedding text for %q: %w", contentID, err)
	}
	return s.insert(ctx, ns, contentID, text, values)
}

// IndexImage embeds raw image bytes and stores the vector under ns for
// contentID. The content column records the image source so hits remain
// traceable.
func (s *Store) IndexImage(ctx context.Context, ns Namespace, contentID, source string, data []byte, mimeType string) error {
	if err := validateIndexInput(ns, contentID); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("image data must not be empty")
	}

	values, err := s.embedder.EmbedImage(ctx, data, mimeType)
	if err != nil {
		return fmt.Errorf("embedding image for %q: %w", contentID, err)
	}
	return s.insert(ctx, ns, contentID, source, values)
}

// Search embeds query and returns the topK nearest rows in ns, ordered by
// descending cosine similarity.
func (s *Store) Search(ctx context.Context, ns Namespace, query string, topK int) ([]Hit, error) {
	if !ns.Valid() {
		return nil, fmt.Errorf("invalid namespace %q", ns)
	}
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	values, err := s.embedder.EmbedText(searchCtx, query, gateway.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	vec := pgvector.NewVector(values)

	rows, err := s.db.Query(searchCtx, searchEmbeddingsSQL, vec, string(ns), topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("vector search timeout: %w", err)
		}
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.ContentID, &h.Content, &h.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	s.logger.Debug("vector search", "namespace", ns, "top_k", topK, "hits", len(hits))
	return hits, nil
}

func (s *Store) insert(ctx context.Context, ns Namespace, contentID, content string, values []float32) error {
	if len(values) == 0 {
		return fmt.Errorf("empty embedding for %q", contentID)
	}
	vec := pgvector.NewVector(values)
	if _, err := s.db.Exec(ctx, insertEmbeddingSQL, string(ns), contentID, content, vec); err != nil {
		return fmt.Errorf("inserting embedding for %q: %w", contentID, err)
	}
	s.logger.Debug("indexed embedding", "namespace", ns, "content_id", contentID, "dimension", len(values))
	return nil
}

func validateIndexInput(ns Namespace, contentID string) error {
	if !ns.Valid() {
		return fmt.Errorf("invalid namespace %q", ns)
	}
	if contentID == "" {
		return errors.New("contentID must not be empty")
	}
	return nil
}
