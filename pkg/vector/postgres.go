package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
)

// PostgresStore is the remote backend, backed by pgvector. It stores
// precomputed embeddings and requires the query to carry one; it cannot
// consume a raw text query.
type PostgresStore struct {
	name   string
	db     *sql.DB
	table  string
	dims   int
	logger zerolog.Logger
}

// NewPostgresStore connects to the configured database and ensures the
// document table exists.
func NewPostgresStore(entry config.VectorProviderConfig, dims int, logger zerolog.Logger) (*PostgresStore, error) {
	if entry.DSN == "" {
		return nil, fmt.Errorf("postgres store requires a dsn")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("postgres store requires the embedding dimension")
	}

	table := entry.Table
	if table == "" {
		table = "magpie_documents"
	}
	if !validTableName(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("postgres", entry.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &PostgresStore{
		name:   entry.Name,
		db:     db,
		table:  table,
		dims:   dims,
		logger: logger.With().Str("store", entry.Name).Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) initSchema() error {
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL
		)
	`, s.table, s.dims)
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Name returns the configured store name.
func (s *PostgresStore) Name() string { return s.name }

// Kind identifies this as an embedding-consuming store.
func (s *PostgresStore) Kind() string { return KindRemote }

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// Add upserts documents with their precomputed embeddings. The remote
// store does not embed text itself.
func (s *PostgresStore) Add(ctx context.Context, docs []Document, embeddings [][]float32) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("remote store requires one embedding per document, got %d for %d", len(embeddings), len(docs))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.table)

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query,
			doc.ID, doc.Text, string(meta), pgvector.NewVector(embeddings[i])); err != nil {
			return nil, fmt.Errorf("failed to upsert document %s: %w", doc.ID, err)
		}
		ids = append(ids, doc.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Documents added")
	return ids, nil
}

// Search ranks documents by cosine similarity against the query embedding.
func (s *PostgresStore) Search(ctx context.Context, q Query) ([]Match, error) {
	if len(q.Embedding) == 0 {
		return nil, fmt.Errorf("postgres store requires a query embedding")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}

	var (
		where string
		args  = []any{pgvector.NewVector(q.Embedding), topK}
	)
	if len(q.Filter) > 0 {
		meta, err := json.Marshal(q.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		where = "WHERE metadata @> $3"
		args = append(args, string(meta))
	}

	query := fmt.Sprintf(`
		SELECT id, content, metadata,
			1 - (embedding <=> $1) AS similarity
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $2
	`, s.table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			doc      Document
			metaJSON sql.NullString
			score    float64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &metaJSON, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
				s.logger.Warn().Err(err).Str("id", doc.ID).Msg("Skipping document with bad metadata")
				continue
			}
		}
		matches = append(matches, Match{Document: doc, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search iteration failed: %w", err)
	}

	return matches, nil
}

// Get returns the document with the given id, or nil when unknown.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Document, error) {
	var (
		doc      Document
		metaJSON sql.NullString
	)
	query := fmt.Sprintf(`SELECT id, content, metadata FROM %s WHERE id = $1`, s.table)
	err := s.db.QueryRowContext(ctx, query, id).Scan(&doc.ID, &doc.Text, &metaJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to parse metadata for %s: %w", id, err)
		}
	}
	return &doc, nil
}

// Delete removes the given documents.
func (s *PostgresStore) Delete(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table)
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return false, fmt.Errorf("failed to delete documents: %w", err)
	}
	return true, nil
}

// validTableName rejects anything that cannot be safely interpolated into
// the schema statements.
func validTableName(name string) bool {
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return name != ""
}
