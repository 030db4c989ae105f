package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harun/magpie/internal/config"
)

func init() {
	// Auto-register sqlite-vec extension
	sqlite_vec.Auto()
}

// SQLiteStore is the local backend. It embeds text itself, so a raw text
// query is enough to search it.
type SQLiteStore struct {
	name     string
	db       *sql.DB
	embedder Embedder
	logger   zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at the configured path.
func NewSQLiteStore(entry config.VectorProviderConfig, embedder Embedder, logger zerolog.Logger) (*SQLiteStore, error) {
	if entry.Path == "" {
		return nil, fmt.Errorf("sqlite store requires a path")
	}
	if embedder == nil {
		return nil, fmt.Errorf("sqlite store requires an embedding engine")
	}

	db, err := sql.Open("sqlite3", entry.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL keeps reads cheap while the slot loop writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{
		name:     entry.Name,
		db:       db,
		embedder: embedder,
		logger:   logger.With().Str("store", entry.Name).Logger(),
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			metadata TEXT
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	vectorSchema := fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS embeddings USING vec0(
			document_id TEXT PRIMARY KEY,
			embedding float[%d] distance_metric=cosine
		);
	`, s.embedder.Dimensions())
	if _, err := s.db.Exec(vectorSchema); err != nil {
		return fmt.Errorf("failed to create vector table: %w", err)
	}

	return nil
}

// Name returns the configured store name.
func (s *SQLiteStore) Name() string { return s.name }

// Kind identifies this as a text-consuming store.
func (s *SQLiteStore) Kind() string { return KindLocal }

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Add inserts documents, embedding their text unless vectors were supplied.
func (s *SQLiteStore) Add(ctx context.Context, docs []Document, embeddings [][]float32) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	if embeddings != nil && len(embeddings) != len(docs) {
		return nil, fmt.Errorf("got %d embeddings for %d documents", len(embeddings), len(docs))
	}

	if embeddings == nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Text
		}
		var err error
		embeddings, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("failed to embed documents: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ids := make([]string, 0, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d has no id", i)
		}

		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO documents (id, content, metadata) VALUES (?, ?, ?)`,
			doc.ID, doc.Text, string(meta)); err != nil {
			return nil, fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
		}

		vec, err := json.Marshal(embeddings[i])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal embedding for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM embeddings WHERE document_id = ?`, doc.ID); err != nil {
			return nil, fmt.Errorf("failed to replace embedding for %s: %w", doc.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO embeddings (document_id, embedding) VALUES (?, ?)`,
			doc.ID, string(vec)); err != nil {
			return nil, fmt.Errorf("failed to insert embedding for %s: %w", doc.ID, err)
		}

		ids = append(ids, doc.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Documents added")
	return ids, nil
}

// Search embeds the text query and ranks stored documents by cosine
// similarity. The metadata filter is applied after ranking.
func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]Match, error) {
	if q.Text == "" {
		return nil, fmt.Errorf("sqlite store requires a text query")
	}
	topK := q.TopK
	if topK <= 0 {
		topK = 5
	}

	embedding, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	vec, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query embedding: %w", err)
	}

	// Over-fetch when a filter is set so post-filtering can still fill topK
	limit := topK
	if len(q.Filter) > 0 {
		limit = topK * 4
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.content, d.metadata,
			vec_distance_cosine(e.embedding, ?) AS distance
		FROM embeddings e
		JOIN documents d ON d.id = e.document_id
		ORDER BY distance ASC
		LIMIT ?
	`, string(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			doc      Document
			metaJSON sql.NullString
			distance float64
		)
		if err := rows.Scan(&doc.ID, &doc.Text, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &doc.Metadata); err != nil {
				s.logger.Warn().Err(err).Str("id", doc.ID).Msg("Skipping document with bad metadata")
				continue
			}
		}
		if !matchesFilter(doc.Metadata, q.Filter) {
			continue
		}

		matches = append(matches, Match{Document: doc, Score: 1.0 - distance})
		if len(matches) >= topK {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search iteration failed: %w", err)
	}

	return matches, nil
}

// Get returns the document with the given id, or nil when unknown.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Document, error) {
	var (
		doc      Document
		metaJSON sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Text, &metaJSON)
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

// Delete removes the given documents and their embeddings.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
			return false, fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, id); err != nil {
			return false, fmt.Errorf("failed to delete embedding %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// matchesFilter reports whether metadata satisfies every filter entry.
func matchesFilter(metadata, filter map[string]string) bool {
	for k, want := range filter {
		if metadata[k] != want {
			return false
		}
	}
	return true
}
