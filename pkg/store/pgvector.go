// Package store persists pipeline results in PostgreSQL, keeping the
// embedding of every unique document in a pgvector column so related
// documents can be looked up after the run.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog"
	"github.com/xhad/neardup/internal/models"
)

const (
	DefaultTableName   = "results"
	DefaultVectorDim   = 768 // nomic-embed-text
	DefaultBatchSize   = 100
	DefaultSearchLimit = 5
)

var (
	ErrInvalidTableName = errors.New("invalid table name")
	ErrNotFound         = errors.New("result not found")

	tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
)

// EmbeddingSource hands out the vector computed for a stored unique document.
type EmbeddingSource interface {
	EmbeddingOf(id string) ([]float32, bool)
}

type ResultStoreConfig struct {
	ConnString  string
	TableName   string
	VectorDim   int
	BatchSize   int
	SearchLimit int
	Logger      zerolog.Logger
}

// Match is a stored result ranked by cosine distance to a query vector.
type Match struct {
	URL         string  `json:"url"`
	Title       string  `json:"title"`
	Category    string  `json:"category"`
	IsDuplicate bool    `json:"is_duplicate"`
	DuplicateOf string  `json:"duplicate_of,omitempty"`
	Distance    float64 `json:"distance"`
}

type ResultStore struct {
	config     ResultStoreConfig
	table      string
	pool       *pgxpool.Pool
	embeddings EmbeddingSource
	logger     zerolog.Logger
}

// NewWithConfig connects, creates the vector extension, table and index when
// missing. embeddings may be nil, in which case rows are stored without a
// vector.
func NewWithConfig(ctx context.Context, config ResultStoreConfig, embeddings EmbeddingSource) (*ResultStore, error) {
	config = withDefaults(config)
	if !tableNamePattern.MatchString(config.TableName) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, config.TableName)
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &ResultStore{
		config:     config,
		table:      pgx.Identifier{config.TableName}.Sanitize(),
		pool:       pool,
		embeddings: embeddings,
		logger:     config.Logger,
	}

	if err := s.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func withDefaults(config ResultStoreConfig) ResultStoreConfig {
	if config.TableName == "" {
		config.TableName = DefaultTableName
	}
	if config.VectorDim <= 0 {
		config.VectorDim = DefaultVectorDim
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.SearchLimit <= 0 {
		config.SearchLimit = DefaultSearchLimit
	}
	return config
}

func (s *ResultStore) initialize(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	if _, err := s.pool.Exec(ctx, createTableSQL(s.table, s.config.VectorDim)); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	if _, err := s.pool.Exec(ctx, createIndexSQL(s.table, s.config.TableName)); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

func createTableSQL(table string, dim int) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			url TEXT PRIMARY KEY,
			run_id TEXT,
			title TEXT,
			content TEXT,
			language TEXT,
			status TEXT NOT NULL,
			error TEXT,
			category TEXT,
			summary TEXT,
			minhash_score DOUBLE PRECISION,
			simhash_score INTEGER,
			embedding_score DOUBLE PRECISION,
			is_duplicate BOOLEAN NOT NULL DEFAULT FALSE,
			duplicate_of TEXT,
			method TEXT,
			similarity DOUBLE PRECISION,
			embedding vector(%d),
			processed_at TIMESTAMPTZ NOT NULL
		)`, table, dim)
}

func createIndexSQL(table, name string) string {
	return fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		pgx.Identifier{name + "_embedding_idx"}.Sanitize(), table)
}

func upsertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (url, run_id, title, content, language, status, error,
			category, summary, minhash_score, simhash_score, embedding_score,
			is_duplicate, duplicate_of, method, similarity, embedding, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (url) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			language = EXCLUDED.language,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			category = EXCLUDED.category,
			summary = EXCLUDED.summary,
			minhash_score = EXCLUDED.minhash_score,
			simhash_score = EXCLUDED.simhash_score,
			embedding_score = EXCLUDED.embedding_score,
			is_duplicate = EXCLUDED.is_duplicate,
			duplicate_of = EXCLUDED.duplicate_of,
			method = EXCLUDED.method,
			similarity = EXCLUDED.similarity,
			embedding = COALESCE(EXCLUDED.embedding, %s.embedding),
			processed_at = EXCLUDED.processed_at`,
		table, table)
}

// Store upserts results by URL in one transaction, sending BatchSize rows
// per round trip.
func (s *ResultStore) Store(ctx context.Context, results []models.Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := upsertSQL(s.table)
	for start := 0; start < len(results); start += s.config.BatchSize {
		end := min(start+s.config.BatchSize, len(results))

		batch := &pgx.Batch{}
		for _, result := range results[start:end] {
			batch.Queue(stmt, s.rowArgs(result)...)
		}

		if err := sendBatch(ctx, tx, batch); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Debug().Int("rows", len(results)).Str("table", s.config.TableName).Msg("stored results")
	return nil
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

func (s *ResultStore) rowArgs(r models.Result) []any {
	processedAt := r.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now().UTC()
	}

	return []any{
		r.URL,
		nullable(r.RunID),
		sanitizeUTF8(r.Title),
		sanitizeUTF8(r.Content),
		nullable(r.Language),
		r.Status,
		nullable(r.Error),
		nullable(r.Category),
		nullable(sanitizeUTF8(r.Summary)),
		r.MinHashScore,
		r.SimHashScore,
		r.EmbeddingScore,
		r.IsDuplicate,
		nullable(r.DuplicateOf),
		nullable(r.Method),
		r.Similarity,
		s.vectorArg(r.URL),
		processedAt,
	}
}

// vectorArg returns the stored embedding for url, or nil for SQL NULL when
// there is none or its dimension does not fit the column.
func (s *ResultStore) vectorArg(url string) any {
	if s.embeddings == nil {
		return nil
	}
	vector, ok := s.embeddings.EmbeddingOf(url)
	if !ok {
		return nil
	}
	if len(vector) != s.config.VectorDim {
		s.logger.Warn().
			Str("url", url).
			Int("dimension", len(vector)).
			Int("column_dimension", s.config.VectorDim).
			Msg("embedding dimension mismatch, storing without vector")
		return nil
	}
	return pgvector.NewVector(vector)
}

// Query returns the stored results nearest to vector by cosine distance.
func (s *ResultStore) Query(ctx context.Context, vector []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	query := fmt.Sprintf(`
		SELECT url, COALESCE(title, ''), COALESCE(category, ''), is_duplicate,
			COALESCE(duplicate_of, ''), embedding <=> $1
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`,
		s.table)

	rows, err := s.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	return scanMatches(rows)
}

// Similar returns the results nearest to the stored embedding of url,
// excluding url itself. ErrNotFound is returned when url has no stored
// embedding.
func (s *ResultStore) Similar(ctx context.Context, url string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = s.config.SearchLimit
	}

	var target pgvector.Vector
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT embedding FROM %s WHERE url = $1 AND embedding IS NOT NULL", s.table),
		url,
	).Scan(&target)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT url, COALESCE(title, ''), COALESCE(category, ''), is_duplicate,
			COALESCE(duplicate_of, ''), embedding <=> $1
		FROM %s
		WHERE embedding IS NOT NULL AND url <> $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		s.table)

	rows, err := s.pool.Query(ctx, query, target, url, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar results: %w", err)
	}
	return scanMatches(rows)
}

func scanMatches(rows pgx.Rows) ([]Match, error) {
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.URL, &m.Title, &m.Category, &m.IsDuplicate, &m.DuplicateOf, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return matches, nil
}

func (s *ResultStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sanitizeUTF8 drops invalid bytes, which postgres rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
