// Package store provides the single embedded database backing the
// embedding cache, the FTS pre-filter index, and tool-result chunks. The
// default backend is a pure-Go SQLite file; a Postgres alternate is
// available for deployments that already run one.
//
// Grounded on the reference agent runtime's sqlite-vec memory backend
// (IEEE-754 float32 blob encoding, scope-filtered queries, cosine
// similarity) generalized from a single memories table into three
// purpose-built tables, and opened through the bounded connection pool
// instead of a bare *sql.DB.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/ryn-shv/clawdbot-smart-context-sub000/internal/concurrency"

	_ "modernc.org/sqlite"
)

// Config selects and configures the backing database.
type Config struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string
	// DSN is the sqlite file path (or ":memory:") or the postgres
	// connection string.
	DSN string
	// PoolSize bounds concurrent connections acquired through Pool.
	PoolSize int
}

// Store is the unified persistence layer for the selection pipeline.
type Store struct {
	driver string
	pool   *concurrency.Pool
	db     *sql.DB
}

// Open opens (and migrates) the configured database, returning a ready
// Store. The returned Store must be closed.
func Open(cfg Config) (*Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}
	dsn := cfg.DSN
	if dsn == "" && driver == "sqlite" {
		dsn = ":memory:"
	}

	pool := concurrency.NewPool(concurrency.PoolOptions{
		MaxSize: cfg.PoolSize,
		Opener: func() (*sql.DB, error) {
			return sql.Open(driver, dsn)
		},
	})

	db, err := pool.Acquire(context.Background())
	if err != nil {
		return nil, fmt.Errorf("store: acquire initial connection: %w", err)
	}

	s := &Store{driver: driver, pool: pool, db: db}
	if err := s.migrate(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("store: enable foreign keys: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS embedding_cache (
			key TEXT PRIMARY KEY,
			embedding BLOB NOT NULL,
			dimension INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_embedding_cache_accessed ON embedding_cache(accessed_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS message_fts USING fts5(
			message_id UNINDEXED, role UNINDEXED, content
		)`,
		`CREATE TABLE IF NOT EXISTS tool_result_chunks (
			id TEXT PRIMARY KEY,
			tool_call_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_result_chunks_call ON tool_result_chunks(tool_call_id)`,
		`CREATE TABLE IF NOT EXISTS facts (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			user_id TEXT NOT NULL,
			agent_id TEXT,
			session_id TEXT,
			category TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			confidence REAL NOT NULL,
			source_id TEXT,
			embedding BLOB,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_agent ON facts(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_facts_session ON facts(session_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_user_scope_key ON facts(user_id, scope, key) WHERE key != ''`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			fact_id TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
			type TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_fact ON interactions(fact_id)`,
		`CREATE TABLE IF NOT EXISTS deferred_conflicts (
			id TEXT PRIMARY KEY,
			existing_fact_id TEXT NOT NULL REFERENCES facts(id) ON DELETE CASCADE,
			incoming_value TEXT NOT NULL,
			incoming_confidence REAL NOT NULL,
			incoming_source_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_deferred_conflicts_fact ON deferred_conflicts(existing_fact_id)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding BLOB,
			span_start TEXT,
			span_end TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summaries_scope ON summaries(scope, scope_id)`,
		`CREATE TABLE IF NOT EXISTS patterns (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			scope_id TEXT NOT NULL,
			description TEXT NOT NULL,
			occurrences INTEGER NOT NULL DEFAULT 1,
			fact_ids TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_patterns_scope ON patterns(scope, scope_id)`,
		`CREATE TABLE IF NOT EXISTS tool_results (
			id TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			session_id TEXT,
			tool_use_id TEXT,
			tool_name TEXT,
			full_text TEXT NOT NULL,
			preview_text TEXT,
			token_count INTEGER NOT NULL,
			metadata TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			accessed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tool_results_hash ON tool_results(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_results_accessed ON tool_results(accessed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for packages that need raw SQL access
// (factstore, ftsfilter, toolresult).
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the pool and the held connection.
func (s *Store) Close() error {
	s.pool.Release(s.db)
	return s.pool.Close()
}

// PutEmbedding upserts a cached embedding under key, stamping both
// created_at and accessed_at on insert.
func (s *Store) PutEmbedding(ctx context.Context, key string, vec []float32) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (key, embedding, dimension, created_at, accessed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET embedding = excluded.embedding, dimension = excluded.dimension, accessed_at = excluded.accessed_at
	`, key, encodeEmbedding(vec), len(vec), now, now)
	if err != nil {
		return fmt.Errorf("store: put embedding: %w", err)
	}
	return nil
}

// GetEmbedding returns the cached embedding for key and bumps its
// accessed_at (for LRU eviction), or returns ok=false if absent.
func (s *Store) GetEmbedding(ctx context.Context, key string) (vec []float32, ok bool, err error) {
	var blob []byte
	row := s.db.QueryRowContext(ctx, `SELECT embedding FROM embedding_cache WHERE key = ?`, key)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: get embedding: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE embedding_cache SET accessed_at = ? WHERE key = ?`, time.Now(), key); err != nil {
		return nil, false, fmt.Errorf("store: touch embedding: %w", err)
	}
	return decodeEmbedding(blob), true, nil
}

// EvictLRUEmbeddings deletes the least-recently-accessed cached embeddings
// beyond ceiling, returning the number removed.
func (s *Store) EvictLRUEmbeddings(ctx context.Context, ceiling int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM embedding_cache WHERE key IN (
			SELECT key FROM embedding_cache
			ORDER BY accessed_at ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM embedding_cache) - ?)
		)
	`, ceiling)
	if err != nil {
		return 0, fmt.Errorf("store: evict lru embeddings: %w", err)
	}
	return res.RowsAffected()
}

// DefaultEmbeddingCacheCeiling is the default LRU ceiling for the
// embedding cache.
const DefaultEmbeddingCacheCeiling = 10000

// encodeEmbedding packs a []float32 into a little-endian IEEE-754 blob.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	data := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

// decodeEmbedding unpacks a blob produced by encodeEmbedding.
func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		bits := uint32(data[i*4]) |
			uint32(data[i*4+1])<<8 |
			uint32(data[i*4+2])<<16 |
			uint32(data[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
