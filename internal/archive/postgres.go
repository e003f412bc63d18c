package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/engramdev/engram/pkg/memory"
	"github.com/engramdev/engram/pkg/types"
)

// postgresSchema creates the archive tables. Embeddings are always stored
// as JSONB for portability; when the pgvector extension is present an
// additional untyped vector column enables server-side cosine search.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    memory_type TEXT NOT NULL,
    key TEXT,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    last_accessed_at TIMESTAMPTZ NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    importance DOUBLE PRECISION NOT NULL DEFAULT 0,
    tags JSONB,
    session_id TEXT,
    embedding JSONB,
    related_ids JSONB
);

CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    title TEXT NOT NULL,
    content JSONB,
    opened_at TIMESTAMPTZ NOT NULL,
    sealed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_items_memory_type ON items(memory_type);
`

// postgresVectorMigration adds the pgvector column when the extension is
// available. Safe to run multiple times.
const postgresVectorMigration = `
DO $$
BEGIN
    IF NOT EXISTS (
        SELECT 1 FROM information_schema.columns
        WHERE table_name = 'items' AND column_name = 'embedding_vec'
    ) THEN
        ALTER TABLE items ADD COLUMN embedding_vec vector;
    END IF;
END
$$;
`

// PostgresArchive implements the archive over PostgreSQL with optional
// pgvector support for server-side similarity search.
type PostgresArchive struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// OpenPostgres connects to the archive database and applies the schema.
// The pgvector extension is probed, never required: without it the archive
// works normally and only SearchSimilar is unavailable.
func OpenPostgres(dsn string) (*PostgresArchive, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach postgres archive: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}

	a := &PostgresArchive{db: db}
	if _, err := db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err == nil {
		if _, err := db.Exec(postgresVectorMigration); err == nil {
			a.pgvectorAvailable = true
		} else {
			log.Printf("WARNING: pgvector migration failed, vector search disabled: %v", err)
		}
	} else {
		log.Printf("archive: pgvector extension unavailable, vector search disabled: %v", err)
	}
	return a, nil
}

// SaveItem upserts a memory item. When pgvector is available the embedding
// is also written to the vector column.
func (a *PostgresArchive) SaveItem(ctx context.Context, item *types.MemoryItem) error {
	tags, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("failed to serialize tags: %w", err)
	}
	embedding, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}
	related, err := json.Marshal(item.RelatedIDs)
	if err != nil {
		return fmt.Errorf("failed to serialize related ids: %w", err)
	}

	if a.pgvectorAvailable && len(item.Embedding) > 0 {
		query := `
			INSERT INTO items (id, memory_type, key, content, created_at, last_accessed_at,
			                   access_count, importance, tags, session_id, embedding, related_ids, embedding_vec)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				last_accessed_at = excluded.last_accessed_at,
				access_count = excluded.access_count,
				importance = excluded.importance,
				tags = excluded.tags,
				embedding = excluded.embedding,
				related_ids = excluded.related_ids,
				embedding_vec = excluded.embedding_vec
		`
		_, err = a.db.ExecContext(ctx, query,
			item.ID, string(item.MemoryType), item.Key, item.Content,
			item.CreatedAt, item.LastAccessedAt, item.AccessCount, item.Importance,
			string(tags), item.SessionID, string(embedding), string(related),
			pgvector.NewVector(item.Embedding))
		if err == nil {
			return nil
		}
		// Vector store failed; fall through to the JSON-only path and log.
		log.Printf("WARNING: failed to store embedding_vec for %s, storing JSON only: %v", item.ID, err)
	}

	query := `
		INSERT INTO items (id, memory_type, key, content, created_at, last_accessed_at,
		                   access_count, importance, tags, session_id, embedding, related_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			last_accessed_at = excluded.last_accessed_at,
			access_count = excluded.access_count,
			importance = excluded.importance,
			tags = excluded.tags,
			embedding = excluded.embedding,
			related_ids = excluded.related_ids
	`
	_, err = a.db.ExecContext(ctx, query,
		item.ID, string(item.MemoryType), item.Key, item.Content,
		item.CreatedAt, item.LastAccessedAt, item.AccessCount, item.Importance,
		string(tags), item.SessionID, string(embedding), string(related))
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// SaveEpisode upserts a sealed episode.
func (a *PostgresArchive) SaveEpisode(ctx context.Context, ep *types.Episode) error {
	content, err := json.Marshal(ep.Content)
	if err != nil {
		return fmt.Errorf("failed to serialize episode content: %w", err)
	}

	query := `
		INSERT INTO episodes (id, session_id, title, content, opened_at, sealed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			sealed_at = excluded.sealed_at
	`
	_, err = a.db.ExecContext(ctx, query,
		ep.ID, ep.SessionID, ep.Title, string(content), ep.OpenedAt, ep.SealedAt)
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

// LoadItems returns all archived items.
func (a *PostgresArchive) LoadItems(ctx context.Context) ([]*types.MemoryItem, error) {
	query := `
		SELECT id, memory_type, key, content, created_at, last_accessed_at,
		       access_count, importance, tags, session_id, embedding, related_ids
		FROM items
	`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	var items []*types.MemoryItem
	for rows.Next() {
		var item types.MemoryItem
		var memoryType string
		var tags, embedding, related []byte
		if err := rows.Scan(&item.ID, &memoryType, &item.Key, &item.Content,
			&item.CreatedAt, &item.LastAccessedAt, &item.AccessCount, &item.Importance,
			&tags, &item.SessionID, &embedding, &related); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.MemoryType = types.MemoryType(memoryType)
		if err := json.Unmarshal(tags, &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to parse item tags: %w", err)
		}
		if err := json.Unmarshal(embedding, &item.Embedding); err != nil {
			return nil, fmt.Errorf("failed to parse item embedding: %w", err)
		}
		if err := json.Unmarshal(related, &item.RelatedIDs); err != nil {
			return nil, fmt.Errorf("failed to parse item related ids: %w", err)
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

// LoadEpisodes returns all archived episodes.
func (a *PostgresArchive) LoadEpisodes(ctx context.Context) ([]*types.Episode, error) {
	query := `SELECT id, session_id, title, content, opened_at, sealed_at FROM episodes`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*types.Episode
	for rows.Next() {
		var ep types.Episode
		var content []byte
		if err := rows.Scan(&ep.ID, &ep.SessionID, &ep.Title, &content, &ep.OpenedAt, &ep.SealedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		if err := json.Unmarshal(content, &ep.Content); err != nil {
			return nil, fmt.Errorf("failed to parse episode content: %w", err)
		}
		episodes = append(episodes, ep.Clone())
	}
	return episodes, rows.Err()
}

// SearchSimilar returns the ids of up to limit archived items nearest to
// the query vector by cosine distance, using the pgvector index. Returns
// an error when pgvector is unavailable; the in-memory retrieval path is
// the fallback.
func (a *PostgresArchive) SearchSimilar(ctx context.Context, vec []float32, limit int) ([]string, error) {
	if !a.pgvectorAvailable {
		return nil, fmt.Errorf("pgvector extension is not available")
	}

	query := `
		SELECT id
		FROM items
		WHERE embedding_vec IS NOT NULL
		ORDER BY embedding_vec <=> $1
		LIMIT $2
	`
	rows, err := a.db.QueryContext(ctx, query, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search embeddings: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (a *PostgresArchive) Close() error {
	return a.db.Close()
}

var _ memory.Archiver = (*PostgresArchive)(nil)
