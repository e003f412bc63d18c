package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/engramdev/engram/pkg/memory"
	"github.com/engramdev/engram/pkg/types"
)

// sqliteSchema creates the archive tables. Variable-shape fields (tags,
// embeddings, episode content) are stored as JSON; timestamps as RFC 3339
// text so rows stay inspectable with the sqlite3 shell.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS items (
    id TEXT PRIMARY KEY,
    memory_type TEXT NOT NULL,
    key TEXT,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL,
    last_accessed_at TEXT NOT NULL,
    access_count INTEGER NOT NULL DEFAULT 0,
    importance REAL NOT NULL DEFAULT 0,
    tags TEXT,
    session_id TEXT,
    embedding TEXT,
    related_ids TEXT
);

CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    session_id TEXT,
    title TEXT NOT NULL,
    content TEXT,
    opened_at TEXT NOT NULL,
    sealed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_items_memory_type ON items(memory_type);
`

// SQLiteArchive implements the archive over a local SQLite database. The
// driver is pure Go (modernc.org/sqlite), so the archive needs no CGO.
type SQLiteArchive struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the archive database at path.
func OpenSQLite(path string) (*SQLiteArchive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite archive: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create archive schema: %w", err)
	}
	return &SQLiteArchive{db: db}, nil
}

// SaveItem upserts a memory item.
func (a *SQLiteArchive) SaveItem(ctx context.Context, item *types.MemoryItem) error {
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

	query := `
		INSERT INTO items (id, memory_type, key, content, created_at, last_accessed_at,
		                   access_count, importance, tags, session_id, embedding, related_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		item.CreatedAt.Format(time.RFC3339Nano), item.LastAccessedAt.Format(time.RFC3339Nano),
		item.AccessCount, item.Importance, string(tags), item.SessionID,
		string(embedding), string(related))
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

// SaveEpisode upserts a sealed episode.
func (a *SQLiteArchive) SaveEpisode(ctx context.Context, ep *types.Episode) error {
	content, err := json.Marshal(ep.Content)
	if err != nil {
		return fmt.Errorf("failed to serialize episode content: %w", err)
	}

	sealedAt := ""
	if ep.SealedAt != nil {
		sealedAt = ep.SealedAt.Format(time.RFC3339Nano)
	}

	query := `
		INSERT INTO episodes (id, session_id, title, content, opened_at, sealed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			sealed_at = excluded.sealed_at
	`
	_, err = a.db.ExecContext(ctx, query,
		ep.ID, ep.SessionID, ep.Title, string(content),
		ep.OpenedAt.Format(time.RFC3339Nano), sealedAt)
	if err != nil {
		return fmt.Errorf("failed to save episode: %w", err)
	}
	return nil
}

// LoadItems returns all archived items.
func (a *SQLiteArchive) LoadItems(ctx context.Context) ([]*types.MemoryItem, error) {
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
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LoadEpisodes returns all archived episodes.
func (a *SQLiteArchive) LoadEpisodes(ctx context.Context) ([]*types.Episode, error) {
	query := `SELECT id, session_id, title, content, opened_at, sealed_at FROM episodes`
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load episodes: %w", err)
	}
	defer rows.Close()

	var episodes []*types.Episode
	for rows.Next() {
		var ep types.Episode
		var content, openedAt, sealedAt string
		if err := rows.Scan(&ep.ID, &ep.SessionID, &ep.Title, &content, &openedAt, &sealedAt); err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &ep.Content); err != nil {
			return nil, fmt.Errorf("failed to parse episode content: %w", err)
		}
		if ep.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
			return nil, fmt.Errorf("failed to parse episode opened_at: %w", err)
		}
		if sealedAt != "" {
			sealed, err := time.Parse(time.RFC3339Nano, sealedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to parse episode sealed_at: %w", err)
			}
			ep.SealedAt = &sealed
		}
		episodes = append(episodes, ep.Clone())
	}
	return episodes, rows.Err()
}

// Close closes the underlying database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

// scanItem reads one items row.
func scanItem(rows *sql.Rows) (*types.MemoryItem, error) {
	var item types.MemoryItem
	var memoryType, createdAt, lastAccessedAt, tags, embedding, related string
	if err := rows.Scan(&item.ID, &memoryType, &item.Key, &item.Content,
		&createdAt, &lastAccessedAt, &item.AccessCount, &item.Importance,
		&tags, &item.SessionID, &embedding, &related); err != nil {
		return nil, fmt.Errorf("failed to scan item: %w", err)
	}

	item.MemoryType = types.MemoryType(memoryType)

	var err error
	if item.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse item created_at: %w", err)
	}
	if item.LastAccessedAt, err = time.Parse(time.RFC3339Nano, lastAccessedAt); err != nil {
		return nil, fmt.Errorf("failed to parse item last_accessed_at: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &item.Tags); err != nil {
		return nil, fmt.Errorf("failed to parse item tags: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &item.Embedding); err != nil {
		return nil, fmt.Errorf("failed to parse item embedding: %w", err)
	}
	if err := json.Unmarshal([]byte(related), &item.RelatedIDs); err != nil {
		return nil, fmt.Errorf("failed to parse item related ids: %w", err)
	}
	return &item, nil
}

var _ memory.Archiver = (*SQLiteArchive)(nil)
