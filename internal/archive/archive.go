// Package archive provides optional durable persistence for memories.
// An archive shadows the in-memory tiers: facts, concepts and sealed
// episodes are written through on store and can be reloaded on startup.
// The in-memory manager works identically with no archive at all.
package archive

import (
	"fmt"

	"github.com/engramdev/engram/pkg/memory"
)

// Open constructs an archive for the configured engine. Engine "none" (or
// empty) returns nil with no error: the caller simply runs unarchived.
func Open(engine, sqlitePath, postgresDSN string) (memory.Archiver, error) {
	switch engine {
	case "", "none":
		return nil, nil
	case "sqlite":
		return OpenSQLite(sqlitePath)
	case "postgres":
		return OpenPostgres(postgresDSN)
	default:
		return nil, fmt.Errorf("unknown archive engine %q", engine)
	}
}
