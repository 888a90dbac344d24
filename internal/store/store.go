// Package store persists tasks and restrictions in SQLite and publishes a
// change event after every committed write. It is the collaborator boundary:
// the engine only ever sees typed records, never raw rows.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/model"
)

// Store holds the SQLite handle for task and restriction records.
type Store struct {
	path string
	sql  *sql.DB
	feed *feed.Feed
}

// Open initializes the database at path, creating parent directories and the
// schema as needed. The database is authoritative, so a schema version from a
// different release is an error rather than a silent recreate. events may be
// nil when no consumer cares about change notifications.
func Open(ctx context.Context, path string, events *feed.Feed) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	if path == "" {
		return nil, errors.New("open store: path is empty")
	}

	dbPath := filepath.Clean(path)

	err := os.MkdirAll(filepath.Dir(dbPath), 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create directory: %w", err)
	}

	db, err := openSQLite(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	version, err := storedSchemaVersion(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	switch version {
	case schemaVersion:
	case 0:
		// Fresh database.
		err = createSchema(ctx, db)
		if err != nil {
			_ = db.Close()

			return nil, fmt.Errorf("open store: %w", err)
		}
	default:
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w: database has schema version %d, this build expects %d",
			ErrSchemaVersion, version, schemaVersion)
	}

	return &Store{path: dbPath, sql: db, feed: events}, nil
}

// Close releases the SQLite handle opened by Open.
func (s *Store) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}

	err := s.sql.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

// publish emits a change event if a feed is attached.
func (s *Store) publish(table, kind, recordID string) {
	if s.feed == nil {
		return
	}

	s.feed.Publish(feed.Event{Table: table, Kind: kind, RecordID: recordID})
}

// unavailable wraps a collaborator I/O failure so callers can detect it with
// errors.Is and retry. Store failures are transient, never fatal.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, model.ErrStoreUnavailable, err)
}
