package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// schemaVersion is stored in SQLite's user_version pragma.
// Increment this whenever the schema changes (tables, columns, indices).
const schemaVersion = 1

// ErrSchemaVersion marks a database created by an incompatible release.
var ErrSchemaVersion = errors.New("unsupported schema version")

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("open sqlite: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	err = applyPragmas(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return db, nil
}

// sqliteBusyTimeout is the time SQLite waits when the database is locked.
// After this, operations return SQLITE_BUSY.
const sqliteBusyTimeout = 10000 // milliseconds

// applyPragmas configures the SQLite connection using a single batch statement.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		PRAGMA busy_timeout = %d;
		PRAGMA journal_mode = WAL;
		PRAGMA synchronous = FULL;
		PRAGMA foreign_keys = ON;
		PRAGMA temp_store = MEMORY;
	`, sqliteBusyTimeout))
	if err != nil {
		return fmt.Errorf("apply pragmas: %w", err)
	}

	return nil
}

// storedSchemaVersion reads the current SQLite PRAGMA user_version.
func storedSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	row := db.QueryRowContext(ctx, "PRAGMA user_version")

	var version int

	err := row.Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}

	return version, nil
}

// createSchema creates all tables and indices on a fresh database, then
// stamps the schema version.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	statements := []string{
		`CREATE TABLE tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			project_id TEXT,
			due_date INTEGER,
			created_at INTEGER NOT NULL,
			completed_at INTEGER,
			archived INTEGER NOT NULL DEFAULT 0
		) WITHOUT ROWID`,
		`CREATE TABLE task_assignees (
			task_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (task_id, user_id)
		) WITHOUT ROWID`,
		`CREATE TABLE restrictions (
			id TEXT PRIMARY KEY,
			waiting_task_id TEXT NOT NULL,
			blocking_task_id TEXT NOT NULL,
			blocking_user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			resolved_at INTEGER,
			auto_resolved INTEGER NOT NULL DEFAULT 0
		) WITHOUT ROWID`,
		"CREATE INDEX idx_tasks_status ON tasks(status)",
		"CREATE INDEX idx_tasks_project ON tasks(project_id)",
		"CREATE INDEX idx_assignee_user ON task_assignees(user_id)",
		"CREATE INDEX idx_restr_waiting ON restrictions(waiting_task_id, status)",
		"CREATE INDEX idx_restr_blocking ON restrictions(blocking_task_id, status)",
		"CREATE INDEX idx_restr_user ON restrictions(blocking_user_id, status)",
		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}

	for i, stmt := range statements {
		_, err = tx.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}

	return nil
}

// nullStringValue extracts a string from sql.NullString, returning empty if not valid.
func nullStringValue(value sql.NullString) string {
	if !value.Valid {
		return ""
	}

	return value.String
}
