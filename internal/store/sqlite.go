package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend keeps snapshots in a single-table SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		namespace TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		version INTEGER NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, namespace string) ([]byte, int64, error) {
	var (
		value   []byte
		version int64
	)
	err := b.db.QueryRowContext(ctx,
		`SELECT value, version FROM snapshots WHERE namespace = ?`, namespace,
	).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return value, version, nil
}

func (b *SQLiteBackend) CompareAndSwap(ctx context.Context, namespace string, data []byte, expect int64) error {
	var (
		res sql.Result
		err error
	)
	if expect == 0 {
		res, err = b.db.ExecContext(ctx,
			`INSERT INTO snapshots (namespace, value, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(namespace) DO NOTHING`,
			namespace, data, time.Now().UTC(),
		)
	} else {
		res, err = b.db.ExecContext(ctx,
			`UPDATE snapshots SET value = ?, version = version + 1, updated_at = ?
			 WHERE namespace = ? AND version = ?`,
			data, time.Now().UTC(), namespace, expect,
		)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}
