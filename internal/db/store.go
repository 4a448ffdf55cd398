package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/jwulff/sensorlog/internal/apperr"
	"github.com/jwulff/sensorlog/internal/db/migrations"
)

// Store provides access to the sensorlog SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "sensorlog", "sensorlog.sqlite")
}

// Open opens the database with WAL, creating it and applying migrations
// as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRecord inserts r in one statement and returns its id. A blank
// title or a failed write is a store error.
func (s *Store) CreateRecord(ctx context.Context, r NewRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(r.Title) == "" {
		return 0, apperr.New(apperr.CodeStore, "create record: title is required")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sensordata (title, notes, created_at, data, sensor_types)
		VALUES (?, ?, ?, ?, ?)
	`, r.Title, r.Notes, toMillis(r.CreatedAt), r.Payload, formatKinds(r.Kinds))
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "insert record", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "insert record id", err)
	}
	return id, nil
}

// UpdateRecord changes the title and notes of record id. It reports
// whether the record existed.
func (s *Store) UpdateRecord(ctx context.Context, id int64, title, notes string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if strings.TrimSpace(title) == "" {
		return false, apperr.New(apperr.CodeStore, "update record: title is required")
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sensordata SET title = ?, notes = ? WHERE _id = ?
	`, title, notes, id)
	if err != nil {
		return false, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("update record %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("update record %d", id), err)
	}
	return n > 0, nil
}

// DeleteRecord removes record id and reports whether it existed.
func (s *Store) DeleteRecord(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sensordata WHERE _id = ?`, id)
	if err != nil {
		return false, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("delete record %d", id), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("delete record %d", id), err)
	}
	return n > 0, nil
}

// ListRecords returns every record, most recent first.
func (s *Store) ListRecords(ctx context.Context) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT _id, title, notes, created_at, sensor_types
		FROM sensordata
		ORDER BY created_at DESC, _id DESC
	`)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "query records", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var r Summary
		var createdAt int64
		var kinds string
		if err := rows.Scan(&r.ID, &r.Title, &r.Notes, &createdAt, &kinds); err != nil {
			return nil, apperr.Wrap(apperr.CodeStore, "scan record", err)
		}
		r.CreatedAt = fromMillis(createdAt)
		r.Kinds = parseKinds(kinds)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "iterate records", err)
	}
	return out, nil
}

// GetRecord returns record id or a not-found error.
func (s *Store) GetRecord(ctx context.Context, id int64) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT _id, title, notes, created_at, data, sensor_types
		FROM sensordata
		WHERE _id = ?
	`, id)

	var r Record
	var createdAt int64
	var kinds string
	if err := row.Scan(&r.ID, &r.Title, &r.Notes, &createdAt, &r.Payload, &kinds); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, apperr.New(apperr.CodeNotFound, fmt.Sprintf("record %d not found", id))
		}
		return Record{}, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("scan record %d", id), err)
	}
	r.CreatedAt = fromMillis(createdAt)
	r.Kinds = parseKinds(kinds)
	return r, nil
}

// CountRecords returns the number of saved records.
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensordata`).Scan(&n); err != nil {
		return 0, apperr.Wrap(apperr.CodeStore, "count records", err)
	}
	return n, nil
}
