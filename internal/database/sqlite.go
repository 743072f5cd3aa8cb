package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shelf/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Operation statuses recorded in the journal.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Clock supplies timestamps for journal rows.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Operation is one journal entry: a mutating command run against the library.
type Operation struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Operation  string
	Parameters string
	Status     string
	Message    string
}

// Backup records a completed upload of the library to a vault.
type Backup struct {
	ID              int64
	OperationID     sql.NullInt64
	Vault           string
	ManifestVersion int64
	Files           int
	Uploaded        int
	Bytes           int64
	CreatedAt       time.Time
}

// SQLiteDatabase is the operation journal, stored in SQLite.
type SQLiteDatabase struct {
	db    *sql.DB
	path  string
	clock Clock
}

// NewSQLiteDatabase opens the journal at path, which can be a file path or
// ":memory:". The schema is not touched; call Migrate or CheckMigrations.
// A nil clock uses the system time.
func NewSQLiteDatabase(path string, clock Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &SQLiteDatabase{db: db, path: path, clock: clock}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the journal relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// Operation journal

const operationColumns = `id, started_at, finished_at, operation, parameters, status, message`

func scanOperation(row interface{ Scan(...any) error }) (*Operation, error) {
	var op Operation
	err := row.Scan(&op.ID, &op.StartedAt, &op.FinishedAt, &op.Operation, &op.Parameters, &op.Status, &op.Message)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CreateOperation starts a journal entry in the running state.
func (s *SQLiteDatabase) CreateOperation(operation, parameters string) (*Operation, error) {
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO operations (started_at, operation, parameters, status) VALUES (?, ?, ?, ?)`,
		s.clock.Now().UTC(), operation, parameters, StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	op, err := s.FindOperation(id)
	if err != nil {
		return nil, err
	}
	if op == nil {
		return nil, fmt.Errorf("creating operation: row %d vanished", id)
	}
	return op, nil
}

// FinishOperation stamps the entry with its final status and message.
func (s *SQLiteDatabase) FinishOperation(id int64, status, message string) error {
	res, err := s.db.ExecContext(context.Background(),
		`UPDATE operations SET finished_at = ?, status = ?, message = ? WHERE id = ?`,
		s.clock.Now().UTC(), status, message, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing operation: no operation with id %d", id)
	}
	return nil
}

// FindOperation returns the entry with the given id, or nil if there is none.
func (s *SQLiteDatabase) FindOperation(id int64) (*Operation, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT `+operationColumns+` FROM operations WHERE id = ?`, id)
	op, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding operation: %w", err)
	}
	return op, nil
}

// ListOperations returns up to limit entries, newest first.
func (s *SQLiteDatabase) ListOperations(limit int) ([]*Operation, error) {
	rows, err := s.db.QueryContext(context.Background(),
		`SELECT `+operationColumns+` FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("listing operations: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	return ops, nil
}

// MaxOperationID returns the id of the newest entry, or 0 for an empty journal.
func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	var id int64
	err := s.db.QueryRowContext(context.Background(),
		`SELECT COALESCE(MAX(id), 0) FROM operations`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Backup records

// RecordBackup stores a completed backup. A zero OperationID is stored as NULL.
func (s *SQLiteDatabase) RecordBackup(b *Backup) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.clock.Now().UTC()
	}
	res, err := s.db.ExecContext(context.Background(),
		`INSERT INTO backups (operation_id, vault, manifest_version, files, uploaded, bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.OperationID, b.Vault, b.ManifestVersion, b.Files, b.Uploaded, b.Bytes, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording backup: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording backup: %w", err)
	}
	b.ID = id
	return nil
}

// LatestBackup returns the newest backup recorded for vault, or nil if there
// is none.
func (s *SQLiteDatabase) LatestBackup(vault string) (*Backup, error) {
	var b Backup
	err := s.db.QueryRowContext(context.Background(),
		`SELECT id, operation_id, vault, manifest_version, files, uploaded, bytes, created_at
		 FROM backups WHERE vault = ? ORDER BY manifest_version DESC LIMIT 1`, vault).
		Scan(&b.ID, &b.OperationID, &b.Vault, &b.ManifestVersion, &b.Files, &b.Uploaded, &b.Bytes, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding latest backup: %w", err)
	}
	return &b, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Migrate brings the schema up to date.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo writes a complete copy of the database to destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
