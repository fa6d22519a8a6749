// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, no cgo).
//
// Tables:
//
//	users            one row per account, any role
//	teacher_courses  course codes a teacher teaches
//	enrollments      a student's courses and grades, one row per (student, course)
//	activity_logs    the append-only audit trail, ordered by seq
//
// Grades live in their own rows so that a grade change is a single UPDATE
// and two concurrent changes to different courses cannot overwrite each other.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// querier is the subset of *sql.DB and *sql.Tx the helpers need, so the same
// code runs inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens the database at dbPath (":memory:" for tests) and runs migrations.
//
// The pool is limited to one connection. SQLite serializes writers anyway,
// and an in-memory database exists only on the connection that created it.
// Code holding a transaction must therefore use only that transaction.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. Every statement is idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			user_id            TEXT PRIMARY KEY,
			full_name          TEXT NOT NULL,
			encrypted_email    TEXT NOT NULL,
			email_iv           TEXT NOT NULL,
			password_hash      TEXT NOT NULL DEFAULT '',
			role               TEXT NOT NULL,
			qr_token           TEXT NOT NULL UNIQUE,
			class              TEXT NOT NULL DEFAULT '',
			linked_student_id  TEXT NOT NULL DEFAULT '',
			created_at         DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Columns added after the first release.
	for _, col := range []struct{ name, def string }{
		{"linked_student_name", "TEXT NOT NULL DEFAULT ''"},
		{"linked_student_class", "TEXT NOT NULL DEFAULT ''"},
		{"deletion_requested", "INTEGER NOT NULL DEFAULT 0"},
		{"last_login", "DATETIME"},
	} {
		if err := db.addColumnIfNotExists("users", col.name, col.def); err != nil {
			return fmt.Errorf("adding %s to users: %w", col.name, err)
		}
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS teacher_courses (
			teacher_id  TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			course_code TEXT NOT NULL,
			PRIMARY KEY (teacher_id, course_code)
		);
		CREATE INDEX IF NOT EXISTS idx_teacher_courses_code ON teacher_courses(course_code);
	`)
	if err != nil {
		return fmt.Errorf("creating teacher_courses table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS enrollments (
			student_id  TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
			course_code TEXT NOT NULL,
			course_name TEXT NOT NULL DEFAULT '',
			teacher     TEXT NOT NULL DEFAULT '',
			grade       TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (student_id, course_code)
		);
		CREATE INDEX IF NOT EXISTS idx_enrollments_code ON enrollments(course_code);
	`)
	if err != nil {
		return fmt.Errorf("creating enrollments table: %w", err)
	}

	// ts is unix nanoseconds so the value fed to the digest round-trips exactly.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS activity_logs (
			seq       INTEGER PRIMARY KEY AUTOINCREMENT,
			id        TEXT NOT NULL UNIQUE,
			user_id   TEXT NOT NULL,
			role      TEXT NOT NULL,
			action    TEXT NOT NULL,
			ts        INTEGER NOT NULL,
			hash      TEXT NOT NULL,
			prev_hash TEXT NOT NULL DEFAULT '',
			scheme    TEXT NOT NULL DEFAULT 'action'
		);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_ts ON activity_logs(ts);
		CREATE INDEX IF NOT EXISTS idx_activity_logs_user ON activity_logs(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating activity_logs table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// inTx runs fn in a transaction, committing on success.
func (db *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}
