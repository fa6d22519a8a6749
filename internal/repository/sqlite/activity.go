package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/repository"
)

var _ repository.LogRepository = (*DB)(nil)

// DefaultLogLimit caps a listing when the filter sets no limit.
const DefaultLogLimit = 50000

const logColumns = `seq, id, user_id, role, action, ts, hash, prev_hash, scheme`

// Append inserts e after the current chain head. Reading the head and
// inserting happen in one transaction, so no two entries share a PrevHash.
func (db *DB) Append(ctx context.Context, e *model.LogEntry, seal repository.SealFunc) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var prev string
		err := tx.QueryRowContext(ctx,
			`SELECT hash FROM activity_logs ORDER BY seq DESC LIMIT 1`,
		).Scan(&prev)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("sqlite: reading chain head: %w", err)
		}

		e.PrevHash = prev
		if e.ID == "" {
			e.ID = xid.New().String()
		}
		if err := seal(e); err != nil {
			return fmt.Errorf("sqlite: sealing log entry: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO activity_logs (id, user_id, role, action, ts, hash, prev_hash, scheme)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID,
			e.UserID,
			e.Role,
			e.Action,
			e.Timestamp.UnixNano(),
			e.Hash,
			e.PrevHash,
			e.Scheme,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting log entry: %w", err)
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("sqlite: reading log seq: %w", err)
		}
		e.Seq = seq
		return nil
	})
}

// ListLogs returns entries matching filter, newest first.
func (db *DB) ListLogs(ctx context.Context, filter model.LogFilter) ([]model.LogEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Role != "" {
		where = append(where, "role = ?")
		args = append(args, filter.Role)
	}
	if filter.Action != "" {
		where = append(where, `LOWER(action) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(filter.Action))+"%")
	}
	if !filter.From.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, clampNano(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, clampNano(filter.To))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	query := `SELECT ` + logColumns + ` FROM activity_logs`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ts DESC, seq DESC LIMIT ?`
	args = append(args, limit)

	return db.queryLogs(ctx, query, args...)
}

// clampNano is t.UnixNano with out-of-range times pinned to the int64 limits.
func clampNano(t time.Time) int64 {
	switch {
	case t.Before(model.EarliestLogTime):
		return math.MinInt64
	case t.After(model.LatestLogTime):
		return math.MaxInt64
	}
	return t.UnixNano()
}

// AllLogs returns every entry in insertion order.
func (db *DB) AllLogs(ctx context.Context) ([]model.LogEntry, error) {
	return db.queryLogs(ctx, `SELECT `+logColumns+` FROM activity_logs ORDER BY seq`)
}

func (db *DB) queryLogs(ctx context.Context, query string, args ...any) ([]model.LogEntry, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing logs: %w", err)
	}
	defer rows.Close()

	entries := make([]model.LogEntry, 0)
	for rows.Next() {
		var (
			e  model.LogEntry
			ts int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &e.UserID, &e.Role, &e.Action, &ts, &e.Hash, &e.PrevHash, &e.Scheme); err != nil {
			return nil, fmt.Errorf("sqlite: scanning log entry: %w", err)
		}
		e.Timestamp = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
