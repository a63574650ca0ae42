package journal

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by Get for an unknown entry.
var ErrNotFound = errors.New("journal entry not found")

const columns = `id, time, user_id, account_id, operation, target, accepted, status, http_status, attempts, message`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	err := s.Scan(
		&e.ID,
		&e.Time,
		&e.UserID,
		&e.AccountID,
		&e.Operation,
		&e.Target,
		&e.Accepted,
		&e.Status,
		&e.HTTPStatus,
		&e.Attempts,
		&e.Message,
	)
	return e, err
}

// Get returns a single entry by ID.
func (j *SQLite) Get(ctx context.Context, entryID string) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+columns+` FROM executions WHERE id = ?`, entryID)
	e, err := scanEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, errors.Wrapf(ErrNotFound, "entry %q", entryID)
		}
		return Entry{}, errors.Wrap(err, "get entry")
	}
	return e, nil
}

// ListBetween returns entries whose time is within [start, end), oldest first.
func (j *SQLite) ListBetween(ctx context.Context, start, end time.Time) ([]Entry, error) {
	return j.list(ctx, `
		SELECT `+columns+` FROM executions
		WHERE time >= ? AND time < ?
		ORDER BY time ASC, id ASC`, start.UTC(), end.UTC())
}

// ListByAccount returns the newest entries for an upstream account. A limit
// of zero or less returns all of them.
func (j *SQLite) ListByAccount(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	return j.list(ctx, `
		SELECT `+columns+` FROM executions
		WHERE account_id = ?
		ORDER BY time DESC, id DESC
		LIMIT ?`, accountID, limit)
}

func (j *SQLite) list(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query entries")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
