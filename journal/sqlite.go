package journal

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/rustyeddy/gateway/pkg/id"
)

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create journal schema")
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// Record inserts e, assigning an ID and time when they are unset.
func (j *SQLite) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = id.New()
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO executions
		(id, time, user_id, account_id, operation, target, accepted, status, http_status, attempts, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Time.UTC(), e.UserID, e.AccountID, e.Operation, e.Target,
		e.Accepted, e.Status, e.HTTPStatus, e.Attempts, e.Message,
	)
	return errors.Wrapf(err, "record %s %s", e.Operation, e.Target)
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
