// Package store keeps the mapping from a user's account reference to the
// upstream trading account and its bridge password.
package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/rustyeddy/gateway/broker"
)

const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	user_id TEXT NOT NULL,
	account_ref TEXT NOT NULL,
	upstream_account_id TEXT NOT NULL,
	password TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (user_id, account_ref)
);
`

// Account is a stored account mapping.
type Account struct {
	UserID            string
	AccountRef        string
	UpstreamAccountID string
	Password          *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open account store")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create account schema")
	}
	return &SQLite{db: db, now: time.Now}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Lookup resolves a user's account reference. The reference may be either
// the user's own label or the upstream account id.
func (s *SQLite) Lookup(ctx context.Context, userID, accountRef string) (broker.Account, error) {
	var (
		upstream string
		password sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT upstream_account_id, password FROM accounts
		WHERE user_id = ? AND (account_ref = ? OR upstream_account_id = ?)
		ORDER BY account_ref = ? DESC
		LIMIT 1`, userID, accountRef, accountRef, accountRef).Scan(&upstream, &password)
	if err == sql.ErrNoRows {
		return broker.Account{}, broker.NewError(broker.KindNotFound, "account "+accountRef+" not found")
	}
	if err != nil {
		return broker.Account{}, errors.Wrap(err, "lookup account")
	}

	acct := broker.Account{UpstreamAccountID: upstream}
	if password.Valid {
		p := password.String
		acct.Password = &p
	}
	return acct, nil
}

// Upsert stores a, keeping the original creation time on update.
func (s *SQLite) Upsert(ctx context.Context, a Account) error {
	a.UserID = strings.TrimSpace(a.UserID)
	a.AccountRef = strings.TrimSpace(a.AccountRef)
	a.UpstreamAccountID = strings.TrimSpace(a.UpstreamAccountID)
	if a.UserID == "" || a.AccountRef == "" || a.UpstreamAccountID == "" {
		return errors.New("user id, account ref and upstream account id are required")
	}

	var password sql.NullString
	if a.Password != nil {
		password = sql.NullString{String: *a.Password, Valid: true}
	}
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, account_ref, upstream_account_id, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, account_ref) DO UPDATE SET
			upstream_account_id = excluded.upstream_account_id,
			password = excluded.password,
			updated_at = excluded.updated_at`,
		a.UserID, a.AccountRef, a.UpstreamAccountID, password, now, now)
	return errors.Wrapf(err, "upsert account %s/%s", a.UserID, a.AccountRef)
}

// List returns the accounts of userID, or every account when userID is empty.
// Passwords are never returned.
func (s *SQLite) List(ctx context.Context, userID string) ([]Account, error) {
	q := `SELECT user_id, account_ref, upstream_account_id, password IS NOT NULL AND password != '', created_at, updated_at FROM accounts`
	var args []any
	if userID != "" {
		q += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	q += ` ORDER BY user_id, account_ref`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list accounts")
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var (
			a           Account
			hasPassword bool
		)
		if err := rows.Scan(&a.UserID, &a.AccountRef, &a.UpstreamAccountID, &hasPassword, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan account")
		}
		if hasPassword {
			redacted := "***"
			a.Password = &redacted
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes one account mapping.
func (s *SQLite) Delete(ctx context.Context, userID, accountRef string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = ? AND account_ref = ?`, userID, accountRef)
	if err != nil {
		return errors.Wrap(err, "delete account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return broker.NewError(broker.KindNotFound, "account "+accountRef+" not found")
	}
	return nil
}
