package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='executions'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "executions", name)
}

func TestRecordAndGet(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()

	at := time.Date(2024, 4, 10, 9, 0, 0, 0, time.UTC)
	in := Entry{
		Time:       at,
		UserID:     "u1",
		AccountID:  "1001",
		Operation:  OpClose,
		Target:     "555",
		Accepted:   true,
		Status:     "accepted",
		HTTPStatus: 200,
		Attempts:   2,
		Message:    "closed",
	}
	require.NoError(t, j.Record(ctx, in))

	got, err := j.ListByAccount(ctx, "1001", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].ID)

	e, err := j.Get(ctx, got[0].ID)
	require.NoError(t, err)
	assert.True(t, e.Time.Equal(at))
	in.ID = e.ID
	in.Time = e.Time
	assert.Equal(t, in, e)
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	_, err := j.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordAssignsTime(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	require.NoError(t, j.Record(context.Background(), Entry{ID: "E1", AccountID: "1", Operation: OpPlace, Target: "EURUSD"}))
	e, err := j.Get(context.Background(), "E1")
	require.NoError(t, err)
	assert.True(t, e.Time.Equal(fixed))
}

func TestListBetween(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for i, at := range []time.Time{
		day.Add(-time.Minute),
		day.Add(time.Hour),
		day.Add(23 * time.Hour),
		day.Add(24 * time.Hour),
	} {
		require.NoError(t, j.Record(ctx, Entry{
			ID:        string(rune('A' + i)),
			Time:      at,
			AccountID: "1001",
			Operation: OpPlace,
			Target:    "EURUSD",
		}))
	}

	got, err := j.ListBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].ID)
	assert.Equal(t, "C", got[1].ID)
}

func TestListByAccountNewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, Entry{
			Time:      base.Add(time.Duration(i) * time.Minute),
			AccountID: "1001",
			Operation: OpModify,
			Target:    string(rune('0' + i)),
		}))
	}
	require.NoError(t, j.Record(ctx, Entry{Time: base, AccountID: "2002", Operation: OpModify, Target: "x"}))

	got, err := j.ListByAccount(ctx, "1001", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "4", got[0].Target)
	assert.Equal(t, "3", got[1].Target)

	all, err := j.ListByAccount(ctx, "1001", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestFormatEntryOrg(t *testing.T) {
	t.Parallel()

	out := FormatEntryOrg(Entry{
		ID:         "01HZZZZZZZZZZZZZZZABCDEFGH",
		Time:       time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC),
		AccountID:  "1001",
		Operation:  OpClose,
		Target:     "555",
		Status:     "failed",
		HTTPStatus: 502,
		Attempts:   3,
		Message:    "bridge down",
	})

	assert.Contains(t, out, "** REJECTED close 555 (ABCDEFGH)")
	assert.Contains(t, out, ":TIME: 2024-03-15T10:30:45Z")
	assert.Contains(t, out, ":ATTEMPTS: 3")
	assert.Contains(t, out, ":END:\n\nbridge down\n")
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Entry{
		{ID: "E1", Time: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), AccountID: "1001", Operation: OpPlace, Target: "EURUSD", Accepted: true, Status: "executed", HTTPStatus: 200, Attempts: 1},
	}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, []string{"E1", "2024-01-02T03:04:05Z", "", "1001", "place", "EURUSD", "true", "executed", "200", "1", ""}, rows[1])
}
