package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"id", "time", "user_id", "account_id", "operation", "target", "accepted", "status", "http_status", "attempts", "message"}

// WriteCSV writes entries with a header row.
func WriteCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, e := range entries {
		if err := cw.Write([]string{
			e.ID,
			e.Time.UTC().Format(time.RFC3339),
			e.UserID,
			e.AccountID,
			e.Operation,
			e.Target,
			strconv.FormatBool(e.Accepted),
			e.Status,
			strconv.Itoa(e.HTTPStatus),
			strconv.Itoa(e.Attempts),
			e.Message,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
