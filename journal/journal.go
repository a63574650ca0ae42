// journal/journal.go
package journal

import (
	"context"
	"time"
)

// Operations recorded by the gateway.
const (
	OpPlace    = "place"
	OpClose    = "close"
	OpCloseAll = "close_all"
	OpModify   = "modify"
)

// Entry is one executed gateway operation.
type Entry struct {
	ID         string
	Time       time.Time
	UserID     string
	AccountID  string
	Operation  string
	Target     string // symbol for placements, position id otherwise
	Accepted   bool
	Status     string
	HTTPStatus int
	Attempts   int
	Message    string
}

type Journal interface {
	Record(ctx context.Context, e Entry) error
	Close() error
}
