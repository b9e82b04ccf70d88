// Package audit records the immutable trail of period lifecycle actions.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActionType labels what happened to a period.
type ActionType string

const (
	ActionCreated             ActionType = "Created"
	ActionClosed              ActionType = "Closed"
	ActionReopened            ActionType = "Reopened"
	ActionPermanentlyClosed   ActionType = "Permanently Closed"
	ActionTransactionModified ActionType = "Transaction Modified"
)

// Entry is one audit record. Before and After hold JSON snapshots of the
// period row around the action; either may be nil.
type Entry struct {
	ID         uuid.UUID       `json:"id"`
	PeriodID   int64           `json:"period_id"`
	PeriodName string          `json:"period_name"`
	Company    string          `json:"company"`
	Action     ActionType      `json:"action"`
	Actor      string          `json:"actor"`
	Reason     string          `json:"reason,omitempty"`
	// DocType and DocName identify the document a closed-period override
	// touched. Empty for lifecycle actions.
	DocType   string          `json:"transaction_doctype,omitempty"`
	DocName   string          `json:"affected_transaction,omitempty"`
	Before    json.RawMessage `json:"before,omitempty"`
	After     json.RawMessage `json:"after,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Snapshot marshals v for use as a Before/After payload. Marshal failures
// degrade to nil rather than blocking the action being logged.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// TimelineFilter narrows a timeline query. Zero values mean no filter.
type TimelineFilter struct {
	PeriodID int64
	Company  string
	Action   ActionType
	Limit    int
	Offset   int
}

// Recorder persists audit entries.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// Reader pages through recorded entries, newest first.
type Reader interface {
	Timeline(ctx context.Context, filter TimelineFilter) ([]Entry, bool, error)
}

// Store combines recording and reading.
type Store interface {
	Recorder
	Reader
}
