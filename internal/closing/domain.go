// Package closing implements the accounting period lifecycle: balance
// aggregation, closing entry composition, the Open / Closed / Permanently
// Closed state machine, pre-close validations, and write restriction
// enforcement against closed periods.
package closing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PeriodStatus is the lifecycle state of an accounting period.
type PeriodStatus string

const (
	StatusOpen              PeriodStatus = "OPEN"
	StatusClosed            PeriodStatus = "CLOSED"
	StatusPermanentlyClosed PeriodStatus = "PERMANENTLY_CLOSED"
)

// Restricted reports whether writes dated inside the period are blocked.
func (s PeriodStatus) Restricted() bool {
	return s == StatusClosed || s == StatusPermanentlyClosed
}

// Period is one accounting period of a company. Dates are inclusive on both
// ends and interpreted at day granularity.
type Period struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Company        string       `json:"company"`
	StartDate      time.Time    `json:"start_date"`
	EndDate        time.Time    `json:"end_date"`
	Status         PeriodStatus `json:"status"`
	ClosingEntryID *uuid.UUID   `json:"closing_entry_id,omitempty"`
	ClosedBy       string       `json:"closed_by,omitempty"`
	ClosedAt       *time.Time   `json:"closed_at,omitempty"`
	ReopenedBy     string       `json:"reopened_by,omitempty"`
	ReopenedAt     *time.Time   `json:"reopened_at,omitempty"`

	PermanentlyClosedBy string     `json:"permanently_closed_by,omitempty"`
	PermanentlyClosedAt *time.Time `json:"permanently_closed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Contains reports whether the date falls inside the period window.
func (p Period) Contains(date time.Time) bool {
	d := date.Truncate(24 * time.Hour)
	return !d.Before(p.StartDate) && !d.After(p.EndDate)
}

// AccountBalance is the net balance of one account per its root type's sign
// convention.
type AccountBalance struct {
	Account     string  `json:"account"`
	AccountName string  `json:"account_name"`
	RootType    string  `json:"root_type"`
	Debit       float64 `json:"debit"`
	Credit      float64 `json:"credit"`
	Balance     float64 `json:"balance"`
}

// Config is the company-wide closing configuration. A single row exists per
// company; missing rows behave as the zero-value defaults.
type Config struct {
	Company                 string    `json:"company"`
	RetainedEarningsAccount string    `json:"retained_earnings_account"`
	ClosingRole             string    `json:"closing_role"`
	ReopenRole              string    `json:"reopen_role"`
	RestrictClosedPeriods   bool      `json:"restrict_closed_periods"`
	ValidateDraftEntries    bool      `json:"validate_draft_entries"`
	NotifyOnReopen          bool      `json:"notify_on_reopen"`
	UpdatedAt               time.Time `json:"updated_at"`
}

// Error codes surfaced to API clients.
const (
	CodePeriodNotFound      = "PERIOD_NOT_FOUND"
	CodeAlreadyClosed       = "ALREADY_CLOSED"
	CodeMustBeClosedFirst   = "MUST_BE_CLOSED_FIRST"
	CodePermanentlyClosed   = "PERMANENTLY_CLOSED"
	CodeNextPeriodClosed    = "NEXT_PERIOD_CLOSED"
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeRetainedEarnings    = "RETAINED_EARNINGS_INVALID"
	CodeUnbalancedEntry     = "UNBALANCED_ENTRY"
	CodeConfirmationInvalid = "CONFIRMATION_INVALID"
	CodePeriodOverlap       = "PERIOD_OVERLAP"
	CodePeriodClosed        = "PERIOD_CLOSED"
	CodeConflict            = "CONFLICT"
	CodeForbidden           = "FORBIDDEN"
)

// Error is a domain failure with a stable machine-readable code. Details
// carries structured context such as validation findings.
type Error struct {
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	return fmt.Sprintf("closing: %s: %s", e.Code, e.Message)
}

// NewError builds a domain error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithDetails attaches structured context.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details}
}
