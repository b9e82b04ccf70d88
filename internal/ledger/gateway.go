// Package ledger is the gateway to the append-only general ledger: GL line
// aggregation, account metadata, and the journal document lifecycle. The
// closing subsystem never touches ledger storage except through this package.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RootType classifies an account at the root of the chart.
type RootType string

const (
	RootAsset     RootType = "Asset"
	RootLiability RootType = "Liability"
	RootEquity    RootType = "Equity"
	RootIncome    RootType = "Income"
	RootExpense   RootType = "Expense"
)

// IsNominal reports whether balances of this root type are zeroed at period
// end (Income and Expense) rather than carried forward.
func (r RootType) IsNominal() bool {
	return r == RootIncome || r == RootExpense
}

// DebitBalance reports whether the root type carries a natural debit balance.
func (r RootType) DebitBalance() bool {
	return r == RootAsset || r == RootExpense
}

// Account holds chart-of-accounts metadata.
type Account struct {
	Name        string
	Company     string
	AccountName string
	AccountType string
	RootType    RootType
	IsGroup     bool
}

// AccountTotals aggregates non-cancelled GL activity for one account.
type AccountTotals struct {
	Account string
	Debit   float64
	Credit  float64
}

// DateRange bounds a posting-date window. A zero Start means unbounded below.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DocStatus is the journal document lifecycle state.
type DocStatus string

const (
	DocStatusDraft     DocStatus = "DRAFT"
	DocStatusSubmitted DocStatus = "SUBMITTED"
	DocStatusCancelled DocStatus = "CANCELLED"
)

// JournalLine is one debit/credit leg of a journal entry.
type JournalLine struct {
	Account string
	Debit   float64
	Credit  float64
	Remark  string
}

// JournalEntry is an accounting document. Submitted entries project into the
// GL; cancelled entries flag their GL lines as cancelled.
type JournalEntry struct {
	ID             uuid.UUID
	Company        string
	PostingDate    time.Time
	IsClosingEntry bool
	PeriodID       int64
	Remark         string
	Status         DocStatus
	Lines          []JournalLine
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TotalDebit sums the debit legs.
func (e JournalEntry) TotalDebit() float64 {
	var total float64
	for _, line := range e.Lines {
		total += line.Debit
	}
	return total
}

// TotalCredit sums the credit legs.
func (e JournalEntry) TotalCredit() float64 {
	var total float64
	for _, line := range e.Lines {
		total += line.Credit
	}
	return total
}

// Gateway errors.
var (
	ErrEntryNotFound     = errors.New("ledger: journal entry not found")
	ErrEntryNotCancelled = errors.New("ledger: journal entry must be cancelled before deletion")
	ErrEntryNotDraft     = errors.New("ledger: journal entry is not a draft")
)

// Gateway exposes the ledger operations the closing subsystem consumes.
type Gateway interface {
	// SumLinesByAccount aggregates non-cancelled GL debit/credit per account
	// for the company within the range.
	SumLinesByAccount(ctx context.Context, company string, r DateRange) ([]AccountTotals, error)
	// AccountsByName returns chart metadata for the named accounts.
	AccountsByName(ctx context.Context, company string, names []string) ([]Account, error)
	// GetAccount returns a single account's metadata.
	GetAccount(ctx context.Context, company, name string) (Account, error)

	// InsertJournalEntry persists a draft document with its lines and fills
	// in the generated id and timestamps.
	InsertJournalEntry(ctx context.Context, entry *JournalEntry) error
	// SubmitJournalEntry finalizes a draft and projects its lines into the GL.
	SubmitJournalEntry(ctx context.Context, id uuid.UUID) error
	// CancelJournalEntry reverses a submitted entry by flagging the document
	// and its GL projection as cancelled.
	CancelJournalEntry(ctx context.Context, id uuid.UUID) error
	// DeleteJournalEntry removes a cancelled document and its lines.
	DeleteJournalEntry(ctx context.Context, id uuid.UUID) error
	// GetJournalEntry loads a document with lines.
	GetJournalEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)

	// CountDraftEntries counts draft journal documents dated in the range,
	// used by the pre-close validations.
	CountDraftEntries(ctx context.Context, company string, r DateRange) (int, error)
}
