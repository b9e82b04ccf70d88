package closing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/authz"
	"github.com/batasku/periodlock/internal/ledger"
)

// ============================================================================
// MOCK LEDGER GATEWAY
// ============================================================================

type mockLedger struct {
	totals     []ledger.AccountTotals
	accounts   map[string]ledger.Account
	draftCount int

	inserted  []*ledger.JournalEntry
	submitted []uuid.UUID
	cancelled []uuid.UUID
	deleted   []uuid.UUID

	lastRange ledger.DateRange

	// Error injection
	sumError     error
	accountError error
	insertError  error
	submitError  error
	cancelError  error
	draftError   error
}

func newMockLedger() *mockLedger {
	return &mockLedger{accounts: make(map[string]ledger.Account)}
}

func (m *mockLedger) addAccount(name string, rootType ledger.RootType, isGroup bool) {
	m.accounts[name] = ledger.Account{
		Name:        name,
		AccountName: name,
		RootType:    rootType,
		IsGroup:     isGroup,
	}
}

func (m *mockLedger) SumLinesByAccount(ctx context.Context, company string, r ledger.DateRange) ([]ledger.AccountTotals, error) {
	if m.sumError != nil {
		return nil, m.sumError
	}
	m.lastRange = r
	return m.totals, nil
}

func (m *mockLedger) AccountsByName(ctx context.Context, company string, names []string) ([]ledger.Account, error) {
	if m.accountError != nil {
		return nil, m.accountError
	}
	var out []ledger.Account
	for _, name := range names {
		if acc, ok := m.accounts[name]; ok {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (m *mockLedger) GetAccount(ctx context.Context, company, name string) (ledger.Account, error) {
	if m.accountError != nil {
		return ledger.Account{}, m.accountError
	}
	acc, ok := m.accounts[name]
	if !ok {
		return ledger.Account{}, ledger.ErrEntryNotFound
	}
	return acc, nil
}

func (m *mockLedger) InsertJournalEntry(ctx context.Context, entry *ledger.JournalEntry) error {
	if m.insertError != nil {
		return m.insertError
	}
	entry.ID = uuid.New()
	entry.Status = ledger.DocStatusDraft
	m.inserted = append(m.inserted, entry)
	return nil
}

func (m *mockLedger) SubmitJournalEntry(ctx context.Context, id uuid.UUID) error {
	if m.submitError != nil {
		return m.submitError
	}
	m.submitted = append(m.submitted, id)
	return nil
}

func (m *mockLedger) CancelJournalEntry(ctx context.Context, id uuid.UUID) error {
	if m.cancelError != nil {
		return m.cancelError
	}
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockLedger) DeleteJournalEntry(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockLedger) GetJournalEntry(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	for _, e := range m.inserted {
		if e.ID == id {
			return *e, nil
		}
	}
	return ledger.JournalEntry{}, ledger.ErrEntryNotFound
}

func (m *mockLedger) CountDraftEntries(ctx context.Context, company string, r ledger.DateRange) (int, error) {
	if m.draftError != nil {
		return 0, m.draftError
	}
	return m.draftCount, nil
}

// ============================================================================
// MOCK PERIOD REPOSITORY
// ============================================================================

type mockRepository struct {
	periods map[int64]*Period
	nextID  int64
	config  Config

	updateCalls int

	// Error injection and CAS control
	casReject   bool
	getError    error
	configError error
	updateError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		periods: make(map[int64]*Period),
		nextID:  1,
		config: Config{
			Company:                 "Acme",
			RetainedEarningsAccount: "Retained Earnings",
			RestrictClosedPeriods:   true,
			ValidateDraftEntries:    true,
		},
	}
}

func (m *mockRepository) addPeriod(p Period) *Period {
	p.ID = m.nextID
	m.nextID++
	if p.Status == "" {
		p.Status = StatusOpen
	}
	m.periods[p.ID] = &p
	return m.periods[p.ID]
}

func (m *mockRepository) Create(ctx context.Context, period *Period) error {
	period.ID = m.nextID
	m.nextID++
	period.Status = StatusOpen
	stored := *period
	m.periods[period.ID] = &stored
	return nil
}

func (m *mockRepository) GetByID(ctx context.Context, id int64) (Period, error) {
	if m.getError != nil {
		return Period{}, m.getError
	}
	p, ok := m.periods[id]
	if !ok {
		return Period{}, ErrPeriodNotFound
	}
	return *p, nil
}

func (m *mockRepository) List(ctx context.Context, company string) ([]Period, error) {
	var out []Period
	for _, p := range m.periods {
		if p.Company == company {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockRepository) FindByDate(ctx context.Context, company string, date time.Time) (Period, error) {
	if m.getError != nil {
		return Period{}, m.getError
	}
	for _, p := range m.periods {
		if p.Company == company && p.Contains(date) {
			return *p, nil
		}
	}
	return Period{}, ErrPeriodNotFound
}

func (m *mockRepository) NextPeriod(ctx context.Context, company string, after time.Time) (Period, error) {
	var best *Period
	for _, p := range m.periods {
		if p.Company != company || !p.StartDate.After(after) {
			continue
		}
		if best == nil || p.StartDate.Before(best.StartDate) {
			best = p
		}
	}
	if best == nil {
		return Period{}, ErrPeriodNotFound
	}
	return *best, nil
}

func (m *mockRepository) OverlapExists(ctx context.Context, company string, start, end time.Time, excludeID int64) (bool, error) {
	for _, p := range m.periods {
		if p.Company != company || p.ID == excludeID {
			continue
		}
		if !p.StartDate.After(end) && !p.EndDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) UpdateStatusIf(ctx context.Context, period Period, expected PeriodStatus) (bool, error) {
	m.updateCalls++
	if m.updateError != nil {
		return false, m.updateError
	}
	if m.casReject {
		return false, nil
	}
	stored, ok := m.periods[period.ID]
	if !ok || stored.Status != expected {
		return false, nil
	}
	*stored = period
	return true, nil
}

func (m *mockRepository) DeleteOpen(ctx context.Context, id int64) error {
	p, ok := m.periods[id]
	if !ok || p.Status != StatusOpen {
		return ErrPeriodNotFound
	}
	delete(m.periods, id)
	return nil
}

func (m *mockRepository) GetConfig(ctx context.Context, company string) (Config, error) {
	if m.configError != nil {
		return Config{}, m.configError
	}
	return m.config, nil
}

func (m *mockRepository) SaveConfig(ctx context.Context, cfg Config) error {
	m.config = cfg
	return nil
}

// ============================================================================
// MOCK AUDIT AND NOTIFIER
// ============================================================================

type mockRecorder struct {
	entries     []audit.Entry
	recordError error
}

func (m *mockRecorder) Record(ctx context.Context, entry audit.Entry) error {
	if m.recordError != nil {
		return m.recordError
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockRecorder) lastAction() audit.ActionType {
	if len(m.entries) == 0 {
		return ""
	}
	return m.entries[len(m.entries)-1].Action
}

type mockNotifier struct {
	notices []ReopenNoticePayload
}

type ReopenNoticePayload struct {
	Period Period
	Actor  string
	Reason string
}

func (m *mockNotifier) ReopenNotice(ctx context.Context, period Period, actor, reason string) error {
	m.notices = append(m.notices, ReopenNoticePayload{Period: period, Actor: actor, Reason: reason})
	return nil
}

// ============================================================================
// HELPERS
// ============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *mockRepository, gw *mockLedger, rec *mockRecorder, notifier Notifier) *Service {
	return NewService(repo, gw, authz.NewGate(), rec, notifier, testLogger())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sysManager() authz.Identity {
	return authz.Identity{User: "alice", Roles: []string{authz.RoleSystemManager}}
}

func accountsManager() authz.Identity {
	return authz.Identity{User: "bob", Roles: []string{authz.RoleAccountsManager}}
}

func plainUser() authz.Identity {
	return authz.Identity{User: "carol", Roles: []string{"Employee"}}
}
