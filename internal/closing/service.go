package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/authz"
	"github.com/batasku/periodlock/internal/ledger"
)

// ConfirmationPhrase must be supplied verbatim to make a close permanent.
const ConfirmationPhrase = "PERMANENT"

// Notifier publishes period lifecycle events for asynchronous delivery.
type Notifier interface {
	ReopenNotice(ctx context.Context, period Period, actor, reason string) error
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) ReopenNotice(context.Context, Period, string, string) error { return nil }

// CloseOptions tunes a close request.
type CloseOptions struct {
	// Force skips the pre-close validations. The authorization gate still
	// applies.
	Force bool
}

// CloseResult is the outcome of a successful close.
type CloseResult struct {
	Period   Period           `json:"period"`
	Entry    *ClosingEntry    `json:"closing_entry,omitempty"`
	Snapshot []AccountBalance `json:"snapshot,omitempty"`
	NoEntry  bool             `json:"no_entry"`
}

// Service orchestrates the period lifecycle.
type Service struct {
	repo      Repository
	ledger    ledger.Gateway
	agg       *Aggregator
	composer  *Composer
	validator *Validator
	gate      authz.Gate
	audit     audit.Recorder
	notifier  Notifier
	cache     *ConfigCache
	log       *slog.Logger
	now       func() time.Time
}

// NewService wires the closing service.
func NewService(repo Repository, gw ledger.Gateway, gate authz.Gate, rec audit.Recorder, notifier Notifier, log *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		repo:      repo,
		ledger:    gw,
		agg:       NewAggregator(gw),
		composer:  NewComposer(gw),
		validator: NewValidator(gw),
		gate:      gate,
		audit:     rec,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithConfigCache registers a cache to invalidate on config updates.
func (s *Service) WithConfigCache(cache *ConfigCache) *Service {
	s.cache = cache
	return s
}

func (s *Service) roleConfig(cfg Config) authz.RoleConfig {
	return authz.RoleConfig{ClosingRole: cfg.ClosingRole, ReopenRole: cfg.ReopenRole}
}

func (s *Service) authorize(id authz.Identity, action authz.Action, cfg Config) error {
	decision := s.gate.Authorize(id, action, s.roleConfig(cfg))
	if decision.Allowed {
		return nil
	}
	return NewError(CodeForbidden, decision.Reason).WithDetails(decision)
}

// record writes an audit entry; failures are logged, never propagated, so a
// broken audit store cannot roll back a lifecycle action.
func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Error("audit record failed",
			slog.String("action", string(entry.Action)),
			slog.Int64("period_id", entry.PeriodID),
			slog.Any("error", err))
	}
}

func statusError(status PeriodStatus) *Error {
	switch status {
	case StatusClosed:
		return NewError(CodeAlreadyClosed, "period is already closed")
	case StatusPermanentlyClosed:
		return NewError(CodePermanentlyClosed, "period is permanently closed")
	default:
		return NewError(CodeConflict, "period changed concurrently")
	}
}

func (s *Service) getPeriod(ctx context.Context, id int64) (Period, error) {
	period, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrPeriodNotFound) {
		return Period{}, NewError(CodePeriodNotFound, fmt.Sprintf("period %d does not exist", id))
	}
	if err != nil {
		return Period{}, err
	}
	return period, nil
}

// Close transitions an open period to Closed: it validates, composes and
// submits the closing entry, then flips the status with a compare-and-set so
// two concurrent closes cannot both succeed.
func (s *Service) Close(ctx context.Context, id int64, actor authz.Identity, opts CloseOptions) (CloseResult, error) {
	period, err := s.getPeriod(ctx, id)
	if err != nil {
		return CloseResult{}, err
	}
	if period.Status != StatusOpen {
		return CloseResult{}, statusError(period.Status)
	}

	cfg, err := s.repo.GetConfig(ctx, period.Company)
	if err != nil {
		return CloseResult{}, err
	}
	if err := s.authorize(actor, authz.ActionClose, cfg); err != nil {
		return CloseResult{}, err
	}
	if err := s.composer.ValidateRetainedEarnings(ctx, period.Company, cfg.RetainedEarningsAccount); err != nil {
		return CloseResult{}, err
	}

	if !opts.Force {
		result, err := s.validator.Validate(ctx, period, cfg)
		if err != nil {
			return CloseResult{}, err
		}
		if !result.Passed {
			return CloseResult{}, NewError(CodeValidationFailed, "pre-close validations failed").WithDetails(result.Findings)
		}
	}

	balances, err := s.agg.NominalBalances(ctx, period.Company, period.StartDate, period.EndDate)
	if err != nil {
		return CloseResult{}, err
	}

	var (
		composed *ClosingEntry
		entryID  *ledger.JournalEntry
	)
	composed, err = s.composer.Compose(period, cfg, balances)
	switch {
	case errors.Is(err, ErrNoActivity):
		composed = nil
	case err != nil:
		return CloseResult{}, err
	default:
		entryID = &composed.Entry
		if err := s.ledger.InsertJournalEntry(ctx, entryID); err != nil {
			return CloseResult{}, err
		}
		if err := s.ledger.SubmitJournalEntry(ctx, entryID.ID); err != nil {
			return CloseResult{}, err
		}
		composed.Entry = *entryID
	}

	snapshot, err := s.agg.AllBalances(ctx, period.Company, period.EndDate)
	if err != nil {
		return CloseResult{}, err
	}

	before := period
	now := s.now().UTC()
	period.Status = StatusClosed
	period.ClosedBy = actor.User
	period.ClosedAt = &now
	if entryID != nil {
		period.ClosingEntryID = &entryID.ID
	}

	swapped, err := s.repo.UpdateStatusIf(ctx, period, StatusOpen)
	if err != nil {
		return CloseResult{}, err
	}
	if !swapped {
		// Lost the race: reverse the entry we submitted and report the
		// current state.
		if entryID != nil {
			if cancelErr := s.ledger.CancelJournalEntry(ctx, entryID.ID); cancelErr != nil {
				s.log.Error("orphaned closing entry after lost close race",
					slog.String("entry_id", entryID.ID.String()),
					slog.Any("error", cancelErr))
			}
		}
		current, readErr := s.getPeriod(ctx, id)
		if readErr != nil {
			return CloseResult{}, readErr
		}
		return CloseResult{}, statusError(current.Status)
	}

	s.record(ctx, audit.Entry{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Company:    period.Company,
		Action:     audit.ActionClosed,
		Actor:      actor.User,
		Before:     audit.Snapshot(before),
		After: audit.Snapshot(struct {
			Period   Period           `json:"period"`
			Balances []AccountBalance `json:"balances"`
		}{period, snapshot}),
	})

	s.log.Info("period closed",
		slog.Int64("period_id", period.ID),
		slog.String("period", period.Name),
		slog.String("actor", actor.User),
		slog.Bool("no_entry", entryID == nil))

	return CloseResult{Period: period, Entry: composed, Snapshot: snapshot, NoEntry: entryID == nil}, nil
}

// Preview composes the closing entry and runs the validations without
// touching any state.
func (s *Service) Preview(ctx context.Context, id int64, actor authz.Identity) (*ClosingEntry, ValidationResult, error) {
	period, err := s.getPeriod(ctx, id)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	if period.Status != StatusOpen {
		return nil, ValidationResult{}, statusError(period.Status)
	}

	cfg, err := s.repo.GetConfig(ctx, period.Company)
	if err != nil {
		return nil, ValidationResult{}, err
	}
	if err := s.authorize(actor, authz.ActionClose, cfg); err != nil {
		return nil, ValidationResult{}, err
	}
	if err := s.composer.ValidateRetainedEarnings(ctx, period.Company, cfg.RetainedEarningsAccount); err != nil {
		return nil, ValidationResult{}, err
	}

	var (
		validation ValidationResult
		balances   []AccountBalance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		validation, err = s.validator.Validate(gctx, period, cfg)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = s.agg.NominalBalances(gctx, period.Company, period.StartDate, period.EndDate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, ValidationResult{}, err
	}
	composed, err := s.composer.Compose(period, cfg, balances)
	if errors.Is(err, ErrNoActivity) {
		return nil, validation, nil
	}
	if err != nil {
		return nil, ValidationResult{}, err
	}
	return composed, validation, nil
}

// Reopen transitions a closed period back to Open, cancelling its closing
// entry. It refuses when any later period is already closed, which keeps the
// close sequence contiguous.
func (s *Service) Reopen(ctx context.Context, id int64, actor authz.Identity, reason string) (Period, error) {
	period, err := s.getPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	switch period.Status {
	case StatusOpen:
		return Period{}, NewError(CodeMustBeClosedFirst, "period is not closed")
	case StatusPermanentlyClosed:
		return Period{}, NewError(CodePermanentlyClosed, "permanently closed periods cannot be reopened")
	}

	next, err := s.repo.NextPeriod(ctx, period.Company, period.StartDate)
	if err != nil && !errors.Is(err, ErrPeriodNotFound) {
		return Period{}, err
	}
	if err == nil && next.Status.Restricted() {
		return Period{}, NewError(CodeNextPeriodClosed,
			fmt.Sprintf("reopen %s first: later periods must be reopened before earlier ones", next.Name))
	}

	cfg, err := s.repo.GetConfig(ctx, period.Company)
	if err != nil {
		return Period{}, err
	}
	if err := s.authorize(actor, authz.ActionReopen, cfg); err != nil {
		return Period{}, err
	}

	if period.ClosingEntryID != nil {
		if err := s.ledger.CancelJournalEntry(ctx, *period.ClosingEntryID); err != nil &&
			!errors.Is(err, ledger.ErrEntryNotFound) {
			return Period{}, err
		}
		// Reopening removes the closing entry outright, not just its GL
		// effect, so a later close starts from a clean slate.
		if err := s.ledger.DeleteJournalEntry(ctx, *period.ClosingEntryID); err != nil &&
			!errors.Is(err, ledger.ErrEntryNotFound) {
			return Period{}, err
		}
	}

	before := period
	now := s.now().UTC()
	period.Status = StatusOpen
	period.ClosingEntryID = nil
	period.ClosedBy = ""
	period.ClosedAt = nil
	period.ReopenedBy = actor.User
	period.ReopenedAt = &now

	swapped, err := s.repo.UpdateStatusIf(ctx, period, StatusClosed)
	if err != nil {
		return Period{}, err
	}
	if !swapped {
		current, readErr := s.getPeriod(ctx, id)
		if readErr != nil {
			return Period{}, readErr
		}
		if current.Status == StatusOpen {
			return Period{}, NewError(CodeMustBeClosedFirst, "period is not closed")
		}
		return Period{}, statusError(current.Status)
	}

	s.record(ctx, audit.Entry{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Company:    period.Company,
		Action:     audit.ActionReopened,
		Actor:      actor.User,
		Reason:     reason,
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(period),
	})

	if cfg.NotifyOnReopen {
		if err := s.notifier.ReopenNotice(ctx, period, actor.User, reason); err != nil {
			s.log.Error("reopen notice enqueue failed",
				slog.Int64("period_id", period.ID), slog.Any("error", err))
		}
	}

	s.log.Info("period reopened",
		slog.Int64("period_id", period.ID),
		slog.String("period", period.Name),
		slog.String("actor", actor.User))
	return period, nil
}

// PermanentlyClose makes a closed period immutable. The caller must supply
// the confirmation phrase verbatim; the transition cannot be undone.
func (s *Service) PermanentlyClose(ctx context.Context, id int64, actor authz.Identity, confirmation string) (Period, error) {
	if confirmation != ConfirmationPhrase {
		return Period{}, NewError(CodeConfirmationInvalid,
			fmt.Sprintf("confirmation must be %q", ConfirmationPhrase))
	}

	period, err := s.getPeriod(ctx, id)
	if err != nil {
		return Period{}, err
	}
	switch period.Status {
	case StatusOpen:
		return Period{}, NewError(CodeMustBeClosedFirst, "period must be closed before it can be permanently closed")
	case StatusPermanentlyClosed:
		return Period{}, NewError(CodePermanentlyClosed, "period is already permanently closed")
	}

	cfg, err := s.repo.GetConfig(ctx, period.Company)
	if err != nil {
		return Period{}, err
	}
	if err := s.authorize(actor, authz.ActionPermanentClose, cfg); err != nil {
		return Period{}, err
	}

	before := period
	now := s.now().UTC()
	period.Status = StatusPermanentlyClosed
	period.PermanentlyClosedBy = actor.User
	period.PermanentlyClosedAt = &now

	swapped, err := s.repo.UpdateStatusIf(ctx, period, StatusClosed)
	if err != nil {
		return Period{}, err
	}
	if !swapped {
		current, readErr := s.getPeriod(ctx, id)
		if readErr != nil {
			return Period{}, readErr
		}
		if current.Status == StatusOpen {
			return Period{}, NewError(CodeMustBeClosedFirst, "period must be closed before it can be permanently closed")
		}
		return Period{}, statusError(current.Status)
	}

	s.record(ctx, audit.Entry{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Company:    period.Company,
		Action:     audit.ActionPermanentlyClosed,
		Actor:      actor.User,
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(period),
	})

	s.log.Info("period permanently closed",
		slog.Int64("period_id", period.ID),
		slog.String("period", period.Name),
		slog.String("actor", actor.User))
	return period, nil
}
