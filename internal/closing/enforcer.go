package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/authz"
)

// ConfigSource supplies the closing configuration for a company. The
// repository satisfies it directly; ConfigCache satisfies it with a Redis
// read-through for the write hot path.
type ConfigSource interface {
	GetConfig(ctx context.Context, company string) (Config, error)
}

// PeriodFinder locates the period containing a posting date.
type PeriodFinder interface {
	FindByDate(ctx context.Context, company string, date time.Time) (Period, error)
}

// Enforcer guards ledger writes against closed periods. Infrastructure
// failures during the check fail open: blocking all postings because the
// config store is down is worse than briefly not enforcing.
type Enforcer struct {
	periods PeriodFinder
	configs ConfigSource
	gate    authz.Gate
	audit   audit.Recorder
	log     *slog.Logger
}

// NewEnforcer wires the restriction enforcer.
func NewEnforcer(periods PeriodFinder, configs ConfigSource, gate authz.Gate, rec audit.Recorder, log *slog.Logger) *Enforcer {
	return &Enforcer{periods: periods, configs: configs, gate: gate, audit: rec, log: log}
}

// CheckWrite decides whether the document identified by doctype/docname,
// dated at postingDate, may be written. Writes into a permanently closed
// period are always refused. Writes into a closed period are refused unless
// the actor holds an override role, in which case the write is allowed and
// audited against the document.
func (e *Enforcer) CheckWrite(ctx context.Context, actor authz.Identity, company string, postingDate time.Time, doctype, docname string) error {
	cfg, err := e.configs.GetConfig(ctx, company)
	if err != nil {
		e.log.Warn("restriction check skipped: config lookup failed",
			slog.String("company", company), slog.Any("error", err))
		return nil
	}
	if !cfg.RestrictClosedPeriods {
		return nil
	}

	period, err := e.periods.FindByDate(ctx, company, postingDate)
	if errors.Is(err, ErrPeriodNotFound) {
		return nil
	}
	if err != nil {
		e.log.Warn("restriction check skipped: period lookup failed",
			slog.String("company", company), slog.Any("error", err))
		return nil
	}
	if !period.Status.Restricted() {
		return nil
	}

	if period.Status == StatusPermanentlyClosed {
		return NewError(CodePermanentlyClosed,
			fmt.Sprintf("period %s is permanently closed and cannot be modified", period.Name))
	}

	decision := e.gate.Authorize(actor, authz.ActionOverrideRestriction,
		authz.RoleConfig{ClosingRole: cfg.ClosingRole, ReopenRole: cfg.ReopenRole})
	if !decision.Allowed {
		return NewError(CodePeriodClosed,
			fmt.Sprintf("period %s is closed; postings dated %s are restricted",
				period.Name, postingDate.Format("2006-01-02"))).WithDetails(decision)
	}

	// Overrides are always audited, referencing the document that was
	// allowed through.
	entry := audit.Entry{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Company:    company,
		Action:     audit.ActionTransactionModified,
		Actor:      actor.User,
		DocType:    doctype,
		DocName:    docname,
		Reason:     fmt.Sprintf("override posting dated %s into closed period", postingDate.Format("2006-01-02")),
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.log.Error("override audit record failed",
			slog.Int64("period_id", period.ID), slog.Any("error", err))
	}
	return nil
}
