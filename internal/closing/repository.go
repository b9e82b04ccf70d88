package closing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrPeriodNotFound is returned when no period row matches a lookup.
var ErrPeriodNotFound = errors.New("closing: period not found")

// Repository persists periods and the closing configuration.
type Repository interface {
	Create(ctx context.Context, period *Period) error
	GetByID(ctx context.Context, id int64) (Period, error)
	List(ctx context.Context, company string) ([]Period, error)
	// FindByDate returns the period containing the date, if any.
	FindByDate(ctx context.Context, company string, date time.Time) (Period, error)
	// NextPeriod returns the earliest period starting after the given date.
	NextPeriod(ctx context.Context, company string, after time.Time) (Period, error)
	// OverlapExists reports whether any other period of the company overlaps
	// the window.
	OverlapExists(ctx context.Context, company string, start, end time.Time, excludeID int64) (bool, error)
	// UpdateStatusIf writes the period's lifecycle columns only when the
	// stored status still equals expected. It reports whether the swap took
	// effect.
	UpdateStatusIf(ctx context.Context, period Period, expected PeriodStatus) (bool, error)
	// DeleteOpen removes a period that is still open.
	DeleteOpen(ctx context.Context, id int64) error

	GetConfig(ctx context.Context, company string) (Config, error)
	SaveConfig(ctx context.Context, cfg Config) error
}

// PostgresRepository implements Repository on pgx.
type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresRepository constructs a repository backed by the given pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (r *PostgresRepository) WithNow(now func() time.Time) *PostgresRepository {
	r.now = now
	return r
}

const periodColumns = `id, name, company, start_date, end_date, status,
	closing_entry_id, COALESCE(closed_by, ''), closed_at,
	COALESCE(reopened_by, ''), reopened_at,
	COALESCE(permanently_closed_by, ''), permanently_closed_at,
	created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Name, &p.Company, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosingEntryID, &p.ClosedBy, &p.ClosedAt,
		&p.ReopenedBy, &p.ReopenedAt,
		&p.PermanentlyClosedBy, &p.PermanentlyClosedAt,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Period{}, ErrPeriodNotFound
	}
	if err != nil {
		return Period{}, fmt.Errorf("closing: scan period: %w", err)
	}
	return p, nil
}

// pgUniqueViolation is the Postgres error code raised when an insert hits a
// unique constraint.
const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func (r *PostgresRepository) Create(ctx context.Context, period *Period) error {
	now := r.now().UTC()
	period.Status = StatusOpen
	period.CreatedAt = now
	period.UpdatedAt = now
	err := r.pool.QueryRow(ctx, `
		INSERT INTO accounting_periods (name, company, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`,
		period.Name, period.Company, period.StartDate, period.EndDate, period.Status, now).
		Scan(&period.ID)
	if isUniqueViolation(err) {
		// A concurrent create won the race on (company, name).
		return NewError(CodeConflict,
			fmt.Sprintf("period %q already exists for %s", period.Name, period.Company))
	}
	if err != nil {
		return fmt.Errorf("closing: create period: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE id = $1`, id)
	return scanPeriod(row)
}

func (r *PostgresRepository) List(ctx context.Context, company string) ([]Period, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+periodColumns+` FROM accounting_periods WHERE company = $1 ORDER BY start_date DESC`, company)
	if err != nil {
		return nil, fmt.Errorf("closing: list periods: %w", err)
	}
	defer rows.Close()

	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("closing: iterate periods: %w", err)
	}
	return periods, nil
}

func (r *PostgresRepository) FindByDate(ctx context.Context, company string, date time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+periodColumns+` FROM accounting_periods
		WHERE company = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY start_date
		LIMIT 1`, company, date)
	return scanPeriod(row)
}

func (r *PostgresRepository) NextPeriod(ctx context.Context, company string, after time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+periodColumns+` FROM accounting_periods
		WHERE company = $1 AND start_date > $2
		ORDER BY start_date
		LIMIT 1`, company, after)
	return scanPeriod(row)
}

func (r *PostgresRepository) OverlapExists(ctx context.Context, company string, start, end time.Time, excludeID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM accounting_periods
			WHERE company = $1 AND id <> $4
			  AND start_date <= $3 AND end_date >= $2
		)`, company, start, end, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("closing: check overlap: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) UpdateStatusIf(ctx context.Context, period Period, expected PeriodStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE accounting_periods
		SET status = $2,
		    closing_entry_id = $3,
		    closed_by = NULLIF($4, ''),
		    closed_at = $5,
		    reopened_by = NULLIF($6, ''),
		    reopened_at = $7,
		    permanently_closed_by = NULLIF($8, ''),
		    permanently_closed_at = $9,
		    updated_at = $10
		WHERE id = $1 AND status = $11`,
		period.ID, period.Status, period.ClosingEntryID,
		period.ClosedBy, period.ClosedAt,
		period.ReopenedBy, period.ReopenedAt,
		period.PermanentlyClosedBy, period.PermanentlyClosedAt,
		r.now().UTC(), expected)
	if err != nil {
		return false, fmt.Errorf("closing: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteOpen(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM accounting_periods WHERE id = $1 AND status = $2`, id, StatusOpen)
	if err != nil {
		return fmt.Errorf("closing: delete period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

func (r *PostgresRepository) GetConfig(ctx context.Context, company string) (Config, error) {
	var cfg Config
	err := r.pool.QueryRow(ctx, `
		SELECT company, retained_earnings_account, closing_role, reopen_role,
		       restrict_closed_periods, validate_draft_entries, notify_on_reopen, updated_at
		FROM closing_config WHERE company = $1`, company).
		Scan(&cfg.Company, &cfg.RetainedEarningsAccount, &cfg.ClosingRole, &cfg.ReopenRole,
			&cfg.RestrictClosedPeriods, &cfg.ValidateDraftEntries, &cfg.NotifyOnReopen, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// No row means defaults: restriction on, validations on.
		return Config{Company: company, RestrictClosedPeriods: true, ValidateDraftEntries: true}, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("closing: get config: %w", err)
	}
	return cfg, nil
}

func (r *PostgresRepository) SaveConfig(ctx context.Context, cfg Config) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO closing_config
			(company, retained_earnings_account, closing_role, reopen_role,
			 restrict_closed_periods, validate_draft_entries, notify_on_reopen, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (company) DO UPDATE SET
			retained_earnings_account = EXCLUDED.retained_earnings_account,
			closing_role = EXCLUDED.closing_role,
			reopen_role = EXCLUDED.reopen_role,
			restrict_closed_periods = EXCLUDED.restrict_closed_periods,
			validate_draft_entries = EXCLUDED.validate_draft_entries,
			notify_on_reopen = EXCLUDED.notify_on_reopen,
			updated_at = EXCLUDED.updated_at`,
		cfg.Company, cfg.RetainedEarningsAccount, cfg.ClosingRole, cfg.ReopenRole,
		cfg.RestrictClosedPeriods, cfg.ValidateDraftEntries, cfg.NotifyOnReopen, r.now().UTC())
	if err != nil {
		return fmt.Errorf("closing: save config: %w", err)
	}
	return nil
}

var _ Repository = (*PostgresRepository)(nil)
