package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTimelineLimit = 50

// PostgresStore persists audit entries in period_closing_logs.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresStore constructs a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *PostgresStore) WithNow(now func() time.Time) *PostgresStore {
	s.now = now
	return s
}

func (s *PostgresStore) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO period_closing_logs
			(id, period_id, period_name, company, action, actor, reason,
			 transaction_doctype, affected_transaction, before_state, after_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), $10, $11, $12)`,
		entry.ID, entry.PeriodID, entry.PeriodName, entry.Company, entry.Action,
		entry.Actor, entry.Reason, entry.DocType, entry.DocName,
		entry.Before, entry.After, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Timeline returns entries newest first plus a flag for whether more remain
// past the requested page.
func (s *PostgresStore) Timeline(ctx context.Context, filter TimelineFilter) ([]Entry, bool, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = defaultTimelineLimit
	}

	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.PeriodID != 0 {
		conds = append(conds, "period_id = "+arg(filter.PeriodID))
	}
	if filter.Company != "" {
		conds = append(conds, "company = "+arg(filter.Company))
	}
	if filter.Action != "" {
		conds = append(conds, "action = "+arg(string(filter.Action)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT id, period_id, period_name, company, action, actor, COALESCE(reason, ''),
		       COALESCE(transaction_doctype, ''), COALESCE(affected_transaction, ''),
		       before_state, after_state, created_at
		FROM period_closing_logs
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT %s OFFSET %s`, where, arg(limit+1), arg(filter.Offset))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PeriodID, &e.PeriodName, &e.Company, &e.Action,
			&e.Actor, &e.Reason, &e.DocType, &e.DocName,
			&e.Before, &e.After, &e.CreatedAt); err != nil {
			return nil, false, fmt.Errorf("audit: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("audit: iterate entries: %w", err)
	}

	hasNext := len(entries) > limit
	if hasNext {
		entries = entries[:limit]
	}
	return entries, hasNext, nil
}

var _ Store = (*PostgresStore)(nil)
