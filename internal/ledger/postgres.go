package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresGateway implements Gateway on top of pgx.
type PostgresGateway struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresGateway constructs a gateway backed by the given pool.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (g *PostgresGateway) WithNow(now func() time.Time) *PostgresGateway {
	g.now = now
	return g
}

func (g *PostgresGateway) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ledger: commit tx: %w", err)
	}
	return nil
}

func (g *PostgresGateway) SumLinesByAccount(ctx context.Context, company string, r DateRange) ([]AccountTotals, error) {
	query := `
		SELECT account, COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM gl_entries
		WHERE company = $1
		  AND is_cancelled = FALSE
		  AND posting_date <= $2
		  AND ($3::date IS NULL OR posting_date >= $3)
		GROUP BY account
		ORDER BY account`

	var start any
	if !r.Start.IsZero() {
		start = r.Start
	}
	rows, err := g.pool.Query(ctx, query, company, r.End, start)
	if err != nil {
		return nil, fmt.Errorf("ledger: sum lines: %w", err)
	}
	defer rows.Close()

	var totals []AccountTotals
	for rows.Next() {
		var t AccountTotals
		if err := rows.Scan(&t.Account, &t.Debit, &t.Credit); err != nil {
			return nil, fmt.Errorf("ledger: scan totals: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate totals: %w", err)
	}
	return totals, nil
}

func (g *PostgresGateway) AccountsByName(ctx context.Context, company string, names []string) ([]Account, error) {
	if len(names) == 0 {
		return nil, nil
	}
	query := `
		SELECT name, company, account_name, account_type, root_type, is_group
		FROM accounts
		WHERE company = $1 AND name = ANY($2)`

	rows, err := g.pool.Query(ctx, query, company, names)
	if err != nil {
		return nil, fmt.Errorf("ledger: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.Name, &a.Company, &a.AccountName, &a.AccountType, &a.RootType, &a.IsGroup); err != nil {
			return nil, fmt.Errorf("ledger: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate accounts: %w", err)
	}
	return accounts, nil
}

func (g *PostgresGateway) GetAccount(ctx context.Context, company, name string) (Account, error) {
	query := `
		SELECT name, company, account_name, account_type, root_type, is_group
		FROM accounts
		WHERE company = $1 AND name = $2`

	var a Account
	err := g.pool.QueryRow(ctx, query, company, name).
		Scan(&a.Name, &a.Company, &a.AccountName, &a.AccountType, &a.RootType, &a.IsGroup)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, fmt.Errorf("ledger: account %q: %w", name, ErrEntryNotFound)
	}
	if err != nil {
		return Account{}, fmt.Errorf("ledger: get account: %w", err)
	}
	return a, nil
}

func (g *PostgresGateway) InsertJournalEntry(ctx context.Context, entry *JournalEntry) error {
	return g.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		now := g.now().UTC()
		entry.ID = uuid.New()
		entry.Status = DocStatusDraft
		entry.CreatedAt = now
		entry.UpdatedAt = now

		_, err := tx.Exec(ctx, `
			INSERT INTO journal_entries
				(id, company, posting_date, is_closing_entry, period_id, remark, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, 0), $6, $7, $8, $8)`,
			entry.ID, entry.Company, entry.PostingDate, entry.IsClosingEntry,
			entry.PeriodID, entry.Remark, entry.Status, now)
		if err != nil {
			return fmt.Errorf("ledger: insert entry: %w", err)
		}

		for i, line := range entry.Lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO journal_lines (entry_id, line_no, account, debit, credit, remark)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				entry.ID, i+1, line.Account, line.Debit, line.Credit, line.Remark)
			if err != nil {
				return fmt.Errorf("ledger: insert line %d: %w", i+1, err)
			}
		}
		return nil
	})
}

func (g *PostgresGateway) SubmitJournalEntry(ctx context.Context, id uuid.UUID) error {
	return g.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status DocStatus
		err := tx.QueryRow(ctx, `SELECT status FROM journal_entries WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("ledger: lock entry: %w", err)
		}
		if status != DocStatusDraft {
			return ErrEntryNotDraft
		}

		now := g.now().UTC()
		_, err = tx.Exec(ctx, `UPDATE journal_entries SET status = $2, updated_at = $3 WHERE id = $1`,
			id, DocStatusSubmitted, now)
		if err != nil {
			return fmt.Errorf("ledger: submit entry: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO gl_entries (entry_id, company, account, posting_date, debit, credit, is_cancelled)
			SELECT l.entry_id, e.company, l.account, e.posting_date, l.debit, l.credit, FALSE
			FROM journal_lines l
			JOIN journal_entries e ON e.id = l.entry_id
			WHERE l.entry_id = $1`, id)
		if err != nil {
			return fmt.Errorf("ledger: project gl: %w", err)
		}
		return nil
	})
}

func (g *PostgresGateway) CancelJournalEntry(ctx context.Context, id uuid.UUID) error {
	return g.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		now := g.now().UTC()
		tag, err := tx.Exec(ctx, `
			UPDATE journal_entries SET status = $2, updated_at = $3
			WHERE id = $1 AND status = $4`,
			id, DocStatusCancelled, now, DocStatusSubmitted)
		if err != nil {
			return fmt.Errorf("ledger: cancel entry: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrEntryNotFound
		}
		_, err = tx.Exec(ctx, `UPDATE gl_entries SET is_cancelled = TRUE WHERE entry_id = $1`, id)
		if err != nil {
			return fmt.Errorf("ledger: cancel gl: %w", err)
		}
		return nil
	})
}

func (g *PostgresGateway) DeleteJournalEntry(ctx context.Context, id uuid.UUID) error {
	return g.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var status DocStatus
		err := tx.QueryRow(ctx, `SELECT status FROM journal_entries WHERE id = $1 FOR UPDATE`, id).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEntryNotFound
		}
		if err != nil {
			return fmt.Errorf("ledger: lock entry: %w", err)
		}
		if status != DocStatusCancelled {
			return ErrEntryNotCancelled
		}
		if _, err := tx.Exec(ctx, `DELETE FROM gl_entries WHERE entry_id = $1`, id); err != nil {
			return fmt.Errorf("ledger: delete gl: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id = $1`, id); err != nil {
			return fmt.Errorf("ledger: delete lines: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM journal_entries WHERE id = $1`, id); err != nil {
			return fmt.Errorf("ledger: delete entry: %w", err)
		}
		return nil
	})
}

func (g *PostgresGateway) GetJournalEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	var e JournalEntry
	err := g.pool.QueryRow(ctx, `
		SELECT id, company, posting_date, is_closing_entry, COALESCE(period_id, 0), remark, status, created_at, updated_at
		FROM journal_entries WHERE id = $1`, id).
		Scan(&e.ID, &e.Company, &e.PostingDate, &e.IsClosingEntry, &e.PeriodID, &e.Remark, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrEntryNotFound
	}
	if err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: get entry: %w", err)
	}

	rows, err := g.pool.Query(ctx, `
		SELECT account, debit, credit, remark
		FROM journal_lines WHERE entry_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: list lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.Account, &line.Debit, &line.Credit, &line.Remark); err != nil {
			return JournalEntry{}, fmt.Errorf("ledger: scan line: %w", err)
		}
		e.Lines = append(e.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, fmt.Errorf("ledger: iterate lines: %w", err)
	}
	return e, nil
}

func (g *PostgresGateway) CountDraftEntries(ctx context.Context, company string, r DateRange) (int, error) {
	var count int
	err := g.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM journal_entries
		WHERE company = $1 AND status = $2
		  AND posting_date >= $3 AND posting_date <= $4`,
		company, DocStatusDraft, r.Start, r.End).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: count drafts: %w", err)
	}
	return count, nil
}

var _ Gateway = (*PostgresGateway)(nil)
