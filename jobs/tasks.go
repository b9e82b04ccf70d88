package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReopenNotice notifies stakeholders that a closed period was reopened.
	TaskReopenNotice = "closing:reopen_notice"
	// TaskReminderScan looks for periods that ended but were never closed.
	TaskReminderScan = "closing:reminder_scan"
)

// ReopenNoticePayload describes one reopen event.
type ReopenNoticePayload struct {
	PeriodID   int64  `json:"period_id"`
	PeriodName string `json:"period_name"`
	Company    string `json:"company"`
	Actor      string `json:"actor"`
	Reason     string `json:"reason"`
	Recipient  string `json:"recipient"`
}

// NewReopenNoticeTask constructs an Asynq task.
func NewReopenNoticeTask(payload ReopenNoticePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReopenNotice, data), nil
}

// ReopenNoticeJob delivers reopen notifications.
type ReopenNoticeJob struct {
	logger *slog.Logger
}

// NewReopenNoticeJob constructs the job.
func NewReopenNoticeJob(logger *slog.Logger) *ReopenNoticeJob {
	return &ReopenNoticeJob{logger: logger}
}

// Handle processes TaskReopenNotice tasks.
func (j *ReopenNoticeJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReopenNoticePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	// Delivery channel is the structured log for now; SMTP comes with the
	// notification service.
	j.logger.Info("period reopen notice",
		slog.Int64("period_id", payload.PeriodID),
		slog.String("period", payload.PeriodName),
		slog.String("company", payload.Company),
		slog.String("actor", payload.Actor),
		slog.String("reason", payload.Reason),
		slog.String("recipient", payload.Recipient))
	return nil
}

// ReminderScanPayload tunes the scan for stale open periods.
type ReminderScanPayload struct {
	AfterDays int    `json:"after_days"`
	Recipient string `json:"recipient"`
}

// NewReminderScanTask constructs an Asynq task.
func NewReminderScanTask(payload ReminderScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReminderScan, data), nil
}

// ReminderScanJob flags periods whose end date passed without a close.
type ReminderScanJob struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReminderScanJob constructs the job.
func NewReminderScanJob(pool *pgxpool.Pool, logger *slog.Logger) *ReminderScanJob {
	return &ReminderScanJob{pool: pool, logger: logger}
}

// Handle processes TaskReminderScan tasks.
func (j *ReminderScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ReminderScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	afterDays := payload.AfterDays
	if afterDays <= 0 {
		afterDays = 15
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -afterDays)

	rows, err := j.pool.Query(ctx, `
		SELECT id, name, company, end_date
		FROM accounting_periods
		WHERE status = 'OPEN' AND end_date < $1
		ORDER BY end_date`, cutoff)
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id      int64
			name    string
			company string
			endDate time.Time
		)
		if err := rows.Scan(&id, &name, &company, &endDate); err != nil {
			return err
		}
		count++
		j.logger.Info("period overdue for closing",
			slog.Int64("period_id", id),
			slog.String("period", name),
			slog.String("company", company),
			slog.Time("end_date", endDate),
			slog.String("recipient", payload.Recipient))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	j.logger.Info("reminder scan finished", slog.Int("overdue", count))
	return nil
}
