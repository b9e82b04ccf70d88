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

// CreatePeriod registers a new open period after checking the window does not
// overlap an existing one.
func (s *Service) CreatePeriod(ctx context.Context, actor authz.Identity, name, company string, start, end time.Time) (Period, error) {
	cfg, err := s.repo.GetConfig(ctx, company)
	if err != nil {
		return Period{}, err
	}
	if err := s.authorize(actor, authz.ActionChangeConfig, cfg); err != nil {
		return Period{}, err
	}
	if end.Before(start) {
		return Period{}, NewError(CodeValidationFailed, "end date is before start date")
	}

	overlaps, err := s.repo.OverlapExists(ctx, company, start, end, 0)
	if err != nil {
		return Period{}, err
	}
	if overlaps {
		return Period{}, NewError(CodePeriodOverlap,
			fmt.Sprintf("window %s to %s overlaps an existing period",
				start.Format("2006-01-02"), end.Format("2006-01-02")))
	}

	period := Period{Name: name, Company: company, StartDate: start, EndDate: end}
	if err := s.repo.Create(ctx, &period); err != nil {
		return Period{}, err
	}

	s.record(ctx, audit.Entry{
		PeriodID:   period.ID,
		PeriodName: period.Name,
		Company:    period.Company,
		Action:     audit.ActionCreated,
		Actor:      actor.User,
		After:      audit.Snapshot(period),
	})
	return period, nil
}

// GenerateMonthly creates one period per calendar month of the year,
// skipping months already covered by an existing period.
func (s *Service) GenerateMonthly(ctx context.Context, actor authz.Identity, company string, year int) ([]Period, error) {
	cfg, err := s.repo.GetConfig(ctx, company)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, authz.ActionChangeConfig, cfg); err != nil {
		return nil, err
	}

	var created []Period
	for month := time.January; month <= time.December; month++ {
		start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, -1)

		overlaps, err := s.repo.OverlapExists(ctx, company, start, end, 0)
		if err != nil {
			return created, err
		}
		if overlaps {
			continue
		}

		period := Period{
			Name:      fmt.Sprintf("%s %d", month.String(), year),
			Company:   company,
			StartDate: start,
			EndDate:   end,
		}
		if err := s.repo.Create(ctx, &period); err != nil {
			return created, err
		}
		s.record(ctx, audit.Entry{
			PeriodID:   period.ID,
			PeriodName: period.Name,
			Company:    period.Company,
			Action:     audit.ActionCreated,
			Actor:      actor.User,
			After:      audit.Snapshot(period),
		})
		created = append(created, period)
	}

	s.log.Info("monthly periods generated",
		slog.String("company", company),
		slog.Int("year", year),
		slog.Int("created", len(created)))
	return created, nil
}

// ListPeriods returns the company's periods, newest first.
func (s *Service) ListPeriods(ctx context.Context, company string) ([]Period, error) {
	return s.repo.List(ctx, company)
}

// GetPeriod loads one period.
func (s *Service) GetPeriod(ctx context.Context, id int64) (Period, error) {
	return s.getPeriod(ctx, id)
}

// DeletePeriod removes a period that never left the open state.
func (s *Service) DeletePeriod(ctx context.Context, actor authz.Identity, id int64) error {
	period, err := s.getPeriod(ctx, id)
	if err != nil {
		return err
	}
	if period.Status != StatusOpen {
		return statusError(period.Status)
	}

	cfg, err := s.repo.GetConfig(ctx, period.Company)
	if err != nil {
		return err
	}
	if err := s.authorize(actor, authz.ActionChangeConfig, cfg); err != nil {
		return err
	}

	if err := s.repo.DeleteOpen(ctx, id); err != nil {
		if errors.Is(err, ErrPeriodNotFound) {
			// Closed or deleted between the read and the delete.
			current, readErr := s.getPeriod(ctx, id)
			if readErr != nil {
				return readErr
			}
			return statusError(current.Status)
		}
		return err
	}
	return nil
}

// GetConfig returns the company's closing configuration with defaults
// applied when nothing is stored.
func (s *Service) GetConfig(ctx context.Context, company string) (Config, error) {
	return s.repo.GetConfig(ctx, company)
}

// UpdateConfig replaces the closing configuration. The retained earnings
// account, when set, must pass the same checks the close applies.
func (s *Service) UpdateConfig(ctx context.Context, actor authz.Identity, cfg Config) (Config, error) {
	current, err := s.repo.GetConfig(ctx, cfg.Company)
	if err != nil {
		return Config{}, err
	}
	if err := s.authorize(actor, authz.ActionChangeConfig, current); err != nil {
		return Config{}, err
	}
	if cfg.RetainedEarningsAccount != "" {
		if err := s.composer.ValidateRetainedEarnings(ctx, cfg.Company, cfg.RetainedEarningsAccount); err != nil {
			return Config{}, err
		}
	}
	if err := s.repo.SaveConfig(ctx, cfg); err != nil {
		return Config{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, cfg.Company)
	}
	s.log.Info("closing config updated",
		slog.String("company", cfg.Company),
		slog.String("actor", actor.User))
	return s.repo.GetConfig(ctx, cfg.Company)
}
