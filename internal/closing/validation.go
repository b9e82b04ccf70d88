package closing

import (
	"context"
	"fmt"

	"github.com/batasku/periodlock/internal/ledger"
)

// ValidationFinding is one failed pre-close check.
type ValidationFinding struct {
	Check   string `json:"check"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// ValidationResult reports the outcome of the pre-close checks.
type ValidationResult struct {
	Passed   bool                `json:"passed"`
	Findings []ValidationFinding `json:"findings,omitempty"`
}

// Validator runs the pre-close checks against the ledger. Individual checks
// can be disabled through the closing configuration.
type Validator struct {
	ledger ledger.Gateway
}

// NewValidator constructs a validator over the given gateway.
func NewValidator(gw ledger.Gateway) *Validator {
	return &Validator{ledger: gw}
}

// Validate runs every enabled check for the period. A close with force set
// skips this entirely; a failed result maps to CodeValidationFailed with the
// findings attached.
func (v *Validator) Validate(ctx context.Context, period Period, cfg Config) (ValidationResult, error) {
	result := ValidationResult{Passed: true}

	if cfg.ValidateDraftEntries {
		count, err := v.ledger.CountDraftEntries(ctx, period.Company, ledger.DateRange{
			Start: period.StartDate,
			End:   period.EndDate,
		})
		if err != nil {
			return ValidationResult{}, fmt.Errorf("closing: count draft entries: %w", err)
		}
		if count > 0 {
			result.Passed = false
			result.Findings = append(result.Findings, ValidationFinding{
				Check:   "draft_entries",
				Message: fmt.Sprintf("%d draft journal entries dated inside the period must be submitted or deleted", count),
				Count:   count,
			})
		}
	}

	return result, nil
}
