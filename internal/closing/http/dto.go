package http

import "time"

const dateLayout = "2006-01-02"

type createPeriodRequest struct {
	Name      string `json:"name" validate:"required,max=140"`
	Company   string `json:"company" validate:"required,max=140"`
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

type generatePeriodsRequest struct {
	Company string `json:"company" validate:"required,max=140"`
	Year    int    `json:"year" validate:"required,gte=1900,lte=2200"`
}

type closePeriodRequest struct {
	Force bool `json:"force"`
}

type reopenPeriodRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type permanentCloseRequest struct {
	Confirmation string `json:"confirmation" validate:"required"`
}

type updateConfigRequest struct {
	Company                 string `json:"company" validate:"required,max=140"`
	RetainedEarningsAccount string `json:"retained_earnings_account" validate:"max=140"`
	ClosingRole             string `json:"closing_role" validate:"max=140"`
	ReopenRole              string `json:"reopen_role" validate:"max=140"`
	RestrictClosedPeriods   bool   `json:"restrict_closed_periods"`
	ValidateDraftEntries    bool   `json:"validate_draft_entries"`
	NotifyOnReopen          bool   `json:"notify_on_reopen"`
}

type checkWriteRequest struct {
	Company string `json:"company" validate:"required,max=140"`
	// PostingDate may be absent: a document with no posting date cannot
	// fall inside a period and is always allowed.
	PostingDate string `json:"posting_date" validate:"omitempty,datetime=2006-01-02"`
	DocType     string `json:"doctype" validate:"max=140"`
	DocName     string `json:"docname" validate:"max=140"`
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}
