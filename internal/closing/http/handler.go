// Package http exposes the closing subsystem over a JSON API.
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/batasku/periodlock/internal/audit"
	"github.com/batasku/periodlock/internal/authz"
	"github.com/batasku/periodlock/internal/closing"
	"github.com/batasku/periodlock/internal/observability"
	"github.com/batasku/periodlock/internal/platform/httpx"
)

// Handler serves the period lifecycle endpoints.
type Handler struct {
	svc      *closing.Service
	enforcer *closing.Enforcer
	trail    audit.Reader
	validate *validator.Validate
	metrics  *observability.Metrics
	log      *slog.Logger
}

// NewHandler wires the handler.
func NewHandler(svc *closing.Service, enforcer *closing.Enforcer, trail audit.Reader, log *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		enforcer: enforcer,
		trail:    trail,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
	}
}

// WithMetrics registers transition and denial counters.
func (h *Handler) WithMetrics(m *observability.Metrics) *Handler {
	h.metrics = m
	return h
}

var statusByCode = map[string]int{
	closing.CodePeriodNotFound:      http.StatusNotFound,
	closing.CodeForbidden:           http.StatusForbidden,
	closing.CodeAlreadyClosed:       http.StatusConflict,
	closing.CodeMustBeClosedFirst:   http.StatusConflict,
	closing.CodePermanentlyClosed:   http.StatusConflict,
	closing.CodeNextPeriodClosed:    http.StatusConflict,
	closing.CodePeriodOverlap:       http.StatusConflict,
	closing.CodeConflict:            http.StatusConflict,
	closing.CodePeriodClosed:        http.StatusConflict,
	closing.CodeValidationFailed:    http.StatusUnprocessableEntity,
	closing.CodeRetainedEarnings:    http.StatusUnprocessableEntity,
	closing.CodeUnbalancedEntry:     http.StatusUnprocessableEntity,
	closing.CodeConfirmationInvalid: http.StatusUnprocessableEntity,
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var domainErr *closing.Error
	if errors.As(err, &domainErr) {
		status, ok := statusByCode[domainErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		httpx.Fail(w, status, domainErr.Code, domainErr.Message, domainErr.Details)
		return
	}
	h.log.Error("request failed", slog.Any("error", err))
	httpx.Fail(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid JSON body", nil)
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return false
	}
	return true
}

func periodID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) createPeriod(w http.ResponseWriter, r *http.Request) {
	var req createPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid start_date", nil)
		return
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid end_date", nil)
		return
	}

	actor, _ := authz.IdentityFromContext(r.Context())
	period, err := h.svc.CreatePeriod(r.Context(), actor, req.Name, req.Company, start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.Created(w, period)
}

func (h *Handler) generatePeriods(w http.ResponseWriter, r *http.Request) {
	var req generatePeriodsRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	created, err := h.svc.GenerateMonthly(r.Context(), actor, req.Company, req.Year)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "company query parameter is required", nil)
		return
	}
	periods, err := h.svc.ListPeriods(r.Context(), company)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, periods)
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	period, err := h.svc.GetPeriod(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, period)
}

func (h *Handler) deletePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	if err := h.svc.DeletePeriod(r.Context(), actor, id); err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OKMessage(w, nil, "period deleted")
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	var req closePeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	result, err := h.svc.Close(r.Context(), id, actor, closing.CloseOptions{Force: req.Force})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveTransition("close")
	httpx.OK(w, result)
}

func (h *Handler) previewClose(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	entry, validation, err := h.svc.Preview(r.Context(), id, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"closing_entry": entry,
		"validation":    validation,
	})
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	var req reopenPeriodRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	period, err := h.svc.Reopen(r.Context(), id, actor, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveTransition("reopen")
	httpx.OK(w, period)
}

func (h *Handler) permanentlyClosePeriod(w http.ResponseWriter, r *http.Request) {
	id, ok := periodID(r)
	if !ok {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period id", nil)
		return
	}
	var req permanentCloseRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	period, err := h.svc.PermanentlyClose(r.Context(), id, actor, req.Confirmation)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.metrics.ObserveTransition("permanent_close")
	httpx.OK(w, period)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	company := r.URL.Query().Get("company")
	if company == "" {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "company query parameter is required", nil)
		return
	}
	cfg, err := h.svc.GetConfig(r.Context(), company)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

func (h *Handler) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	cfg, err := h.svc.UpdateConfig(r.Context(), actor, closing.Config{
		Company:                 req.Company,
		RetainedEarningsAccount: req.RetainedEarningsAccount,
		ClosingRole:             req.ClosingRole,
		ReopenRole:              req.ReopenRole,
		RestrictClosedPeriods:   req.RestrictClosedPeriods,
		ValidateDraftEntries:    req.ValidateDraftEntries,
		NotifyOnReopen:          req.NotifyOnReopen,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, cfg)
}

func (h *Handler) checkWrite(w http.ResponseWriter, r *http.Request) {
	var req checkWriteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.PostingDate == "" {
		// No posting date means nothing to restrict against.
		httpx.OKMessage(w, nil, "write allowed")
		return
	}
	date, err := parseDate(req.PostingDate)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid posting_date", nil)
		return
	}
	actor, _ := authz.IdentityFromContext(r.Context())
	if err := h.enforcer.CheckWrite(r.Context(), actor, req.Company, date, req.DocType, req.DocName); err != nil {
		var domainErr *closing.Error
		if errors.As(err, &domainErr) {
			h.metrics.ObserveWriteDenied()
		}
		h.writeError(w, err)
		return
	}
	httpx.OKMessage(w, nil, "write allowed")
}

func (h *Handler) auditTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.TimelineFilter{
		Company: q.Get("company"),
		Action:  audit.ActionType(q.Get("action")),
	}
	if raw := q.Get("period_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "BAD_REQUEST", "invalid period_id", nil)
			return
		}
		filter.PeriodID = id
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}

	entries, hasNext, err := h.trail.Timeline(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.OK(w, map[string]any{
		"entries":  entries,
		"has_next": hasNext,
	})
}
