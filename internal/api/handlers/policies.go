// Package handlers contains the HTTP handler implementations for the
// RainGuard API. Each session holds at most one policy; the session key in
// the URL path scopes every operation.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rainguard/internal/core"
	"rainguard/internal/types"
	"rainguard/internal/weather"
)

// PolicyService defines the domain contract the handler depends on. It is
// defined locally so the handler can be tested against a lightweight fake
// without coupling to the concrete service implementation.
type PolicyService interface {
	Create(ctx context.Context, sessionID string, dest types.Destination, dates types.DateRange, terms types.PolicyTerms) (*types.Policy, error)
	Get(ctx context.Context, sessionID string) (*types.Policy, error)
	RefreshWeather(ctx context.Context, sessionID string) (*types.Policy, error)
	Settle(ctx context.Context, sessionID string) (*types.Policy, error)
	Reset(ctx context.Context, sessionID string) error
}

// --- Request/Response Models ---

// CreatePolicyRequest is the request body for POST /v1/sessions/{sessionID}/policy.
// Terms may be omitted entirely, in which case the standard contract applies.
type CreatePolicyRequest struct {
	Destination types.Destination  `json:"destination" validate:"required"`
	Dates       types.DateRange    `json:"dates" validate:"required"`
	Terms       *types.PolicyTerms `json:"terms,omitempty"`
}

// DayView is the per-day weather projection returned to clients. Raw hourly
// readings stay server-side; clients get the derived fields plus the daytime
// window total used for display.
type DayView struct {
	Date            string               `json:"date"`
	QualifyingHours int                  `json:"qualifying_hours"`
	IsRainDay       bool                 `json:"is_rain_day"`
	WindowPrecipMM  float64              `json:"window_precip_mm"`
	Display         types.DayDisplayKind `json:"display"`
}

// WeatherView is the client-facing projection of a weather summary.
type WeatherView struct {
	Days          []DayView           `json:"days"`
	TotalRainDays int                 `json:"total_rain_days"`
	ConditionMet  bool                `json:"condition_met"`
	Source        types.WeatherSource `json:"source"`
	FetchedAt     time.Time           `json:"fetched_at"`
}

// OutcomeView is the client-facing projection of a settlement outcome.
type OutcomeView struct {
	ConditionMet bool                  `json:"condition_met"`
	RainDays     int                   `json:"rain_days"`
	Threshold    int                   `json:"threshold"`
	PayoutAmount float64               `json:"payout_amount"`
	Weather      WeatherView           `json:"weather"`
	Proof        types.SettlementProof `json:"proof"`
	SettledAt    time.Time             `json:"settled_at"`
}

// PolicyResponse is the full client-facing view of a policy.
type PolicyResponse struct {
	ID          string            `json:"id"`
	Destination types.Destination `json:"destination"`
	Dates       types.DateRange   `json:"dates"`
	Terms       types.PolicyTerms `json:"terms"`
	Status      types.PolicyState `json:"status"`
	Weather     *WeatherView      `json:"weather,omitempty"`
	Outcome     *OutcomeView      `json:"outcome,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// --- Handler ---

// PolicyHandler serves the session-scoped policy lifecycle endpoints.
type PolicyHandler struct {
	service   PolicyService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPolicyHandler creates a PolicyHandler with the provided dependencies.
func NewPolicyHandler(service PolicyService, v *core.Validator, l *slog.Logger) *PolicyHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PolicyHandler{
		service:   service,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the policy routes on the provided chi.Router.
func (h *PolicyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions/{sessionID}/policy", func(r chi.Router) {
		r.Use(h.sessionContext)
		r.Post("/", h.Create)
		r.Get("/", h.Get)
		r.Delete("/", h.Reset)
		r.Post("/weather", h.RefreshWeather)
		r.Post("/settle", h.Settle)
	})
}

// sessionContext extracts the session key from the URL and stores it in the
// request context for downstream logging and handlers.
func (h *PolicyHandler) sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if sessionID == "" {
			core.Error(w, r, types.NewAppError(
				types.ErrCodeValidationMissingField,
				"session ID is required in the URL path",
				nil,
			))
			return
		}
		ctx := types.WithSessionID(r.Context(), sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Create handles POST /v1/sessions/{sessionID}/policy.
// Returns 201 with the created policy, 409 if the session already holds one.
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	sessionID := types.GetSessionID(r.Context())

	var req CreatePolicyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	var terms types.PolicyTerms
	if req.Terms != nil {
		terms = *req.Terms
	}

	p, err := h.service.Create(r.Context(), sessionID, req.Destination, req.Dates, terms)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: toPolicyResponse(p)})
}

// Get handles GET /v1/sessions/{sessionID}/policy.
func (h *PolicyHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), types.GetSessionID(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: toPolicyResponse(p)})
}

// RefreshWeather handles POST /v1/sessions/{sessionID}/policy/weather.
// It fetches the hourly series for the policy's range and attaches the
// evaluated summary, moving the policy to monitoring.
func (h *PolicyHandler) RefreshWeather(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.RefreshWeather(r.Context(), types.GetSessionID(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: toPolicyResponse(p)})
}

// Settle handles POST /v1/sessions/{sessionID}/policy/settle.
// Returns 409 unless the policy is monitoring with weather data attached.
func (h *PolicyHandler) Settle(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Settle(r.Context(), types.GetSessionID(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: toPolicyResponse(p)})
}

// Reset handles DELETE /v1/sessions/{sessionID}/policy.
// Removing a policy that does not exist is not an error; the endpoint is
// idempotent and always returns 204.
func (h *PolicyHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context(), types.GetSessionID(r.Context())); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- View Construction ---

func toPolicyResponse(p *types.Policy) PolicyResponse {
	resp := PolicyResponse{
		ID:          p.ID,
		Destination: p.Destination,
		Dates:       p.Dates,
		Terms:       p.Terms,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
	}
	if p.WeatherData != nil {
		view := toWeatherView(*p.WeatherData)
		resp.Weather = &view
	}
	if p.Outcome != nil {
		resp.Outcome = &OutcomeView{
			ConditionMet: p.Outcome.ConditionMet,
			RainDays:     p.Outcome.RainDays,
			Threshold:    p.Outcome.Threshold,
			PayoutAmount: p.Outcome.PayoutAmount,
			Weather:      toWeatherView(p.Outcome.WeatherSummary),
			Proof:        p.Outcome.Proof,
			SettledAt:    p.Outcome.SettledAt,
		}
	}
	return resp
}

func toWeatherView(summary types.WeatherSummary) WeatherView {
	days := make([]DayView, len(summary.Days))
	for i, day := range summary.Days {
		days[i] = DayView{
			Date:            day.Date,
			QualifyingHours: day.QualifyingHours,
			IsRainDay:       day.IsRainDay,
			WindowPrecipMM:  weather.WindowPrecipitation(day),
			Display:         weather.DisplayKind(day),
		}
	}
	return WeatherView{
		Days:          days,
		TotalRainDays: summary.TotalRainDays,
		ConditionMet:  summary.ConditionMet,
		Source:        summary.Source,
		FetchedAt:     summary.FetchedAt,
	}
}
