package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/traintrack/gatekeeper/internal/models"
	pkghttp "github.com/traintrack/gatekeeper/pkg/http"
)

// LoginService defines the interface for the admission-control decision
// engine consumed by the login endpoints
type LoginService interface {
	EvaluateLogin(ctx context.Context, email, ip string) (*models.LoginDecision, error)
	CheckLockout(ctx context.Context, email, ip string) *models.LockoutStatus
	RecordFailure(ctx context.Context, email, ip, reason string) error
	RecordSuccess(ctx context.Context, email, ip string) error
}

// LoginHandler handles login evaluation and attempt recording. These
// endpoints are called by the authentication service in front of and
// after its credential checks.
type LoginHandler struct {
	service  LoginService
	ipConfig *pkghttp.IPConfig
}

// NewLoginHandler creates a new LoginHandler
func NewLoginHandler(service LoginService, ipConfig *pkghttp.IPConfig) *LoginHandler {
	return &LoginHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// Request/Response DTOs

// EvaluateLoginRequest represents the request body for a pre-login check
type EvaluateLoginRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// RecordAttemptRequest represents the request body for recording a login outcome
type RecordAttemptRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Success bool   `json:"success"`
	Reason  string `json:"reason" validate:"omitempty,max=255"`
}

// RecordAttemptResponse confirms a recorded outcome and returns the
// refreshed tracker view so callers can update their attempt counter
type RecordAttemptResponse struct {
	Recorded bool                  `json:"recorded"`
	Status   *models.LockoutStatus `json:"status"`
}

// RegisterRoutes registers all login routes with the chi router
func (h *LoginHandler) RegisterRoutes(router chi.Router) {
	router.Route("/login", func(r chi.Router) {
		r.Post("/evaluate", h.EvaluateLogin) // POST /login/evaluate
		r.Post("/attempts", h.RecordAttempt) // POST /login/attempts
		r.Get("/lockout", h.GetLockout)      // GET /login/lockout
	})
}

// EvaluateLogin decides whether a login attempt may proceed
//
// @Summary Evaluate a login attempt
// @Accept json
// @Produce json
// @Success 200 {object} models.LoginDecision
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /login/evaluate [post]
func (h *LoginHandler) EvaluateLogin(w http.ResponseWriter, r *http.Request) {
	var req EvaluateLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	decision, err := h.service.EvaluateLogin(r.Context(), req.Email, ip)
	if err != nil {
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	if !decision.Allowed && decision.RetryAfterSeconds > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfterSeconds))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(decision)
}

// RecordAttempt records the outcome of a credential check. Failures bump
// the attempt counters; successes clear the account-scoped ones.
//
// @Summary Record a login outcome
// @Accept json
// @Produce json
// @Success 200 {object} RecordAttemptResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /login/attempts [post]
func (h *LoginHandler) RecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req RecordAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)

	var err error
	if req.Success {
		err = h.service.RecordSuccess(r.Context(), req.Email, ip)
	} else {
		err = h.service.RecordFailure(r.Context(), req.Email, ip, req.Reason)
	}
	if err != nil {
		if errors.Is(err, models.ErrCounterStoreUnavailable) {
			pkghttp.WriteServiceUnavailable(w, "Attempt tracking temporarily unavailable")
			return
		}
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	status := h.service.CheckLockout(r.Context(), req.Email, ip)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RecordAttemptResponse{
		Recorded: true,
		Status:   status,
	})
}

// GetLockout returns the raw tracker view for the attempt counter and
// countdown UI. Read-only, never mutates counters.
//
// @Summary Get lockout status
// @Param email query string true "Account email"
// @Produce json
// @Success 200 {object} models.LockoutStatus
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /login/lockout [get]
func (h *LoginHandler) GetLockout(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		pkghttp.WriteBadRequest(w, "email query parameter is required")
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	status := h.service.CheckLockout(r.Context(), email, ip)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}
