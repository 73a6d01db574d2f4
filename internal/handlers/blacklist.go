package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/traintrack/gatekeeper/internal/auth"
	"github.com/traintrack/gatekeeper/internal/models"
	pkghttp "github.com/traintrack/gatekeeper/pkg/http"
)

// BlacklistService defines the interface for ban-registry business logic
type BlacklistService interface {
	Create(ctx context.Context, email string, activeFrom time.Time, activeTo *time.Time, createdBy *string) (*models.BlacklistEntry, error)
	UpdatePeriod(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time, updatedBy string) (*models.BlacklistEntry, error)
	Delete(ctx context.Context, id, deletedBy string) error
	GetByID(ctx context.Context, id string) (*models.BlacklistEntry, error)
	List(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error)
	ListByEmail(ctx context.Context, email string) ([]*models.BlacklistEntry, error)
}

// BlacklistHandler handles admin blacklist HTTP requests
type BlacklistHandler struct {
	service BlacklistService
}

// NewBlacklistHandler creates a new BlacklistHandler
func NewBlacklistHandler(service BlacklistService) *BlacklistHandler {
	return &BlacklistHandler{
		service: service,
	}
}

// Request/Response DTOs

// CreateBlacklistRequest represents the request body for banning an email.
// ActiveFrom defaults to now when omitted; a null ActiveTo is permanent.
type CreateBlacklistRequest struct {
	Email      string     `json:"email" validate:"required,email"`
	ActiveFrom *time.Time `json:"active_from"`
	ActiveTo   *time.Time `json:"active_to"`
}

// UpdateBlacklistRequest represents the request body for changing a ban period
type UpdateBlacklistRequest struct {
	ActiveFrom time.Time  `json:"active_from" validate:"required"`
	ActiveTo   *time.Time `json:"active_to"`
}

// BlacklistEntryResponse represents a ban entry in the HTTP response
type BlacklistEntryResponse struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	ActiveFrom string  `json:"active_from"`
	ActiveTo   *string `json:"active_to"` // null = permanent
	CreatedBy  *string `json:"created_by,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// ListBlacklistResponse represents a page of ban entries
type ListBlacklistResponse struct {
	Entries []*BlacklistEntryResponse `json:"entries"`
	Total   int                       `json:"total"`
}

func blacklistModelToResponse(entry *models.BlacklistEntry) *BlacklistEntryResponse {
	resp := &BlacklistEntryResponse{
		ID:         entry.ID,
		Email:      entry.Email,
		ActiveFrom: entry.ActiveFrom.Format(time.RFC3339),
		CreatedBy:  entry.CreatedBy,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  entry.UpdatedAt.Format(time.RFC3339),
	}
	if entry.ActiveTo != nil {
		formatted := entry.ActiveTo.Format(time.RFC3339)
		resp.ActiveTo = &formatted
	}
	return resp
}

// RegisterRoutes registers all blacklist routes with the chi router
func (h *BlacklistHandler) RegisterRoutes(router chi.Router) {
	router.Route("/blacklist", func(r chi.Router) {
		r.Post("/", h.CreateEntry)         // POST /blacklist
		r.Get("/", h.ListEntries)          // GET /blacklist
		r.Get("/{id}", h.GetEntry)         // GET /blacklist/{id}
		r.Put("/{id}", h.UpdateEntry)      // PUT /blacklist/{id}
		r.Delete("/{id}", h.DeleteEntry)   // DELETE /blacklist/{id}
	})
}

// CreateEntry bans an email for a period
//
// @Summary Ban an email
// @Accept json
// @Produce json
// @Success 201 {object} BlacklistEntryResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.OverlapErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /blacklist [post]
func (h *BlacklistHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var createdBy *string
	if claims := auth.GetUserFromContext(r); claims != nil {
		createdBy = &claims.UserID
	}

	activeFrom := time.Time{}
	if req.ActiveFrom != nil {
		activeFrom = *req.ActiveFrom
	}

	entry, err := h.service.Create(r.Context(), req.Email, activeFrom, req.ActiveTo, createdBy)
	if err != nil {
		writeBlacklistError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(blacklistModelToResponse(entry))
}

// UpdateEntry changes an entry's ban period. Shortening active_to to now
// is the standard unban.
//
// @Summary Update a ban period
// @Param id path string true "Entry ID"
// @Accept json
// @Produce json
// @Success 200 {object} BlacklistEntryResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.OverlapErrorResponse
// @Router /blacklist/{id} [put]
func (h *BlacklistHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Entry ID is required")
		return
	}

	var req UpdateBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(&req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	updatedBy := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		updatedBy = claims.UserID
	}

	entry, err := h.service.UpdatePeriod(r.Context(), id, req.ActiveFrom, req.ActiveTo, updatedBy)
	if err != nil {
		writeBlacklistError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(blacklistModelToResponse(entry))
}

// GetEntry retrieves a single ban entry
//
// @Summary Get ban entry by ID
// @Param id path string true "Entry ID"
// @Produce json
// @Success 200 {object} BlacklistEntryResponse
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /blacklist/{id} [get]
func (h *BlacklistHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Entry ID is required")
		return
	}

	entry, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeBlacklistError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(blacklistModelToResponse(entry))
}

// ListEntries retrieves ban entries, optionally filtered by email
//
// @Summary List ban entries
// @Param email query string false "Filter by email (returns full ban history)"
// @Param limit query int false "Limit (default 50)" default(50)
// @Param offset query int false "Offset (default 0)" default(0)
// @Produce json
// @Success 200 {object} ListBlacklistResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /blacklist [get]
func (h *BlacklistHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	if email := r.URL.Query().Get("email"); email != "" {
		entries, err := h.service.ListByEmail(r.Context(), email)
		if err != nil {
			writeBlacklistError(w, err)
			return
		}
		writeEntryList(w, entries)
		return
	}

	limit := 50
	offset := 0

	if l := r.URL.Query().Get("limit"); l != "" {
		if _, err := parseIntParam(l, &limit, 1, 500); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
	}

	if o := r.URL.Query().Get("offset"); o != "" {
		if _, err := parseIntParam(o, &offset, 0, 100000); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid offset parameter")
			return
		}
	}

	entries, err := h.service.List(r.Context(), limit, offset)
	if err != nil {
		writeBlacklistError(w, err)
		return
	}
	writeEntryList(w, entries)
}

// DeleteEntry removes a ban entry entirely
//
// @Summary Delete a ban entry
// @Param id path string true "Entry ID"
// @Success 204
// @Failure 404 {object} pkghttp.ErrorResponse
// @Router /blacklist/{id} [delete]
func (h *BlacklistHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "Entry ID is required")
		return
	}

	deletedBy := ""
	if claims := auth.GetUserFromContext(r); claims != nil {
		deletedBy = claims.UserID
	}

	if err := h.service.Delete(r.Context(), id, deletedBy); err != nil {
		writeBlacklistError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeEntryList(w http.ResponseWriter, entries []*models.BlacklistEntry) {
	resp := ListBlacklistResponse{
		Entries: make([]*BlacklistEntryResponse, 0, len(entries)),
		Total:   len(entries),
	}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, blacklistModelToResponse(entry))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// writeBlacklistError maps service errors to HTTP responses. Overlap
// conflicts carry the existing period so the operator can resolve it.
func writeBlacklistError(w http.ResponseWriter, err error) {
	var overlapErr *models.OverlapError
	switch {
	case errors.As(err, &overlapErr):
		pkghttp.WriteOverlapConflict(w,
			"The requested ban period overlaps an existing entry for this email",
			overlapErr.ConflictID, overlapErr.ConflictActiveFrom, overlapErr.ConflictActiveTo)
	case errors.Is(err, models.ErrValidation):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Blacklist entry not found")
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
