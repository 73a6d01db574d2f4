package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/traintrack/gatekeeper/internal/auth"
	"github.com/traintrack/gatekeeper/internal/models"
	pkghttp "github.com/traintrack/gatekeeper/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin user claims to request context
func WithAdminContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockLoginService implements LoginService for testing
type MockLoginService struct {
	EvaluateLoginFunc func(ctx context.Context, email, ip string) (*models.LoginDecision, error)
	CheckLockoutFunc  func(ctx context.Context, email, ip string) *models.LockoutStatus
	RecordFailureFunc func(ctx context.Context, email, ip, reason string) error
	RecordSuccessFunc func(ctx context.Context, email, ip string) error
}

func (m *MockLoginService) EvaluateLogin(ctx context.Context, email, ip string) (*models.LoginDecision, error) {
	if m.EvaluateLoginFunc == nil {
		return &models.LoginDecision{Allowed: true}, nil
	}
	return m.EvaluateLoginFunc(ctx, email, ip)
}

func (m *MockLoginService) CheckLockout(ctx context.Context, email, ip string) *models.LockoutStatus {
	if m.CheckLockoutFunc == nil {
		return &models.LockoutStatus{}
	}
	return m.CheckLockoutFunc(ctx, email, ip)
}

func (m *MockLoginService) RecordFailure(ctx context.Context, email, ip, reason string) error {
	if m.RecordFailureFunc == nil {
		return nil
	}
	return m.RecordFailureFunc(ctx, email, ip, reason)
}

func (m *MockLoginService) RecordSuccess(ctx context.Context, email, ip string) error {
	if m.RecordSuccessFunc == nil {
		return nil
	}
	return m.RecordSuccessFunc(ctx, email, ip)
}

// MockBlacklistService implements BlacklistService for testing
type MockBlacklistService struct {
	CreateFunc       func(ctx context.Context, email string, activeFrom time.Time, activeTo *time.Time, createdBy *string) (*models.BlacklistEntry, error)
	UpdatePeriodFunc func(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time, updatedBy string) (*models.BlacklistEntry, error)
	DeleteFunc       func(ctx context.Context, id, deletedBy string) error
	GetByIDFunc      func(ctx context.Context, id string) (*models.BlacklistEntry, error)
	ListFunc         func(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error)
	ListByEmailFunc  func(ctx context.Context, email string) ([]*models.BlacklistEntry, error)
}

func (m *MockBlacklistService) Create(ctx context.Context, email string, activeFrom time.Time, activeTo *time.Time, createdBy *string) (*models.BlacklistEntry, error) {
	if m.CreateFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateFunc(ctx, email, activeFrom, activeTo, createdBy)
}

func (m *MockBlacklistService) UpdatePeriod(ctx context.Context, id string, activeFrom time.Time, activeTo *time.Time, updatedBy string) (*models.BlacklistEntry, error) {
	if m.UpdatePeriodFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdatePeriodFunc(ctx, id, activeFrom, activeTo, updatedBy)
}

func (m *MockBlacklistService) Delete(ctx context.Context, id, deletedBy string) error {
	if m.DeleteFunc == nil {
		return models.ErrNotFound
	}
	return m.DeleteFunc(ctx, id, deletedBy)
}

func (m *MockBlacklistService) GetByID(ctx context.Context, id string) (*models.BlacklistEntry, error) {
	if m.GetByIDFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetByIDFunc(ctx, id)
}

func (m *MockBlacklistService) List(ctx context.Context, limit, offset int) ([]*models.BlacklistEntry, error) {
	if m.ListFunc == nil {
		return []*models.BlacklistEntry{}, nil
	}
	return m.ListFunc(ctx, limit, offset)
}

func (m *MockBlacklistService) ListByEmail(ctx context.Context, email string) ([]*models.BlacklistEntry, error) {
	if m.ListByEmailFunc == nil {
		return []*models.BlacklistEntry{}, nil
	}
	return m.ListByEmailFunc(ctx, email)
}
