package handlers_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/traintrack/gatekeeper/internal/handlers"
	"github.com/traintrack/gatekeeper/internal/models"
)

func TestEvaluateLogin_Allowed(t *testing.T) {
	mockService := &handlers.MockLoginService{
		EvaluateLoginFunc: func(ctx context.Context, email, ip string) (*models.LoginDecision, error) {
			return &models.LoginDecision{
				Allowed: true,
				Status: &models.LockoutStatus{
					RemainingAccountAttempts:  5,
					RemainingIPAttempts:       20,
					RemainingIPDistinctEmails: 10,
				},
			}, nil
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/evaluate", handlers.EvaluateLoginRequest{
		Email: "alice@example.com",
	})

	w := httptest.NewRecorder()
	handler.EvaluateLogin(w, req)

	var resp models.LoginDecision
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Allowed)
	assert.Equal(t, 5, resp.Status.RemainingAccountAttempts)
}

func TestEvaluateLogin_DeniedWithRetryAfter(t *testing.T) {
	mockService := &handlers.MockLoginService{
		EvaluateLoginFunc: func(ctx context.Context, email, ip string) (*models.LoginDecision, error) {
			return &models.LoginDecision{
				Allowed:           false,
				Reason:            models.LockoutTypeAccount,
				RetryAfterSeconds: 540,
			}, nil
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/evaluate", handlers.EvaluateLoginRequest{
		Email: "alice@example.com",
	})

	w := httptest.NewRecorder()
	handler.EvaluateLogin(w, req)

	var resp models.LoginDecision
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.False(t, resp.Allowed)
	assert.Equal(t, models.LockoutTypeAccount, resp.Reason)
	assert.Equal(t, "540", w.Header().Get("Retry-After"))
}

func TestEvaluateLogin_InvalidEmail(t *testing.T) {
	handler := handlers.NewLoginHandler(&handlers.MockLoginService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/evaluate", handlers.EvaluateLoginRequest{
		Email: "not-an-email",
	})

	w := httptest.NewRecorder()
	handler.EvaluateLogin(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestEvaluateLogin_MalformedBody(t *testing.T) {
	handler := handlers.NewLoginHandler(&handlers.MockLoginService{}, nil)
	req := httptest.NewRequest("POST", "/login/evaluate", nil)

	w := httptest.NewRecorder()
	handler.EvaluateLogin(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}

func TestRecordAttempt_Failure(t *testing.T) {
	var recordedEmail, recordedReason string
	mockService := &handlers.MockLoginService{
		RecordFailureFunc: func(ctx context.Context, email, ip, reason string) error {
			recordedEmail = email
			recordedReason = reason
			return nil
		},
		CheckLockoutFunc: func(ctx context.Context, email, ip string) *models.LockoutStatus {
			return &models.LockoutStatus{
				RemainingAccountAttempts: 4,
				AccountAttemptCount:      1,
			}
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/attempts", handlers.RecordAttemptRequest{
		Email:   "alice@example.com",
		Success: false,
		Reason:  "invalid_credentials",
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)

	var resp handlers.RecordAttemptResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, resp.Recorded)
	assert.Equal(t, 4, resp.Status.RemainingAccountAttempts)
	assert.Equal(t, "alice@example.com", recordedEmail)
	assert.Equal(t, "invalid_credentials", recordedReason)
}

func TestRecordAttempt_Success(t *testing.T) {
	successCalled := false
	mockService := &handlers.MockLoginService{
		RecordSuccessFunc: func(ctx context.Context, email, ip string) error {
			successCalled = true
			return nil
		},
		CheckLockoutFunc: func(ctx context.Context, email, ip string) *models.LockoutStatus {
			return &models.LockoutStatus{RemainingAccountAttempts: 5}
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/attempts", handlers.RecordAttemptRequest{
		Email:   "alice@example.com",
		Success: true,
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)

	var resp handlers.RecordAttemptResponse
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.True(t, successCalled)
}

func TestRecordAttempt_StoreUnavailable(t *testing.T) {
	mockService := &handlers.MockLoginService{
		RecordFailureFunc: func(ctx context.Context, email, ip, reason string) error {
			return models.ErrCounterStoreUnavailable
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := handlers.NewTestRequest(t, "POST", "/login/attempts", handlers.RecordAttemptRequest{
		Email:   "alice@example.com",
		Success: false,
	})

	w := httptest.NewRecorder()
	handler.RecordAttempt(w, req)

	handlers.AssertErrorResponse(t, w, 503, "service_unavailable")
}

func TestGetLockout(t *testing.T) {
	mockService := &handlers.MockLoginService{
		CheckLockoutFunc: func(ctx context.Context, email, ip string) *models.LockoutStatus {
			return &models.LockoutStatus{
				RemainingAccountAttempts: 2,
				AccountAttemptCount:      3,
				Locked:                   false,
			}
		},
	}

	handler := handlers.NewLoginHandler(mockService, nil)
	req := httptest.NewRequest("GET", "/login/lockout?email=alice%40example.com", nil)

	w := httptest.NewRecorder()
	handler.GetLockout(w, req)

	var resp models.LockoutStatus
	handlers.AssertJSONResponse(t, w, 200, &resp)
	assert.Equal(t, 2, resp.RemainingAccountAttempts)
	assert.Equal(t, 3, resp.AccountAttemptCount)
}

func TestGetLockout_MissingEmail(t *testing.T) {
	handler := handlers.NewLoginHandler(&handlers.MockLoginService{}, nil)
	req := httptest.NewRequest("GET", "/login/lockout", nil)

	w := httptest.NewRecorder()
	handler.GetLockout(w, req)

	handlers.AssertErrorResponse(t, w, 400, "bad_request")
}
