package models

import "time"

// Lockout dimensions, in tie-break priority order. When two dimensions are
// tied at the minimum remaining attempts, the earlier one wins.
const (
	LockoutTypeAccount = "account"  // too many failures for one account
	LockoutTypeIP      = "ip"       // too many failures from one IP in total
	LockoutTypeIPEmail = "ip-email" // too many distinct accounts tried from one IP
)

// LockoutStatus is the full attempt-tracker view for one login context.
// The remaining_* fields drive the client-side attempt counter and
// countdown timer.
type LockoutStatus struct {
	RemainingAccountAttempts  int `json:"remaining_account_attempts"`
	RemainingIPAttempts       int `json:"remaining_ip_attempts"`
	RemainingIPDistinctEmails int `json:"remaining_ip_distinct_emails"`

	AccountAttemptCount  int `json:"account_attempt_count"`
	IPTotalAttemptCount  int `json:"ip_total_attempt_count"`
	IPDistinctEmailCount int `json:"ip_distinct_email_count"`

	Locked           bool   `json:"locked"`
	LockoutType      string `json:"lockout_type,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
}

// Deny reasons returned by the login decision engine
const (
	DenyReasonBlacklisted = "blacklisted"
	DenyReasonAccount     = LockoutTypeAccount
	DenyReasonIP          = LockoutTypeIP
	DenyReasonIPEmail     = LockoutTypeIPEmail
	DenyReasonUnavailable = "unavailable" // counter store down, fail-closed policy
)

// LoginDecision is the admission-control verdict for one login attempt
type LoginDecision struct {
	Allowed           bool           `json:"allowed"`
	Reason            string         `json:"reason,omitempty"`
	RetryAfterSeconds int            `json:"retry_after_seconds,omitempty"`
	Status            *LockoutStatus `json:"status,omitempty"`
}

// AttemptWindow describes the fixed counting window a counter belongs to.
// Counters expire with their window (or with the lock they triggered),
// so a lock that has passed reads as a fresh zero count.
type AttemptWindow struct {
	Start    time.Time
	Duration time.Duration
}
