package models

import "time"

// LoginAttempt is the audit record written for each recorded login
// outcome. Lockout decisions are computed from the counter store; these
// rows exist for operator forensics and are purged after ExpiresAt.
type LoginAttempt struct {
	ID            string
	Email         *string // nil when the attempt carried no known account
	IPAddress     string
	Success       bool
	FailureReason *string
	AttemptTime   time.Time
	ExpiresAt     time.Time
}
