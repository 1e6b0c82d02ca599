package models

import (
	"time"
)

// Staff roles. "admin" can manage accounts, API tokens and delete
// certificates; "staff" can issue, list and revoke them.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Account is a staff member of the certificate panel.
type Account struct {
	ID                     string
	Username               string
	Email                  string
	PasswordHash           string
	Role                   string // "staff", "admin"
	FailedLoginAttempts    int
	LastFailedLogin        *time.Time
	AccountLocked          bool // administrative lock, cleared only by an admin
	PasswordChangeRequired bool
	LastPasswordChange     *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// LockStatus describes whether an account may currently attempt a login.
type LockStatus struct {
	Locked           bool
	RemainingSeconds int  // seconds until a throttle lock clears; 0 for administrative locks
	Administrative   bool // set by an admin, does not expire with time
}
