package models

import "time"

// Session is a server-side session row. Pre-authentication sessions
// (issued so the login form can carry a CSRF token) have a nil AccountID;
// Establish replaces them with a fresh ID bound to the account.
type Session struct {
	ID            string
	AccountID     *string
	Role          string
	CSRFToken     *string
	CSRFExpiresAt *time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Authenticated reports whether the session carries an identity and has
// not expired.
func (s *Session) Authenticated(now time.Time) bool {
	return s.AccountID != nil && now.Before(s.ExpiresAt)
}

// Expired reports whether the session lifetime has elapsed.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
