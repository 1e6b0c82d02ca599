package models

import "time"

// Certificate statuses.
const (
	CertificateActive  = "active"
	CertificateRevoked = "revoked"
)

// Verification outcomes recorded in the verification log.
const (
	VerificationValid    = "valid"
	VerificationRevoked  = "revoked"
	VerificationExpired  = "expired"
	VerificationNotFound = "not_found"
)

// Certificate is a single issued certificate. Serial is the public
// identifier embedded in the verification URL handed to holders.
type Certificate struct {
	ID           string
	Serial       string
	HolderName   string
	HolderEmail  string
	Title        string
	Status       string // "active", "revoked"
	IssuedBy     string // account ID of the issuing staff member
	IssuedAt     time.Time
	ExpiresAt    *time.Time
	RevokedAt    *time.Time
	RevokeReason *string
	FilePath     *string // attached document on disk, removed best-effort on delete
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the certificate's validity period has elapsed.
func (c *Certificate) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// VerificationLog records a single public verification of a certificate.
// CertificateID is nil when the serial did not match any certificate.
type VerificationLog struct {
	ID            int64
	CertificateID *string
	Serial        string
	IPAddress     string
	Result        string
	VerifiedAt    time.Time
}
