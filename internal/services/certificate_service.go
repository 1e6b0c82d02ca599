package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmackenzie/veridian/internal/models"
	pkglogger "github.com/tmackenzie/veridian/pkg/logger"
)

// CertificateRepository defines the persistence operations the
// certificate service depends on.
type CertificateRepository interface {
	Create(ctx context.Context, cert *models.Certificate) (*models.Certificate, error)
	GetByID(ctx context.Context, id string) (*models.Certificate, error)
	GetBySerial(ctx context.Context, serial string) (*models.Certificate, error)
	List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error)
	Revoke(ctx context.Context, id, reason string) (*models.Certificate, error)
	DeleteWithLogs(ctx context.Context, id string) error
}

// VerificationLogRepository records public verification attempts and
// serves the per-certificate history the panel shows.
type VerificationLogRepository interface {
	Record(ctx context.Context, entry *models.VerificationLog) error
	ListByCertificate(ctx context.Context, certificateID string, limit, offset int) ([]*models.VerificationLog, error)
}

// CertificateService implements issuance, lookup, revocation, deletion
// and public verification.
type CertificateService struct {
	certs      CertificateRepository
	verifyLogs VerificationLogRepository
	email      EmailService
	storageDir string
	logger     *slog.Logger
	audit      *pkglogger.AuditLogger
	now        func() time.Time
}

func NewCertificateService(
	certs CertificateRepository,
	verifyLogs VerificationLogRepository,
	email EmailService,
	storageDir string,
	logger *slog.Logger,
	audit *pkglogger.AuditLogger,
) *CertificateService {
	return &CertificateService{
		certs:      certs,
		verifyLogs: verifyLogs,
		email:      email,
		storageDir: storageDir,
		logger:     logger,
		audit:      audit,
		now:        time.Now,
	}
}

// IssueRequest carries the fields staff supply when issuing.
type IssueRequest struct {
	HolderName  string
	HolderEmail string
	Title       string
	ExpiresAt   *time.Time
}

// newSerial builds a public serial like VC-3F2A-91BC-0D44-7E15.
func newSerial() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:16]
	return fmt.Sprintf("VC-%s-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12], raw[12:16])
}

// Issue creates the certificate record, writes its summary document and
// notifies the holder. Notification failures are logged, never fatal:
// the certificate exists once the row does.
func (s *CertificateService) Issue(ctx context.Context, req IssueRequest, issuedBy string) (*models.Certificate, error) {
	cert := &models.Certificate{
		HolderName:  strings.TrimSpace(req.HolderName),
		HolderEmail: strings.ToLower(strings.TrimSpace(req.HolderEmail)),
		Title:       strings.TrimSpace(req.Title),
		IssuedBy:    issuedBy,
		IssuedAt:    s.now(),
		ExpiresAt:   req.ExpiresAt,
	}

	// Serials come from a 122-bit random source; a collision means retry,
	// not failure.
	var created *models.Certificate
	for attempt := 0; attempt < 3; attempt++ {
		cert.Serial = newSerial()
		if s.storageDir != "" {
			path := filepath.Join(s.storageDir, cert.Serial+".txt")
			cert.FilePath = &path
		}

		var err error
		created, err = s.certs.Create(ctx, cert)
		if err == nil {
			break
		}
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		s.logger.Error("failed to create certificate", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if created == nil {
		return nil, models.ErrInternalServer
	}

	if created.FilePath != nil {
		if err := s.writeSummary(created); err != nil {
			s.logger.Warn("failed to write certificate document",
				slog.String("serial", created.Serial),
				slog.Any("error", err))
		}
	}

	if err := s.email.SendIssuanceNotification(ctx, created); err != nil {
		s.logger.Warn("issuance notification failed",
			slog.String("serial", created.Serial),
			slog.Any("error", err))
	}

	s.audit.LogCertificateAction("certificate_issued", issuedBy, created.Serial, "", nil)

	return created, nil
}

func (s *CertificateService) writeSummary(cert *models.Certificate) error {
	if err := os.MkdirAll(s.storageDir, 0o750); err != nil {
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Certificate %s\n", cert.Serial)
	fmt.Fprintf(&b, "Holder: %s\n", cert.HolderName)
	fmt.Fprintf(&b, "Title: %s\n", cert.Title)
	fmt.Fprintf(&b, "Issued: %s\n", cert.IssuedAt.UTC().Format(time.RFC3339))
	if cert.ExpiresAt != nil {
		fmt.Fprintf(&b, "Expires: %s\n", cert.ExpiresAt.UTC().Format(time.RFC3339))
	}

	return os.WriteFile(*cert.FilePath, []byte(b.String()), 0o640)
}

func (s *CertificateService) Get(ctx context.Context, id string) (*models.Certificate, error) {
	return s.certs.GetByID(ctx, id)
}

func (s *CertificateService) List(ctx context.Context, status string, limit, offset int) ([]*models.Certificate, error) {
	if status != "" && status != models.CertificateActive && status != models.CertificateRevoked {
		return nil, models.ErrBadRequest
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.certs.List(ctx, status, limit, offset)
}

// Revoke marks the certificate revoked with a reason. Already-revoked
// certificates come back as models.ErrConflict.
func (s *CertificateService) Revoke(ctx context.Context, id, reason, revokedBy string) (*models.Certificate, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, models.ErrBadRequest
	}

	cert, err := s.certs.Revoke(ctx, id, reason)
	if err != nil {
		return nil, err
	}

	s.audit.LogCertificateAction("certificate_revoked", revokedBy, cert.Serial, "", map[string]string{"reason": reason})

	return cert, nil
}

// Delete removes the certificate and its verification logs in one
// transaction, then removes the document file. The file removal is
// best effort: once the transaction commits the delete has happened,
// and an orphaned file is only log noise.
func (s *CertificateService) Delete(ctx context.Context, id, deletedBy string) error {
	cert, err := s.certs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.certs.DeleteWithLogs(ctx, id); err != nil {
		return err
	}

	if cert.FilePath != nil {
		if err := os.Remove(*cert.FilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove certificate document",
				slog.String("serial", cert.Serial),
				slog.Any("error", err))
		}
	}

	s.audit.LogCertificateAction("certificate_deleted", deletedBy, cert.Serial, "", nil)

	return nil
}

// ListVerifications returns the verification history for a certificate,
// newest first.
func (s *CertificateService) ListVerifications(ctx context.Context, id string, limit, offset int) ([]*models.VerificationLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.certs.GetByID(ctx, id); err != nil {
		return nil, err
	}

	return s.verifyLogs.ListByCertificate(ctx, id, limit, offset)
}

// VerificationResult is what the public verification surface returns.
type VerificationResult struct {
	Result     string
	Serial     string
	HolderName string
	Title      string
	IssuedAt   *time.Time
	ExpiresAt  *time.Time
	RevokedAt  *time.Time
	RevokedFor string
	VerifiedAt time.Time
}

// VerifyBySerial resolves a serial to a validity verdict and records the
// attempt. Unknown serials are recorded too, with no certificate link.
func (s *CertificateService) VerifyBySerial(ctx context.Context, serial, ipAddress string) (*VerificationResult, error) {
	serial = strings.ToUpper(strings.TrimSpace(serial))
	now := s.now()

	cert, err := s.certs.GetBySerial(ctx, serial)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.recordVerification(ctx, nil, serial, ipAddress, models.VerificationNotFound, now)
			return &VerificationResult{Result: models.VerificationNotFound, Serial: serial, VerifiedAt: now}, nil
		}
		return nil, models.ErrInternalServer
	}

	result := models.VerificationValid
	switch {
	case cert.Status == models.CertificateRevoked:
		result = models.VerificationRevoked
	case cert.Expired(now):
		result = models.VerificationExpired
	}

	s.recordVerification(ctx, &cert.ID, serial, ipAddress, result, now)

	out := &VerificationResult{
		Result:     result,
		Serial:     cert.Serial,
		HolderName: cert.HolderName,
		Title:      cert.Title,
		IssuedAt:   &cert.IssuedAt,
		ExpiresAt:  cert.ExpiresAt,
		RevokedAt:  cert.RevokedAt,
		VerifiedAt: now,
	}
	if cert.RevokeReason != nil {
		out.RevokedFor = *cert.RevokeReason
	}
	return out, nil
}

func (s *CertificateService) recordVerification(ctx context.Context, certificateID *string, serial, ipAddress, result string, at time.Time) {
	entry := &models.VerificationLog{
		CertificateID: certificateID,
		Serial:        serial,
		IPAddress:     ipAddress,
		Result:        result,
		VerifiedAt:    at,
	}
	if err := s.verifyLogs.Record(ctx, entry); err != nil {
		// Verification still answers; the log row is an audit trail,
		// not a gate.
		s.logger.Error("failed to record verification",
			slog.String("serial", serial),
			slog.Any("error", err))
	}
}
