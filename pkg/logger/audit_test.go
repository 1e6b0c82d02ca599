package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedAuditStore struct {
	inserted []AuditEvent
	err      error
}

func (s *capturedAuditStore) Insert(ctx context.Context, event AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, event)
	return nil
}

func newQuietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestLogAuthAttempt_PersistsEvent(t *testing.T) {
	store := &capturedAuditStore{}
	audit := NewAuditLogger(newQuietLogger(), store)

	audit.LogAuthAttempt(AuditEvent{
		EventType:     "login_failed",
		Username:      "staff",
		IPAddress:     "198.51.100.4",
		FailureReason: "invalid_password",
	})

	require.Len(t, store.inserted, 1)
	assert.Equal(t, "login_failed", store.inserted[0].EventType)
	assert.Equal(t, "staff", store.inserted[0].Username)
	assert.False(t, store.inserted[0].Success)
}

func TestLogCertificateAction_PersistsSerialInMetadata(t *testing.T) {
	store := &capturedAuditStore{}
	audit := NewAuditLogger(newQuietLogger(), store)

	audit.LogCertificateAction("certificate_revoked", "acct_1", "VC-1111-2222-3333-4444", "198.51.100.4", map[string]string{"reason": "issued in error"})

	require.Len(t, store.inserted, 1)
	event := store.inserted[0]
	assert.Equal(t, "certificate_revoked", event.EventType)
	assert.True(t, event.Success)
	assert.Equal(t, "VC-1111-2222-3333-4444", event.Metadata["serial"])
	assert.Equal(t, "issued in error", event.Metadata["reason"])
}

func TestAuditLogger_StoreFailureIsNotFatal(t *testing.T) {
	store := &capturedAuditStore{err: errors.New("connection reset")}
	audit := NewAuditLogger(newQuietLogger(), store)

	audit.LogAuthAttempt(AuditEvent{EventType: "login_success", Success: true})
	assert.Empty(t, store.inserted)
}

func TestAuditLogger_NilStoreStaysSlogOnly(t *testing.T) {
	audit := NewAuditLogger(newQuietLogger(), nil)

	audit.LogAuthAttempt(AuditEvent{EventType: "login_success", Success: true})
	audit.LogCertificateAction("certificate_issued", "acct_1", "VC-0000-0000-0000-0000", "", nil)
}
