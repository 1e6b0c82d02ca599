package integration

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tmackenzie/veridian/internal/handlers"
	"github.com/tmackenzie/veridian/internal/models"
)

func countAuditEvents(t *testing.T, eventType string, success bool) int {
	t.Helper()
	var count int
	err := testDB.Pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM audit_logs WHERE event_type = $1 AND success = $2`, eventType, success).Scan(&count)
	require.NoError(t, err)
	return count
}

func TestLoginFlow(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()

	username, password := TestStaff("login-flow")
	account, err := SeedAccount(ctx, testDB.Pool, username, password, models.RoleAdmin)
	require.NoError(t, err)

	ts := NewTestServer(testDB.DB, t.TempDir())
	defer ts.Close()

	// Wrong password decrements the attempt budget
	resp, err := ts.Login(username, "wrong-password-entirely")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var failure handlers.LoginFailureResponse
	require.NoError(t, ParseJSONResponse(resp, &failure))
	require.NotNil(t, failure.RemainingAttempts)
	assert.Equal(t, 4, *failure.RemainingAttempts)

	// Correct credentials establish the session
	resp, err = ts.Login(username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login handlers.LoginResponse
	require.NoError(t, ParseJSONResponse(resp, &login))
	assert.Equal(t, account.ID, login.AccountID)
	assert.Equal(t, username, login.Username)
	assert.NotEmpty(t, login.CSRFToken)

	// The cookie now names an authenticated session
	resp, err = ts.Request("GET", "/auth/session", nil, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var session handlers.SessionResponse
	require.NoError(t, ParseJSONResponse(resp, &session))
	assert.Equal(t, account.ID, session.AccountID)
	assert.Equal(t, models.RoleAdmin, session.Role)

	// Logout needs the post-login CSRF token
	resp, err = ts.Request("POST", "/auth/logout", nil, map[string]string{"X-CSRF-Token": login.CSRFToken})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = ts.Request("GET", "/auth/session", nil, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Both attempts landed as durable audit rows
	assert.Equal(t, 1, countAuditEvents(t, "login_failed", false))
	assert.Equal(t, 1, countAuditEvents(t, "login_success", true))
}

func TestLoginFlow_CSRFRequired(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()

	username, password := TestStaff("csrf-required")
	_, err := SeedAccount(ctx, testDB.Pool, username, password, models.RoleStaff)
	require.NoError(t, err)

	ts := NewTestServer(testDB.DB, t.TempDir())
	defer ts.Close()

	// Establish the anonymous session but submit a bogus token
	_, err = ts.Handshake()
	require.NoError(t, err)

	resp, err := ts.Request("POST", "/auth/login", handlers.LoginRequest{
		Username:  username,
		Password:  password,
		CSRFToken: "0000000000000000000000000000000000000000000000000000000000000000",
	}, nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLockoutFlow(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()

	username, password := TestStaff("lockout-flow")
	_, err := SeedAccount(ctx, testDB.Pool, username, password, models.RoleStaff)
	require.NoError(t, err)

	ts := NewTestServer(testDB.DB, t.TempDir())
	defer ts.Close()

	// Four failures count down the budget
	for i := 0; i < 4; i++ {
		resp, err := ts.Login(username, "wrong-password-entirely")
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// The fifth failure trips the lock
	resp, err := ts.Login(username, "wrong-password-entirely")
	require.NoError(t, err)
	require.Equal(t, http.StatusLocked, resp.StatusCode)

	var failure handlers.LoginFailureResponse
	require.NoError(t, ParseJSONResponse(resp, &failure))
	require.NotNil(t, failure.RetryAfterSeconds)
	assert.Greater(t, *failure.RetryAfterSeconds, 0)

	// Correct credentials are refused while locked
	resp, err = ts.Login(username, password)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestChangePasswordFlow(t *testing.T) {
	resetDatabase(t)
	ctx := context.Background()

	username, password := TestStaff("change-password")
	_, err := SeedAccount(ctx, testDB.Pool, username, password, models.RoleStaff)
	require.NoError(t, err)

	ts := NewTestServer(testDB.DB, t.TempDir())
	defer ts.Close()

	resp, err := ts.Login(username, password)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var login handlers.LoginResponse
	require.NoError(t, ParseJSONResponse(resp, &login))

	newPassword := "EntirelyDifferent456!"
	resp, err = ts.Request("POST", "/auth/password", handlers.ChangePasswordRequest{
		CurrentPassword: password,
		NewPassword:     newPassword,
	}, map[string]string{"X-CSRF-Token": login.CSRFToken})
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Old password no longer works, new one does
	resp, err = ts.Login(username, password)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = ts.Login(username, newPassword)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
