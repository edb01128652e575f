package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/shield/testutils"
)

func testRequestInfo() RequestInfo {
	return RequestInfo{
		IP:        "203.0.113.9",
		UserAgent: "test-agent",
		Path:      "/api/auth/login",
		Method:    "POST",
	}
}

func TestLogger_Log(t *testing.T) {
	ctx := context.Background()

	t.Run("persists the event", func(t *testing.T) {
		db := testutils.SetupTestDB(t, &Event{})
		logger := NewLogger(db, nil)

		logger.Log(ctx, LoginSuccess(7, "clinician@example.com", "clinician", testRequestInfo()))

		var stored Event
		require.NoError(t, db.First(&stored).Error)
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.Equal(t, TypeLoginSuccess, stored.Type)
		assert.Equal(t, SeverityInfo, stored.Severity)
		assert.Equal(t, uint(7), stored.UserID)
		assert.Equal(t, "203.0.113.9", stored.IP)
		assert.Equal(t, "/api/auth/login", stored.Path)
	})

	t.Run("nil logger is a no-op", func(t *testing.T) {
		var logger *Logger
		logger.Log(ctx, LoginFailure("clinician@example.com", "invalid credentials", testRequestInfo()))
	})

	t.Run("nil database only logs", func(t *testing.T) {
		logger := NewLogger(nil, nil)
		logger.Log(ctx, LoginFailure("clinician@example.com", "invalid credentials", testRequestInfo()))
	})
}

func TestEventConstructors(t *testing.T) {
	ri := testRequestInfo()

	t.Run("token reuse is critical", func(t *testing.T) {
		event := TokenReuseDetected(7, ri)
		assert.Equal(t, TypeTokenReuseDetected, event.Type)
		assert.Equal(t, SeverityCritical, event.Severity)
		assert.Equal(t, uint(7), event.UserID)
	})

	t.Run("ip block is warning", func(t *testing.T) {
		event := IPBlocked("203.0.113.9", "too many failed logins", ri)
		assert.Equal(t, TypeIPBlocked, event.Type)
		assert.Equal(t, SeverityWarning, event.Severity)
	})

	t.Run("login failure keeps the attempted username", func(t *testing.T) {
		event := LoginFailure("clinician@example.com", "invalid credentials", ri)
		assert.Equal(t, TypeLoginFailure, event.Type)
		assert.Equal(t, "clinician@example.com", event.Username)
		assert.Zero(t, event.UserID)
	})
}

func TestWithMetadata(t *testing.T) {
	event := WithMetadata(LoginFailure("user", "reason", testRequestInfo()), map[string]any{
		"attempts": 3,
	})

	assert.JSONEq(t, `{"attempts":3}`, event.Metadata)

	unchanged := WithMetadata(event, nil)
	assert.Equal(t, event.Metadata, unchanged.Metadata)
}

func TestRequestInfoFrom(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/auth/login", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	req.RemoteAddr = "192.0.2.1:1234"

	ri := RequestInfoFrom(req)
	assert.Equal(t, "203.0.113.9", ri.IP)
	assert.Equal(t, "test-agent", ri.UserAgent)
	assert.Equal(t, "/api/auth/login", ri.Path)
	assert.Equal(t, "POST", ri.Method)
}
