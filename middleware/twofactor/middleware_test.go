package twofactor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/fingerprint"
	"github.com/clinicore/shield/services/token"
	"github.com/clinicore/shield/services/twofactor"
	"github.com/clinicore/shield/testutils"
)

type stepUpFixture struct {
	db     *gorm.DB
	tokens *token.Service
	echo   *echo.Echo
}

func newStepUpFixture(t *testing.T) *stepUpFixture {
	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t, &twofactor.Secret{}, &twofactor.UsedCode{}, &audit.Event{})

	tokens := token.NewService(cfg, nil, nil)
	service := twofactor.NewService(cfg, db, nil)
	auditLogger := audit.NewLogger(db, nil)

	mw := Middleware(&Config{
		Policy:    DefaultPolicy,
		Tokens:    tokens,
		TwoFactor: service,
		Audit:     auditLogger,
	})

	e := echo.New()
	handler := func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
	e.GET("/api/admin/settings", handler, mw)
	e.GET("/api/prescriptions/1", handler, mw)
	e.GET("/api/appointments", handler, mw)

	return &stepUpFixture{db: db, tokens: tokens, echo: e}
}

func (f *stepUpFixture) request(t *testing.T, path, accessToken, stepUpToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.0.2.1:1234"
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	if stepUpToken != "" {
		req.AddCookie(&http.Cookie{Name: StepUpCookie, Value: stepUpToken})
	}
	rec := httptest.NewRecorder()
	f.echo.ServeHTTP(rec, req)
	return rec
}

func (f *stepUpFixture) issueToken(t *testing.T, kind token.Kind, userID uint, role string) string {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("User-Agent", "test-agent")
	req.RemoteAddr = "192.0.2.1:1234"
	fp := fingerprint.FromRequest(req)

	identity := token.Identity{UserID: userID, Email: "user@clinic.test", Role: role, ClinicID: 1}
	value, err := f.tokens.Issue(kind, identity, fp.Hash())
	require.NoError(t, err)
	return value
}

func (f *stepUpFixture) enroll(t *testing.T, userID uint) {
	require.NoError(t, f.db.Create(&twofactor.Secret{
		UserID:  userID,
		Secret:  "JBSWY3DPEHPK3PXP",
		Enabled: true,
	}).Error)
}

func TestPolicyRequiresStepUp(t *testing.T) {
	policy := DefaultPolicy

	assert.True(t, policy.RequiresStepUp("/api/appointments", "admin"))
	assert.True(t, policy.RequiresStepUp("/api/appointments", "clinician"))
	assert.True(t, policy.RequiresStepUp("/api/admin/users", "receptionist"))
	assert.True(t, policy.RequiresStepUp("/api/prescriptions/7", "receptionist"))
	assert.False(t, policy.RequiresStepUp("/api/appointments", "receptionist"))
}

func TestStepUpMiddleware(t *testing.T) {
	t.Run("passes through without access token", func(t *testing.T) {
		f := newStepUpFixture(t)

		rec := f.request(t, "/api/admin/settings", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non privileged request passes without step up", func(t *testing.T) {
		f := newStepUpFixture(t)
		access := f.issueToken(t, token.KindAccess, 1, "receptionist")

		rec := f.request(t, "/api/appointments", access, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unenrolled privileged user gets setup_required", func(t *testing.T) {
		f := newStepUpFixture(t)
		access := f.issueToken(t, token.KindAccess, 1, "admin")

		rec := f.request(t, "/api/admin/settings", access, "")
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "TWO_FACTOR_SETUP_REQUIRED", body["code"])
		assert.Equal(t, "setup_required", body["action"])
	})

	t.Run("enrolled user without step up marker is rejected and audited", func(t *testing.T) {
		f := newStepUpFixture(t)
		f.enroll(t, 1)
		access := f.issueToken(t, token.KindAccess, 1, "clinician")

		rec := f.request(t, "/api/prescriptions/1", access, "")
		require.Equal(t, http.StatusForbidden, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "TWO_FACTOR_VERIFICATION_REQUIRED", body["code"])
		assert.Equal(t, "verification_required", body["action"])

		var events []audit.Event
		require.NoError(t, f.db.Find(&events).Error)
		require.Len(t, events, 1)
		assert.Equal(t, audit.TypeTwoFactorFailure, events[0].Type)
	})

	t.Run("valid step up marker passes", func(t *testing.T) {
		f := newStepUpFixture(t)
		f.enroll(t, 1)
		access := f.issueToken(t, token.KindAccess, 1, "clinician")
		stepUp := f.issueToken(t, token.KindTemp, 1, "clinician")

		rec := f.request(t, "/api/prescriptions/1", access, stepUp)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("step up marker for a different user is rejected", func(t *testing.T) {
		f := newStepUpFixture(t)
		f.enroll(t, 1)
		access := f.issueToken(t, token.KindAccess, 1, "clinician")
		stepUp := f.issueToken(t, token.KindTemp, 2, "clinician")

		rec := f.request(t, "/api/prescriptions/1", access, stepUp)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("access token of the wrong kind is ignored", func(t *testing.T) {
		f := newStepUpFixture(t)
		refresh := f.issueToken(t, token.KindRefresh, 1, "admin")

		rec := f.request(t, "/api/admin/settings", refresh, "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
