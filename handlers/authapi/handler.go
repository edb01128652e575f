package authapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/clinicore/shield/config"
	"github.com/clinicore/shield/httperr"
	"github.com/clinicore/shield/middleware/csrf"
	"github.com/clinicore/shield/middleware/ratelimit"
	"github.com/clinicore/shield/middleware/tokenauth"
	"github.com/clinicore/shield/middleware/twofactor"
	"github.com/clinicore/shield/services/audit"
	"github.com/clinicore/shield/services/device"
	"github.com/clinicore/shield/services/fingerprint"
	"github.com/clinicore/shield/services/logging"
	"github.com/clinicore/shield/services/refreshtoken"
	"github.com/clinicore/shield/services/token"
	twofactorsvc "github.com/clinicore/shield/services/twofactor"
)

type Handler struct {
	config    *config.Config
	logger    *logging.Service
	audit     *audit.Logger
	tokens    *token.Service
	refresh   *refreshtoken.Service
	devices   *device.Service
	twoFactor *twofactorsvc.Service
	tracker   *ratelimit.Tracker
	users     UserDirectory
	csrf      *csrf.Minter
	cookies   cookieWriter
}

func NewHandler(
	cfg *config.Config,
	logger *logging.Service,
	auditLogger *audit.Logger,
	tokens *token.Service,
	refresh *refreshtoken.Service,
	devices *device.Service,
	twoFactor *twofactorsvc.Service,
	tracker *ratelimit.Tracker,
	users UserDirectory,
) *Handler {
	return &Handler{
		config:    cfg,
		logger:    logger,
		audit:     auditLogger,
		tokens:    tokens,
		refresh:   refresh,
		devices:   devices,
		twoFactor: twoFactor,
		tracker:   tracker,
		users:     users,
		csrf:      csrf.NewMinter(cfg.CSRF.Secret),
		cookies:   cookieWriter{config: cfg},
	}
}

// RegisterRoutes mounts the session endpoints. requireToken guards the
// endpoints that assume an established session.
func (h *Handler) RegisterRoutes(e *echo.Echo, requireToken echo.MiddlewareFunc) {
	group := e.Group("/api/auth")
	group.POST("/login", h.Login)
	group.POST("/logout", h.Logout)
	group.POST("/refresh", h.Refresh)
	group.POST("/2fa/login-verify", h.TwoFactorLoginVerify)
	group.POST("/2fa/setup", h.TwoFactorSetup, requireToken)
	group.POST("/2fa/verify", h.TwoFactorVerify, requireToken)
	group.GET("/me", h.Me, requireToken)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	UserID       uint   `json:"user_id"`
	Role         string `json:"role"`
	ClinicID     uint   `json:"clinic_id"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return httperr.JSON(c, http.StatusBadRequest, "INVALID_REQUEST", "email and password are required")
	}

	ctx := c.Request().Context()
	ri := audit.RequestInfoFrom(c.Request())
	ip := fingerprint.ClientIP(c.Request())

	user, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil || !user.CheckPassword(req.Password) {
		h.tracker.TrackFailedLogin(ctx, ip, req.Email, ri)
		h.audit.Log(ctx, audit.LoginFailure(req.Email, "invalid credentials", ri))
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeAuthenticationRequired, "invalid credentials")
	}

	h.tracker.ClearFailedLogins(ctx, ip, req.Email)

	identity := token.Identity{
		UserID:   user.ID,
		Email:    user.Email,
		Role:     user.Role,
		ClinicID: user.ClinicID,
	}

	// Enrolled accounts and step-up roles must present a second factor
	// before the session is established.
	if h.twoFactor.Enrolled(user.ID) {
		fp := fingerprint.FromRequest(c.Request())
		pending, err := h.tokens.Issue(token.KindTemp, identity, fp.Hash())
		if err != nil {
			return h.internalError(c, "failed to issue pending token", err)
		}

		h.cookies.setStepUp(c, pending)
		return c.JSON(http.StatusOK, map[string]string{
			"action": "two_factor_required",
		})
	}

	return h.establishSession(c, identity, audit.LoginSuccess(user.ID, user.Email, user.Role, ri))
}

// TwoFactorLoginVerify completes the login of an enrolled account.
func (h *Handler) TwoFactorLoginVerify(c echo.Context) error {
	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return httperr.JSON(c, http.StatusBadRequest, "INVALID_REQUEST", "code is required")
	}

	ctx := c.Request().Context()
	ri := audit.RequestInfoFrom(c.Request())

	cookie, err := c.Cookie(twofactor.StepUpCookie)
	if err != nil || cookie.Value == "" {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeAuthenticationRequired, "no pending login")
	}

	fp := fingerprint.FromRequest(c.Request())
	claims, err := h.tokens.Verify(cookie.Value, token.KindTemp, fp.Hash())
	if err != nil {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeTokenInvalid, "pending login expired")
	}

	if err := h.twoFactor.Verify(claims.UserID, req.Code); err != nil {
		h.audit.Log(ctx, audit.TwoFactorFailure(claims.UserID, claims.Email, ri))
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeTwoFactorInvalid, "invalid two-factor code")
	}

	h.audit.Log(ctx, audit.TwoFactorSuccess(claims.UserID, claims.Email, ri))

	return h.establishSession(c, claims.Identity(),
		audit.LoginSuccess(claims.UserID, claims.Email, claims.Role, ri))
}

// establishSession mints the token pair, persists the refresh record
// scoped to the reconciled device identity, and sets the cookies.
func (h *Handler) establishSession(c echo.Context, identity token.Identity, loginEvent audit.Event) error {
	ctx := c.Request().Context()
	fp := fingerprint.FromRequest(c.Request())

	candidateDevice := ""
	if cookie, err := c.Cookie(device.CookieName); err == nil {
		candidateDevice = cookie.Value
	}

	dev, err := h.devices.Initialize(candidateDevice, fp.DeviceSummary())
	if err != nil {
		return h.internalError(c, "failed to initialize device identity", err)
	}
	if err := h.devices.AttachUser(dev.ID, identity.UserID); err != nil {
		return h.internalError(c, "failed to attach device", err)
	}

	accessToken, err := h.tokens.Issue(token.KindAccess, identity, fp.Hash())
	if err != nil {
		return h.internalError(c, "failed to issue access token", err)
	}

	refreshToken, err := h.tokens.Issue(token.KindRefresh, identity, "")
	if err != nil {
		return h.internalError(c, "failed to issue refresh token", err)
	}
	if _, err := h.refresh.Record(refreshToken, identity.UserID, dev.ID); err != nil {
		return h.internalError(c, "failed to record refresh token", err)
	}

	csrfToken, err := h.csrf.Mint(dev.ID)
	if err != nil {
		return h.internalError(c, "failed to mint csrf token", err)
	}

	h.cookies.setSession(c, accessToken, csrfToken)
	h.cookies.setDevice(c, dev.ID)

	h.audit.Log(ctx, loginEvent)

	return c.JSON(http.StatusOK, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    h.tokens.AccessExpirySeconds(),
		UserID:       identity.UserID,
		Role:         identity.Role,
		ClinicID:     identity.ClinicID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh is the server side of the refresh coordinator: validate and
// rotate the record, mint a fresh pair.
func (h *Handler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return httperr.JSON(c, http.StatusBadRequest, "INVALID_REQUEST", "refresh_token is required")
	}

	ctx := c.Request().Context()
	fp := fingerprint.FromRequest(c.Request())

	claims, err := h.tokens.Verify(req.RefreshToken, token.KindRefresh, "")
	if err != nil {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeTokenInvalid, "invalid refresh token")
	}

	identity := claims.Identity()

	newRefreshToken, err := h.tokens.Issue(token.KindRefresh, identity, "")
	if err != nil {
		return h.internalError(c, "failed to issue refresh token", err)
	}

	if _, err := h.refresh.Rotate(ctx, req.RefreshToken, newRefreshToken); err != nil {
		if errors.Is(err, refreshtoken.ErrTokenReused) {
			h.cookies.clearSession(c)
		}
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeTokenInvalid, "refresh token no longer valid")
	}

	accessToken, err := h.tokens.Issue(token.KindAccess, identity, fp.Hash())
	if err != nil {
		return h.internalError(c, "failed to issue access token", err)
	}

	csrfToken, err := h.csrf.Mint(deviceIDFrom(c))
	if err != nil {
		return h.internalError(c, "failed to mint csrf token", err)
	}

	h.cookies.setSession(c, accessToken, csrfToken)

	return c.JSON(http.StatusOK, sessionResponse{
		AccessToken:  accessToken,
		RefreshToken: newRefreshToken,
		ExpiresIn:    h.tokens.AccessExpirySeconds(),
		UserID:       identity.UserID,
		Role:         identity.Role,
		ClinicID:     identity.ClinicID,
	})
}

func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	ri := audit.RequestInfoFrom(c.Request())

	var req refreshRequest
	_ = c.Bind(&req)
	if req.RefreshToken != "" {
		if err := h.refresh.Invalidate(req.RefreshToken); err != nil && h.logger != nil {
			h.logger.Warn("failed to invalidate refresh token on logout", zap.Error(err))
		}
	}

	if cookie, err := c.Cookie(accessCookie); err == nil && cookie.Value != "" {
		fp := fingerprint.FromRequest(c.Request())
		if claims, err := h.tokens.Verify(cookie.Value, token.KindAccess, fp.Hash()); err == nil {
			h.audit.Log(ctx, audit.Logout(claims.UserID, claims.Email, ri))
		}
	}

	h.cookies.clearSession(c)

	return c.JSON(http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) TwoFactorSetup(c echo.Context) error {
	identity, ok := tokenauth.GetIdentity(c)
	if !ok {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeAuthenticationRequired, "authentication required")
	}

	_, provisioningURL, err := h.twoFactor.GenerateSecret(identity.UserID, identity.Email)
	if err != nil {
		if errors.Is(err, twofactorsvc.ErrSecretExists) {
			return httperr.JSON(c, http.StatusConflict,
				"TWO_FACTOR_ALREADY_ENROLLED", "two-factor authentication is already enabled")
		}
		return h.internalError(c, "failed to generate two-factor secret", err)
	}

	h.audit.Log(c.Request().Context(),
		audit.TwoFactorSetup(identity.UserID, identity.Email, audit.RequestInfoFrom(c.Request())))

	return c.JSON(http.StatusOK, map[string]string{
		"otpauth_url": provisioningURL,
	})
}

// TwoFactorVerify completes enrollment on first use and refreshes the
// session's step-up marker on subsequent verifications.
func (h *Handler) TwoFactorVerify(c echo.Context) error {
	identity, ok := tokenauth.GetIdentity(c)
	if !ok {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeAuthenticationRequired, "authentication required")
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return httperr.JSON(c, http.StatusBadRequest, "INVALID_REQUEST", "code is required")
	}

	ctx := c.Request().Context()
	ri := audit.RequestInfoFrom(c.Request())

	if !h.twoFactor.Enrolled(identity.UserID) {
		if err := h.twoFactor.Enable(identity.UserID, req.Code); err != nil {
			h.audit.Log(ctx, audit.TwoFactorFailure(identity.UserID, identity.Email, ri))
			return httperr.JSON(c, http.StatusUnauthorized,
				httperr.CodeTwoFactorInvalid, "invalid two-factor code")
		}
	} else if err := h.twoFactor.Verify(identity.UserID, req.Code); err != nil {
		h.audit.Log(ctx, audit.TwoFactorFailure(identity.UserID, identity.Email, ri))
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeTwoFactorInvalid, "invalid two-factor code")
	}

	fp := fingerprint.FromRequest(c.Request())
	stepUp, err := h.tokens.Issue(token.KindTemp, identity, fp.Hash())
	if err != nil {
		return h.internalError(c, "failed to issue step-up token", err)
	}
	h.cookies.setStepUp(c, stepUp)

	h.audit.Log(ctx, audit.TwoFactorSuccess(identity.UserID, identity.Email, ri))

	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}

func (h *Handler) Me(c echo.Context) error {
	identity, ok := tokenauth.GetIdentity(c)
	if !ok {
		return httperr.JSON(c, http.StatusUnauthorized,
			httperr.CodeAuthenticationRequired, "authentication required")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user_id":   identity.UserID,
		"email":     identity.Email,
		"role":      identity.Role,
		"clinic_id": identity.ClinicID,
	})
}

func (h *Handler) internalError(c echo.Context, msg string, err error) error {
	if h.logger != nil {
		h.logger.Error(msg, zap.Error(err))
	}
	return c.JSON(http.StatusInternalServerError, httperr.Envelope{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
	})
}

func deviceIDFrom(c echo.Context) string {
	if cookie, err := c.Cookie(device.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
