package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"madajagad/internal/storage"
)

func TestAPILoginRoleGate(t *testing.T) {
	e := newTestEnv(t)
	e.createUser("viewer@example.com", storage.RoleViewer)
	e.createUser("editor@example.com", storage.RoleEditor)

	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "viewer@example.com", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Equal(t, "access_denied", decode[map[string]string](t, w)["error"])

	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "editor@example.com", "password": "nope-nope"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "bad_credentials", decode[map[string]string](t, w)["error"])

	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "editor@example.com"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "editor@example.com", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[map[string]any](t, w)
	require.Equal(t, "Bearer", out["token_type"])
	require.Contains(t, w.Header().Get("Set-Cookie"), e.cfg.Session.CookieName+"=")
	user := out["user"].(map[string]any)
	require.Equal(t, false, user["is_admin"])
}

func TestMeAndLogoutRevokesToken(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	w := e.do(http.MethodGet, "/api/me", nil, tok)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[map[string]any](t, w)
	require.Equal(t, "admin@example.com", me["email"])
	require.Equal(t, true, me["is_admin"])

	require.Equal(t, http.StatusNoContent, e.do(http.MethodPost, "/api/auth/logout", nil, tok).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", nil, tok).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", nil, "").Code)
}

func TestCookieLogoutInvalidatesBearer(t *testing.T) {
	e := newTestEnv(t)
	e.createUser("admin@example.com", storage.RoleAdmin)
	w := e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	tok := decode[map[string]any](t, w)["access_token"].(string)
	var session *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == e.cfg.Session.CookieName {
			session = ck
		}
	}
	require.NotNil(t, session)
	require.Equal(t, http.StatusOK, e.do(http.MethodGet, "/api/admin/services", nil, tok).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(session)
	lw := httptest.NewRecorder()
	e.router.ServeHTTP(lw, req)
	require.Equal(t, http.StatusNoContent, lw.Code)

	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/admin/services", nil, tok).Code)
	require.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/api/me", nil, tok).Code)
}

func TestSignup(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "new@example.com", "password": "long-enough", "name": "New"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Empty(t, decode[map[string]any](t, w)["roles"])

	w = e.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "new@example.com", "password": "long-enough"}, "")
	require.Equal(t, http.StatusConflict, w.Code)
	w = e.do(http.MethodPost, "/api/auth/signup", map[string]string{"email": "weak@example.com", "password": "short"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "weak_password", decode[map[string]string](t, w)["error"])

	// 无角色账号不能登录后台
	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "new@example.com", "password": "long-enough"}, "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestFormLoginWithCSRF(t *testing.T) {
	e := newTestEnv(t)
	e.createUser("admin@example.com", storage.RoleAdmin)

	w := e.do(http.MethodGet, "/login?next=/admin/projects", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var csrf *http.Cookie
	for _, ck := range w.Result().Cookies() {
		if ck.Name == csrfCookie {
			csrf = ck
		}
	}
	require.NotNil(t, csrf)
	require.Contains(t, w.Body.String(), csrf.Value)
	require.Contains(t, w.Body.String(), `value="/admin/projects"`)

	post := func(form url.Values, withCookie bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if withCookie {
			req.AddCookie(csrf)
		}
		rec := httptest.NewRecorder()
		e.router.ServeHTTP(rec, req)
		return rec
	}

	form := url.Values{"csrf_token": {csrf.Value}, "email": {"admin@example.com"}, "password": {"correct-horse"}, "next": {"/admin/projects"}}
	rec := post(form, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Session expired")

	form.Set("password", "wrong-pass")
	rec = post(form, true)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "Invalid email or password.")

	form.Set("password", "correct-horse")
	form.Set("next", "https://evil.example.com")
	rec = post(form, true)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/admin", rec.Header().Get("Location"))
}

func TestMFAEnrollmentAndLogin(t *testing.T) {
	e := newTestEnv(t)
	tok := e.adminToken()

	w := e.do(http.MethodPost, "/api/me/mfa/activate", map[string]string{"code": "123456"}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "no_pending_secret", decode[map[string]string](t, w)["error"])

	w = e.do(http.MethodPost, "/api/me/mfa/setup", nil, tok)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	setup := decode[map[string]any](t, w)
	secret := setup["secret"].(string)
	require.True(t, strings.HasPrefix(setup["otpauth_qr"].(string), "data:image/png;base64,"))

	w = e.do(http.MethodPost, "/api/me/mfa/activate", map[string]string{"code": "000000x"}, tok)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "invalid_code", decode[map[string]string](t, w)["error"])

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	w = e.do(http.MethodPost, "/api/me/mfa/activate", map[string]string{"code": code}, tok)
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = e.do(http.MethodGet, "/api/me/mfa", nil, tok)
	require.Equal(t, true, decode[map[string]any](t, w)["enabled"])
	require.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/api/me/mfa/setup", nil, tok).Code)

	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "correct-horse"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "mfa_required", decode[map[string]string](t, w)["error"])

	code, err = totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	w = e.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "admin@example.com", "password": "correct-horse", "otp": code}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	require.Equal(t, http.StatusNoContent, e.do(http.MethodDelete, "/api/me/mfa", nil, tok).Code)
	w = e.do(http.MethodGet, "/api/me/mfa", nil, tok)
	require.Equal(t, false, decode[map[string]any](t, w)["enabled"])
}
