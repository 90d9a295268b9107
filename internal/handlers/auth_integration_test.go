package handlers_test

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/shopapp/internal/handlers/testutil"
)

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *steppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

type sessionPayload struct {
	ID          uint64 `json:"id"`
	DeviceClass string `json:"device_class"`
	Current     bool   `json:"current"`
}

func listSessions(t *testing.T, env *testutil.Env, token string) []sessionPayload {
	t.Helper()

	w := env.Request(http.MethodGet, "/api/users/sessions", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var sessions []sessionPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &sessions)
	return sessions
}

func refresh(env *testutil.Env, refreshToken string) (int, testutil.APIResponse) {
	w := env.Request(http.MethodPost, "/api/users/refresh-token", map[string]string{"refresh_token": refreshToken}, "")
	return w.Code, testutil.DecodeResponse(env.T, w)
}

func TestAuthHandler_Register(t *testing.T) {
	env := testutil.NewEnv(t)

	payload := map[string]string{
		"phone_number":    "0912345678",
		"password":        "secret-pass",
		"retype_password": "secret-pass",
		"full_name":       "Nguyen Van A",
		"date_of_birth":   "1995-04-30",
	}

	w := env.Request(http.MethodPost, "/api/users/register", payload, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	require.True(t, resp.Success)

	var created struct {
		Message string `json:"message"`
		User    struct {
			ID          string `json:"id"`
			PhoneNumber string `json:"phone_number"`
			Password    string `json:"password"`
		} `json:"user"`
	}
	testutil.DecodeInto(t, resp.Data, &created)
	require.Equal(t, "Register successfully", created.Message)
	require.NotEmpty(t, created.User.ID)
	require.Equal(t, "0912345678", created.User.PhoneNumber)
	require.Empty(t, created.User.Password)

	w = env.Request(http.MethodPost, "/api/users/register", payload, "")
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, "Phone number already exists", testutil.DecodeResponse(t, w).Error.Message)

	mismatch := map[string]string{
		"phone_number":    "0911111111",
		"password":        "secret-pass",
		"retype_password": "other-pass",
	}
	w = env.Request(http.MethodPost, "/api/users/register", mismatch, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "retype password does not match password")

	admin := map[string]string{
		"phone_number":    "0922222222",
		"password":        "secret-pass",
		"retype_password": "secret-pass",
		"role":            "admin",
	}
	w = env.Request(http.MethodPost, "/api/users/register", admin, "")
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthHandler_LoginRefreshLogout(t *testing.T) {
	clock := newSteppingClock()
	env := testutil.NewEnv(t, testutil.WithClock(clock.Now))
	user := env.CreateUser("0912345678", "secret-pass")

	login := env.Login("0912345678", "secret-pass", testutil.DesktopAgent)
	require.Equal(t, "Login successfully", login.Message)
	require.Equal(t, "Bearer", login.TokenType)
	require.Equal(t, user.ID, login.ID)
	require.Equal(t, "user", login.Role)

	details := env.Request(http.MethodGet, "/api/users/details", nil, login.Token)
	require.Equal(t, http.StatusOK, details.Code, details.Body.String())
	var view map[string]any
	testutil.DecodeInto(t, testutil.DecodeResponse(t, details).Data, &view)
	require.Equal(t, user.ID, view["id"])
	require.Equal(t, "0912345678", view["phone_number"])

	clock.Advance(time.Minute)
	code, resp := refresh(env, login.RefreshToken)
	require.Equal(t, http.StatusOK, code)
	var rotated testutil.LoginResult
	testutil.DecodeInto(t, resp.Data, &rotated)
	require.Equal(t, "Refresh token successfully", rotated.Message)
	require.NotEqual(t, login.Token, rotated.Token)
	require.NotEqual(t, login.RefreshToken, rotated.RefreshToken)
	require.Equal(t, user.ID, rotated.ID)

	// the presented rotation token is single-use
	code, resp = refresh(env, login.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "auth.refresh_not_found", resp.Error.Code)
	require.Equal(t, "refresh token does not exist", resp.Error.Message)

	sessions := listSessions(t, env, rotated.Token)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].Current)
	require.Equal(t, "other", sessions[0].DeviceClass)

	logout := env.Request(http.MethodPost, "/api/users/logout", nil, rotated.Token)
	require.Equal(t, http.StatusOK, logout.Code, logout.Body.String())

	code, _ = refresh(env, rotated.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)

	// bearers stay stateless until their own expiry
	require.Equal(t, http.StatusOK, env.Request(http.MethodGet, "/api/users/details", nil, rotated.Token).Code)
	clock.Advance(2 * time.Hour)
	expired := env.Request(http.MethodGet, "/api/users/details", nil, rotated.Token)
	require.Equal(t, http.StatusUnauthorized, expired.Code)
	require.Equal(t, "auth.token_expired", testutil.DecodeResponse(t, expired).Error.Code)
}

func TestAuthHandler_LoginFailures(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateUser("0912345678", "secret-pass")

	for name, payload := range map[string]map[string]string{
		"wrong password": {"phone_number": "0912345678", "password": "nope"},
		"unknown phone":  {"phone_number": "0900000000", "password": "secret-pass"},
	} {
		t.Run(name, func(t *testing.T) {
			w := env.Request(http.MethodPost, "/api/users/login", payload, "")
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "Invalid phone number or password", testutil.DecodeResponse(t, w).Error.Message)
		})
	}

	w := env.Request(http.MethodPost, "/api/users/login", map[string]string{"phone_number": "0912345678"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Contains(t, testutil.DecodeResponse(t, w).Error.Message, "password is required")
}

func TestAuthHandler_RefreshExpired(t *testing.T) {
	clock := newSteppingClock()
	env := testutil.NewEnv(t, testutil.WithClock(clock.Now))
	env.CreateUser("0912345678", "secret-pass")

	login := env.Login("0912345678", "secret-pass", testutil.DesktopAgent)
	clock.Advance(25 * time.Hour)

	code, resp := refresh(env, login.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "auth.refresh_expired", resp.Error.Code)
	require.Equal(t, "refresh token is expired", resp.Error.Message)

	// the expired session was destroyed
	code, resp = refresh(env, login.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "auth.refresh_not_found", resp.Error.Code)
}

func TestAuthHandler_SessionCapPrefersEvictingNonMobile(t *testing.T) {
	clock := newSteppingClock()
	env := testutil.NewEnv(t, testutil.WithClock(clock.Now))
	env.CreateUser("0912345678", "secret-pass")

	login := func(agent string) testutil.LoginResult {
		clock.Advance(time.Second)
		return env.Login("0912345678", "secret-pass", agent)
	}

	phone := login(testutil.MobileAgent)
	laptop := login(testutil.DesktopAgent)
	desktop := login(testutil.DesktopAgent)
	latest := login(testutil.DesktopAgent)

	sessions := listSessions(t, env, latest.Token)
	require.Len(t, sessions, 3)
	require.Equal(t, "mobile", sessions[0].DeviceClass)

	code, _ := refresh(env, laptop.RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)

	for _, survivor := range []testutil.LoginResult{phone, desktop, latest} {
		code, _ := refresh(env, survivor.RefreshToken)
		require.Equal(t, http.StatusOK, code)
	}
}

func TestAuthHandler_SessionCapAllMobileEvictsOldest(t *testing.T) {
	clock := newSteppingClock()
	env := testutil.NewEnv(t, testutil.WithClock(clock.Now))
	env.CreateUser("0912345678", "secret-pass")

	var logins []testutil.LoginResult
	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		logins = append(logins, env.Login("0912345678", "secret-pass", testutil.MobileAgent))
	}

	require.Len(t, listSessions(t, env, logins[3].Token), 3)

	code, _ := refresh(env, logins[0].RefreshToken)
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = refresh(env, logins[1].RefreshToken)
	require.Equal(t, http.StatusOK, code)
}

func TestAuthHandler_LoginRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithRateLimit(2, time.Minute))
	payload := map[string]string{"phone_number": "0900000000", "password": "whatever"}

	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodPost, "/api/users/login", payload, "")
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := env.Request(http.MethodPost, "/api/users/login", payload, "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "RATE_LIMIT_EXCEEDED", testutil.DecodeResponse(t, w).Error.Code)

	// refresh has its own budget
	w = env.Request(http.MethodPost, "/api/users/refresh-token", map[string]string{"refresh_token": "unknown"}, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
