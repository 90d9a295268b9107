package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/shopapp/internal/api"
	"github.com/charlesng35/shopapp/internal/app"
	iauth "github.com/charlesng35/shopapp/internal/auth"
	sharedtestutil "github.com/charlesng35/shopapp/internal/database/testutil"
	"github.com/charlesng35/shopapp/internal/middleware"
	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/internal/services"
	"github.com/charlesng35/shopapp/pkg/response"
)

// DesktopAgent and MobileAgent are User-Agent values for each device class.
const (
	DesktopAgent = "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0"
	MobileAgent  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile/15E148"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Codec    *iauth.TokenCodec
	Sessions *iauth.SessionManager
	Users    *services.UserService
}

// EnvOption adjusts the environment before the router is built.
type EnvOption func(*envConfig)

type envConfig struct {
	maxSessions int
	rateLimit   app.RateLimitConfig
	clock       func() time.Time
}

// WithMaxSessions overrides the per-user session cap.
func WithMaxSessions(n int) EnvOption {
	return func(cfg *envConfig) { cfg.maxSessions = n }
}

// WithRateLimit enables login/refresh throttling.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *envConfig) {
		cfg.rateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// WithClock drives token and session expiry from clock.
func WithClock(clock func() time.Time) EnvOption {
	return func(cfg *envConfig) { cfg.clock = clock }
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	cfg := envConfig{maxSessions: iauth.DefaultMaxSessions, clock: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	codec, err := iauth.NewTokenCodec(iauth.TokenCodecConfig{
		Secret: "test-suite-super-secret-key-32-bytes!!",
		Issuer: "test-suite",
		Clock:  cfg.clock,
	})
	require.NoError(t, err)

	store, err := iauth.NewGormSessionStore(db, cfg.clock)
	require.NoError(t, err)

	sessions, err := iauth.NewSessionManager(store, codec, iauth.SessionManagerConfig{
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
		MaxSessions:     cfg.maxSessions,
		Clock:           cfg.clock,
	})
	require.NoError(t, err)

	users, err := services.NewUserService(db, sessions)
	require.NoError(t, err)
	sessions.SetResolver(users)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		Codec:     codec,
		Sessions:  sessions,
		Users:     users,
		RateStore: middleware.NewMemoryRateStore(),
		RateLimit: cfg.rateLimit,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Codec:    codec,
		Sessions: sessions,
		Users:    users,
	}
}

// CreateUser registers a customer account directly through the user service.
func (e *Env) CreateUser(phone, password string) *models.User {
	e.T.Helper()

	user, err := e.Users.Register(context.Background(), services.RegisterInput{
		PhoneNumber: phone,
		Password:    password,
		FullName:    "Test Customer",
	})
	require.NoError(e.T, err)
	return user
}

// CreateAdmin provisions an administrator account.
func (e *Env) CreateAdmin(phone, password string) *models.User {
	e.T.Helper()

	user, err := e.Users.EnsureAdmin(context.Background(), phone, password)
	require.NoError(e.T, err)
	return user
}

// LoginResult mirrors the login and refresh response payload.
type LoginResult struct {
	Message      string `json:"message"`
	Token        string `json:"token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ID           string `json:"id"`
	PhoneNumber  string `json:"phone_number"`
	Role         string `json:"role"`
}

// Login authenticates with the given User-Agent and returns the issued tokens.
func (e *Env) Login(phone, password, userAgent string) LoginResult {
	e.T.Helper()

	payload := map[string]string{
		"phone_number": phone,
		"password":     password,
	}

	w := e.RequestWithAgent(http.MethodPost, "/api/users/login", payload, "", userAgent)
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	require.NotEmpty(e.T, result.RefreshToken)
	require.Equal(e.T, phone, result.PhoneNumber)

	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()
	return e.RequestWithAgent(method, path, body, token, DesktopAgent)
}

// RequestWithAgent is Request with an explicit User-Agent.
func (e *Env) RequestWithAgent(method, path string, body any, token, userAgent string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
