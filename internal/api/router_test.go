package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/shopapp/internal/auth"
	testutil "github.com/charlesng35/shopapp/internal/database/testutil"
	"github.com/charlesng35/shopapp/internal/services"
)

func newTestDependencies(t *testing.T) Dependencies {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())

	codec, err := iauth.NewTokenCodec(iauth.TokenCodecConfig{Secret: "router-secret", Issuer: "test"})
	require.NoError(t, err)
	store, err := iauth.NewGormSessionStore(db, nil)
	require.NoError(t, err)
	sessions, err := iauth.NewSessionManager(store, codec, iauth.SessionManagerConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	require.NoError(t, err)
	users, err := services.NewUserService(db, sessions)
	require.NoError(t, err)

	return Dependencies{DB: db, Codec: codec, Sessions: sessions, Users: users}
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/details"},
		{http.MethodGet, "/api/users/sessions"},
		{http.MethodPost, "/api/users/logout"},
		{http.MethodGet, "/api/users"},
		{http.MethodPut, "/api/users/reset-password/abc"},
		{http.MethodPut, "/api/users/block/abc/0"},
	} {
		w := serve(router, route.method, route.path)
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}

	// public routes reach their handlers and fail validation instead of auth
	require.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/users/register").Code)
	require.Equal(t, http.StatusBadRequest, serve(router, http.MethodPost, "/api/users/login").Code)
}

func TestRouter_GlobalMiddleware(t *testing.T) {
	router, err := NewRouter(newTestDependencies(t))
	require.NoError(t, err)

	w := serve(router, http.MethodGet, "/health")
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "shopapp_api_latency_seconds")

	w = serve(router, http.MethodGet, "/missing")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	deps := newTestDependencies(t)

	for name, mutate := range map[string]func(*Dependencies){
		"db":       func(d *Dependencies) { d.DB = nil },
		"codec":    func(d *Dependencies) { d.Codec = nil },
		"sessions": func(d *Dependencies) { d.Sessions = nil },
		"users":    func(d *Dependencies) { d.Users = nil },
	} {
		t.Run(name, func(t *testing.T) {
			broken := deps
			mutate(&broken)
			_, err := NewRouter(broken)
			require.Error(t, err)
		})
	}
}
