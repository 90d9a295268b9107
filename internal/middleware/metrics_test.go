package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func latencyPaths(t *testing.T) map[string]bool {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "shopapp_api_latency_seconds" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	return paths
}

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere/at/all", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	paths := latencyPaths(t)
	require.True(t, paths["/items/:id"])
	require.True(t, paths[unmatchedRoute])
	require.False(t, paths["/items/42"])
	require.False(t, paths["/nowhere/at/all"])
}
