package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/app"
	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/database/testutil"
	"github.com/charlesng35/happycat/internal/monitoring"
	"github.com/charlesng35/happycat/internal/monitoring/checks"
	"github.com/charlesng35/happycat/internal/realtime"
)

func newTestRouter(t *testing.T, cfg *app.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: 15 * time.Minute})
	require.NoError(t, err)
	tokens, err := iauth.NewTokenService(db, jwtSvc, iauth.TokenConfig{})
	require.NoError(t, err)

	store := cache.NewMemoryStore(time.Minute)
	hub := realtime.NewHub()
	svc, err := NewServices(ServiceDeps{DB: db, Aside: cache.NewAside(store), Tokens: tokens, Publisher: hub})
	require.NoError(t, err)

	health := monitoring.NewHealth()
	health.Register(checks.Database(db, time.Second))

	router, err := NewRouter(Deps{
		Config:   cfg,
		Tokens:   tokens,
		Counters: store,
		Hub:      hub,
		Health:   health,
		Services: svc,
	})
	require.NoError(t, err)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router := newTestRouter(t, &app.Config{Monitoring: app.MonitoringConfig{Health: app.HealthConfig{Enabled: true}}})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/ready").Code)

	for _, path := range []string{"/api/auth/me", "/api/users", "/api/units", "/api/groups", "/api/purchases"} {
		require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, path).Code, path)
	}
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/api/auth/providers").Code)
}

func TestRouter_HealthDisabled(t *testing.T) {
	router := newTestRouter(t, &app.Config{})

	require.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/health/ready").Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	cfg := &app.Config{Monitoring: app.MonitoringConfig{
		Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "internal/metrics"},
	}}
	router := newTestRouter(t, cfg)

	serve(router, http.MethodGet, "/api/auth/providers")
	w := serve(router, http.MethodGet, "/internal/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "happycat_api_latency_seconds"), "expected api latency histogram")
}

func TestRouter_NotFoundEnvelope(t *testing.T) {
	router := newTestRouter(t, &app.Config{})

	w := serve(router, http.MethodGet, "/api/does-not-exist")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestRouter(t, &app.Config{Monitoring: app.MonitoringConfig{Health: app.HealthConfig{Enabled: true}}})

	w := serve(router, http.MethodGet, "/health")
	require.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	_, err := NewRouter(Deps{})
	require.Error(t, err)
	_, err = NewRouter(Deps{Config: &app.Config{}})
	require.Error(t, err)
}

func TestMetricsEndpointNormalisation(t *testing.T) {
	require.Equal(t, "/metrics", metricsEndpoint(&app.Config{}))
	cfg := &app.Config{Monitoring: app.MonitoringConfig{Prometheus: app.PrometheusConfig{Endpoint: "stats"}}}
	require.Equal(t, "/stats", metricsEndpoint(cfg))
}
