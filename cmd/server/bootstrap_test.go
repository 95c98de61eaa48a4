package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/charlesng35/happycat/internal/api"
	"github.com/charlesng35/happycat/internal/app"
	"github.com/charlesng35/happycat/internal/queue"
)

func testConfig(t *testing.T) *app.Config {
	t.Helper()
	dir := t.TempDir()
	return &app.Config{
		Server:   app.ServerConfig{Port: 0},
		Database: app.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(dir, "happycat.db")},
		Cache:    app.CacheConfig{Driver: "memory"},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: "bootstrap-test-secret", Issuer: "happycat"},
		},
		Queue:      app.QueueConfig{Dir: filepath.Join(dir, "queue")},
		RateLimit:  app.RateLimitConfig{Requests: 10},
		Monitoring: app.MonitoringConfig{Health: app.HealthConfig{Enabled: true}},
	}
}

func TestBootstrapRuntimeServesHealth(t *testing.T) {
	cfg := testConfig(t)
	rt, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown(context.Background()) })

	require.Nil(t, rt.router.Services.Payments)
	require.Nil(t, rt.router.Services.Pronunciation)
	require.NotNil(t, rt.router.Services.Auth)
	require.Nil(t, rt.cleaner)

	router, err := api.NewRouter(rt.router)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "redis")
}

func TestBootstrapRuntimeWithDatabaseCacheAndMaintenance(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cache.Driver = "database"
	cfg.Maintenance = app.MaintenanceConfig{Enabled: true, Schedule: "@daily"}
	cfg.Payment = app.PaymentConfig{TmnCode: "HAPPYCAT", HashSecret: "secret", PayURL: "https://pay.example.test"}

	rt, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { rt.Shutdown(context.Background()) })

	require.NotNil(t, rt.cleaner)
	require.NotNil(t, rt.router.Services.Payments)
}

func TestShutdownStopsWorkerBeforeClosingQueue(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "queue"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rt := &runtimeStack{queue: q, stopJob: cancel, jobDone: make(chan struct{}), log: zap.NewNop()}

	var openAtExit error
	go func() {
		defer close(rt.jobDone)
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		openAtExit = q.Ping(context.Background())
	}()

	rt.Shutdown(context.Background())
	require.NoError(t, openAtExit, "queue closed while the worker was still running")
	require.ErrorIs(t, q.Ping(context.Background()), queue.ErrClosed)
}

func TestBootstrapRuntimeShutdownStopsWorker(t *testing.T) {
	rt, err := bootstrapRuntime(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, rt.jobDone)

	rt.Shutdown(context.Background())
	select {
	case <-rt.jobDone:
	default:
		t.Fatal("worker still running after shutdown")
	}
}

func TestBootstrapRuntimeRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.Maintenance = app.MaintenanceConfig{Enabled: true, Schedule: "not a schedule"}

	_, err := bootstrapRuntime(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))
	require.Error(t, ensureSecretsPresent(&app.Config{}))

	cfg := &app.Config{Auth: app.AuthConfig{JWT: app.JWTSettings{Secret: "  value  "}}}
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "value", cfg.Auth.JWT.Secret)
}

func TestProviderRegistryDisabled(t *testing.T) {
	registry, err := providerRegistry(&app.Config{})
	require.NoError(t, err)
	require.Nil(t, registry)
}

func TestProviderRegistryFacebook(t *testing.T) {
	cfg := &app.Config{Auth: app.AuthConfig{Facebook: app.FacebookSettings{AppID: "app", AppSecret: "secret"}}}
	registry, err := providerRegistry(cfg)
	require.NoError(t, err)
	require.NotNil(t, registry)
	_, ok := registry.Get("facebook")
	require.True(t, ok)
}

func TestSpeechConfigured(t *testing.T) {
	require.False(t, speechConfigured(app.SpeechConfig{Region: "eastus"}))
	require.True(t, speechConfigured(app.SpeechConfig{Region: "eastus", SubscriptionKey: "key"}))
}

func TestShutdownTimeoutDefault(t *testing.T) {
	require.Equal(t, defaultShutdownTimeout, shutdownTimeout(&app.Config{}))
	cfg := &app.Config{Server: app.ServerConfig{ShutdownTimeout: 3}}
	require.EqualValues(t, 3, shutdownTimeout(cfg))
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"-config", "deploy/config.yaml", "-migrate"})
	require.NoError(t, err)
	require.Equal(t, "deploy/config.yaml", opts.configPath)
	require.True(t, opts.migrateOnly)

	_, err = parseOptions([]string{"-unknown"})
	require.Error(t, err)
}

func TestLoadApplicationConfigMissingPath(t *testing.T) {
	_, err := loadApplicationConfig(filepath.Join(t.TempDir(), "nope"))
	require.ErrorContains(t, err, "does not exist")
}
