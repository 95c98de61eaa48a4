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
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/happycat/internal/api"
	"github.com/charlesng35/happycat/internal/app"
	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/cache"
	sharedtestutil "github.com/charlesng35/happycat/internal/database/testutil"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/internal/monitoring"
	"github.com/charlesng35/happycat/internal/monitoring/checks"
	"github.com/charlesng35/happycat/internal/payment"
	"github.com/charlesng35/happycat/internal/realtime"
	"github.com/charlesng35/happycat/pkg/crypto"
	"github.com/charlesng35/happycat/pkg/response"
)

// DefaultPassword is the password given to every user created by the Env.
const DefaultPassword = "Password123!"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Tokens   *iauth.TokenService
	Hub      *realtime.Hub
	Services api.Services
	Config   *app.Config
}

// Option customises NewEnv.
type Option func(*envOptions)

type envOptions struct {
	gateway   *payment.Gateway
	rateLimit int
}

// WithGateway enables the payment routes using gateway.
func WithGateway(gateway *payment.Gateway) Option {
	return func(o *envOptions) {
		o.gateway = gateway
	}
}

// WithRateLimit caps auth endpoint requests per client.
func WithRateLimit(requests int) Option {
	return func(o *envOptions) {
		o.rateLimit = requests
	}
}

// NewEnv provisions a fresh handler test environment with migrations and seed data applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	options := envOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSeedData())

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:          "test-suite-super-secret-key-32-bytes!!",
		Issuer:          "test-suite",
		AccessTokenTTL:  time.Hour,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	tokens, err := iauth.NewTokenService(db, jwtSvc, iauth.TokenConfig{})
	require.NoError(t, err)

	store := cache.NewMemoryStore(time.Minute)
	hub := realtime.NewHub()

	svc, err := api.NewServices(api.ServiceDeps{
		DB:        db,
		Aside:     cache.NewAside(store, cache.WithInvalidation(true)),
		Tokens:    tokens,
		Publisher: hub,
		Gateway:   options.gateway,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server:    app.ServerConfig{RequestTimeout: 10 * time.Second},
		RateLimit: app.RateLimitConfig{Requests: options.rateLimit, Window: time.Minute},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}

	health := monitoring.NewHealth()
	health.Register(checks.Database(db, time.Second))

	router, err := api.NewRouter(api.Deps{
		Config:   cfg,
		Tokens:   tokens,
		Counters: store,
		Hub:      hub,
		Health:   health,
		Services: svc,
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Tokens:   tokens,
		Hub:      hub,
		Services: svc,
		Config:   cfg,
	}
}

// CreateUser inserts a verified account with the given role and DefaultPassword.
func (e *Env) CreateUser(role string) *models.User {
	e.T.Helper()

	username := "user" + uuid.NewString()[:8]
	hashed, err := crypto.HashPassword(DefaultPassword)
	require.NoError(e.T, err)

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: hashed,
		Fullname: "Test " + role,
		Role:     role,
		IsVerify: true,
		Provider: models.ProviderLocal,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// Token issues an access token for user without going through the login endpoint.
func (e *Env) Token(user *models.User) string {
	e.T.Helper()

	pair, err := e.Tokens.Issue(context.Background(), nil, user, "test-device")
	require.NoError(e.T, err)
	return pair.AccessToken
}

// TokenPair mirrors the refresh response payload.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int         `json:"expires_in"`
	User         models.User `json:"user"`
}

// Login authenticates with a password and returns the issued token pair.
func (e *Env) Login(identifier, password string) LoginResult {
	e.T.Helper()

	rec := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":     identifier,
		"password":  password,
		"device_id": "test-device",
	}, "")
	require.Equal(e.T, http.StatusOK, rec.Code, rec.Body.String())

	var result LoginResult
	DecodeInto(e.T, DecodeResponse(e.T, rec).Data, &result)
	return result
}

// Request performs an HTTP request against the router. body is encoded as
// JSON unless nil; token is sent as a bearer credential unless empty.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.Router.ServeHTTP(rec, req)
	return rec
}

// DecodeResponse parses the standard envelope.
func DecodeResponse(t *testing.T, rec *httptest.ResponseRecorder) response.Response {
	t.Helper()

	var resp response.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// DecodeInto re-encodes an envelope's data field into dst.
func DecodeInto(t *testing.T, data any, dst any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dst))
}
