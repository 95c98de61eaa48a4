package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/happycat/internal/cache"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(cache.NewMemoryStore(time.Minute), 2, 100*time.Millisecond))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/other", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 2; i++ {
		w := get(r, "/ping", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, "0", get(r, "/ping", "").Header().Get("X-RateLimit-Remaining"))

	w := get(r, "/ping", "")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotEmpty(t, w.Header().Get("Retry-After"))
	require.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")

	// limits are per route
	require.Equal(t, http.StatusOK, get(r, "/other", "").Code)

	time.Sleep(120 * time.Millisecond)
	require.Equal(t, http.StatusOK, get(r, "/ping", "").Code)
}

type brokenStore struct{ cache.Store }

func (brokenStore) IncrementWithTTL(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(brokenStore{}, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, get(r, "/ping", "").Code)
	}
}
