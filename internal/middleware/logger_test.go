package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/charlesng35/happycat/pkg/logger"
)

func observeAccessLog(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(logger.Replace(zap.New(core)))
	return logs
}

func TestLoggerLevelsByStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logs := observeAccessLog(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/units", func(c *gin.Context) {
		c.Set(CtxUserIDKey, "user-1")
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/units", "/missing", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, zapcore.ErrorLevel, entries[2].Level)

	first := entries[0].ContextMap()
	require.Equal(t, "/units", first["path"])
	require.Equal(t, "user-1", first["user_id"])
	require.Equal(t, "http", first["module"])
	require.NotEmpty(t, first["request_id"])
	require.Contains(t, entries[2].ContextMap(), "errors")
}
