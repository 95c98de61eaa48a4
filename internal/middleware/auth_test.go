package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/internal/database/testutil"
	"github.com/charlesng35/happycat/internal/models"
	"github.com/charlesng35/happycat/pkg/response"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *iauth.TokenService, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "secret", Issuer: "happycat"})
	require.NoError(t, err)
	tokens, err := iauth.NewTokenService(db, jwtSvc, iauth.TokenConfig{})
	require.NoError(t, err)

	user := &models.User{
		Username: "teacher1",
		Email:    "teacher1@example.com",
		Password: "x",
		Role:     models.RoleTeacher,
		IsVerify: true,
	}
	require.NoError(t, db.Create(user).Error)

	r := gin.New()
	secured := r.Group("/", Auth(tokens))
	secured.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":   c.GetString(CtxUserIDKey),
			"role":      c.GetString(CtxRoleKey),
			"device_id": c.GetString(CtxDeviceIDKey),
		})
	})
	secured.GET("/staff", RequireRole(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	secured.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, tokens, user
}

func get(r http.Handler, path, token string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r, tokens, user := newAuthRouter(t)

	w := get(r, "/me", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))

	require.Equal(t, http.StatusUnauthorized, get(r, "/me", "not-a-jwt").Code)

	pair, err := tokens.Issue(context.Background(), nil, user, "laptop")
	require.NoError(t, err)

	w = get(r, "/me", pair.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var payload map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, user.ID, payload["user_id"])
	require.Equal(t, models.RoleTeacher, payload["role"])
	require.Equal(t, "laptop", payload["device_id"])

	// websocket clients pass the token in the query string
	require.Equal(t, http.StatusOK, get(r, "/me?token="+pair.AccessToken, "").Code)
}

func TestAuthMiddlewareRejectsRevokedToken(t *testing.T) {
	r, tokens, user := newAuthRouter(t)
	ctx := context.Background()

	pair, err := tokens.Issue(ctx, nil, user, "laptop")
	require.NoError(t, err)
	require.NoError(t, tokens.RevokeDevice(ctx, nil, user.ID, "laptop"))

	w := get(r, "/me", pair.AccessToken)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.NotNil(t, payload.Error)
}

func TestRequireRole(t *testing.T) {
	r, tokens, user := newAuthRouter(t)

	pair, err := tokens.Issue(context.Background(), nil, user, "laptop")
	require.NoError(t, err)

	require.Equal(t, http.StatusNoContent, get(r, "/staff", pair.AccessToken).Code)
	require.Equal(t, http.StatusForbidden, get(r, "/admin", pair.AccessToken).Code)
}

func TestRequireRoleWithoutAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	require.Equal(t, http.StatusUnauthorized, get(r, "/admin", "").Code)
}
