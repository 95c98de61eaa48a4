package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/happycat/internal/auth"
	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxRoleKey     = "userRole"
	CtxDeviceIDKey = "deviceID"
)

// Auth enforces JWT authentication. The token must carry a valid signature and
// match an unrevoked token record for its device. Websocket clients that
// cannot set headers may pass the token as the "token" query parameter.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			unauthorized(c, errors.ErrUnauthorized)
			return
		}

		claims, err := tokens.JWT().ValidateAccessToken(raw)
		if err != nil {
			unauthorized(c, errors.ErrUnauthorized)
			return
		}
		if _, err := tokens.Validate(c.Request.Context(), claims, raw); err != nil {
			unauthorized(c, err)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		c.Set(CtxRoleKey, claims.Role)
		c.Set(CtxDeviceIDKey, claims.DeviceID)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(c.Query("token"))
}

func unauthorized(c *gin.Context, err error) {
	c.Header("WWW-Authenticate", "Bearer")
	response.Error(c, err)
	c.Abort()
}
