package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/middleware"
	"github.com/charlesng35/happycat/internal/services"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// actorFrom reads the caller set by middleware.Auth.
func actorFrom(c *gin.Context) services.Actor {
	return services.Actor{
		UserID: c.GetString(middleware.CtxUserIDKey),
		Role:   c.GetString(middleware.CtxRoleKey),
	}
}

// targetUser returns the user a read is about. Staff may look at anyone via
// ?user_id; everybody else gets their own data.
func targetUser(c *gin.Context) string {
	actor := actorFrom(c)
	if id := c.Query("user_id"); id != "" && actor.IsStaff() {
		return id
	}
	return actor.UserID
}
