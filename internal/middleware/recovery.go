package middleware

import (
	"fmt"
	"net/http"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/logger"
	"github.com/charlesng35/happycat/pkg/response"
)

// Recovery converts panics into a 500 response and logs them with a stack
// trace.
func Recovery() gin.HandlerFunc {
	return ginzap.CustomRecoveryWithZap(logger.WithModule("http"), true, func(c *gin.Context, _ any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
			Success: false,
			Error: &response.ErrorInfo{
				Code:    errors.ErrInternalServer.Code,
				Message: errors.ErrInternalServer.Message,
			},
		})
	})
}

// NotFoundHandler returns a JSON 404 response for unknown routes.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.NewNotFound(fmt.Sprintf("Route %s not found.", c.Request.URL.Path)))
}
