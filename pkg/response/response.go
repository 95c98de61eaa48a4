// Package response renders the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "github.com/charlesng35/happycat/pkg/errors"
)

type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta is the pagination block of list responses. NextPage and PrevPage are
// rendered as null on the last and first page.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	NextPage   *int  `json:"next_page"`
	PrevPage   *int  `json:"prev_page"`
}

func Success(c *gin.Context, statusCode int, data any) {
	SuccessWithMeta(c, statusCode, data, nil)
}

func SuccessWithMeta(c *gin.Context, statusCode int, data any, meta *Meta) {
	c.JSON(statusCode, Response{Success: true, Data: data, Meta: meta})
}

// Error renders err through the AppError taxonomy. Anything that is not an
// AppError becomes INTERNAL_SERVER_ERROR without leaking its message.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr == nil {
		appErr = appErrors.ErrInternalServer
	}
	status := appErr.StatusCode
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	if appErr.Internal != nil {
		_ = c.Error(appErr.Internal)
	}
	c.JSON(status, Response{Error: &ErrorInfo{Code: appErr.Code, Message: appErr.Message}})
}
