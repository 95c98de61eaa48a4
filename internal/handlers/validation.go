package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	appErrors "github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
	appValidator "github.com/charlesng35/happycat/pkg/validator"
)

// bindAndValidate decodes the JSON body into dest and checks its validate tags.
// On failure the 400 response is already written.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func bindQuery[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindQuery(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid query parameters"))
		return false
	}
	return true
}

func formatValidationError(err error) string {
	var failures appValidator.ValidationErrors
	if errors.As(err, &failures) && len(failures) > 0 {
		return failures.Error()
	}
	return "invalid request payload"
}

func parseBoolQuery(c *gin.Context, key string) (*bool, bool) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, true
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest(key+" must be true or false"))
		return nil, false
	}
	return &parsed, true
}

// respondPage writes a list page with its pagination metadata.
func respondPage[T any](c *gin.Context, page cache.Page[T], err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, page.Data, &response.Meta{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		NextPage:   page.NextPage,
		PrevPage:   page.PrevPage,
	})
}

// respond writes data with status, or the error.
func respond(c *gin.Context, status int, data any, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status, data)
}

// respondDone acknowledges a mutation that returns no entity.
func respondDone(c *gin.Context, err error) {
	respond(c, http.StatusOK, gin.H{"ok": true}, err)
}
