package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
)

type UserHandler struct {
	service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{service: service}
}

type userListQuery struct {
	cache.Query
	services.UserFilter
}

// GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	var q userListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.List(requestContext(c), q.UserFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !actorFrom(c).CanAccess(id) {
		response.Error(c, errors.ErrForbidden)
		return
	}
	user, err := h.service.Get(requestContext(c), id)
	respond(c, http.StatusOK, user, err)
}

// POST /api/users
func (h *UserHandler) Create(c *gin.Context) {
	var body services.CreateUserInput
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.service.Create(requestContext(c), nil, body)
	respond(c, http.StatusCreated, user, err)
}

// PATCH /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var body services.UpdateUserInput
	if !bindAndValidate(c, &body) {
		return
	}
	user, err := h.service.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c))
	respond(c, http.StatusOK, user, err)
}

// DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	respondDone(c, h.service.Delete(requestContext(c), nil, c.Param("id")))
}

// POST /api/users/:id/restore
func (h *UserHandler) Restore(c *gin.Context) {
	respondDone(c, h.service.Restore(requestContext(c), nil, c.Param("id")))
}
