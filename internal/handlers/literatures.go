package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

type LiteratureHandler struct {
	service *services.LiteratureService
}

func NewLiteratureHandler(service *services.LiteratureService) *LiteratureHandler {
	return &LiteratureHandler{service: service}
}

type literatureListQuery struct {
	cache.Query
	services.LiteratureFilter
}

// POST /api/literatures
func (h *LiteratureHandler) Create(c *gin.Context) {
	var body services.LiteratureInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/literatures
//
// Learners only see published pieces; staff also see drafts.
func (h *LiteratureHandler) List(c *gin.Context) {
	var q literatureListQuery
	if !bindQuery(c, &q) {
		return
	}
	q.IncludeDrafts = actorFrom(c).IsStaff()
	page, err := h.service.List(requestContext(c), q.LiteratureFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/literatures/:id
func (h *LiteratureHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// PATCH /api/literatures/:id
func (h *LiteratureHandler) Update(c *gin.Context) {
	var body services.LiteratureUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, rec, err)
}

// Publish returns the publish (true) or unpublish (false) handler.
func (h *LiteratureHandler) Publish(published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := h.service.SetPublished(requestContext(c), nil, c.Param("id"), published, actorFrom(c).UserID)
		respond(c, http.StatusOK, rec, err)
	}
}

// DELETE /api/literatures/:id
func (h *LiteratureHandler) Delete(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c).UserID))
}

// POST /api/literatures/:id/restore
func (h *LiteratureHandler) Restore(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c).UserID))
}
