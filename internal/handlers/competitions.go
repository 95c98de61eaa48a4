package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

type CompetitionHandler struct {
	service *services.CompetitionService
}

func NewCompetitionHandler(service *services.CompetitionService) *CompetitionHandler {
	return &CompetitionHandler{service: service}
}

type competitionListQuery struct {
	cache.Query
	services.CompetitionFilter
}

// POST /api/competitions
func (h *CompetitionHandler) Create(c *gin.Context) {
	var body services.CompetitionInput
	if !bindAndValidate(c, &body) {
		return
	}
	rec, err := h.service.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/competitions?status=upcoming|ongoing|ended
func (h *CompetitionHandler) List(c *gin.Context) {
	var q competitionListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.List(requestContext(c), q.CompetitionFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/competitions/:id
func (h *CompetitionHandler) Get(c *gin.Context) {
	rec, err := h.service.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, rec, err)
}

// POST /api/competitions/:id/join
func (h *CompetitionHandler) Join(c *gin.Context) {
	rec, err := h.service.Join(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/competitions/:id/participants
func (h *CompetitionHandler) Participants(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.Participants(requestContext(c), c.Param("id"), q)
	respondPage(c, page, err)
}

// DELETE /api/competitions/:id
func (h *CompetitionHandler) Delete(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c).UserID))
}

// POST /api/competitions/:id/restore
func (h *CompetitionHandler) Restore(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c).UserID))
}
