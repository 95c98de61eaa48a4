package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

// ProgressHandler records and reports learner progress. Learners always act
// on their own records; staff may read others via ?user_id.
type ProgressHandler struct {
	service *services.ProgressService
}

func NewProgressHandler(service *services.ProgressService) *ProgressHandler {
	return &ProgressHandler{service: service}
}

// POST /api/progress/units/:unitId/start
func (h *ProgressHandler) StartUnit(c *gin.Context) {
	rec, err := h.service.StartUnit(requestContext(c), nil, actorFrom(c).UserID, c.Param("unitId"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/progress/units/:unitId
func (h *ProgressHandler) GetUnit(c *gin.Context) {
	rec, err := h.service.GetUnitProgress(requestContext(c), targetUser(c), c.Param("unitId"))
	respond(c, http.StatusOK, rec, err)
}

// GET /api/progress/units
func (h *ProgressHandler) ListUnits(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.ListUnitProgress(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// POST /api/progress/lessons
func (h *ProgressHandler) RecordLesson(c *gin.Context) {
	var body services.LessonProgressInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.UserID = actorFrom(c).UserID
	rec, err := h.service.RecordLesson(requestContext(c), nil, body)
	respond(c, http.StatusOK, rec, err)
}

// GET /api/progress/units/:unitId/lessons
func (h *ProgressHandler) ListLessons(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.ListLessonProgress(requestContext(c), targetUser(c), c.Param("unitId"), q)
	respondPage(c, page, err)
}

// POST /api/progress
func (h *ProgressHandler) Record(c *gin.Context) {
	var body services.ProgressInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.UserID = actorFrom(c).UserID
	rec, err := h.service.Record(requestContext(c), nil, body)
	respond(c, http.StatusOK, rec, err)
}

// GET /api/progress?type=
func (h *ProgressHandler) List(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.ListProgress(requestContext(c), targetUser(c), c.Query("type"), q)
	respondPage(c, page, err)
}

// DELETE /api/progress/:id
func (h *ProgressHandler) Delete(c *gin.Context) {
	respondDone(c, h.service.SetProgressActive(requestContext(c), nil, c.Param("id"), false))
}

// POST /api/progress/:id/restore
func (h *ProgressHandler) Restore(c *gin.Context) {
	respondDone(c, h.service.SetProgressActive(requestContext(c), nil, c.Param("id"), true))
}
