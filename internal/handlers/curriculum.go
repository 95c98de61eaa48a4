package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

// CurriculumHandler serves units and their lessons.
type CurriculumHandler struct {
	units   *services.UnitService
	lessons *services.LessonService
}

func NewCurriculumHandler(units *services.UnitService, lessons *services.LessonService) *CurriculumHandler {
	return &CurriculumHandler{units: units, lessons: lessons}
}

type unitListQuery struct {
	cache.Query
	services.UnitFilter
}

type lessonListQuery struct {
	cache.Query
	services.LessonFilter
}

// POST /api/units
func (h *CurriculumHandler) CreateUnit(c *gin.Context) {
	var body services.UnitInput
	if !bindAndValidate(c, &body) {
		return
	}
	unit, err := h.units.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, unit, err)
}

// GET /api/units
func (h *CurriculumHandler) ListUnits(c *gin.Context) {
	var q unitListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.units.List(requestContext(c), q.UnitFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/units/mine
func (h *CurriculumHandler) ListMyUnits(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.units.ListByUser(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// GET /api/units/:id
func (h *CurriculumHandler) GetUnit(c *gin.Context) {
	unit, err := h.units.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, unit, err)
}

// GET /api/units/slug/:slug
func (h *CurriculumHandler) GetUnitBySlug(c *gin.Context) {
	unit, err := h.units.GetBySlug(requestContext(c), c.Param("slug"))
	respond(c, http.StatusOK, unit, err)
}

// PATCH /api/units/:id
func (h *CurriculumHandler) UpdateUnit(c *gin.Context) {
	var body services.UnitUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	unit, err := h.units.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, unit, err)
}

// DELETE /api/units/:id
func (h *CurriculumHandler) DeleteUnit(c *gin.Context) {
	respondDone(c, h.units.Delete(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID))
}

// POST /api/units/:id/restore
func (h *CurriculumHandler) RestoreUnit(c *gin.Context) {
	respondDone(c, h.units.Restore(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID))
}

// GET /api/units/:id/lessons
func (h *CurriculumHandler) UnitLessons(c *gin.Context) {
	lessons, err := h.lessons.ListByUnit(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, lessons, err)
}

// POST /api/lessons
func (h *CurriculumHandler) CreateLesson(c *gin.Context) {
	var body services.LessonInput
	if !bindAndValidate(c, &body) {
		return
	}
	lesson, err := h.lessons.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, lesson, err)
}

// GET /api/lessons
func (h *CurriculumHandler) ListLessons(c *gin.Context) {
	var q lessonListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.lessons.List(requestContext(c), q.LessonFilter, q.Query)
	respondPage(c, page, err)
}

// GET /api/lessons/:id
func (h *CurriculumHandler) GetLesson(c *gin.Context) {
	lesson, err := h.lessons.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, lesson, err)
}

// PATCH /api/lessons/:id
func (h *CurriculumHandler) UpdateLesson(c *gin.Context) {
	var body services.LessonUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	lesson, err := h.lessons.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c).UserID)
	respond(c, http.StatusOK, lesson, err)
}

// DELETE /api/lessons/:id
func (h *CurriculumHandler) DeleteLesson(c *gin.Context) {
	respondDone(c, h.lessons.Delete(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID))
}

// POST /api/lessons/:id/restore
func (h *CurriculumHandler) RestoreLesson(c *gin.Context) {
	respondDone(c, h.lessons.Restore(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID))
}
