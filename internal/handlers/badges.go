package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

type BadgeHandler struct {
	service *services.BadgeService
}

func NewBadgeHandler(service *services.BadgeService) *BadgeHandler {
	return &BadgeHandler{service: service}
}

// POST /api/badges
func (h *BadgeHandler) Create(c *gin.Context) {
	var body services.BadgeInput
	if !bindAndValidate(c, &body) {
		return
	}
	badge, err := h.service.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, badge, err)
}

// GET /api/badges?type=
func (h *BadgeHandler) List(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.List(requestContext(c), c.Query("type"), q)
	respondPage(c, page, err)
}

// GET /api/badges/:id
func (h *BadgeHandler) Get(c *gin.Context) {
	badge, err := h.service.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, badge, err)
}

// DELETE /api/badges/:id
func (h *BadgeHandler) Delete(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c).UserID))
}

// POST /api/badges/:id/restore
func (h *BadgeHandler) Restore(c *gin.Context) {
	respondDone(c, h.service.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c).UserID))
}

// POST /api/badges/awards
func (h *BadgeHandler) Award(c *gin.Context) {
	var body services.AwardInput
	if !bindAndValidate(c, &body) {
		return
	}
	award, err := h.service.Award(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, award, err)
}

// POST /api/badges/awards/:id/revoke
func (h *BadgeHandler) Revoke(c *gin.Context) {
	respondDone(c, h.service.Revoke(requestContext(c), nil, c.Param("id")))
}

// POST /api/badges/awards/:id/restore
func (h *BadgeHandler) RestoreAward(c *gin.Context) {
	respondDone(c, h.service.Restore(requestContext(c), nil, c.Param("id")))
}

// GET /api/badges/awards?user_id=&include_revoked=
func (h *BadgeHandler) ListAwards(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	includeRevoked, ok := parseBoolQuery(c, "include_revoked")
	if !ok {
		return
	}
	page, err := h.service.ListByUser(requestContext(c), targetUser(c), includeRevoked != nil && *includeRevoked, q)
	respondPage(c, page, err)
}
