package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

type InvitationHandler struct {
	service *services.InvitationService
}

func NewInvitationHandler(service *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{service: service}
}

// POST /api/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	var body services.CreateInvitationInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.CreatedBy = actorFrom(c).UserID
	code, err := h.service.Create(requestContext(c), nil, body)
	respond(c, http.StatusCreated, code, err)
}

// GET /api/invitations/code/:code
func (h *InvitationHandler) GetByCode(c *gin.Context) {
	code, err := h.service.GetByCode(requestContext(c), c.Param("code"))
	respond(c, http.StatusOK, code, err)
}

// GET /api/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.ListByCreator(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// GET /api/invitations/history
func (h *InvitationHandler) History(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.service.ListHistory(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// DELETE /api/invitations/:id
func (h *InvitationHandler) Deactivate(c *gin.Context) {
	respondDone(c, h.service.Deactivate(requestContext(c), nil, c.Param("id"), actorFrom(c)))
}
