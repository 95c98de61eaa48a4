package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/services"
)

// SupportHandler serves help-desk tickets and product feedback.
type SupportHandler struct {
	tickets   *services.SupportService
	feedbacks *services.FeedbackService
}

func NewSupportHandler(tickets *services.SupportService, feedbacks *services.FeedbackService) *SupportHandler {
	return &SupportHandler{tickets: tickets, feedbacks: feedbacks}
}

type supportListQuery struct {
	cache.Query
	services.SupportFilter
}

type assignTicketRequest struct {
	AssigneeID string `json:"assignee_id" validate:"required,uuid"`
}

type respondTicketRequest struct {
	Response string `json:"response" validate:"required"`
}

// POST /api/supports
func (h *SupportHandler) Open(c *gin.Context) {
	var body services.SupportInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.UserID = actorFrom(c).UserID
	ticket, err := h.tickets.Open(requestContext(c), nil, body)
	respond(c, http.StatusCreated, ticket, err)
}

// GET /api/supports
func (h *SupportHandler) List(c *gin.Context) {
	var q supportListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.tickets.List(requestContext(c), q.SupportFilter, actorFrom(c), q.Query)
	respondPage(c, page, err)
}

// GET /api/supports/:id
func (h *SupportHandler) Get(c *gin.Context) {
	ticket, err := h.tickets.Get(requestContext(c), c.Param("id"), actorFrom(c))
	respond(c, http.StatusOK, ticket, err)
}

// POST /api/supports/:id/assign
func (h *SupportHandler) Assign(c *gin.Context) {
	var body assignTicketRequest
	if !bindAndValidate(c, &body) {
		return
	}
	ticket, err := h.tickets.Assign(requestContext(c), nil, c.Param("id"), body.AssigneeID)
	respond(c, http.StatusOK, ticket, err)
}

// POST /api/supports/:id/respond
func (h *SupportHandler) Respond(c *gin.Context) {
	var body respondTicketRequest
	if !bindAndValidate(c, &body) {
		return
	}
	ticket, err := h.tickets.Respond(requestContext(c), nil, c.Param("id"), body.Response)
	respond(c, http.StatusOK, ticket, err)
}

// POST /api/supports/:id/resolve
func (h *SupportHandler) Resolve(c *gin.Context) {
	ticket, err := h.tickets.Resolve(requestContext(c), nil, c.Param("id"))
	respond(c, http.StatusOK, ticket, err)
}

// POST /api/supports/:id/close
func (h *SupportHandler) Close(c *gin.Context) {
	ticket, err := h.tickets.Close(requestContext(c), nil, c.Param("id"))
	respond(c, http.StatusOK, ticket, err)
}

// POST /api/feedbacks
func (h *SupportHandler) SubmitFeedback(c *gin.Context) {
	var body services.FeedbackInput
	if !bindAndValidate(c, &body) {
		return
	}
	body.UserID = actorFrom(c).UserID
	rec, err := h.feedbacks.Submit(requestContext(c), nil, body)
	respond(c, http.StatusCreated, rec, err)
}

// GET /api/feedbacks?type=&resolved=
func (h *SupportHandler) ListFeedback(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	resolved, ok := parseBoolQuery(c, "resolved")
	if !ok {
		return
	}
	page, err := h.feedbacks.List(requestContext(c), c.Query("type"), resolved, q)
	respondPage(c, page, err)
}

// POST /api/feedbacks/:id/resolve
func (h *SupportHandler) ResolveFeedback(c *gin.Context) {
	respondDone(c, h.feedbacks.Resolve(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID))
}
