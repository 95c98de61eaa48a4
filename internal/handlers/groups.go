package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/cache"
	"github.com/charlesng35/happycat/internal/realtime"
	"github.com/charlesng35/happycat/internal/services"
	"github.com/charlesng35/happycat/pkg/errors"
	"github.com/charlesng35/happycat/pkg/response"
)

// GroupHandler serves study groups, their message threads and the
// per-group websocket stream.
type GroupHandler struct {
	groups   *services.GroupService
	messages *services.GroupMessageService
	hub      *realtime.Hub
}

func NewGroupHandler(groups *services.GroupService, messages *services.GroupMessageService, hub *realtime.Hub) *GroupHandler {
	return &GroupHandler{groups: groups, messages: messages, hub: hub}
}

type membersRequest struct {
	UserIDs []string `json:"user_ids" validate:"required,min=1,dive,uuid"`
}

type messageRequest struct {
	Content string  `json:"content" validate:"required,max=4000"`
	ReplyTo *string `json:"reply_to" validate:"omitempty,uuid"`
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// POST /api/groups
func (h *GroupHandler) Create(c *gin.Context) {
	var body services.GroupInput
	if !bindAndValidate(c, &body) {
		return
	}
	group, err := h.groups.Create(requestContext(c), nil, body, actorFrom(c).UserID)
	respond(c, http.StatusCreated, group, err)
}

// GET /api/groups
func (h *GroupHandler) List(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.groups.ListForUser(requestContext(c), targetUser(c), q)
	respondPage(c, page, err)
}

// GET /api/groups/:id
func (h *GroupHandler) Get(c *gin.Context) {
	if !h.member(c) {
		return
	}
	group, err := h.groups.Get(requestContext(c), c.Param("id"))
	respond(c, http.StatusOK, group, err)
}

// PATCH /api/groups/:id
func (h *GroupHandler) Update(c *gin.Context) {
	var body services.GroupUpdate
	if !bindAndValidate(c, &body) {
		return
	}
	group, err := h.groups.Update(requestContext(c), nil, c.Param("id"), body, actorFrom(c))
	respond(c, http.StatusOK, group, err)
}

// POST /api/groups/:id/members
func (h *GroupHandler) AddMembers(c *gin.Context) {
	var body membersRequest
	if !bindAndValidate(c, &body) {
		return
	}
	respondDone(c, h.groups.AddMembers(requestContext(c), nil, c.Param("id"), body.UserIDs, actorFrom(c)))
}

// DELETE /api/groups/:id/members/:userId
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	respondDone(c, h.groups.RemoveMember(requestContext(c), nil, c.Param("id"), c.Param("userId"), actorFrom(c)))
}

// DELETE /api/groups/:id
func (h *GroupHandler) Delete(c *gin.Context) {
	respondDone(c, h.groups.SetActive(requestContext(c), nil, c.Param("id"), false, actorFrom(c)))
}

// POST /api/groups/:id/restore
func (h *GroupHandler) Restore(c *gin.Context) {
	respondDone(c, h.groups.SetActive(requestContext(c), nil, c.Param("id"), true, actorFrom(c)))
}

// POST /api/groups/:id/messages
//
// A reply_to turns the message into a reply in that thread.
func (h *GroupHandler) Send(c *gin.Context) {
	var body messageRequest
	if !bindAndValidate(c, &body) {
		return
	}
	msg, err := h.messages.Send(requestContext(c), nil, services.MessageInput{
		GroupID:  c.Param("id"),
		SenderID: actorFrom(c).UserID,
		Content:  body.Content,
		ReplyTo:  body.ReplyTo,
	})
	respond(c, http.StatusCreated, msg, err)
}

// GET /api/groups/:id/messages
func (h *GroupHandler) Messages(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.messages.List(requestContext(c), c.Param("id"), actorFrom(c).UserID, q)
	respondPage(c, page, err)
}

// POST /api/groups/:id/read
func (h *GroupHandler) MarkRead(c *gin.Context) {
	n, err := h.messages.MarkRead(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID)
	respond(c, http.StatusOK, gin.H{"marked": n}, err)
}

// GET /api/groups/:id/unread
func (h *GroupHandler) Unread(c *gin.Context) {
	n, err := h.messages.UnreadCount(requestContext(c), c.Param("id"), actorFrom(c).UserID)
	respond(c, http.StatusOK, gin.H{"unread": n}, err)
}

// GET /api/messages/:id/replies
func (h *GroupHandler) Replies(c *gin.Context) {
	var q cache.Query
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.messages.Replies(requestContext(c), c.Param("id"), actorFrom(c).UserID, q)
	respondPage(c, page, err)
}

// PATCH /api/messages/:id
func (h *GroupHandler) Edit(c *gin.Context) {
	var body editMessageRequest
	if !bindAndValidate(c, &body) {
		return
	}
	msg, err := h.messages.Edit(requestContext(c), nil, c.Param("id"), actorFrom(c).UserID, body.Content)
	respond(c, http.StatusOK, msg, err)
}

// DELETE /api/messages/:id
func (h *GroupHandler) DeleteMessage(c *gin.Context) {
	respondDone(c, h.messages.Delete(requestContext(c), nil, c.Param("id"), actorFrom(c)))
}

// GET /ws/groups/:id
//
// Upgrades members to a websocket subscribed to the group's stream only.
func (h *GroupHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.NewNotFound("Realtime is not enabled."))
		return
	}
	if !h.member(c) {
		return
	}
	stream := realtime.GroupStream(c.Param("id"))
	allowed := map[string]struct{}{stream: {}}
	h.hub.Serve(actorFrom(c).UserID, []string{stream}, allowed, c.Writer, c.Request)
}

// member writes a 403 and returns false unless the caller belongs to the
// group. Administrators may look into any existing group.
func (h *GroupHandler) member(c *gin.Context) bool {
	actor := actorFrom(c)
	if actor.IsAdmin() {
		if _, err := h.groups.Get(requestContext(c), c.Param("id")); err != nil {
			response.Error(c, err)
			return false
		}
		return true
	}
	ok, err := h.groups.IsMember(requestContext(c), c.Param("id"), actor.UserID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !ok {
		response.Error(c, errors.NewForbidden("You are not a member of this group."))
		return false
	}
	return true
}
