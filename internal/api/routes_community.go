package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/handlers"
)

func registerGroupRoutes(api *gin.RouterGroup, h *handlers.GroupHandler) {
	groups := api.Group("/groups")
	{
		groups.GET("", h.List)
		groups.POST("", h.Create)
		groups.GET("/:id", h.Get)
		groups.PATCH("/:id", h.Update)
		groups.DELETE("/:id", h.Delete)
		groups.POST("/:id/restore", h.Restore)
		groups.POST("/:id/members", h.AddMembers)
		groups.DELETE("/:id/members/:userId", h.RemoveMember)
		groups.GET("/:id/messages", h.Messages)
		groups.POST("/:id/messages", h.Send)
		groups.POST("/:id/read", h.MarkRead)
		groups.GET("/:id/unread", h.Unread)
	}

	messages := api.Group("/messages")
	{
		messages.GET("/:id/replies", h.Replies)
		messages.PATCH("/:id", h.Edit)
		messages.DELETE("/:id", h.DeleteMessage)
	}
}

func registerHomeworkRoutes(api *gin.RouterGroup, h *handlers.HomeworkHandler) {
	assignments := api.Group("/assignments")
	{
		assignments.GET("", h.ListAssignments)
		assignments.GET("/:id", h.GetAssignment)
		assignments.POST("", staffOnly, h.CreateAssignment)
		assignments.PATCH("/:id", staffOnly, h.UpdateAssignment)
		assignments.DELETE("/:id", staffOnly, h.DeleteAssignment)
		assignments.POST("/:id/restore", staffOnly, h.RestoreAssignment)
		assignments.GET("/:id/submissions", staffOnly, h.AssignmentSubmissions)
	}

	submissions := api.Group("/submissions")
	{
		submissions.GET("", h.ListSubmissions)
		submissions.POST("", h.Submit)
		submissions.GET("/:id", h.GetSubmission)
		submissions.DELETE("/:id", h.DeleteSubmission)
		submissions.POST("/:id/grade", staffOnly, h.Grade)
	}
}

func registerBadgeRoutes(api *gin.RouterGroup, badges *handlers.BadgeHandler, contests *handlers.CompetitionHandler) {
	group := api.Group("/badges")
	{
		group.GET("", badges.List)
		group.GET("/awards", badges.ListAwards)
		group.POST("/awards", staffOnly, badges.Award)
		group.POST("/awards/:id/revoke", staffOnly, badges.Revoke)
		group.POST("/awards/:id/restore", staffOnly, badges.RestoreAward)
		group.GET("/:id", badges.Get)
		group.POST("", adminOnly, badges.Create)
		group.DELETE("/:id", adminOnly, badges.Delete)
		group.POST("/:id/restore", adminOnly, badges.Restore)
	}

	competitions := api.Group("/competitions")
	{
		competitions.GET("", contests.List)
		competitions.GET("/:id", contests.Get)
		competitions.GET("/:id/participants", contests.Participants)
		competitions.POST("/:id/join", contests.Join)
		competitions.POST("", staffOnly, contests.Create)
		competitions.DELETE("/:id", staffOnly, contests.Delete)
		competitions.POST("/:id/restore", staffOnly, contests.Restore)
	}
}

func registerSupportRoutes(api *gin.RouterGroup, h *handlers.SupportHandler) {
	tickets := api.Group("/supports")
	{
		tickets.GET("", h.List)
		tickets.POST("", h.Open)
		tickets.GET("/:id", h.Get)
		tickets.POST("/:id/assign", staffOnly, h.Assign)
		tickets.POST("/:id/respond", staffOnly, h.Respond)
		tickets.POST("/:id/resolve", staffOnly, h.Resolve)
		tickets.POST("/:id/close", staffOnly, h.Close)
	}

	feedback := api.Group("/feedbacks")
	{
		feedback.POST("", h.SubmitFeedback)
		feedback.GET("", staffOnly, h.ListFeedback)
		feedback.POST("/:id/resolve", staffOnly, h.ResolveFeedback)
	}
}
