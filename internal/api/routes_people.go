package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/handlers"
)

func registerUserRoutes(api *gin.RouterGroup, users *handlers.UserHandler, invites *handlers.InvitationHandler) {
	group := api.Group("/users")
	{
		group.GET("", staffOnly, users.List)
		group.POST("", adminOnly, users.Create)
		group.GET("/:id", users.Get)
		group.PATCH("/:id", users.Update)
		group.DELETE("/:id", adminOnly, users.Delete)
		group.POST("/:id/restore", adminOnly, users.Restore)
	}

	codes := api.Group("/invitations")
	{
		codes.GET("", invites.List)
		codes.POST("", invites.Create)
		codes.GET("/history", invites.History)
		codes.GET("/code/:code", invites.GetByCode)
		codes.DELETE("/:id", invites.Deactivate)
	}
}

func registerLocationRoutes(api *gin.RouterGroup, h *handlers.LocationHandler) {
	type level struct {
		path   string
		list   gin.HandlerFunc
		get    gin.HandlerFunc
		create gin.HandlerFunc
		update gin.HandlerFunc
	}
	levels := []level{
		{"provinces", h.ListProvinces, h.GetProvince, h.CreateProvince, h.UpdateProvince},
		{"districts", h.ListDistricts, h.GetDistrict, h.CreateDistrict, h.UpdateDistrict},
		{"schools", h.ListSchools, h.GetSchool, h.CreateSchool, h.UpdateSchool},
		{"classes", h.ListClasses, h.GetClass, h.CreateClass, h.UpdateClass},
	}
	for _, l := range levels {
		group := api.Group("/" + l.path)
		group.GET("", l.list)
		group.GET("/:id", l.get)
		group.POST("", adminOnly, l.create)
		group.PATCH("/:id", adminOnly, l.update)
		group.DELETE("/:id", adminOnly, h.SetActive(l.path, false))
		group.POST("/:id/restore", adminOnly, h.SetActive(l.path, true))
	}
}
