package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/handlers"
)

func registerCurriculumRoutes(api *gin.RouterGroup, h *handlers.CurriculumHandler, lit *handlers.LiteratureHandler) {
	units := api.Group("/units")
	{
		units.GET("", h.ListUnits)
		units.GET("/mine", h.ListMyUnits)
		units.GET("/slug/:slug", h.GetUnitBySlug)
		units.GET("/:id", h.GetUnit)
		units.GET("/:id/lessons", h.UnitLessons)
		units.POST("", staffOnly, h.CreateUnit)
		units.PATCH("/:id", staffOnly, h.UpdateUnit)
		units.DELETE("/:id", staffOnly, h.DeleteUnit)
		units.POST("/:id/restore", staffOnly, h.RestoreUnit)
	}

	lessons := api.Group("/lessons")
	{
		lessons.GET("", h.ListLessons)
		lessons.GET("/:id", h.GetLesson)
		lessons.POST("", staffOnly, h.CreateLesson)
		lessons.PATCH("/:id", staffOnly, h.UpdateLesson)
		lessons.DELETE("/:id", staffOnly, h.DeleteLesson)
		lessons.POST("/:id/restore", staffOnly, h.RestoreLesson)
	}

	reading := api.Group("/literatures")
	{
		reading.GET("", lit.List)
		reading.GET("/:id", lit.Get)
		reading.POST("", staffOnly, lit.Create)
		reading.PATCH("/:id", staffOnly, lit.Update)
		reading.POST("/:id/publish", staffOnly, lit.Publish(true))
		reading.POST("/:id/unpublish", staffOnly, lit.Publish(false))
		reading.DELETE("/:id", staffOnly, lit.Delete)
		reading.POST("/:id/restore", staffOnly, lit.Restore)
	}
}

func registerProgressRoutes(api *gin.RouterGroup, h *handlers.ProgressHandler, speech *handlers.PronunciationHandler) {
	progress := api.Group("/progress")
	{
		progress.GET("", h.List)
		progress.POST("", h.Record)
		progress.DELETE("/:id", h.Delete)
		progress.POST("/:id/restore", h.Restore)
		progress.GET("/units", h.ListUnits)
		progress.GET("/units/:unitId", h.GetUnit)
		progress.POST("/units/:unitId/start", h.StartUnit)
		progress.GET("/units/:unitId/lessons", h.ListLessons)
		progress.POST("/lessons", h.RecordLesson)
	}

	api.POST("/pronunciation/assess", speech.Assess)
}
