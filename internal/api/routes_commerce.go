package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/handlers"
)

func registerCommerceRoutes(api *gin.RouterGroup, h *handlers.CommerceHandler) {
	packages := api.Group("/packages")
	{
		packages.GET("", h.ListPackages)
		packages.GET("/:id", h.GetPackage)
		packages.POST("", adminOnly, h.CreatePackage)
		packages.PATCH("/:id", adminOnly, h.UpdatePackage)
		packages.DELETE("/:id", adminOnly, h.DeletePackage)
		packages.POST("/:id/restore", adminOnly, h.RestorePackage)
	}

	purchases := api.Group("/purchases")
	{
		purchases.GET("", h.ListPurchases)
		purchases.POST("", h.CreatePurchase)
		purchases.GET("/:id", h.GetPurchase)
		purchases.POST("/:id/verify", adminOnly, h.VerifyPurchase)
	}

	api.GET("/subscriptions", h.ListSubscriptions)
	api.POST("/subscriptions/:id/cancel", h.CancelSubscription)
	api.POST("/payments/checkout", h.Checkout)
}
