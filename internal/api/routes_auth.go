package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/happycat/internal/handlers"
)

func registerAuthRoutes(api *gin.RouterGroup, h *handlers.AuthHandler, requireAuth, limit gin.HandlerFunc) {
	public := api.Group("/auth", limit)
	{
		public.POST("/register", h.Register)
		public.POST("/login", h.Login)
		public.POST("/refresh", h.Refresh)
		public.POST("/verify-email", h.VerifyEmail)
		public.POST("/resend-verification", h.ResendVerification)
		public.POST("/forgot-password", h.ForgotPassword)
		public.POST("/reset-password", h.ResetPassword)
		public.GET("/providers", h.Providers)
		public.POST("/providers/:type", h.ProviderSignIn)
	}

	session := api.Group("/auth", requireAuth)
	{
		session.GET("/me", h.Me)
		session.POST("/change-password", h.ChangePassword)
		session.POST("/logout", h.Logout)
		session.POST("/logout-all", h.LogoutAll)
		session.POST("/logout-others", h.LogoutOthers)
	}
}
