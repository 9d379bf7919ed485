package handler

import (
	"healthtrack-backend/internal/common/middleware"
	"healthtrack-backend/pkg/session"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes registers login, logout and account routes
func RegisterAuthRoutes(router *gin.RouterGroup, handler *AuthHandler, sessions *session.Manager) {
	requireSession := middleware.RequireSession(sessions)

	auth := router.Group("/auth")
	{
		auth.POST("/otp/verify", handler.VerifyOTP)
		auth.POST("/register", handler.Register)
		auth.POST("/login", handler.Login)
		auth.POST("/logout", middleware.LoadSession(sessions), handler.Logout)
		auth.GET("/session", requireSession, handler.Session)
		auth.DELETE("/account", requireSession, handler.DeleteAccount)
	}
}
