package handler

import "github.com/gin-gonic/gin"

// RegisterUserRoutes registers all user-related routes. requireSession
// guards every route.
func RegisterUserRoutes(router *gin.RouterGroup, handler *UserHandler, requireSession gin.HandlerFunc) {
	users := router.Group("/users", requireSession)
	{
		users.GET("/me", handler.GetMe)
		users.PUT("/me", handler.UpdateMe)
	}
}
