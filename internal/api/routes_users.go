package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/shopapp/internal/handlers"
	"github.com/charlesng35/shopapp/internal/middleware"
	"github.com/charlesng35/shopapp/internal/models"
)

func registerUserRoutes(api *gin.RouterGroup, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Sessions)
	userHandler := handlers.NewUserHandler(deps.Users)

	requests, window := deps.RateLimit.Limits()
	throttle := middleware.RateLimit(deps.RateStore, requests, window)
	requireAuth := middleware.Auth(deps.Codec)
	requireAdmin := middleware.RequireRole(models.RoleAdmin)

	users := api.Group("/users")
	{
		// Public
		users.POST("/register", authHandler.Register)
		users.POST("/login", throttle, authHandler.Login)
		users.POST("/refresh-token", throttle, authHandler.Refresh)

		// Authenticated
		users.POST("/logout", requireAuth, authHandler.Logout)
		users.GET("/sessions", requireAuth, authHandler.Sessions)
		users.GET("/details", requireAuth, userHandler.Details)
		users.PUT("/details/:id", requireAuth, userHandler.UpdateDetails)

		// Administration
		users.GET("", requireAuth, requireAdmin, userHandler.List)
		users.PUT("/reset-password/:id", requireAuth, requireAdmin, userHandler.ResetPassword)
		users.PUT("/block/:id/:active", requireAuth, requireAdmin, userHandler.SetActive)
	}
}
