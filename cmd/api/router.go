package api

import (
	"net/http"

	alertDelivery "buddyalert-backend/internal/alert/delivery"
	authDelivery "buddyalert-backend/internal/auth/delivery"
	userDelivery "buddyalert-backend/internal/user/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, alertHandler *alertDelivery.AlertHandler, userHandler *userDelivery.UserHandler, verifier authDelivery.TokenVerifier, serviceSecret string) {
	authRequired := authDelivery.AuthMiddleware(verifier)
	serviceOnly := authDelivery.ServiceAuthMiddleware(serviceSecret)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Alert routes
		alerts := api.Group("/alerts")
		{
			alerts.GET("/recent", alertHandler.GetRecentAlerts)
			alerts.GET("/:id", alertHandler.GetAlert)
			alerts.POST("", authRequired, alertHandler.CreateAlert)
			alerts.POST("/:id/resolve", authRequired, alertHandler.ResolveAlert)
			alerts.POST("/:id/cancel", authRequired, alertHandler.CancelAlert)

			// Internal trigger + audit surface
			alerts.POST("/:id/fanout", serviceOnly, alertHandler.RunFanout)
			alerts.GET("/:id/deliveries", serviceOnly, alertHandler.GetDeliveries)
		}

		// Helper profile routes (protected)
		users := api.Group("/users")
		{
			users.PUT("/location", authRequired, userHandler.UpdateLocation)
			users.POST("/push-token", authRequired, userHandler.RegisterPushToken)
			users.DELETE("/push-token", authRequired, userHandler.UnregisterPushToken)

			// Verification-flow callback
			users.POST("/:uid/verified", serviceOnly, userHandler.SetVerified)
		}
	}
}
