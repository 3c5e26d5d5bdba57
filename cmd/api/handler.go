package api

import (
	alertDelivery "buddyalert-backend/internal/alert/delivery"
	authDelivery "buddyalert-backend/internal/auth/delivery"
	userDelivery "buddyalert-backend/internal/user/delivery"
	"buddyalert-backend/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	alertHandler *alertDelivery.AlertHandler
	userHandler  *userDelivery.UserHandler
	verifier     authDelivery.TokenVerifier
	config       *config.Config
}

func NewHandler(alertHandler *alertDelivery.AlertHandler, userHandler *userDelivery.UserHandler, verifier authDelivery.TokenVerifier, cfg *config.Config) *Handler {
	return &Handler{
		alertHandler: alertHandler,
		userHandler:  userHandler,
		verifier:     verifier,
		config:       cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	SetupRoutes(r, h.alertHandler, h.userHandler, h.verifier, h.config.ServiceTokenSecret)

	return r.Run(addr)
}
