package delivery

import (
	"errors"
	"net/http"
	"time"

	"buddyalert-backend/internal/user/repository"
	"buddyalert-backend/pkg/geo"

	"github.com/gin-gonic/gin"
)

// UserHandler handles helper-profile HTTP requests
type UserHandler struct {
	users repository.UserRepository
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(users repository.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// UpdateLocationRequest represents the last-known-location payload
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
	Ts  int64    `json:"ts"`
}

// UpdateLocation persists the caller's last known location
// PUT /api/users/location
func (h *UserHandler) UpdateLocation(c *gin.Context) {
	uid := c.GetString("uid")

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	spatialKey, err := geo.Encode(*req.Lat, *req.Lng)
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ts := req.Ts
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}

	if err := h.users.UpsertLocation(uid, *req.Lat, *req.Lng, ts, spatialKey); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterPushTokenRequest carries the device's push handle
type RegisterPushTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterPushToken makes the caller reachable for alert notifications
// POST /api/users/push-token
func (h *UserHandler) RegisterPushToken(c *gin.Context) {
	uid := c.GetString("uid")

	var req RegisterPushTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.SavePushToken(uid, req.Token); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UnregisterPushToken opts the caller out of alert notifications
// DELETE /api/users/push-token
func (h *UserHandler) UnregisterPushToken(c *gin.Context) {
	uid := c.GetString("uid")

	if err := h.users.DeletePushToken(uid); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SetVerifiedRequest is the verification-flow callback payload
type SetVerifiedRequest struct {
	Verified *bool `json:"verified" binding:"required"`
}

// SetVerified updates a user's verification flag (service endpoint)
// POST /api/users/:uid/verified
func (h *UserHandler) SetVerified(c *gin.Context) {
	var req SetVerifiedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.users.SetVerified(c.Param("uid"), *req.Verified); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
