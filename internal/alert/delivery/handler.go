package delivery

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"buddyalert-backend/internal/alert/domain"
	"buddyalert-backend/internal/alert/repository"
	"buddyalert-backend/internal/alert/usecase"
	"buddyalert-backend/internal/fanout"
	"buddyalert-backend/pkg/geo"

	"github.com/gin-gonic/gin"
)

// EventPublisher emits the alert-created event consumed by the fan-out
// trigger. Nil publisher means fan-out is invoked directly.
type EventPublisher interface {
	PublishAlertCreated(ctx context.Context, alertID string) error
}

// PayloadBuilder produces the notification content for an alert.
type PayloadBuilder func(alertID string) fanout.Payload

// AlertHandler handles alert-related HTTP requests
type AlertHandler struct {
	lifecycle  usecase.AlertLifecycle
	engine     *fanout.Engine
	deliveries repository.DeliveryRepository
	publisher  EventPublisher
	payloadFor PayloadBuilder
}

// NewAlertHandler creates a new AlertHandler
func NewAlertHandler(lifecycle usecase.AlertLifecycle, engine *fanout.Engine, deliveries repository.DeliveryRepository, publisher EventPublisher, payloadFor PayloadBuilder) *AlertHandler {
	return &AlertHandler{
		lifecycle:  lifecycle,
		engine:     engine,
		deliveries: deliveries,
		publisher:  publisher,
		payloadFor: payloadFor,
	}
}

// CreateAlertRequest represents the request body for raising an alert
type CreateAlertRequest struct {
	Lat        *float64 `json:"lat" binding:"required"`
	Lng        *float64 `json:"lng" binding:"required"`
	Visibility string   `json:"visibility"`
}

// CreateAlert raises a new alert and triggers its fan-out
// POST /api/alerts
func (h *AlertHandler) CreateAlert(c *gin.Context) {
	uid := c.GetString("uid")

	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	alert, err := h.lifecycle.Create(uid, *req.Lat, *req.Lng, domain.Visibility(req.Visibility))
	if err != nil {
		if errors.Is(err, geo.ErrInvalidCoordinate) || errors.Is(err, domain.ErrInvalidVisibility) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.triggerFanout(alert.ID)

	c.JSON(http.StatusCreated, alert)
}

// triggerFanout hands the new alert to the trigger. Failures are invisible
// to the requester; creation already succeeded.
func (h *AlertHandler) triggerFanout(alertID string) {
	if h.publisher != nil {
		err := h.publisher.PublishAlertCreated(context.Background(), alertID)
		if err == nil {
			return
		}
		log.Printf("[Alert] publishing creation event for %s failed, running fan-out directly: %v", alertID, err)
	}
	go func() {
		if _, err := h.engine.Run(context.Background(), alertID, h.payloadFor(alertID)); err != nil {
			log.Printf("[Alert] direct fan-out for %s failed: %v", alertID, err)
		}
	}()
}

// GetAlert returns one alert, with expiry applied on read
// GET /api/alerts/:id
func (h *AlertHandler) GetAlert(c *gin.Context) {
	alert, err := h.lifecycle.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, alert)
}

const (
	defaultRecentWindowMs = int64(3_600_000)
	defaultRecentLimit    = 30
	maxRecentLimit        = 100
)

// GetRecentAlerts returns the live alert feed. Malformed or out-of-range
// query values fall back to the defaults rather than reaching the store.
// GET /api/alerts/recent?window_ms=3600000&limit=30
func (h *AlertHandler) GetRecentAlerts(c *gin.Context) {
	windowMs, err := strconv.ParseInt(c.Query("window_ms"), 10, 64)
	if err != nil || windowMs <= 0 {
		windowMs = defaultRecentWindowMs
	}
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 || limit > maxRecentLimit {
		limit = defaultRecentLimit
	}

	alerts, err := h.lifecycle.Recent(windowMs, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ResolveAlert marks an open alert resolved
// POST /api/alerts/:id/resolve
func (h *AlertHandler) ResolveAlert(c *gin.Context) {
	h.transition(c, func(id string) error {
		return h.lifecycle.Resolve(id)
	})
}

// CancelAlert lets the requester withdraw their own open alert
// POST /api/alerts/:id/cancel
func (h *AlertHandler) CancelAlert(c *gin.Context) {
	uid := c.GetString("uid")
	h.transition(c, func(id string) error {
		return h.lifecycle.Cancel(id, uid)
	})
}

func (h *AlertHandler) transition(c *gin.Context, apply func(id string) error) {
	err := apply(c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, domain.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Alert is no longer open"})
	case errors.Is(err, domain.ErrNotRequester):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the requester may cancel"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// RunFanout re-triggers fan-out for an alert (service endpoint)
// POST /api/alerts/:id/fanout
func (h *AlertHandler) RunFanout(c *gin.Context) {
	result, err := h.engine.Run(c.Request.Context(), c.Param("id"), h.payloadFor(c.Param("id")))
	switch {
	case errors.Is(err, domain.ErrAlertNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
	case errors.Is(err, fanout.ErrCandidateQuery):
		// Caller owns retry with backoff.
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// GetDeliveries returns the delivery audit log for an alert (service endpoint)
// GET /api/alerts/:id/deliveries
func (h *AlertHandler) GetDeliveries(c *gin.Context) {
	records, err := h.deliveries.FindByAlert(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deliveries": records,
		"count":      len(records),
	})
}
