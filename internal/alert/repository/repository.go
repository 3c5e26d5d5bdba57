package repository

import (
	"buddyalert-backend/internal/alert/domain"
)

// AlertRepository defines the interface for alert data access
type AlertRepository interface {
	// Create persists a new alert
	Create(alert *domain.Alert) error

	// FindByID finds an alert by ID; returns (nil, nil) when absent
	FindByID(id string) (*domain.Alert, error)

	// UpdateStatusIf performs the atomic conditional transition
	// from -> to and reports whether a row changed
	UpdateStatusIf(id string, from, to domain.AlertStatus) (bool, error)

	// ClaimFanout atomically claims an OPEN, unclaimed alert for a
	// fan-out run; reports whether the claim was won
	ClaimFanout(id string, nowMs int64) (bool, error)

	// ReleaseFanout clears the fan-out claim
	ReleaseFanout(id string) error

	// FindRecent returns alerts created at or after sinceMs, newest first
	FindRecent(sinceMs int64, limit int) ([]*domain.Alert, error)

	// ExpireDue transitions every OPEN alert past its expiry to EXPIRED
	// and returns how many rows changed
	ExpireDue(nowMs int64) (int64, error)
}

// DeliveryRepository defines the interface for the delivery audit log
type DeliveryRepository interface {
	// RecordAll appends delivery records; repeats of an existing
	// (alert, recipient, outcome) key are dropped silently
	RecordAll(records []domain.DeliveryRecord) error

	// SentRecipients returns the set of recipient UIDs that already
	// have a SENT record for the alert
	SentRecipients(alertID string) (map[string]struct{}, error)

	// FindByAlert returns all records for an alert, oldest first
	FindByAlert(alertID string) ([]domain.DeliveryRecord, error)
}
