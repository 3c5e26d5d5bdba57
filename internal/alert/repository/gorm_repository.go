package repository

import (
	"errors"

	"buddyalert-backend/internal/alert/domain"

	"gorm.io/gorm"
)

// gormAlertRepository implements AlertRepository using GORM
type gormAlertRepository struct {
	db *gorm.DB
}

// NewAlertRepository creates a new GORM-based AlertRepository
func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &gormAlertRepository{db: db}
}

func (r *gormAlertRepository) Create(alert *domain.Alert) error {
	return r.db.Create(alert).Error
}

func (r *gormAlertRepository) FindByID(id string) (*domain.Alert, error) {
	var alert domain.Alert
	err := r.db.Where("id = ?", id).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

func (r *gormAlertRepository) UpdateStatusIf(id string, from, to domain.AlertStatus) (bool, error) {
	result := r.db.Model(&domain.Alert{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormAlertRepository) ClaimFanout(id string, nowMs int64) (bool, error) {
	// Conditional update doubles as the test-and-set guard against two
	// overlapping runs both observing status == open.
	result := r.db.Model(&domain.Alert{}).
		Where("id = ? AND status = ? AND fanout_claimed_at_ms = 0", id, domain.StatusOpen).
		Update("fanout_claimed_at_ms", nowMs)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *gormAlertRepository) ReleaseFanout(id string) error {
	return r.db.Model(&domain.Alert{}).
		Where("id = ?", id).
		Update("fanout_claimed_at_ms", 0).Error
}

func (r *gormAlertRepository) FindRecent(sinceMs int64, limit int) ([]*domain.Alert, error) {
	var alerts []*domain.Alert
	err := r.db.Where("created_at_ms >= ?", sinceMs).
		Order("created_at_ms DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

func (r *gormAlertRepository) ExpireDue(nowMs int64) (int64, error) {
	result := r.db.Model(&domain.Alert{}).
		Where("status = ? AND expires_at_ms <= ?", domain.StatusOpen, nowMs).
		Update("status", domain.StatusExpired)
	return result.RowsAffected, result.Error
}
