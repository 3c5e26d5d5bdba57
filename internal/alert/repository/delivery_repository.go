package repository

import (
	"buddyalert-backend/internal/alert/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormDeliveryRepository implements DeliveryRepository using GORM
type gormDeliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new GORM-based DeliveryRepository
func NewDeliveryRepository(db *gorm.DB) DeliveryRepository {
	return &gormDeliveryRepository{db: db}
}

func (r *gormDeliveryRepository) RecordAll(records []domain.DeliveryRecord) error {
	if len(records) == 0 {
		return nil
	}
	// ON CONFLICT DO NOTHING on the (alert, recipient, outcome) key keeps
	// re-runs from duplicating audit entries.
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&records).Error
}

func (r *gormDeliveryRepository) SentRecipients(alertID string) (map[string]struct{}, error) {
	var uids []string
	err := r.db.Model(&domain.DeliveryRecord{}).
		Where("alert_id = ? AND outcome = ?", alertID, domain.OutcomeSent).
		Pluck("recipient_uid", &uids).Error
	if err != nil {
		return nil, err
	}
	sent := make(map[string]struct{}, len(uids))
	for _, uid := range uids {
		sent[uid] = struct{}{}
	}
	return sent, nil
}

func (r *gormDeliveryRepository) FindByAlert(alertID string) ([]domain.DeliveryRecord, error) {
	var records []domain.DeliveryRecord
	err := r.db.Where("alert_id = ?", alertID).
		Order("attempted_at_ms ASC").
		Find(&records).Error
	return records, err
}
