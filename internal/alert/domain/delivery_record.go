package domain

// DeliveryOutcome is the result of one fan-out attempt for one recipient
type DeliveryOutcome string

const (
	OutcomeSent    DeliveryOutcome = "sent"
	OutcomeFailed  DeliveryOutcome = "failed"
	OutcomeSkipped DeliveryOutcome = "skipped"
)

// DeliveryRecord is the append-only audit entry for a single recipient of
// a single alert. The composite unique index keys delivery attempts by
// (alert, recipient, outcome) so a repeated run cannot produce a second
// SENT record for the same pair.
type DeliveryRecord struct {
	ID            string          `json:"id" gorm:"primaryKey"`
	AlertID       string          `json:"alert_id" gorm:"uniqueIndex:idx_delivery_attempt;not null"`
	RecipientUID  string          `json:"recipient_uid" gorm:"uniqueIndex:idx_delivery_attempt;not null"`
	Outcome       DeliveryOutcome `json:"outcome" gorm:"uniqueIndex:idx_delivery_attempt;not null"`
	Reason        string          `json:"reason,omitempty"`
	AttemptedAtMs int64           `json:"attempted_at_ms"`
}
