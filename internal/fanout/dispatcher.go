package fanout

import (
	"context"
	"errors"
	"log"
	"time"

	alertdomain "buddyalert-backend/internal/alert/domain"
	userdomain "buddyalert-backend/internal/user/domain"

	"github.com/google/uuid"
)

// Payload is the opaque notification content supplied by the caller. The
// dispatcher never inspects it.
type Payload struct {
	Title string
	Body  string
	Data  map[string]string
}

// PushProvider abstracts the delivery channel.
type PushProvider interface {
	Send(ctx context.Context, token string, payload Payload) error
}

// Dispatcher attempts delivery to each recipient, isolating failures per
// recipient: one failed send never prevents the remaining attempts, and
// nothing is retried within a single dispatch.
type Dispatcher struct {
	provider PushProvider
	timeout  time.Duration
	now      func() time.Time
}

// NewDispatcher creates a Dispatcher. timeout bounds each individual
// delivery attempt.
func NewDispatcher(provider PushProvider, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Dispatch sends the payload to every recipient and returns one
// DeliveryRecord per recipient, in recipient order.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *alertdomain.Alert, recipients []*userdomain.UserProfile, payload Payload) []alertdomain.DeliveryRecord {
	records := make([]alertdomain.DeliveryRecord, 0, len(recipients))

	for _, recipient := range recipients {
		record := alertdomain.DeliveryRecord{
			ID:            uuid.New().String(),
			AlertID:       alert.ID,
			RecipientUID:  recipient.UID,
			AttemptedAtMs: d.now().UnixMilli(),
		}

		err := d.send(ctx, recipient.PushToken, payload)
		switch {
		case err == nil:
			record.Outcome = alertdomain.OutcomeSent
		case errors.Is(err, context.DeadlineExceeded):
			record.Outcome = alertdomain.OutcomeFailed
			record.Reason = "timeout"
		default:
			record.Outcome = alertdomain.OutcomeFailed
			record.Reason = err.Error()
		}
		if record.Outcome == alertdomain.OutcomeFailed {
			log.Printf("[Dispatch] alert %s -> %s failed: %s", alert.ID, recipient.UID, record.Reason)
		}

		records = append(records, record)
	}

	return records
}

func (d *Dispatcher) send(ctx context.Context, token string, payload Payload) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.provider.Send(sendCtx, token, payload)
}
