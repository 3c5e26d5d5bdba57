package usecase

import (
	"log"
	"time"

	"buddyalert-backend/internal/alert/domain"
	"buddyalert-backend/internal/alert/repository"
	userrepo "buddyalert-backend/internal/user/repository"
	"buddyalert-backend/pkg/geo"

	"github.com/google/uuid"
)

// AlertLifecycle owns alert creation and state transitions. OPEN alerts
// move to exactly one of RESOLVED, CANCELLED or EXPIRED; terminal states
// are final.
type AlertLifecycle interface {
	Create(requesterID string, lat, lng float64, visibility domain.Visibility) (*domain.Alert, error)
	Get(id string) (*domain.Alert, error)
	Recent(windowMs int64, limit int) ([]*domain.Alert, error)
	Resolve(id string) error
	Cancel(id, requesterID string) error
	ExpireDue() (int64, error)
}

type alertLifecycle struct {
	alerts repository.AlertRepository
	users  userrepo.UserRepository
	now    func() time.Time
}

// NewAlertLifecycle creates the lifecycle usecase.
func NewAlertLifecycle(alerts repository.AlertRepository, users userrepo.UserRepository) AlertLifecycle {
	return &alertLifecycle{
		alerts: alerts,
		users:  users,
		now:    time.Now,
	}
}

func (u *alertLifecycle) Create(requesterID string, lat, lng float64, visibility domain.Visibility) (*domain.Alert, error) {
	spatialKey, err := geo.Encode(lat, lng)
	if err != nil {
		return nil, err
	}

	switch visibility {
	case "":
		visibility = domain.VisibilityPublic
	case domain.VisibilityPublic, domain.VisibilityVerifiedOnly:
	default:
		return nil, domain.ErrInvalidVisibility
	}

	// Echo the requester's verification status onto the alert so
	// recipients can see who raised it without a second lookup.
	requesterVerified := false
	if requester, err := u.users.FindByUID(requesterID); err != nil {
		log.Printf("[Alert] requester %s lookup failed: %v", requesterID, err)
	} else if requester != nil {
		requesterVerified = requester.Verified
	}

	nowMs := u.now().UnixMilli()
	alert := &domain.Alert{
		ID:                uuid.New().String(),
		Lat:               lat,
		Lng:               lng,
		Geohash:           spatialKey,
		Visibility:        visibility,
		Status:            domain.StatusOpen,
		RadiusMeters:      domain.DefaultRadiusMeters,
		CreatedAtMs:       nowMs,
		ExpiresAtMs:       nowMs + domain.AlertTTL.Milliseconds(),
		RequesterID:       requesterID,
		RequesterVerified: requesterVerified,
	}

	if err := u.alerts.Create(alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (u *alertLifecycle) Get(id string) (*domain.Alert, error) {
	alert, err := u.alerts.FindByID(id)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, domain.ErrAlertNotFound
	}
	return u.lazyExpire(alert), nil
}

func (u *alertLifecycle) Recent(windowMs int64, limit int) ([]*domain.Alert, error) {
	nowMs := u.now().UnixMilli()
	alerts, err := u.alerts.FindRecent(nowMs-windowMs, limit)
	if err != nil {
		return nil, err
	}

	// Expired alerts drop out of the feed even before the sweep has
	// written the transition.
	visible := make([]*domain.Alert, 0, len(alerts))
	for _, alert := range alerts {
		if alert.EffectiveStatus(nowMs) == domain.StatusExpired {
			continue
		}
		visible = append(visible, alert)
	}
	return visible, nil
}

func (u *alertLifecycle) Resolve(id string) error {
	return u.transition(id, domain.StatusResolved)
}

func (u *alertLifecycle) Cancel(id, requesterID string) error {
	alert, err := u.alerts.FindByID(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return domain.ErrAlertNotFound
	}
	if alert.RequesterID != requesterID {
		return domain.ErrNotRequester
	}
	return u.transition(id, domain.StatusCancelled)
}

func (u *alertLifecycle) ExpireDue() (int64, error) {
	return u.alerts.ExpireDue(u.now().UnixMilli())
}

// transition attempts OPEN -> to atomically; anything else is an invalid
// transition, reported and never retried.
func (u *alertLifecycle) transition(id string, to domain.AlertStatus) error {
	alert, err := u.alerts.FindByID(id)
	if err != nil {
		return err
	}
	if alert == nil {
		return domain.ErrAlertNotFound
	}
	if alert.EffectiveStatus(u.now().UnixMilli()) != domain.StatusOpen {
		return domain.ErrInvalidTransition
	}

	ok, err := u.alerts.UpdateStatusIf(id, domain.StatusOpen, to)
	if err != nil {
		return err
	}
	if !ok {
		// Lost the race against another transition.
		return domain.ErrInvalidTransition
	}
	return nil
}

// lazyExpire returns the alert with expiry applied, persisting the
// transition best-effort.
func (u *alertLifecycle) lazyExpire(alert *domain.Alert) *domain.Alert {
	nowMs := u.now().UnixMilli()
	if alert.Status == domain.StatusOpen && alert.Expired(nowMs) {
		if _, err := u.alerts.UpdateStatusIf(alert.ID, domain.StatusOpen, domain.StatusExpired); err != nil {
			log.Printf("[Alert] lazy expiry of %s failed: %v", alert.ID, err)
		}
		alert.Status = domain.StatusExpired
	}
	return alert
}
