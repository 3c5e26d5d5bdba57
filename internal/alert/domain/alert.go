package domain

import (
	"errors"
	"time"
)

// Visibility controls which helpers an alert may fan out to
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityVerifiedOnly Visibility = "verified_only"
)

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	StatusOpen      AlertStatus = "open"
	StatusResolved  AlertStatus = "resolved"
	StatusCancelled AlertStatus = "cancelled"
	StatusExpired   AlertStatus = "expired"
)

const (
	// DefaultRadiusMeters is the notification radius assigned at creation.
	DefaultRadiusMeters = 500
	// AlertTTL is the fixed lifespan of an alert after which it expires.
	AlertTTL = 10 * time.Minute
)

// Alert is a distress signal raised by a user. Location, visibility and
// radius are immutable after creation; only Status (and the fan-out claim)
// change afterwards.
type Alert struct {
	ID                string      `json:"id" gorm:"primaryKey"`
	Lat               float64     `json:"lat" gorm:"not null"`
	Lng               float64     `json:"lng" gorm:"not null"`
	Geohash           string      `json:"geohash" gorm:"index;not null"`
	Visibility        Visibility  `json:"visibility" gorm:"default:public"`
	Status            AlertStatus `json:"status" gorm:"index;default:open"`
	RadiusMeters      float64     `json:"radius_m" gorm:"column:radius_m;default:500"`
	CreatedAtMs       int64       `json:"created_at_ms" gorm:"index"`
	ExpiresAtMs       int64       `json:"expires_at_ms"`
	RequesterID       string      `json:"requester_id" gorm:"index;not null"`
	RequesterVerified bool        `json:"requester_verified"`
	// FanoutClaimedAtMs is the single-writer claim for an in-flight
	// fan-out run; zero when unclaimed.
	FanoutClaimedAtMs int64 `json:"-"`
}

// Terminal reports whether a status admits no further transitions.
func (s AlertStatus) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled || s == StatusExpired
}

// Expired reports whether the alert's TTL has elapsed.
func (a *Alert) Expired(nowMs int64) bool {
	return a.ExpiresAtMs <= nowMs
}

// EffectiveStatus applies lazy expiry: an OPEN alert past its expiry reads
// as EXPIRED even before the store confirms the transition.
func (a *Alert) EffectiveStatus(nowMs int64) AlertStatus {
	if a.Status == StatusOpen && a.Expired(nowMs) {
		return StatusExpired
	}
	return a.Status
}

var (
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrNotRequester      = errors.New("only the requester may cancel an alert")
	ErrInvalidVisibility = errors.New("invalid visibility")
)
