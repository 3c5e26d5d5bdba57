package domain

import (
	"time"

	"buddyalert-backend/pkg/geo"
)

// UserProfile is the helper-side record the fan-out core consumes
// read-only. Verification is set by an external flow; an empty PushToken
// means the user is not reachable.
type UserProfile struct {
	UID              string   `json:"uid" gorm:"primaryKey"`
	Verified         bool     `json:"verified"`
	PushToken        string   `json:"-"`
	LastLat          *float64 `json:"last_lat,omitempty"`
	LastLng          *float64 `json:"last_lng,omitempty"`
	LastLocationAtMs int64    `json:"last_location_at_ms"`
	Geohash          string   `json:"-" gorm:"index"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocation reports whether a last known location is recorded.
func (u *UserProfile) HasLocation() bool {
	return u.LastLat != nil && u.LastLng != nil
}

// Location returns the last known location; callers must check
// HasLocation first.
func (u *UserProfile) Location() geo.Point {
	return geo.Point{Lat: *u.LastLat, Lng: *u.LastLng}
}
