package repository

import (
	"context"

	"buddyalert-backend/internal/user/domain"
	"buddyalert-backend/pkg/geo"
)

// UserRepository defines the interface for user profile access. The
// fan-out core only reads; the write operations back the app's
// location/push-token/verification endpoints.
type UserRepository interface {
	// FindByUID finds a profile; returns (nil, nil) when absent
	FindByUID(uid string) (*domain.UserProfile, error)

	// FindByKeyRanges returns profiles whose spatial key falls inside
	// any of the given ranges (coarse filter, read-only)
	FindByKeyRanges(ctx context.Context, ranges []geo.KeyRange) ([]*domain.UserProfile, error)

	// UpsertLocation records the user's last known location
	UpsertLocation(uid string, lat, lng float64, tsMs int64, spatialKey string) error

	// SavePushToken registers the user's push delivery handle
	SavePushToken(uid, token string) error

	// DeletePushToken makes the user unreachable for push
	DeletePushToken(uid string) error

	// SetVerified updates the verification flag (external flow callback)
	SetVerified(uid string, verified bool) error
}
