package repository

import (
	"context"
	"errors"
	"time"

	"buddyalert-backend/internal/user/domain"
	"buddyalert-backend/pkg/geo"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// gormUserRepository implements UserRepository using GORM
type gormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new GORM-based UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &gormUserRepository{db: db}
}

func (r *gormUserRepository) FindByUID(uid string) (*domain.UserProfile, error) {
	var user domain.UserProfile
	err := r.db.Where("uid = ?", uid).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *gormUserRepository) FindByKeyRanges(ctx context.Context, ranges []geo.KeyRange) ([]*domain.UserProfile, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	scan := r.db.WithContext(ctx)
	cond := r.db.Where("geohash >= ? AND geohash < ?", ranges[0].Start, ranges[0].End)
	for _, kr := range ranges[1:] {
		cond = cond.Or("geohash >= ? AND geohash < ?", kr.Start, kr.End)
	}

	var users []*domain.UserProfile
	err := scan.Where("geohash <> ''").Where(cond).Find(&users).Error
	return users, err
}

func (r *gormUserRepository) UpsertLocation(uid string, lat, lng float64, tsMs int64, spatialKey string) error {
	user := &domain.UserProfile{
		UID:              uid,
		LastLat:          &lat,
		LastLng:          &lng,
		LastLocationAtMs: tsMs,
		Geohash:          spatialKey,
		CreatedAt:        time.Now(),
		UpdatedAt:        time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_lat", "last_lng", "last_location_at_ms", "geohash", "updated_at"}),
	}).Create(user).Error
}

func (r *gormUserRepository) SavePushToken(uid, token string) error {
	user := &domain.UserProfile{
		UID:       uid,
		PushToken: token,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"push_token", "updated_at"}),
	}).Create(user).Error
}

func (r *gormUserRepository) DeletePushToken(uid string) error {
	return r.db.Model(&domain.UserProfile{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"push_token": "",
			"updated_at": time.Now(),
		}).Error
}

func (r *gormUserRepository) SetVerified(uid string, verified bool) error {
	return r.db.Model(&domain.UserProfile{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"verified":   verified,
			"updated_at": time.Now(),
		}).Error
}
