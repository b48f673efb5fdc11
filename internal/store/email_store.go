package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailStore struct{ db *gorm.DB }

func (s *Store) Emails() *EmailStore { return &EmailStore{db: s.DB} }

func (es *EmailStore) Create(ctx context.Context, e *domain.LinkedEmail) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return es.db.WithContext(ctx).Create(e).Error
}

func (es *EmailStore) GetByID(ctx context.Context, id domain.EmailID) (*domain.LinkedEmail, error) {
	var e domain.LinkedEmail
	if err := es.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

// Find returns the profile's row for address in the given state. The address
// matches case-insensitively.
func (es *EmailStore) Find(ctx context.Context, profileID domain.ProfileID, address string, verified bool) (*domain.LinkedEmail, error) {
	var e domain.LinkedEmail
	err := es.db.WithContext(ctx).
		Where("profile_id = ? AND LOWER(address) = LOWER(?) AND is_verified = ?", profileID, address, verified).
		First(&e).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}

func (es *EmailStore) ListByProfile(ctx context.Context, profileID domain.ProfileID) ([]*domain.LinkedEmail, error) {
	var out []*domain.LinkedEmail
	err := es.db.WithContext(ctx).Where("profile_id = ?", profileID).Order("address, created_at").Find(&out).Error
	return out, err
}

func (es *EmailStore) CountByProfile(ctx context.Context, profileID domain.ProfileID) (int64, error) {
	var n int64
	err := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).Where("profile_id = ?", profileID).Count(&n).Error
	return n, err
}

// LinkedToProfile reports whether the profile already holds address, in any state.
func (es *EmailStore) LinkedToProfile(ctx context.Context, profileID domain.ProfileID, address string) (bool, error) {
	var n int64
	err := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).
		Where("profile_id = ? AND LOWER(address) = LOWER(?)", profileID, address).
		Count(&n).Error
	return n > 0, err
}

// VerifiedElsewhere reports whether address is verified on any profile other
// than exclude. Pass uuid.Nil to search all profiles.
func (es *EmailStore) VerifiedElsewhere(ctx context.Context, address string, exclude domain.ProfileID) (bool, error) {
	q := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).
		Where("LOWER(address) = LOWER(?) AND is_verified = ?", address, true)
	if exclude != uuid.Nil {
		q = q.Where("profile_id <> ?", exclude)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

// MarkVerified flips a pending row to verified. It reports false when the row
// was already verified, so the transition happens at most once.
func (es *EmailStore) MarkVerified(ctx context.Context, id domain.EmailID) (bool, error) {
	res := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).
		Where("id = ? AND is_verified = ?", id, false).
		Update("is_verified", true)
	return res.RowsAffected == 1, res.Error
}

func (es *EmailStore) Delete(ctx context.Context, id domain.EmailID) error {
	return es.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.LinkedEmail{}).Error
}

// DeletePending removes every pending row for address, system-wide.
func (es *EmailStore) DeletePending(ctx context.Context, address string) (int64, error) {
	res := es.db.WithContext(ctx).
		Where("LOWER(address) = LOWER(?) AND is_verified = ?", address, false).
		Delete(&domain.LinkedEmail{})
	return res.RowsAffected, res.Error
}

// VerifiedAddresses lists the verified addresses of a profile.
func (es *EmailStore) VerifiedAddresses(ctx context.Context, profileID domain.ProfileID) ([]string, error) {
	var out []string
	err := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).
		Where("profile_id = ? AND is_verified = ?", profileID, true).
		Order("address").
		Pluck("address", &out).Error
	return out, err
}

func (es *EmailStore) Reparent(ctx context.Context, from, to domain.ProfileID) (int64, error) {
	res := es.db.WithContext(ctx).Model(&domain.LinkedEmail{}).
		Where("profile_id = ?", from).
		Update("profile_id", to)
	return res.RowsAffected, res.Error
}
