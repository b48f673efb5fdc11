package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProfileStore struct{ db *gorm.DB }

func (s *Store) Profiles() *ProfileStore { return &ProfileStore{db: s.DB} }

// Create gives an identity that has none its profile.
func (ps *ProfileStore) Create(ctx context.Context, identityID domain.IdentityID) (*domain.Profile, error) {
	p := &domain.Profile{ID: uuid.New(), IdentityID: identityID, CreatedAt: time.Now().UTC()}
	if err := ps.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (ps *ProfileStore) GetByIdentity(ctx context.Context, id domain.IdentityID) (*domain.Profile, error) {
	var p domain.Profile
	if err := ps.db.WithContext(ctx).First(&p, "identity_id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (ps *ProfileStore) GetByID(ctx context.Context, id domain.ProfileID) (*domain.Profile, error) {
	var p domain.Profile
	if err := ps.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// Attach hands the profile over to another identity.
func (ps *ProfileStore) Attach(ctx context.Context, id domain.ProfileID, identityID domain.IdentityID) error {
	return ps.db.WithContext(ctx).Model(&domain.Profile{}).
		Where("id = ?", id).
		Update("identity_id", identityID).Error
}

// Delete removes the profile with its linked emails and institution accounts.
func (ps *ProfileStore) Delete(ctx context.Context, id domain.ProfileID) error {
	return ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteProfiles(tx, []domain.ProfileID{id})
	})
}

func deleteProfiles(tx *gorm.DB, ids []domain.ProfileID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("profile_id IN ?", ids).Delete(&domain.LinkedEmail{}).Error; err != nil {
		return err
	}
	if err := tx.Where("profile_id IN ?", ids).Delete(&domain.InstitutionAccount{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", ids).Delete(&domain.Profile{}).Error
}
