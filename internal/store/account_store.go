package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AccountStore struct{ db *gorm.DB }

func (s *Store) Accounts() *AccountStore { return &AccountStore{db: s.DB} }

func (as *AccountStore) Create(ctx context.Context, a *domain.InstitutionAccount) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return as.db.WithContext(ctx).Create(a).Error
}

func (as *AccountStore) GetByExternalID(ctx context.Context, institutionID domain.InstitutionID, externalID string) (*domain.InstitutionAccount, error) {
	var a domain.InstitutionAccount
	err := as.db.WithContext(ctx).
		First(&a, "institution_id = ? AND external_id = ?", institutionID, externalID).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

// OwnerOf returns the identity holding the account for (institution, externalID).
func (as *AccountStore) OwnerOf(ctx context.Context, institutionID domain.InstitutionID, externalID string) (*domain.Identity, error) {
	var ident domain.Identity
	err := as.db.WithContext(ctx).
		Select("identities.*").
		Joins("JOIN profiles ON profiles.identity_id = identities.id").
		Joins("JOIN institution_accounts ON institution_accounts.profile_id = profiles.id").
		Where("institution_accounts.institution_id = ? AND institution_accounts.external_id = ?", institutionID, externalID).
		First(&ident).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &ident, nil
}

func (as *AccountStore) ListByProfile(ctx context.Context, profileID domain.ProfileID) ([]*domain.InstitutionAccount, error) {
	var out []*domain.InstitutionAccount
	err := as.db.WithContext(ctx).Where("profile_id = ?", profileID).Order("external_id").Find(&out).Error
	return out, err
}

func (as *AccountStore) Reparent(ctx context.Context, from, to domain.ProfileID) (int64, error) {
	res := as.db.WithContext(ctx).Model(&domain.InstitutionAccount{}).
		Where("profile_id = ?", from).
		Update("profile_id", to)
	return res.RowsAffected, res.Error
}
