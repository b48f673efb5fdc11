package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type InstitutionStore struct{ db *gorm.DB }

func (s *Store) Institutions() *InstitutionStore { return &InstitutionStore{db: s.DB} }

func (is *InstitutionStore) Create(ctx context.Context, inst *domain.Institution) error {
	now := time.Now().UTC()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now
	return is.db.WithContext(ctx).Create(inst).Error
}

func (is *InstitutionStore) GetBySlug(ctx context.Context, slug string) (*domain.Institution, error) {
	var inst domain.Institution
	if err := is.db.WithContext(ctx).First(&inst, "slug = ?", slug).Error; err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

func (is *InstitutionStore) GetByID(ctx context.Context, id domain.InstitutionID) (*domain.Institution, error) {
	var inst domain.Institution
	if err := is.db.WithContext(ctx).First(&inst, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &inst, nil
}

func (is *InstitutionStore) List(ctx context.Context) ([]*domain.Institution, error) {
	var out []*domain.Institution
	err := is.db.WithContext(ctx).Order("slug").Find(&out).Error
	return out, err
}

func (is *InstitutionStore) Update(ctx context.Context, id domain.InstitutionID, name, serverURL string) error {
	return is.db.WithContext(ctx).Model(&domain.Institution{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "sso_server_url": serverURL, "updated_at": time.Now().UTC()}).Error
}

// Delete removes the institution and every account held with it, returning
// the number of accounts removed.
func (is *InstitutionStore) Delete(ctx context.Context, id domain.InstitutionID) (int64, error) {
	var accounts int64
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("institution_id = ?", id).Delete(&domain.InstitutionAccount{})
		if res.Error != nil {
			return res.Error
		}
		accounts = res.RowsAffected
		return tx.Where("id = ?", id).Delete(&domain.Institution{}).Error
	})
	return accounts, err
}
