package store

import (
	"context"
	"fmt"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/handle"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IdentityStore struct {
	db      *gorm.DB
	retries int
}

func (s *Store) Identities() *IdentityStore {
	return &IdentityStore{db: s.DB, retries: s.retries()}
}

// Create inserts the identity together with its profile. An identity created
// with a primary email also gets that address as a verified linked email.
func (is *IdentityStore) Create(ctx context.Context, ident *domain.Identity) error {
	now := time.Now().UTC()
	if ident.ID == uuid.Nil {
		ident.ID = uuid.New()
	}
	if ident.CreatedAt.IsZero() {
		ident.CreatedAt = now
	}
	ident.UpdatedAt = now
	return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(ident).Error; err != nil {
			return err
		}
		profile := &domain.Profile{ID: uuid.New(), IdentityID: ident.ID, CreatedAt: now}
		if err := tx.Create(profile).Error; err != nil {
			return err
		}
		if ident.PrimaryEmail == "" {
			return nil
		}
		return tx.Create(&domain.LinkedEmail{
			ID:         uuid.New(),
			ProfileID:  profile.ID,
			Address:    ident.PrimaryEmail,
			IsVerified: true,
			CreatedAt:  now,
		}).Error
	})
}

// CreatePlaceholder creates ident under a fresh placeholder handle, drawing a
// new handle whenever the previous one turns out to be taken.
func (is *IdentityStore) CreatePlaceholder(ctx context.Context, ident *domain.Identity) error {
	return is.retryHandle(ctx, "create placeholder", func() (string, error) {
		return handle.MakePlaceholder(), nil
	}, func(h string) error {
		ident.ID = uuid.Nil
		ident.Handle = h
		return is.Create(ctx, ident)
	})
}

// CreateUnique creates ident under the first free handle derived from base.
func (is *IdentityStore) CreateUnique(ctx context.Context, base string, ident *domain.Identity) error {
	return is.retryHandle(ctx, "create identity", func() (string, error) {
		return handle.ChooseUnique(ctx, is, base)
	}, func(h string) error {
		ident.ID = uuid.Nil
		ident.Handle = h
		return is.Create(ctx, ident)
	})
}

// Rename moves the identity to the first free handle derived from base and
// returns the handle it got.
func (is *IdentityStore) Rename(ctx context.Context, id domain.IdentityID, base string) (string, error) {
	var chosen string
	err := is.retryHandle(ctx, "rename identity", func() (string, error) {
		return handle.ChooseUnique(ctx, is, base)
	}, func(h string) error {
		chosen = h
		return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Model(&domain.Identity{}).
				Where("id = ?", id).
				Updates(map[string]any{"handle": h, "updated_at": time.Now().UTC()}).Error
		})
	})
	return chosen, err
}

// retryHandle runs write with candidates from next until one does not hit a
// unique violation. Each write runs in its own savepoint, so a lost race
// leaves a surrounding transaction usable.
func (is *IdentityStore) retryHandle(ctx context.Context, op string, next func() (string, error), write func(h string) error) error {
	var last error
	for attempt := 0; attempt < is.retries; attempt++ {
		h, err := next()
		if err != nil {
			return err
		}
		err = write(h)
		if err == nil {
			return nil
		}
		if !IsUniqueViolation(err) {
			return err
		}
		last = err
	}
	return &domain.StoreError{Op: op, Err: fmt.Errorf("%w after %d attempts: %v", domain.ErrUniqueViolation, is.retries, last)}
}

func (is *IdentityStore) HandleExists(ctx context.Context, h string) (bool, error) {
	var n int64
	if err := is.db.WithContext(ctx).Model(&domain.Identity{}).Where("handle = ?", h).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (is *IdentityStore) GetByID(ctx context.Context, id domain.IdentityID) (*domain.Identity, error) {
	var ident domain.Identity
	if err := is.db.WithContext(ctx).First(&ident, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ident, nil
}

func (is *IdentityStore) GetByHandle(ctx context.Context, h string) (*domain.Identity, error) {
	var ident domain.Identity
	if err := is.db.WithContext(ctx).First(&ident, "handle = ?", h).Error; err != nil {
		return nil, notFound(err)
	}
	return &ident, nil
}

// GetOrCreateByHandle returns the identity owning h, creating an active one
// without credential when none exists. A create that loses a race re-reads.
func (is *IdentityStore) GetOrCreateByHandle(ctx context.Context, h string) (*domain.Identity, bool, error) {
	ident, err := is.GetByHandle(ctx, h)
	if err == nil {
		return ident, false, nil
	}
	if err != ErrRecordNotFound {
		return nil, false, err
	}
	ident = &domain.Identity{Handle: h, IsActive: true}
	if err := is.Create(ctx, ident); err != nil {
		if IsUniqueViolation(err) {
			ident, err = is.GetByHandle(ctx, h)
			return ident, false, err
		}
		return nil, false, err
	}
	return ident, true, nil
}

// ListByPrimaryEmail matches primary emails case-insensitively.
func (is *IdentityStore) ListByPrimaryEmail(ctx context.Context, address string) ([]*domain.Identity, error) {
	var out []*domain.Identity
	err := is.db.WithContext(ctx).
		Where("LOWER(primary_email) = LOWER(?)", address).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// ListByLogin returns the active identities a login string may designate:
// primary email or verified linked email (both case-insensitive) and, when
// matchHandle is set, exact handle.
func (is *IdentityStore) ListByLogin(ctx context.Context, login string, matchHandle bool) ([]*domain.Identity, error) {
	db := is.db.WithContext(ctx)
	owners := db.Model(&domain.Profile{}).
		Select("profiles.identity_id").
		Joins("JOIN linked_emails ON linked_emails.profile_id = profiles.id").
		Where("LOWER(linked_emails.address) = LOWER(?) AND linked_emails.is_verified = ?", login, true)

	match := db.Where("LOWER(primary_email) = LOWER(?)", login).Or("id IN (?)", owners)
	if matchHandle {
		match = match.Or("handle = ?", login)
	}

	var out []*domain.Identity
	err := db.Where("is_active = ?", true).Where(match).Order("created_at").Find(&out).Error
	return out, err
}

// ListByVerifiedEmail returns the active identities holding address as a
// verified linked email.
func (is *IdentityStore) ListByVerifiedEmail(ctx context.Context, address string) ([]*domain.Identity, error) {
	db := is.db.WithContext(ctx)
	owners := db.Model(&domain.Profile{}).
		Select("profiles.identity_id").
		Joins("JOIN linked_emails ON linked_emails.profile_id = profiles.id").
		Where("LOWER(linked_emails.address) = LOWER(?) AND linked_emails.is_verified = ?", address, true)

	var out []*domain.Identity
	err := db.Where("is_active = ? AND id IN (?)", true, owners).Order("created_at").Find(&out).Error
	return out, err
}

// ListWithoutProfile returns identities written by an earlier scheme that
// never got a profile.
func (is *IdentityStore) ListWithoutProfile(ctx context.Context) ([]*domain.Identity, error) {
	db := is.db.WithContext(ctx)
	var out []*domain.Identity
	err := db.Where("id NOT IN (?)", db.Model(&domain.Profile{}).Select("identity_id")).
		Order("created_at, id").
		Find(&out).Error
	return out, err
}

func (is *IdentityStore) SetPrimaryEmail(ctx context.Context, id domain.IdentityID, address string) error {
	return is.db.WithContext(ctx).Model(&domain.Identity{}).
		Where("id = ?", id).
		Updates(map[string]any{"primary_email": address, "updated_at": time.Now().UTC()}).Error
}

func (is *IdentityStore) SetCredential(ctx context.Context, id domain.IdentityID, credential []byte) error {
	return is.db.WithContext(ctx).Model(&domain.Identity{}).
		Where("id = ?", id).
		Updates(map[string]any{"credential": credential, "updated_at": time.Now().UTC()}).Error
}

func (is *IdentityStore) SetHandle(ctx context.Context, id domain.IdentityID, h string) error {
	return is.db.WithContext(ctx).Model(&domain.Identity{}).
		Where("id = ?", id).
		Updates(map[string]any{"handle": h, "updated_at": time.Now().UTC()}).Error
}

func (is *IdentityStore) SetActive(ctx context.Context, id domain.IdentityID, active bool) error {
	return is.db.WithContext(ctx).Model(&domain.Identity{}).
		Where("id = ?", id).
		Update("is_active", active).Error
}

// List pages through all identities ordered by creation.
func (is *IdentityStore) List(ctx context.Context, offset, limit int) ([]*domain.Identity, error) {
	var out []*domain.Identity
	err := is.db.WithContext(ctx).Order("created_at, id").Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

func (is *IdentityStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := is.db.WithContext(ctx).Model(&domain.Identity{}).Count(&n).Error
	return n, err
}

// Delete removes the identity and everything it owns: its profile with the
// profile's linked emails and institution accounts, and its group
// memberships. Audit rows are history and stay.
func (is *IdentityStore) Delete(ctx context.Context, id domain.IdentityID) error {
	return is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profileIDs []domain.ProfileID
		if err := tx.Model(&domain.Profile{}).Where("identity_id = ?", id).Pluck("id", &profileIDs).Error; err != nil {
			return err
		}
		if err := deleteProfiles(tx, profileIDs); err != nil {
			return err
		}
		if err := tx.Where("identity_id = ?", id).Delete(&domain.GroupMembership{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&domain.Identity{}).Error
	})
}

// DeletePlaceholdersBefore removes placeholder identities created before
// cutoff and reports how many went. Either all of them go or none do.
func (is *IdentityStore) DeletePlaceholdersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := is.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []domain.IdentityID
		err := tx.Model(&domain.Identity{}).
			Where("handle LIKE ? AND created_at <= ?", handle.PlaceholderPrefix+"%", cutoff).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		in := &IdentityStore{db: tx, retries: is.retries}
		for _, id := range ids {
			if err := in.Delete(ctx, id); err != nil {
				return err
			}
		}
		deleted = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
