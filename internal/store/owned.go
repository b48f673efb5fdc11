package store

import (
	"context"

	"uniauth/internal/domain"

	"gorm.io/gorm"
)

// CountOwned returns counts of the records an identity owns or is referenced
// by, keyed by resource name.
func (s *Store) CountOwned(ctx context.Context, id domain.IdentityID) (map[string]int64, error) {
	counts := map[string]int64{}
	db := s.DB.WithContext(ctx)

	count := func(label string, query *gorm.DB) error {
		var total int64
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		counts[label] = total
		return nil
	}

	profiles := db.Model(&domain.Profile{}).Select("id").Where("identity_id = ?", id)

	if err := count("profiles", db.Model(&domain.Profile{}).Where("identity_id = ?", id)); err != nil {
		return nil, err
	}
	if err := count("linkedEmails", db.Model(&domain.LinkedEmail{}).Where("profile_id IN (?)", profiles)); err != nil {
		return nil, err
	}
	if err := count("institutionAccounts", db.Model(&domain.InstitutionAccount{}).Where("profile_id IN (?)", profiles)); err != nil {
		return nil, err
	}
	if err := count("groups", db.Model(&domain.GroupMembership{}).Where("identity_id = ?", id)); err != nil {
		return nil, err
	}
	if err := count("auditLogs", db.Model(&domain.AuditLog{}).Where("subject_type = ? AND subject_id = ?", domain.SubjectIdentity, id)); err != nil {
		return nil, err
	}
	return counts, nil
}
