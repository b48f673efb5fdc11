package store

import (
	"uniauth/internal/domain"

	"gorm.io/gorm"
)

// Models lists every persisted record, in dependency order.
func Models() []any {
	return []any{
		&domain.Identity{},
		&domain.Profile{},
		&domain.LinkedEmail{},
		&domain.Institution{},
		&domain.InstitutionAccount{},
		&domain.Group{},
		&domain.GroupMembership{},
		&domain.AuditLog{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
