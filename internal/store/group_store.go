package store

import (
	"context"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GroupStore struct{ db *gorm.DB }

func (s *Store) Groups() *GroupStore { return &GroupStore{db: s.DB} }

func (gs *GroupStore) Create(ctx context.Context, g *domain.Group) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	return gs.db.WithContext(ctx).Create(g).Error
}

func (gs *GroupStore) AddMember(ctx context.Context, groupID domain.GroupID, identityID domain.IdentityID) error {
	return gs.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.GroupMembership{IdentityID: identityID, GroupID: groupID}).Error
}

func (gs *GroupStore) RemoveMember(ctx context.Context, groupID domain.GroupID, identityID domain.IdentityID) error {
	return gs.db.WithContext(ctx).
		Where("identity_id = ? AND group_id = ?", identityID, groupID).
		Delete(&domain.GroupMembership{}).Error
}

func (gs *GroupStore) IsMember(ctx context.Context, groupID domain.GroupID, identityID domain.IdentityID) (bool, error) {
	var n int64
	err := gs.db.WithContext(ctx).Model(&domain.GroupMembership{}).
		Where("identity_id = ? AND group_id = ?", identityID, groupID).
		Count(&n).Error
	return n > 0, err
}

func (gs *GroupStore) GroupIDs(ctx context.Context, identityID domain.IdentityID) ([]domain.GroupID, error) {
	var out []domain.GroupID
	err := gs.db.WithContext(ctx).Model(&domain.GroupMembership{}).
		Where("identity_id = ?", identityID).
		Pluck("group_id", &out).Error
	return out, err
}
