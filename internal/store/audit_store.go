package store

import (
	"context"
	"encoding/json"
	"time"

	"uniauth/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditStore struct{ db *gorm.DB }

func (s *Store) Audit() *AuditStore { return &AuditStore{db: s.DB} }

// Append records action against the subject; metadata is stored as JSON.
func (as *AuditStore) Append(ctx context.Context, subjectType string, subjectID uuid.UUID, action string, metadata any) error {
	var raw []byte
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		raw = b
	}
	return as.db.WithContext(ctx).Create(&domain.AuditLog{
		ID:          uuid.New(),
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Action:      action,
		Metadata:    raw,
		CreatedAt:   time.Now().UTC(),
	}).Error
}

func (as *AuditStore) ListBySubject(ctx context.Context, subjectType string, subjectID uuid.UUID) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	err := as.db.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ?", subjectType, subjectID).
		Order("created_at").
		Find(&out).Error
	return out, err
}

// Repoint moves every row referencing (subjectType, from) to (subjectType, to).
func (as *AuditStore) Repoint(ctx context.Context, subjectType string, from, to uuid.UUID) (int64, error) {
	res := as.db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("subject_type = ? AND subject_id = ?", subjectType, from).
		Update("subject_id", to)
	return res.RowsAffected, res.Error
}
