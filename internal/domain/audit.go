package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subject type tags for audit rows. An audit row points at its subject by
// (type tag, id) rather than by foreign key.
const (
	SubjectIdentity    = "identity"
	SubjectProfile     = "profile"
	SubjectInstitution = "institution"
)

type AuditLog struct {
	ID          AuditID   `gorm:"type:uuid;primaryKey" db:"id"`
	SubjectType string    `gorm:"type:text;not null;index:ix_audit_subject,priority:1" db:"subject_type"`
	SubjectID   uuid.UUID `gorm:"type:uuid;not null;index:ix_audit_subject,priority:2" db:"subject_id"`
	Action      string    `gorm:"type:text;not null" db:"action"`
	Metadata    []byte    `gorm:"type:jsonb" db:"metadata"`
	CreatedAt   time.Time `gorm:"not null" db:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }
