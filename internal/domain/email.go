package domain

import "time"

type LinkedEmail struct {
	ID         EmailID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	ProfileID  ProfileID `gorm:"type:uuid;not null;index" db:"profile_id" json:"profileId"`
	Address    string    `gorm:"type:text;not null;index" db:"address" json:"address"`
	IsVerified bool      `gorm:"not null" db:"is_verified" json:"isVerified"`
	CreatedAt  time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (LinkedEmail) TableName() string { return "linked_emails" }

// EmailState is the verification state of a LinkedEmail. Pending moves to
// Verified exactly once; there is no way back.
type EmailState string

const (
	EmailPending  EmailState = "pending"
	EmailVerified EmailState = "verified"
)

func (e *LinkedEmail) State() EmailState {
	if e.IsVerified {
		return EmailVerified
	}
	return EmailPending
}
