package domain

import "time"

// Institution is a federated SSO endpoint.
type Institution struct {
	ID           InstitutionID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Name         string        `gorm:"type:text;not null" db:"name" json:"name"`
	Slug         string        `gorm:"type:text;not null;uniqueIndex:ux_institutions_slug" db:"slug" json:"slug"`
	SSOServerURL string        `gorm:"type:text;not null" db:"sso_server_url" json:"ssoServerUrl"`
	CreatedAt    time.Time     `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time     `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Institution) TableName() string { return "institutions" }

// InstitutionAccount records that a profile authenticated against an
// institution's SSO server as ExternalID.
type InstitutionAccount struct {
	ID            AccountID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	ProfileID     ProfileID     `gorm:"type:uuid;not null;index" db:"profile_id" json:"profileId"`
	InstitutionID InstitutionID `gorm:"type:uuid;not null;uniqueIndex:ux_accounts_external,priority:1" db:"institution_id" json:"institutionId"`
	ExternalID    string        `gorm:"type:text;not null;uniqueIndex:ux_accounts_external,priority:2" db:"external_id" json:"externalId"`
	CreatedAt     time.Time     `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (InstitutionAccount) TableName() string { return "institution_accounts" }
