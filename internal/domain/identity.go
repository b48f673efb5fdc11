package domain

import (
	"strings"
	"time"
)

// Identity is the unified account record. Its kind (placeholder, unlinked
// institution account, verified) is not stored: it is derived from Handle.
type Identity struct {
	ID           IdentityID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Handle       string     `gorm:"type:text;not null;uniqueIndex:ux_identities_handle" db:"handle" json:"handle"`
	PrimaryEmail string     `gorm:"type:text;index:ix_identities_primary_email" db:"primary_email" json:"primaryEmail,omitempty"`
	Credential   []byte     `gorm:"type:bytea" db:"credential" json:"-"`
	IsActive     bool       `gorm:"not null" db:"is_active" json:"isActive"`
	CreatedAt    time.Time  `gorm:"not null;index" db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (Identity) TableName() string { return "identities" }

// HasCredential reports whether a secret was ever set. SSO-only identities
// carry no credential.
func (i *Identity) HasCredential() bool { return len(i.Credential) > 0 }

// Profile is the one-to-one extension of an Identity. Linked emails and
// institution accounts hang off the profile, so they follow it through merges.
type Profile struct {
	ID         ProfileID  `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	IdentityID IdentityID `gorm:"type:uuid;not null;uniqueIndex:ux_profiles_identity" db:"identity_id" json:"identityId"`
	CreatedAt  time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (Profile) TableName() string { return "profiles" }

// DisplayID returns a display-friendly, non-unique id for a handle: the local
// part of an email, the external id of an unlinked institution handle, or the
// handle itself.
func DisplayID(handle, ssoTag string) string {
	if at := strings.Index(handle, "@"); at >= 0 {
		return handle[:at]
	}
	if ssoTag != "" && strings.HasPrefix(handle, ssoTag+"-") {
		parts := strings.Split(handle, "-")
		if len(parts) >= 3 {
			return parts[len(parts)-1]
		}
	}
	return handle
}

// Group is a permission group; identities join groups many-to-many.
type Group struct {
	ID        GroupID   `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Name      string    `gorm:"type:text;not null;uniqueIndex:ux_groups_name" db:"name" json:"name"`
	CreatedAt time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (Group) TableName() string { return "groups" }

type GroupMembership struct {
	IdentityID IdentityID `gorm:"type:uuid;primaryKey" db:"identity_id"`
	GroupID    GroupID    `gorm:"type:uuid;primaryKey" db:"group_id"`
}

func (GroupMembership) TableName() string { return "identity_groups" }
