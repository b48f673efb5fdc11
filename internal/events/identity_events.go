package events

import "time"

// Audit actions.
const (
	ActionIdentitiesMerged  = "identities_merged"
	ActionEmailAdded        = "email_added"
	ActionEmailVerified     = "email_verified"
	ActionEmailRemoved      = "email_removed"
	ActionPrimaryChanged    = "primary_email_changed"
	ActionSSOLogin          = "sso_login"
	ActionInstitutionLinked = "institution_linked"
	ActionPasswordChanged   = "password_changed"
)

type IdentitiesMerged struct {
	PrimaryID string    `json:"primaryId"`
	AliasIDs  []string  `json:"aliasIds"`
	Recursive bool      `json:"recursive"`
	At        time.Time `json:"at"`
}

type SSOLogin struct {
	IdentityID  string    `json:"identityId"`
	Institution string    `json:"institution"`
	ExternalID  string    `json:"externalId"`
	Created     bool      `json:"created"`
	At          time.Time `json:"at"`
}

type InstitutionLinked struct {
	IdentityID  string    `json:"identityId"`
	Institution string    `json:"institution"`
	ExternalID  string    `json:"externalId"`
	At          time.Time `json:"at"`
}

type PasswordChanged struct {
	IdentityID string    `json:"identityId"`
	At         time.Time `json:"at"`
}
