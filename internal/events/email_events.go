package events

import "time"

type EmailAdded struct {
	IdentityID string    `json:"identityId"`
	EmailID    string    `json:"emailId"`
	Address    string    `json:"address"`
	At         time.Time `json:"at"`
}

type EmailVerified struct {
	IdentityID     string    `json:"identityId"`
	EmailID        string    `json:"emailId"`
	Address        string    `json:"address"`
	PreviousHandle string    `json:"previousHandle,omitempty"`
	NewHandle      string    `json:"newHandle,omitempty"`
	At             time.Time `json:"at"`
}

type EmailRemoved struct {
	IdentityID string    `json:"identityId"`
	EmailID    string    `json:"emailId"`
	Address    string    `json:"address"`
	At         time.Time `json:"at"`
}

type PrimaryEmailChanged struct {
	IdentityID string    `json:"identityId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	At         time.Time `json:"at"`
}
