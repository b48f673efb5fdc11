package service

import "context"

// SSOClient validates a service ticket against an institution's SSO server.
// An empty external id means the ticket did not validate.
type SSOClient interface {
	VerifyTicket(ctx context.Context, ticket, serviceURL, serverURL string) (externalID string, attributes map[string]any, err error)
}
