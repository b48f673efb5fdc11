package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/events"
	"uniauth/internal/handle"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"
	"uniauth/internal/store"
)

// Resolver names, used as the resolver metric label.
const (
	ResolverSSO                   = "sso"
	ResolverLinkedEmail           = "linked_email"
	ResolverUsernameOrLinkedEmail = "username_or_linked_email"
)

// SSOResolver authenticates SSO tickets. An external account seen for the
// first time gets an unlinked identity named after it; later logins with the
// same external id return that same identity until it is linked.
type SSOResolver struct {
	st  *store.Store
	sso service.SSOClient
	tag string
	log *slog.Logger
}

func NewSSOResolver(st *store.Store, sso service.SSOClient, tag string, logger *slog.Logger) *SSOResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSOResolver{st: st, sso: sso, tag: tag, log: logger}
}

func (r *SSOResolver) Name() string { return ResolverSSO }

func (r *SSOResolver) Resolve(ctx context.Context, creds any) (*domain.Identity, error) {
	var c *dto.SSOCredentials
	switch v := creds.(type) {
	case dto.SSOCredentials:
		c = &v
	case *dto.SSOCredentials:
		c = v
	}
	if c == nil {
		return nil, nil
	}

	result := metrics.ResultFailure
	defer func() { metrics.AuthLoginsTotal.WithLabelValues(ResolverSSO, result).Inc() }()
	logger := middleware.Logger(ctx, r.log)

	inst, err := r.st.Institutions().GetBySlug(ctx, c.Institution)
	if err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("institution %q: %w", c.Institution, err)
	}

	// nothing is written before the ticket checks out
	externalID, attributes, err := r.sso.VerifyTicket(ctx, c.Ticket, c.ServiceURL, inst.SSOServerURL)
	if err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("verify ticket: %w", err)
	}
	if c.Session != nil && attributes != nil {
		c.Session["attributes"] = attributes
	}
	if externalID == "" {
		logger.Info("sso ticket rejected", "institution", inst.Slug)
		return nil, nil
	}

	owner, err := r.st.Accounts().OwnerOf(ctx, inst.ID, externalID)
	switch {
	case err == nil:
		result = metrics.ResultSuccess
		r.audit(ctx, owner, inst.Slug, externalID, false)
		return owner, nil
	case !errors.Is(err, domain.ErrNotFound):
		result = metrics.ResultError
		return nil, storeErr("sso lookup", err)
	}

	ident, created, err := r.st.Identities().GetOrCreateByHandle(ctx, handle.Unlinked(r.tag, inst.Slug, externalID))
	if err != nil {
		result = metrics.ResultError
		return nil, storeErr("sso get or create", err)
	}
	result = metrics.ResultSuccess
	r.audit(ctx, ident, inst.Slug, externalID, created)
	logger.Info("sso login", "identity", ident.ID, "institution", inst.Slug, "created", created)
	return ident, nil
}

func (r *SSOResolver) audit(ctx context.Context, ident *domain.Identity, slug, externalID string, created bool) {
	ev := events.SSOLogin{
		IdentityID:  ident.ID.String(),
		Institution: slug,
		ExternalID:  externalID,
		Created:     created,
		At:          time.Now().UTC(),
	}
	if err := r.st.Audit().Append(ctx, domain.SubjectIdentity, ident.ID, events.ActionSSOLogin, ev); err != nil {
		middleware.Logger(ctx, r.log).Warn("audit sso login", "identity", ident.ID, "error", err)
	}
}

// LinkedEmailResolver authenticates a password against every active identity
// whose primary email or verified linked email matches the login. With
// shared emails several identities may match; the first whose credential
// verifies wins.
type LinkedEmailResolver struct {
	st     *store.Store
	hasher service.Hasher
}

func NewLinkedEmailResolver(st *store.Store, hasher service.Hasher) *LinkedEmailResolver {
	return &LinkedEmailResolver{st: st, hasher: hasher}
}

func (r *LinkedEmailResolver) Name() string { return ResolverLinkedEmail }

func (r *LinkedEmailResolver) Resolve(ctx context.Context, creds any) (*domain.Identity, error) {
	c, ok := passwordCredentials(creds)
	if !ok {
		return nil, nil
	}
	return resolvePassword(ctx, r.Name(), r.hasher, c, func() ([]*domain.Identity, error) {
		return r.st.Identities().ListByLogin(ctx, c.Login, false)
	})
}

// UsernameOrLinkedEmailResolver also accepts an exact handle, but never
// returns placeholder or unlinked identities.
type UsernameOrLinkedEmailResolver struct {
	st         *store.Store
	hasher     service.Hasher
	classifier handle.Classifier
}

func NewUsernameOrLinkedEmailResolver(st *store.Store, hasher service.Hasher, classifier handle.Classifier) *UsernameOrLinkedEmailResolver {
	return &UsernameOrLinkedEmailResolver{st: st, hasher: hasher, classifier: classifier}
}

func (r *UsernameOrLinkedEmailResolver) Name() string { return ResolverUsernameOrLinkedEmail }

func (r *UsernameOrLinkedEmailResolver) Resolve(ctx context.Context, creds any) (*domain.Identity, error) {
	c, ok := passwordCredentials(creds)
	if !ok {
		return nil, nil
	}
	return resolvePassword(ctx, r.Name(), r.hasher, c, func() ([]*domain.Identity, error) {
		matched, err := r.st.Identities().ListByLogin(ctx, c.Login, true)
		if err != nil {
			return nil, err
		}
		out := matched[:0]
		for _, ident := range matched {
			switch r.classifier.Classify(ident.Handle) {
			case domain.Placeholder, domain.Unlinked:
				continue
			}
			out = append(out, ident)
		}
		return out, nil
	})
}

func passwordCredentials(creds any) (*dto.PasswordCredentials, bool) {
	switch v := creds.(type) {
	case dto.PasswordCredentials:
		return &v, true
	case *dto.PasswordCredentials:
		return v, v != nil
	}
	return nil, false
}

func resolvePassword(ctx context.Context, name string, hasher service.Hasher, c *dto.PasswordCredentials, candidates func() ([]*domain.Identity, error)) (*domain.Identity, error) {
	result := metrics.ResultFailure
	defer func() { metrics.AuthLoginsTotal.WithLabelValues(name, result).Inc() }()

	idents, err := candidates()
	if err != nil {
		result = metrics.ResultError
		return nil, storeErr("resolve "+name, err)
	}
	if len(idents) == 0 {
		// same hashing cost as a real miss
		hasher.Verify(hasher.Unusable(), c.Password)
		return nil, nil
	}
	if c.Password == "" {
		return nil, nil
	}
	for _, ident := range idents {
		if hasher.Verify(ident.Credential, c.Password) {
			result = metrics.ResultSuccess
			return ident, nil
		}
	}
	return nil, nil
}

// Chain tries resolvers in order and returns the first identity found.
type Chain []service.Resolver

func (c Chain) Name() string { return "chain" }

func (c Chain) Resolve(ctx context.Context, creds any) (*domain.Identity, error) {
	for _, r := range c {
		ident, err := r.Resolve(ctx, creds)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name(), err)
		}
		if ident != nil {
			return ident, nil
		}
	}
	return nil, nil
}
