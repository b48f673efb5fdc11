package merge

import (
	"context"
	"errors"

	"uniauth/internal/domain"
	"uniauth/internal/store"

	"github.com/google/uuid"
)

// Node kinds. They double as the audit subject tags.
const (
	KindIdentity = domain.SubjectIdentity
	KindProfile  = domain.SubjectProfile
)

// Relation names.
const (
	RelIdentityGroups  = "identity.groups"
	RelIdentityProfile = "identity.profile"
	RelProfileIdentity = "profile.identity"
	RelProfileEmails   = "profile.linked_emails"
	RelProfileAccounts = "profile.institution_accounts"
	RelAuditSubject    = "audit_logs.subject"
)

// DefaultRegistry describes the identity graph: group memberships, the
// identity/profile pair in both directions, the profile's emails and
// institution accounts, and audit rows.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(&Kind{
		Name: KindIdentity,
		ManyToMany: []ManyToMany{{
			Name: RelIdentityGroups,
			List: func(ctx context.Context, st *store.Store, owner uuid.UUID) ([]uuid.UUID, error) {
				return st.Groups().GroupIDs(ctx, owner)
			},
			Has: func(ctx context.Context, st *store.Store, owner, member uuid.UUID) (bool, error) {
				return st.Groups().IsMember(ctx, member, owner)
			},
			Add: func(ctx context.Context, st *store.Store, owner, member uuid.UUID) error {
				return st.Groups().AddMember(ctx, member, owner)
			},
			Remove: func(ctx context.Context, st *store.Store, owner, member uuid.UUID) error {
				return st.Groups().RemoveMember(ctx, member, owner)
			},
		}},
		Singular: []Singular{{
			Name:    RelIdentityProfile,
			Reverse: RelProfileIdentity,
			Target:  KindProfile,
			Get: func(ctx context.Context, st *store.Store, owner uuid.UUID) (uuid.UUID, bool, error) {
				p, err := st.Profiles().GetByIdentity(ctx, owner)
				if errors.Is(err, domain.ErrNotFound) {
					return uuid.Nil, false, nil
				}
				if err != nil {
					return uuid.Nil, false, err
				}
				return p.ID, true, nil
			},
			Attach: func(ctx context.Context, st *store.Store, related, owner uuid.UUID) error {
				return st.Profiles().Attach(ctx, related, owner)
			},
			Delete: func(ctx context.Context, st *store.Store, related uuid.UUID) error {
				return st.Profiles().Delete(ctx, related)
			},
		}},
		Delete: func(ctx context.Context, st *store.Store, id uuid.UUID) error {
			return st.Identities().Delete(ctx, id)
		},
	})

	r.Register(&Kind{
		Name: KindProfile,
		OneToMany: []OneToMany{
			{
				Name: RelProfileEmails,
				Reparent: func(ctx context.Context, st *store.Store, from, to uuid.UUID) (int64, error) {
					return st.Emails().Reparent(ctx, from, to)
				},
			},
			{
				Name: RelProfileAccounts,
				Reparent: func(ctx context.Context, st *store.Store, from, to uuid.UUID) (int64, error) {
					return st.Accounts().Reparent(ctx, from, to)
				},
			},
		},
		Singular: []Singular{{
			Name:    RelProfileIdentity,
			Reverse: RelIdentityProfile,
			Target:  KindIdentity,
			Get: func(ctx context.Context, st *store.Store, owner uuid.UUID) (uuid.UUID, bool, error) {
				p, err := st.Profiles().GetByID(ctx, owner)
				if errors.Is(err, domain.ErrNotFound) {
					return uuid.Nil, false, nil
				}
				if err != nil {
					return uuid.Nil, false, err
				}
				return p.IdentityID, true, nil
			},
			Attach: func(ctx context.Context, st *store.Store, related, owner uuid.UUID) error {
				return st.Profiles().Attach(ctx, owner, related)
			},
			Delete: func(ctx context.Context, st *store.Store, related uuid.UUID) error {
				return st.Identities().Delete(ctx, related)
			},
		}},
		Delete: func(ctx context.Context, st *store.Store, id uuid.UUID) error {
			return st.Profiles().Delete(ctx, id)
		},
	})

	r.RegisterGeneric(Generic{
		Name: RelAuditSubject,
		Repoint: func(ctx context.Context, st *store.Store, kind string, from, to uuid.UUID) (int64, error) {
			return st.Audit().Repoint(ctx, kind, from, to)
		},
	})

	return r
}
