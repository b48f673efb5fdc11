package impl

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"uniauth/internal/config"
	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/events"
	"uniauth/internal/handle"
	"uniauth/internal/merge"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"
	"uniauth/internal/store"
)

type AccountServiceImpl struct {
	st         *store.Store
	hasher     service.Hasher
	emails     *EmailLinkServiceImpl
	sso        service.Resolver
	engine     *merge.Engine
	classifier handle.Classifier
	cfg        config.Config
	log        *slog.Logger
}

func NewAccountServiceImpl(st *store.Store, hasher service.Hasher, emails *EmailLinkServiceImpl, sso service.Resolver, engine *merge.Engine, cfg config.Config, logger *slog.Logger) *AccountServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountServiceImpl{
		st:         st,
		hasher:     hasher,
		emails:     emails,
		sso:        sso,
		engine:     engine,
		classifier: handle.NewClassifier(cfg.SSOTag),
		cfg:        cfg,
		log:        logger,
	}
}

// Signup gives a temporary identity, or a fresh placeholder when current is
// nil, a password and a pending email, and mails the verification token.
// The identity stays temporary until the email is verified.
func (s *AccountServiceImpl) Signup(ctx context.Context, current *domain.Identity, email, password string) (*domain.Identity, *domain.LinkedEmail, error) {
	address, err := normalizeAddress(email)
	if err != nil {
		return nil, nil, err
	}
	if password == "" {
		return nil, nil, domain.ErrEmptyPassword
	}
	if current != nil {
		switch s.classifier.Classify(current.Handle) {
		case domain.Placeholder, domain.Unlinked:
		default:
			return nil, nil, domain.ErrNotTemporary
		}
	}

	var verrs domain.ValidationErrors
	holders, err := s.st.Identities().ListByPrimaryEmail(ctx, address)
	if err != nil {
		return nil, nil, storeErr("signup", err)
	}
	if len(holders) > 0 {
		verrs.Add("email", domain.CodeEmailTaken, "A user with that email address already exists.")
	}
	if !s.cfg.AllowSharedEmails {
		verified, err := s.st.Identities().ListByVerifiedEmail(ctx, address)
		if err != nil {
			return nil, nil, storeErr("signup", err)
		}
		if len(verified) > 0 {
			verrs.Add("email", domain.CodeAlreadyLinked, "That email address has already been linked to another account.")
		}
	}
	if err := s.emails.CheckPasswordReuse(ctx, []string{address}, password); err != nil {
		var reused domain.ValidationErrors
		if !errors.As(err, &reused) {
			return nil, nil, err
		}
		verrs = append(verrs, reused...)
	}
	if err := verrs.Err(); err != nil {
		return nil, nil, err
	}

	credential, err := s.hasher.Hash(password)
	if err != nil {
		return nil, nil, err
	}

	var (
		ident  *domain.Identity
		linked *domain.LinkedEmail
	)
	err = s.st.WithTx(ctx, func(tx *store.Store) error {
		if current == nil {
			ident = &domain.Identity{IsActive: true}
			if err := tx.Identities().CreatePlaceholder(ctx, ident); err != nil {
				return err
			}
		} else {
			ident = current
		}
		if err := tx.Identities().SetCredential(ctx, ident.ID, credential); err != nil {
			return err
		}
		profile, err := tx.Profiles().GetByIdentity(ctx, ident.ID)
		if err != nil {
			return err
		}

		linked, err = tx.Emails().Find(ctx, profile.ID, address, false)
		if errors.Is(err, domain.ErrNotFound) {
			linked = &domain.LinkedEmail{ProfileID: profile.ID, Address: address}
			err = tx.Emails().Create(ctx, linked)
		}
		if err != nil {
			return err
		}
		ident, err = tx.Identities().GetByID(ctx, ident.ID)
		return err
	})
	if err != nil {
		return nil, nil, storeErr("signup", err)
	}

	if err := s.emails.sendVerification(ctx, linked); err != nil {
		return nil, nil, err
	}
	middleware.Logger(ctx, s.log).Info("signup", "identity", ident.ID, "email", linked.ID)
	return ident, linked, nil
}

// LinkToProfile merges the unlinked identity into the verified target and
// gives target the institution account the unlinked handle encodes.
func (s *AccountServiceImpl) LinkToProfile(ctx context.Context, unlinked, target *domain.Identity) (*dto.MergeResult, error) {
	if unlinked == nil || s.classifier.Classify(unlinked.Handle) != domain.Unlinked {
		return nil, domain.ErrNotTemporary
	}
	if target == nil || s.classifier.Classify(target.Handle) != domain.Standard {
		return nil, domain.ErrNotVerified
	}
	return s.link(ctx, unlinked, target)
}

// LinkFromProfile authenticates creds for the verified current identity. An
// SSO account nobody has linked yet is merged into current; an account that
// already belongs to an identity is left alone.
func (s *AccountServiceImpl) LinkFromProfile(ctx context.Context, current *domain.Identity, creds dto.SSOCredentials) (*dto.MergeResult, error) {
	if current == nil || s.classifier.Classify(current.Handle) != domain.Standard {
		return nil, domain.ErrNotVerified
	}
	resolved, err := s.sso.Resolve(ctx, creds)
	if err != nil {
		return nil, err
	}
	if resolved == nil {
		return nil, domain.ErrTicketRejected
	}
	if resolved.ID == current.ID || s.classifier.Classify(resolved.Handle) != domain.Unlinked {
		return &dto.MergeResult{Primary: current, Moved: map[string]int64{}}, nil
	}
	return s.link(ctx, resolved, current)
}

func (s *AccountServiceImpl) link(ctx context.Context, unlinked, target *domain.Identity) (*dto.MergeResult, error) {
	var res *dto.MergeResult
	err := s.st.WithTx(ctx, func(tx *store.Store) error {
		var err error
		res, err = s.engine.In(tx).Merge(ctx, target, []*domain.Identity{unlinked}, s.cfg.RecursiveMerging)
		if err != nil {
			return err
		}
		profile, err := tx.Profiles().GetByIdentity(ctx, target.ID)
		if errors.Is(err, domain.ErrNotFound) {
			profile, err = tx.Profiles().Create(ctx, target.ID)
		}
		if err != nil {
			return err
		}
		acct, err := addInstitutionAccount(ctx, tx, profile.ID, unlinked.Handle)
		if err != nil {
			return err
		}
		_, slug, _, _ := handle.SplitUnlinked(unlinked.Handle)
		return tx.Audit().Append(ctx, domain.SubjectIdentity, target.ID, events.ActionInstitutionLinked, events.InstitutionLinked{
			IdentityID:  target.ID.String(),
			Institution: slug,
			ExternalID:  acct.ExternalID,
			At:          time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, storeErr("link account", err)
	}
	middleware.Logger(ctx, s.log).Info("account linked", "identity", target.ID, "unlinked", unlinked.Handle)
	return res, nil
}

// SetPassword replaces the credential after checking the password against
// every address linked to the identity.
func (s *AccountServiceImpl) SetPassword(ctx context.Context, id domain.IdentityID, password string) error {
	if password == "" {
		return domain.ErrEmptyPassword
	}
	profile, err := s.st.Profiles().GetByIdentity(ctx, id)
	if err != nil {
		return storeErr("set password", err)
	}
	linked, err := s.st.Emails().ListByProfile(ctx, profile.ID)
	if err != nil {
		return storeErr("set password", err)
	}
	addresses := make([]string, 0, len(linked))
	for _, e := range linked {
		addresses = append(addresses, e.Address)
	}
	if err := s.emails.CheckPasswordReuse(ctx, addresses, password); err != nil {
		return err
	}

	credential, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := s.st.Identities().SetCredential(ctx, id, credential); err != nil {
		return storeErr("set password", err)
	}
	if err := s.st.Audit().Append(ctx, domain.SubjectIdentity, id, events.ActionPasswordChanged, events.PasswordChanged{
		IdentityID: id.String(),
		At:         time.Now().UTC(),
	}); err != nil {
		middleware.Logger(ctx, s.log).Warn("audit password change", "identity", id, "error", err)
	}
	return nil
}
