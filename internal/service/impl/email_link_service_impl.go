package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"uniauth/internal/config"
	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/events"
	"uniauth/internal/handle"
	"uniauth/internal/mail"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"
	"uniauth/internal/store"
	"uniauth/internal/token"

	"github.com/google/uuid"
)

type EmailLinkServiceImpl struct {
	st         *store.Store
	hasher     service.Hasher
	tokens     service.TokenIssuer
	mailer     service.Mailer
	classifier handle.Classifier
	cfg        config.Config
	log        *slog.Logger
}

func NewEmailLinkServiceImpl(st *store.Store, hasher service.Hasher, tokens service.TokenIssuer, mailer service.Mailer, cfg config.Config, logger *slog.Logger) *EmailLinkServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailLinkServiceImpl{
		st:         st,
		hasher:     hasher,
		tokens:     tokens,
		mailer:     mailer,
		classifier: handle.NewClassifier(cfg.SSOTag),
		cfg:        cfg,
		log:        logger,
	}
}

func subjectOf(e *domain.LinkedEmail) token.Subject {
	return token.Subject{ID: e.ID, Verified: e.IsVerified, Created: e.CreatedAt}
}

// AddEmail links a pending address to the identity and mails a verification
// token. Every failed check is reported in one domain.ValidationErrors.
func (s *EmailLinkServiceImpl) AddEmail(ctx context.Context, id domain.IdentityID, address string) (*domain.LinkedEmail, error) {
	address, err := normalizeAddress(address)
	if err != nil {
		return nil, err
	}
	profile, err := s.st.Profiles().GetByIdentity(ctx, id)
	if err != nil {
		return nil, storeErr("add email", err)
	}

	var verrs domain.ValidationErrors
	linked, err := s.st.Emails().LinkedToProfile(ctx, profile.ID, address)
	if err != nil {
		return nil, storeErr("add email", err)
	}
	if linked {
		verrs.Add("email", domain.CodeAlreadyLinked, "That email address has already been linked to this account.")
	}
	if !s.cfg.AllowSharedEmails {
		taken, err := s.st.Emails().VerifiedElsewhere(ctx, address, profile.ID)
		if err != nil {
			return nil, storeErr("add email", err)
		}
		if taken {
			verrs.Add("email", domain.CodeEmailTaken, "That email address has already been linked to another account.")
		}
	}
	if s.cfg.MaxLinkedEmails > 0 {
		n, err := s.st.Emails().CountByProfile(ctx, profile.ID)
		if err != nil {
			return nil, storeErr("add email", err)
		}
		if n >= int64(s.cfg.MaxLinkedEmails) {
			verrs.Add("", domain.CodeQuotaExceeded, fmt.Sprintf("You can not link more than %d emails to your account.", s.cfg.MaxLinkedEmails))
		}
	}
	if err := verrs.Err(); err != nil {
		return nil, err
	}

	email := &domain.LinkedEmail{ProfileID: profile.ID, Address: address}
	if err := s.st.Emails().Create(ctx, email); err != nil {
		return nil, storeErr("add email", err)
	}
	s.audit(ctx, id, events.ActionEmailAdded, events.EmailAdded{
		IdentityID: id.String(),
		EmailID:    email.ID.String(),
		Address:    address,
		At:         time.Now().UTC(),
	})
	if err := s.sendVerification(ctx, email); err != nil {
		return nil, err
	}
	return email, nil
}

// ResendVerification mails a fresh token for one of the identity's pending
// emails.
func (s *EmailLinkServiceImpl) ResendVerification(ctx context.Context, id domain.IdentityID, emailID domain.EmailID) error {
	email, err := s.owned(ctx, id, emailID)
	if err != nil {
		return err
	}
	if email.IsVerified {
		return domain.ErrAlreadyVerified
	}
	return s.sendVerification(ctx, email)
}

// RemoveEmail deletes a linked email. The copy of the primary email cannot
// be removed.
func (s *EmailLinkServiceImpl) RemoveEmail(ctx context.Context, id domain.IdentityID, emailID domain.EmailID) error {
	email, err := s.owned(ctx, id, emailID)
	if err != nil {
		return err
	}
	ident, err := s.st.Identities().GetByID(ctx, id)
	if err != nil {
		return storeErr("remove email", err)
	}
	if ident.PrimaryEmail != "" && strings.EqualFold(email.Address, ident.PrimaryEmail) {
		return domain.ErrPrimaryEmail
	}
	if err := s.st.Emails().Delete(ctx, email.ID); err != nil {
		return storeErr("remove email", err)
	}
	s.audit(ctx, id, events.ActionEmailRemoved, events.EmailRemoved{
		IdentityID: id.String(),
		EmailID:    email.ID.String(),
		Address:    email.Address,
		At:         time.Now().UTC(),
	})
	return nil
}

// ChangePrimaryEmail switches the primary email to another verified address
// of the identity, unless some other identity already uses it as primary.
func (s *EmailLinkServiceImpl) ChangePrimaryEmail(ctx context.Context, id domain.IdentityID, address string) error {
	ident, err := s.st.Identities().GetByID(ctx, id)
	if err != nil {
		return storeErr("change primary email", err)
	}
	profile, err := s.st.Profiles().GetByIdentity(ctx, id)
	if err != nil {
		return storeErr("change primary email", err)
	}
	verified, err := s.st.Emails().VerifiedAddresses(ctx, profile.ID)
	if err != nil {
		return storeErr("change primary email", err)
	}
	var match string
	for _, a := range verified {
		if strings.EqualFold(a, strings.TrimSpace(address)) {
			match = a
			break
		}
	}
	if match == "" {
		return domain.ErrEmailNotVerified
	}

	others, err := s.st.Identities().ListByPrimaryEmail(ctx, match)
	if err != nil {
		return storeErr("change primary email", err)
	}
	for _, o := range others {
		if o.ID != id {
			var verrs domain.ValidationErrors
			verrs.Add("email", domain.CodeEmailTaken, "A user with that primary email address already exists. Please choose another.")
			return verrs.Err()
		}
	}

	if err := s.st.Identities().SetPrimaryEmail(ctx, id, match); err != nil {
		return storeErr("change primary email", err)
	}
	s.audit(ctx, id, events.ActionPrimaryChanged, events.PrimaryEmailChanged{
		IdentityID: id.String(),
		From:       ident.PrimaryEmail,
		To:         match,
		At:         time.Now().UTC(),
	})
	return nil
}

// IssueToken mints a verification token for the email's current state.
func (s *EmailLinkServiceImpl) IssueToken(email *domain.LinkedEmail) (string, error) {
	return s.tokens.Issue(subjectOf(email))
}

// Verify checks tok against the email and, on success, marks it verified.
// A temporary owner may not take an address another identity holds as
// primary. A placeholder or unlinked owner becomes a standard identity named
// after the address; an unlinked owner also gets the institution account its
// handle encodes. Without shared emails every other pending row for the address is
// dropped. It all happens in one transaction.
func (s *EmailLinkServiceImpl) Verify(ctx context.Context, emailID domain.EmailID, tok string) (*dto.VerificationResult, error) {
	result := metrics.ResultSuccess
	defer func() { metrics.EmailVerificationsTotal.WithLabelValues(result).Inc() }()

	res := &dto.VerificationResult{}
	err := s.st.WithTx(ctx, func(tx *store.Store) error {
		email, err := tx.Emails().GetByID(ctx, emailID)
		if err != nil {
			return err
		}
		profile, err := tx.Profiles().GetByID(ctx, email.ProfileID)
		if err != nil {
			return err
		}
		owner, err := tx.Identities().GetByID(ctx, profile.IdentityID)
		if err != nil {
			return err
		}
		class := s.classifier.Classify(owner.Handle)
		rename := class == domain.Placeholder || class == domain.Unlinked

		if handle.IsTemporary(s.classifier, owner.Handle, s.cfg.AllowStandaloneAccounts) {
			holders, err := tx.Identities().ListByPrimaryEmail(ctx, email.Address)
			if err != nil {
				return err
			}
			for _, h := range holders {
				if h.ID != owner.ID {
					var verrs domain.ValidationErrors
					verrs.Add("email", domain.CodeEmailTaken, "A user with that primary email address already exists.")
					return verrs.Err()
				}
			}
		}

		if !s.tokens.Check(subjectOf(email), tok) {
			return domain.ErrInvalidToken
		}
		if !s.cfg.AllowSharedEmails {
			taken, err := tx.Emails().VerifiedElsewhere(ctx, email.Address, profile.ID)
			if err != nil {
				return err
			}
			if taken {
				var verrs domain.ValidationErrors
				verrs.Add("email", domain.CodeEmailTaken, "That email address has already been linked to another account.")
				return verrs.Err()
			}
		}

		flipped, err := tx.Emails().MarkVerified(ctx, email.ID)
		if err != nil {
			return err
		}
		if !flipped {
			return domain.ErrInvalidToken
		}
		email.IsVerified = true
		res.Email = email

		ev := events.EmailVerified{
			IdentityID: owner.ID.String(),
			EmailID:    email.ID.String(),
			Address:    email.Address,
			At:         time.Now().UTC(),
		}
		if rename {
			res.Renamed = true
			res.PreviousHandle = owner.Handle
			if err := tx.Identities().SetPrimaryEmail(ctx, owner.ID, email.Address); err != nil {
				return err
			}
			newHandle, err := tx.Identities().Rename(ctx, owner.ID, email.Address)
			if err != nil {
				return err
			}
			ev.PreviousHandle, ev.NewHandle = owner.Handle, newHandle

			if class == domain.Unlinked {
				acct, err := addInstitutionAccount(ctx, tx, profile.ID, owner.Handle)
				if err != nil {
					return err
				}
				res.Account = acct
			}
		}

		if !s.cfg.AllowSharedEmails {
			n, err := tx.Emails().DeletePending(ctx, email.Address)
			if err != nil {
				return err
			}
			res.PendingDeleted = n
		}

		if err := tx.Audit().Append(ctx, domain.SubjectIdentity, owner.ID, events.ActionEmailVerified, ev); err != nil {
			return err
		}
		res.Identity, err = tx.Identities().GetByID(ctx, owner.ID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken), errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrNotFound):
			result = metrics.ResultInvalid
		default:
			result = metrics.ResultError
		}
		return nil, storeErr("verify email", err)
	}

	middleware.Logger(ctx, s.log).Info("email verified",
		"identity", res.Identity.ID, "renamed", res.Renamed, "pending_deleted", res.PendingDeleted)
	return res, nil
}

// CheckPasswordReuse rejects password when any active identity holding one
// of addresses as a verified email already uses it.
func (s *EmailLinkServiceImpl) CheckPasswordReuse(ctx context.Context, addresses []string, password string) error {
	seen := make(map[uuid.UUID]bool)
	for _, a := range addresses {
		idents, err := s.st.Identities().ListByVerifiedEmail(ctx, a)
		if err != nil {
			return storeErr("check password reuse", err)
		}
		for _, ident := range idents {
			if seen[ident.ID] {
				continue
			}
			seen[ident.ID] = true
			if ident.HasCredential() && s.hasher.Verify(ident.Credential, password) {
				var verrs domain.ValidationErrors
				verrs.Add("password", domain.CodePasswordReused, "Please choose a different password.")
				return verrs.Err()
			}
		}
	}
	return nil
}

func (s *EmailLinkServiceImpl) owned(ctx context.Context, id domain.IdentityID, emailID domain.EmailID) (*domain.LinkedEmail, error) {
	email, err := s.st.Emails().GetByID(ctx, emailID)
	if err != nil {
		return nil, storeErr("linked email", err)
	}
	profile, err := s.st.Profiles().GetByID(ctx, email.ProfileID)
	if err != nil {
		return nil, storeErr("linked email", err)
	}
	if profile.IdentityID != id {
		return nil, domain.ErrNotOwner
	}
	return email, nil
}

// sendVerification mails a token for email. Delivery failures are logged and
// swallowed.
func (s *EmailLinkServiceImpl) sendVerification(ctx context.Context, email *domain.LinkedEmail) error {
	tok, err := s.IssueToken(email)
	if err != nil {
		return fmt.Errorf("issue verification token: %w", err)
	}
	body := mail.VerificationBody(s.cfg.VerifyURL, email.ID.String(), tok)
	if err := s.mailer.Send(ctx, email.Address, mail.VerificationSubject, body, s.cfg.FromEmail); err != nil {
		middleware.Logger(ctx, s.log).Warn("send verification mail", "email", email.ID, "error", err)
	}
	return nil
}

func (s *EmailLinkServiceImpl) audit(ctx context.Context, id domain.IdentityID, action string, ev any) {
	if err := s.st.Audit().Append(ctx, domain.SubjectIdentity, id, action, ev); err != nil {
		middleware.Logger(ctx, s.log).Warn("audit", "action", action, "identity", id, "error", err)
	}
}

// addInstitutionAccount creates the account an unlinked handle describes,
// under profileID.
func addInstitutionAccount(ctx context.Context, tx *store.Store, profileID domain.ProfileID, unlinked string) (*domain.InstitutionAccount, error) {
	_, slug, externalID, err := handle.SplitUnlinked(unlinked)
	if err != nil {
		return nil, err
	}
	inst, err := tx.Institutions().GetBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("institution %q: %w", slug, err)
	}
	acct := &domain.InstitutionAccount{ProfileID: profileID, InstitutionID: inst.ID, ExternalID: externalID}
	if err := tx.Accounts().Create(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
