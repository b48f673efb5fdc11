package impl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"uniauth/internal/config"
	"uniauth/internal/credential"
	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/handle"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/store"
)

type AdminServiceImpl struct {
	st         *store.Store
	classifier handle.Classifier
	cfg        config.Config
	log        *slog.Logger
}

func NewAdminServiceImpl(st *store.Store, cfg config.Config, logger *slog.Logger) *AdminServiceImpl {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminServiceImpl{st: st, classifier: handle.NewClassifier(cfg.SSOTag), cfg: cfg, log: logger}
}

// AddInstitution registers an SSO endpoint under the slug of name. An
// existing slug has its name and URL updated; re-adding identical values is
// rejected with domain.ErrAlreadyPresent.
func (s *AdminServiceImpl) AddInstitution(ctx context.Context, name, serverURL string) (*dto.InstitutionResult, error) {
	slug := handle.Slugify(name)
	res := &dto.InstitutionResult{Outcome: dto.InstitutionRejected, Slug: slug}
	if slug == "" {
		res.Reason = "name has no usable characters"
		return res, &domain.FormatError{Value: name, Reason: res.Reason}
	}
	if err := checkServerURL(serverURL); err != nil {
		res.Reason = "invalid server url"
		return res, err
	}

	existing, err := s.st.Institutions().GetBySlug(ctx, slug)
	switch {
	case err == nil:
		if existing.Name == name && existing.SSOServerURL == serverURL {
			res.Reason = "institution already exists"
			return res, fmt.Errorf("institution %q: %w", slug, domain.ErrAlreadyPresent)
		}
		if err := s.st.Institutions().Update(ctx, existing.ID, name, serverURL); err != nil {
			return nil, storeErr("update institution", err)
		}
		res.Outcome = dto.InstitutionUpdated
	case errors.Is(err, domain.ErrNotFound):
		inst := &domain.Institution{Name: name, Slug: slug, SSOServerURL: serverURL}
		if err := s.st.Institutions().Create(ctx, inst); err != nil {
			return nil, storeErr("create institution", err)
		}
		res.Outcome = dto.InstitutionCreated
	default:
		return nil, storeErr("add institution", err)
	}

	middleware.Logger(ctx, s.log).Info("institution saved", "slug", slug, "outcome", res.Outcome)
	return res, nil
}

func checkServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &domain.FormatError{Value: raw, Reason: "not an absolute http(s) url"}
	}
	return nil
}

// RemoveInstitution deletes the institution and its accounts and returns how
// many accounts went with it.
func (s *AdminServiceImpl) RemoveInstitution(ctx context.Context, slug string) (int64, error) {
	inst, err := s.st.Institutions().GetBySlug(ctx, slug)
	if err != nil {
		return 0, storeErr("remove institution", err)
	}
	n, err := s.st.Institutions().Delete(ctx, inst.ID)
	if err != nil {
		return 0, storeErr("remove institution", err)
	}
	middleware.Logger(ctx, s.log).Info("institution removed", "slug", slug, "accounts", n)
	return n, nil
}

// MigrateSSO converts identities created by a plain SSO backend, which are
// named after their external id and carry no usable credential, into
// unlinked identities of the institution with a profile. The whole run is
// one transaction.
func (s *AdminServiceImpl) MigrateSSO(ctx context.Context, slug string) (*dto.MigrationReport, error) {
	inst, err := s.st.Institutions().GetBySlug(ctx, slug)
	if err != nil {
		return nil, storeErr("migrate sso", err)
	}

	report := &dto.MigrationReport{}
	err = s.st.WithTx(ctx, func(tx *store.Store) error {
		legacy, err := tx.Identities().ListWithoutProfile(ctx)
		if err != nil {
			return err
		}
		for _, ident := range legacy {
			usable := ident.HasCredential() && !credential.IsUnusable(ident.Credential)
			if usable || s.classifier.Classify(ident.Handle) != domain.Standard {
				report.Skipped = append(report.Skipped, ident.Handle)
				continue
			}
			if err := tx.Identities().SetHandle(ctx, ident.ID, handle.Unlinked(s.cfg.SSOTag, inst.Slug, ident.Handle)); err != nil {
				return err
			}
			if _, err := tx.Profiles().Create(ctx, ident.ID); err != nil {
				return err
			}
			report.Migrated++
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("migrate sso", err)
	}
	middleware.Logger(ctx, s.log).Info("sso identities migrated", "institution", slug,
		"migrated", report.Migrated, "skipped", len(report.Skipped))
	return report, nil
}

// MigrateCredentials gives local identities without a profile one. A primary
// email becomes a verified linked email. Identities without a usable
// credential, or with neither handle nor email, are reported as skipped. The
// whole run is one transaction.
func (s *AdminServiceImpl) MigrateCredentials(ctx context.Context) (*dto.MigrationReport, error) {
	report := &dto.MigrationReport{}
	err := s.st.WithTx(ctx, func(tx *store.Store) error {
		legacy, err := tx.Identities().ListWithoutProfile(ctx)
		if err != nil {
			return err
		}
		for _, ident := range legacy {
			anonymous := ident.Handle == "" && ident.PrimaryEmail == ""
			if anonymous || !ident.HasCredential() || credential.IsUnusable(ident.Credential) {
				report.Skipped = append(report.Skipped, ident.Handle)
				continue
			}
			profile, err := tx.Profiles().Create(ctx, ident.ID)
			if err != nil {
				return err
			}
			if ident.PrimaryEmail != "" {
				err := tx.Emails().Create(ctx, &domain.LinkedEmail{
					ProfileID:  profile.ID,
					Address:    ident.PrimaryEmail,
					IsVerified: true,
				})
				if err != nil {
					return err
				}
			}
			report.Migrated++
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("migrate credentials", err)
	}
	middleware.Logger(ctx, s.log).Info("local identities migrated",
		"migrated", report.Migrated, "skipped", len(report.Skipped))
	return report, nil
}

// SweepPlaceholders deletes placeholder identities older than days days.
func (s *AdminServiceImpl) SweepPlaceholders(ctx context.Context, days int) (*dto.SweepResult, error) {
	if days < 0 {
		return nil, &domain.FormatError{Value: fmt.Sprint(days), Reason: "days must not be negative"}
	}
	cutoff := time.Now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := s.st.Identities().DeletePlaceholdersBefore(ctx, cutoff)
	if err != nil {
		return nil, storeErr("sweep placeholders", err)
	}
	metrics.PlaceholdersSweptTotal.Add(float64(n))
	middleware.Logger(ctx, s.log).Info("placeholders swept", "days", days, "deleted", n)
	return &dto.SweepResult{Deleted: n}, nil
}
