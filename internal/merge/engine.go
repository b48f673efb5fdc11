// Package merge fuses alias identities into a primary one, migrating every
// related record described by a Registry and deleting the aliases.
package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"uniauth/internal/domain"
	"uniauth/internal/dto"
	"uniauth/internal/events"
	"uniauth/internal/observability/metrics"
	"uniauth/internal/observability/middleware"
	"uniauth/internal/store"

	"github.com/google/uuid"
)

type Engine struct {
	st  *store.Store
	reg *Registry
	log *slog.Logger
}

func NewEngine(st *store.Store, reg *Registry, logger *slog.Logger) *Engine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{st: st, reg: reg, log: logger}
}

// In returns a copy of e bound to st, typically a transaction store, so the
// merge joins the caller's transaction as a savepoint.
func (e *Engine) In(st *store.Store) *Engine {
	cp := *e
	cp.st = st
	return &cp
}

// Merge moves everything the aliases own or reference onto primary and
// deletes the aliases, all in one transaction. Aliases are processed in the
// given order; duplicates are merged once. Primary's own columns are never
// written.
//
// When both sides hold a singular relation (the identity's profile), the
// alias's object is merged into primary's when recursive is set and deleted
// otherwise.
//
// A missing primary or alias is returned as domain.ErrNotFound; every other
// failure rolls the whole merge back and is returned as *domain.StoreError.
func (e *Engine) Merge(ctx context.Context, primary *domain.Identity, aliases []*domain.Identity, recursive bool) (*dto.MergeResult, error) {
	result := metrics.ResultSuccess
	defer func() { metrics.MergesTotal.WithLabelValues(result).Inc() }()

	if primary == nil {
		result = metrics.ResultInvalid
		return nil, fmt.Errorf("merge: nil primary: %w", domain.ErrNotFound)
	}
	ids := make([]uuid.UUID, 0, len(aliases))
	for _, a := range aliases {
		if a == nil || slices.Contains(ids, a.ID) {
			continue
		}
		if a.ID == primary.ID {
			result = metrics.ResultInvalid
			return nil, domain.ErrMergeSelf
		}
		ids = append(ids, a.ID)
	}

	res := &dto.MergeResult{Moved: make(map[string]int64)}
	err := e.st.WithTx(ctx, func(tx *store.Store) error {
		if _, err := tx.Identities().GetByID(ctx, primary.ID); err != nil {
			return fmt.Errorf("primary %s: %w", primary.ID, err)
		}
		for _, id := range ids {
			if _, err := tx.Identities().GetByID(ctx, id); err != nil {
				return fmt.Errorf("alias %s: %w", id, err)
			}
			// a fresh trace per alias; nothing is shared across calls
			if err := e.mergeNode(ctx, tx, KindIdentity, primary.ID, id, recursive, nil, res); err != nil {
				return err
			}
			res.Deleted = append(res.Deleted, id)
		}

		aliasIDs := make([]string, len(ids))
		for i, id := range ids {
			aliasIDs[i] = id.String()
		}
		ev := events.IdentitiesMerged{
			PrimaryID: primary.ID.String(),
			AliasIDs:  aliasIDs,
			Recursive: recursive,
			At:        time.Now().UTC(),
		}
		if err := tx.Audit().Append(ctx, domain.SubjectIdentity, primary.ID, events.ActionIdentitiesMerged, ev); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		fresh, err := tx.Identities().GetByID(ctx, primary.ID)
		if err != nil {
			return err
		}
		res.Primary = fresh
		return nil
	})
	if err != nil {
		result = metrics.ResultError
		middleware.Logger(ctx, e.log).Error("merge failed",
			"primary", primary.ID, "aliases", len(ids), "recursive", recursive, "error", err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		var se *domain.StoreError
		if errors.As(err, &se) {
			return nil, err
		}
		return nil, &domain.StoreError{Op: "merge", Err: err}
	}

	middleware.Logger(ctx, e.log).Info("identities merged",
		"primary", primary.ID, "deleted", len(res.Deleted), "recursive", recursive)
	return res, nil
}

// mergeNode fuses alias into primary, both of kind kind. trace holds the
// singular relations already followed on the way down, each with its
// reverse, so a cyclic schema is not walked back.
func (e *Engine) mergeNode(ctx context.Context, tx *store.Store, kind string, primary, alias uuid.UUID, recursive bool, trace []string, res *dto.MergeResult) error {
	k, err := e.reg.Kind(kind)
	if err != nil {
		return err
	}

	for _, rel := range k.ManyToMany {
		members, err := rel.List(ctx, tx, alias)
		if err != nil {
			return fmt.Errorf("%s: list: %w", rel.Name, err)
		}
		for _, m := range members {
			if err := rel.Remove(ctx, tx, alias, m); err != nil {
				return fmt.Errorf("%s: remove: %w", rel.Name, err)
			}
			has, err := rel.Has(ctx, tx, primary, m)
			if err != nil {
				return fmt.Errorf("%s: has: %w", rel.Name, err)
			}
			if has {
				continue
			}
			if err := rel.Add(ctx, tx, primary, m); err != nil {
				return fmt.Errorf("%s: add: %w", rel.Name, err)
			}
			res.Moved[rel.Name]++
		}
	}

	for _, rel := range k.OneToMany {
		n, err := rel.Reparent(ctx, tx, alias, primary)
		if err != nil {
			return fmt.Errorf("%s: reparent: %w", rel.Name, err)
		}
		res.Moved[rel.Name] += n
	}

	for _, rel := range k.Singular {
		related, ok, err := rel.Get(ctx, tx, alias)
		if err != nil {
			return fmt.Errorf("%s: get: %w", rel.Name, err)
		}
		if !ok {
			continue
		}
		own, ok, err := rel.Get(ctx, tx, primary)
		if err != nil {
			return fmt.Errorf("%s: get: %w", rel.Name, err)
		}
		switch {
		case !ok:
			if err := rel.Attach(ctx, tx, related, primary); err != nil {
				return fmt.Errorf("%s: attach: %w", rel.Name, err)
			}
			res.Moved[rel.Name]++
		case recursive:
			if slices.Contains(trace, rel.Name) {
				continue
			}
			next := append(slices.Clone(trace), rel.Name, rel.Reverse)
			if err := e.mergeNode(ctx, tx, rel.Target, own, related, true, next, res); err != nil {
				return err
			}
		default:
			if err := rel.Delete(ctx, tx, related); err != nil {
				return fmt.Errorf("%s: delete: %w", rel.Name, err)
			}
			res.Nodes = append(res.Nodes, dto.DeletedNode{Kind: rel.Target, ID: related})
		}
	}

	for _, g := range e.reg.generic {
		n, err := g.Repoint(ctx, tx, kind, alias, primary)
		if err != nil {
			return fmt.Errorf("%s: repoint: %w", g.Name, err)
		}
		res.Moved[g.Name] += n
	}

	if err := k.Delete(ctx, tx, alias); err != nil {
		return fmt.Errorf("%s: delete: %w", kind, err)
	}
	res.Nodes = append(res.Nodes, dto.DeletedNode{Kind: kind, ID: alias})
	return nil
}
