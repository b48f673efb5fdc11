package merge

import (
	"context"
	"fmt"

	"uniauth/internal/store"

	"github.com/google/uuid"
)

// ManyToMany is an association table between Owner kind and some other
// table that neither side owns.
type ManyToMany struct {
	Name   string
	List   func(ctx context.Context, st *store.Store, owner uuid.UUID) ([]uuid.UUID, error)
	Has    func(ctx context.Context, st *store.Store, owner, member uuid.UUID) (bool, error)
	Add    func(ctx context.Context, st *store.Store, owner, member uuid.UUID) error
	Remove func(ctx context.Context, st *store.Store, owner, member uuid.UUID) error
}

// OneToMany moves every child row from one owner to another in bulk.
type OneToMany struct {
	Name     string
	Reparent func(ctx context.Context, st *store.Store, from, to uuid.UUID) (int64, error)
}

// Singular is a reference from a node to at most one node of kind Target.
// Reverse names the relation leading back from Target, which the cycle guard
// needs.
type Singular struct {
	Name    string
	Reverse string
	Target  string

	Get    func(ctx context.Context, st *store.Store, owner uuid.UUID) (uuid.UUID, bool, error)
	Attach func(ctx context.Context, st *store.Store, related, owner uuid.UUID) error
	Delete func(ctx context.Context, st *store.Store, related uuid.UUID) error
}

// Generic rewrites loosely typed (kind tag, id) references. It applies to
// nodes of every kind.
type Generic struct {
	Name    string
	Repoint func(ctx context.Context, st *store.Store, kind string, from, to uuid.UUID) (int64, error)
}

// Kind describes one node type of the object graph.
type Kind struct {
	Name       string
	ManyToMany []ManyToMany
	OneToMany  []OneToMany
	Singular   []Singular
	Delete     func(ctx context.Context, st *store.Store, id uuid.UUID) error
}

type Registry struct {
	kinds   map[string]*Kind
	generic []Generic
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register adds k, replacing any kind registered under the same name.
func (r *Registry) Register(k *Kind) *Registry {
	r.kinds[k.Name] = k
	return r
}

func (r *Registry) RegisterGeneric(g Generic) *Registry {
	r.generic = append(r.generic, g)
	return r
}

func (r *Registry) Kind(name string) (*Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("merge: no kind %q registered", name)
	}
	return k, nil
}
