// Package relations declares which relations an entity type has and drives
// batched parallel loading of a base entity set plus its requested
// relations in a fixed number of fetches: one for the base entities and one
// per relation, regardless of how many ids are requested.
package relations

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/puzpuzpuz/xsync/v3"
)

// Cardinality of a relation from the owner's perspective.
type Cardinality string

const (
	One  Cardinality = "one"
	Many Cardinality = "many"
)

// Strategy decides when a relation loads.
type Strategy string

const (
	// Eager relations load whenever they are requested.
	Eager Strategy = "eager"

	// Lazy relations are never loaded by LoadWithRelations; requesting one
	// reports it as skipped.
	Lazy Strategy = "lazy"

	// Batch relations load through the batched path like eager ones.
	Batch Strategy = "batch"
)

// Mapping describes one relation of an owner entity type.
type Mapping struct {
	OwnerType   string
	Name        string
	TargetType  string
	Cardinality Cardinality
	ForeignKey  string
	Strategy    Strategy
	Cacheable   bool
}

// Validate checks the mapping is complete.
func (m Mapping) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.OwnerType, validation.Required),
		validation.Field(&m.Name, validation.Required),
		validation.Field(&m.TargetType, validation.Required),
		validation.Field(&m.Cardinality, validation.Required, validation.In(One, Many)),
		validation.Field(&m.Strategy, validation.Required, validation.In(Eager, Lazy, Batch)),
	)
}

// Registry holds relation mappings per owner entity type. Safe for
// concurrent use; registering a relation name twice replaces the earlier
// mapping.
type Registry struct {
	byOwner *xsync.MapOf[string, []Mapping]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byOwner: xsync.NewMapOf[string, []Mapping]()}
}

// Register adds or replaces a relation mapping.
func (r *Registry) Register(m Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.byOwner.Compute(m.OwnerType, func(old []Mapping, _ bool) ([]Mapping, bool) {
		out := make([]Mapping, 0, len(old)+1)
		for _, existing := range old {
			if existing.Name != m.Name {
				out = append(out, existing)
			}
		}
		return append(out, m), false
	})
	return nil
}

// Mappings returns the relations declared for ownerType.
func (r *Registry) Mappings(ownerType string) []Mapping {
	if ms, ok := r.byOwner.Load(ownerType); ok {
		return append([]Mapping(nil), ms...)
	}
	return nil
}

// Lookup finds one relation by owner type and name.
func (r *Registry) Lookup(ownerType, name string) (Mapping, bool) {
	ms, ok := r.byOwner.Load(ownerType)
	if !ok {
		return Mapping{}, false
	}
	for _, m := range ms {
		if m.Name == name {
			return m, true
		}
	}
	return Mapping{}, false
}
