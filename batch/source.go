package batch

import "context"

// Source is the type-erased face of a Loader keyed by string ids, used by
// the relationship loader to drive heterogeneous entity types through one
// code path. Slots are nil for ids with no entity.
type Source interface {
	EntityType() string
	LoadKeys(ctx context.Context, ids []string) ([]any, error)
}

type stringSource[V any] struct {
	loader *Loader[string, V]
}

// SourceOf adapts a string-keyed Loader into a Source.
func SourceOf[V any](l *Loader[string, V]) Source {
	return &stringSource[V]{loader: l}
}

func (s *stringSource[V]) EntityType() string { return s.loader.EntityType() }

func (s *stringSource[V]) LoadKeys(ctx context.Context, ids []string) ([]any, error) {
	values, err := s.loader.LoadMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(values))
	for i, v := range values {
		if v != nil {
			out[i] = v
		}
	}
	return out, nil
}

// FuncSource wraps a bare fetch function as a Source without per-key
// caching or coalescing, for relations whose data never repeats.
type FuncSource struct {
	Type  string
	Fetch func(ctx context.Context, ids []string) ([]any, error)
}

// EntityType implements Source.
func (f *FuncSource) EntityType() string { return f.Type }

// LoadKeys implements Source.
func (f *FuncSource) LoadKeys(ctx context.Context, ids []string) ([]any, error) {
	return f.Fetch(ctx, ids)
}
