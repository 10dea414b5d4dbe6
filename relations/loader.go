package relations

import (
	"context"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/loadplane/go-entity-cache/batch"
)

// Entity is one merged load result: the base entity value plus its loaded
// relations keyed by relation name.
type Entity struct {
	ID        string
	Value     any
	Relations map[string]any
}

// Result is the outcome of LoadWithRelations. Entities preserves input id
// order, with a nil slot where no base entity exists. Skipped lists
// requested relations left unloaded because their strategy is lazy.
type Result struct {
	Entities []*Entity
	Skipped  []string
}

// Analyzer observes optimized loads for query-pattern analysis.
type Analyzer interface {
	ObserveLoad(entityType string, keyCount int, relations []string, elapsed time.Duration)
}

// EntityLoader resolves base entities and their declared relations through
// registered batch sources, in parallel.
type EntityLoader struct {
	registry *Registry
	sources  *xsync.MapOf[string, batch.Source]
	logger   logrus.FieldLogger
	analyzer Analyzer
}

// LoaderOption customizes an EntityLoader.
type LoaderOption func(*EntityLoader)

// WithAnalyzer attaches a load analyzer.
func WithAnalyzer(a Analyzer) LoaderOption {
	return func(l *EntityLoader) { l.analyzer = a }
}

// WithLogger overrides the default logger.
func WithLogger(logger logrus.FieldLogger) LoaderOption {
	return func(l *EntityLoader) { l.logger = logger }
}

// NewEntityLoader builds a loader over the given registry.
func NewEntityLoader(registry *Registry, opts ...LoaderOption) *EntityLoader {
	l := &EntityLoader{
		registry: registry,
		sources:  xsync.NewMapOf[string, batch.Source](),
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterSource makes a batch source available under its entity type. Base
// entity types and relation target types both resolve through here.
func (l *EntityLoader) RegisterSource(src batch.Source) {
	l.sources.Store(src.EntityType(), src)
}

// HasSource reports whether a batch source is registered for entityType.
func (l *EntityLoader) HasSource(entityType string) bool {
	_, ok := l.sources.Load(entityType)
	return ok
}

// LoadWithRelations loads the base entities for ids plus every requested
// relation whose strategy is batch or eager, issuing exactly one batched
// fetch for the base set and one per loaded relation, all in parallel.
// Results are merged by positional index and preserve input order; a
// missing base entity yields a nil slot without disturbing its siblings.
func (l *EntityLoader) LoadWithRelations(ctx context.Context, entityType string, ids []string, relationNames []string) (*Result, error) {
	src, ok := l.sources.Load(entityType)
	if !ok {
		return nil, fmt.Errorf("relations: no source registered for entity type %q", entityType)
	}

	type loadedRelation struct {
		mapping Mapping
		source  batch.Source
	}
	var loaded []loadedRelation
	var skipped []string
	for _, name := range relationNames {
		mapping, ok := l.registry.Lookup(entityType, name)
		if !ok {
			return nil, fmt.Errorf("relations: %q has no relation named %q", entityType, name)
		}
		if mapping.Strategy == Lazy {
			skipped = append(skipped, name)
			continue
		}
		relSrc, ok := l.sources.Load(mapping.TargetType)
		if !ok {
			return nil, fmt.Errorf("relations: no source registered for relation target %q", mapping.TargetType)
		}
		loaded = append(loaded, loadedRelation{mapping: mapping, source: relSrc})
	}

	start := time.Now()
	var base []any
	relValues := make([][]any, len(loaded))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		base, err = src.LoadKeys(gctx, ids)
		return err
	})
	for i, rel := range loaded {
		g.Go(func() error {
			var err error
			relValues[i], err = rel.source.LoadKeys(gctx, ids)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Entities: make([]*Entity, len(ids)),
		Skipped:  skipped,
	}
	for i, id := range ids {
		if base[i] == nil {
			continue
		}
		ent := &Entity{
			ID:        id,
			Value:     base[i],
			Relations: make(map[string]any, len(loaded)),
		}
		for j, rel := range loaded {
			ent.Relations[rel.mapping.Name] = relValues[j][i]
		}
		result.Entities[i] = ent
	}

	if l.analyzer != nil {
		names := make([]string, len(loaded))
		for i, rel := range loaded {
			names[i] = rel.mapping.Name
		}
		l.analyzer.ObserveLoad(entityType, len(ids), names, time.Since(start))
	}
	return result, nil
}
