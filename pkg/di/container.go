package di

import (
	"github.com/loadplane/go-entity-cache/batch"
	"github.com/loadplane/go-entity-cache/cache"
	"github.com/loadplane/go-entity-cache/events"
	"github.com/loadplane/go-entity-cache/optimizer"
	"github.com/loadplane/go-entity-cache/relations"
)

// Container provides dependency injection for the caching and batch loading
// components. It manages singleton instances of the cache service, key
// encoder, relationship registry, entity loader, and optimization
// coordinator, and provides factory helpers for building batch loaders
// wired into all of them.
type Container struct {
	config      cache.Config
	cache       cache.Service
	keys        cache.KeyEncoder
	emitter     events.Emitter
	registry    *relations.Registry
	loader      *relations.EntityLoader
	coordinator *optimizer.Coordinator
}

// Option customizes container construction.
type Option func(*options)

type options struct {
	emitter        events.Emitter
	optimizerCfg   optimizer.Config
	cacheOpts      []cache.ServiceOption
	skipStrategies bool
}

// WithEmitter routes cache and optimizer events to e.
func WithEmitter(e events.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithOptimizerConfig overrides the default optimizer configuration.
func WithOptimizerConfig(cfg optimizer.Config) Option {
	return func(o *options) { o.optimizerCfg = cfg }
}

// WithCacheOptions appends options for the cache service, such as extra
// tiers or a custom logger.
func WithCacheOptions(opts ...cache.ServiceOption) Option {
	return func(o *options) { o.cacheOpts = append(o.cacheOpts, opts...) }
}

// WithoutDefaultStrategies skips registering the built-in caching and
// batching strategies on the coordinator.
func WithoutDefaultStrategies() Option {
	return func(o *options) { o.skipStrategies = true }
}

// NewContainer wires the full component graph from the given cache
// configuration: cache service, key encoder, relationship registry, entity
// loader, and optimization coordinator with the built-in strategies
// registered in precedence order.
func NewContainer(config cache.Config, opts ...Option) (*Container, error) {
	o := &options{
		emitter:      events.Nop{},
		optimizerCfg: optimizer.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	cacheOpts := append([]cache.ServiceOption{cache.WithEmitter(o.emitter)}, o.cacheOpts...)
	svc, err := cache.NewService(config, cacheOpts...)
	if err != nil {
		return nil, err
	}

	coordinator, err := optimizer.NewCoordinator(o.optimizerCfg, optimizer.WithEmitter(o.emitter))
	if err != nil {
		svc.Stop()
		return nil, err
	}

	keys := cache.NewDefaultKeyEncoder()
	registry := relations.NewRegistry()
	loader := relations.NewEntityLoader(registry, relations.WithAnalyzer(coordinator))

	if !o.skipStrategies {
		coordinator.RegisterStrategy(&optimizer.CachingStrategy{Cache: svc, Keys: keys, TTL: config.DefaultTTL})
		coordinator.RegisterStrategy(&optimizer.BatchingStrategy{Loader: loader})
	}

	return &Container{
		config:      config,
		cache:       svc,
		keys:        keys,
		emitter:     o.emitter,
		registry:    registry,
		loader:      loader,
		coordinator: coordinator,
	}, nil
}

// NewContainerWithDefaults creates a container using default configuration.
// This is a convenience constructor for typical use cases where custom
// configuration is not required.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(cache.DefaultConfig(), opts...)
}

// Cache returns the singleton cache service instance.
func (c *Container) Cache() cache.Service {
	return c.cache
}

// KeyEncoder returns the singleton key encoder instance.
func (c *Container) KeyEncoder() cache.KeyEncoder {
	return c.keys
}

// Registry returns the relationship registry.
func (c *Container) Registry() *relations.Registry {
	return c.registry
}

// EntityLoader returns the optimized entity loader.
func (c *Container) EntityLoader() *relations.EntityLoader {
	return c.loader
}

// Coordinator returns the query optimization coordinator.
func (c *Container) Coordinator() *optimizer.Coordinator {
	return c.coordinator
}

// Config returns a copy of the cache configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Stop shuts down the cache service and the coordinator.
func (c *Container) Stop() {
	c.cache.Stop()
	c.coordinator.Stop()
}

// NewLoader creates a batch loader wired into the container's cache,
// key encoder, and coordinator, and registers its entity type as a source
// on the entity loader.
//
// Since Go methods cannot have type parameters, this is provided as a
// package-level function. Example: NewLoader[User](container, cfg, fetchUsers)
func NewLoader[V any](container *Container, cfg batch.Config, fetch batch.FetchFunc[string, V]) (*batch.Loader[string, V], error) {
	loader, err := batch.New(cfg, fetch,
		batch.WithCache[string, V](container.cache, container.keys),
		batch.WithObserver[string, V](container.coordinator),
	)
	if err != nil {
		return nil, err
	}
	container.loader.RegisterSource(batch.SourceOf(loader))
	return loader, nil
}
