package pool

import (
	"cmp"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
)

// Placement positions an acquired object before its retrieve transition.
type Placement[K comparable] func(obj Object[K])

// Option configures a Registry or a standalone Pool.
type Option func(*options)

type options struct {
	logger   *zap.Logger
	observer Observer
}

// WithLogger sets the logger used for lifecycle warnings and diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithObserver sets the observer that receives pool accounting.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("pool")
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	return o
}

// Registry maps template keys to pools, creating each pool the first time
// its key is used. Pools live as long as the registry.
//
// A Registry is not safe for concurrent use; it is meant to be driven from
// a single update loop.
type Registry[K comparable] struct {
	catalog Catalog[K]
	pools   map[K]*Pool[K]
	opts    options
}

// NewRegistry creates a registry over catalog.
func NewRegistry[K comparable](catalog Catalog[K], opts ...Option) *Registry[K] {
	return &Registry[K]{
		catalog: catalog,
		pools:   make(map[K]*Pool[K]),
		opts:    buildOptions(opts),
	}
}

// GetPool returns the pool of key, creating it if needed.
func (r *Registry[K]) GetPool(key K) (*Pool[K], error) {
	if p, ok := r.pools[key]; ok {
		return p, nil
	}
	p, err := newPool(key, r.catalog, r, r.opts)
	if err != nil {
		return nil, err
	}
	r.pools[key] = p
	r.opts.logger.Debug("created pool",
		zap.String("template", p.label),
		zap.Stringer("behavior", p.settings.CapacityLimitBehavior),
		zap.Int("capacity", p.settings.PoolCapacity))
	return p, nil
}

// Acquire hands out an instance of key with placements applied. A nil
// object with a nil error means the pool rejected the request.
func (r *Registry[K]) Acquire(key K, placements ...Placement[K]) (Object[K], error) {
	p, err := r.GetPool(key)
	if err != nil {
		return nil, err
	}
	return p.Retrieve(placements...)
}

// NotifyReturned records the return of pb with the pool of its template.
func (r *Registry[K]) NotifyReturned(pb *Poolable[K]) (bool, error) {
	p, ok := r.pools[pb.template]
	if !ok || !pb.populated {
		return false, errors.Wrap(ErrNotTracked, errors.ErrorTypeProtocol, "no pool for returned object").
			WithDetail("template", pb.template)
	}
	return p.ReturnObject(pb)
}

// NotifyDisposed removes pb from the pool of its template.
func (r *Registry[K]) NotifyDisposed(pb *Poolable[K]) {
	if p, ok := r.pools[pb.template]; ok && pb.populated {
		p.DisposeObject(pb)
	}
}

// Destroy tears obj down and stops tracking it. Destroying an object
// twice is a no-op.
func (r *Registry[K]) Destroy(obj Object[K]) error {
	if obj == nil || obj.Lifecycle() == nil {
		return errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "cannot destroy object without poolable")
	}
	pb := obj.Lifecycle()
	if pb.disposed {
		return nil
	}
	if !pb.populated {
		return errors.Wrap(ErrUntracked, errors.ErrorTypeProtocol, "cannot destroy object").
			WithDetail("hint", "use Ready to discard objects created outside the registry")
	}
	r.destroy(pb, ReasonExplicit)
	return nil
}

// Ready checks an instance of key that became live in the host. An
// instance the registry never populated would leak outside pool
// accounting, so it is destroyed and ErrUntracked is returned.
func (r *Registry[K]) Ready(key K, obj Object[K]) error {
	if obj == nil || obj.Lifecycle() == nil {
		return errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "ready object is not poolable").
			WithDetail("template", key)
	}
	pb := obj.Lifecycle()
	if pb.populated {
		return nil
	}
	if pb.disposed {
		return errors.Wrap(ErrAlreadyDisposed, errors.ErrorTypeProtocol, "ready object was destroyed").
			WithDetail("template", key)
	}

	label := fmt.Sprint(key)
	r.opts.logger.Error("object was not created through the registry, destroying it",
		zap.String("template", label))
	r.catalog.Destroy(key, obj)
	pb.template = key
	pb.onDisposed()
	r.opts.observer.Disposed(label, ReasonUntracked)

	return errors.Wrap(ErrUntracked, errors.ErrorTypeProtocol, "object destroyed").
		WithDetail("template", key)
}

// DisposeAllIdle destroys the idle instances of every pool.
func (r *Registry[K]) DisposeAllIdle() {
	for _, p := range r.sortedPools() {
		p.DisposeIdle()
	}
}

// DisposeAll returns and destroys every instance of every pool.
func (r *Registry[K]) DisposeAll() error {
	var errs []error
	for _, p := range r.sortedPools() {
		if err := p.DisposeAll(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns the accounting of every pool, ordered by template.
func (r *Registry[K]) Stats() []Stats {
	pools := r.sortedPools()
	out := make([]Stats, len(pools))
	for i, p := range pools {
		out[i] = p.Stats()
	}
	return out
}

// Len returns the number of pools created so far.
func (r *Registry[K]) Len() int {
	return len(r.pools)
}

func (r *Registry[K]) destroy(pb *Poolable[K], reason string) {
	if p, ok := r.pools[pb.template]; ok {
		p.destroy(pb, reason)
	}
}

func (r *Registry[K]) sortedPools() []*Pool[K] {
	pools := make([]*Pool[K], 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	slices.SortFunc(pools, func(a, b *Pool[K]) int {
		return cmp.Compare(a.label, b.label)
	})
	return pools
}
