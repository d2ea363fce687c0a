package pool

import (
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
)

// Pool manages the instances of one template. Every populated instance is
// either active or idle. The idle set is ordered by return time and reused
// from its most recent end; the active set is ordered by retrieval time.
//
// A Pool is not safe for concurrent use.
type Pool[K comparable] struct {
	key      K
	label    string
	settings Settings
	catalog  Catalog[K]
	owner    tracker[K]
	logger   *zap.Logger
	observer Observer

	populated map[*Poolable[K]]struct{}
	active    []*Poolable[K]
	idle      []*Poolable[K]
}

// Stats is a snapshot of a pool's accounting.
type Stats struct {
	Template              string                `json:"template"`
	CapacityLimitBehavior CapacityLimitBehavior `json:"capacity_limit_behavior"`
	PoolCapacity          int                   `json:"pool_capacity"`
	Populated             int                   `json:"populated"`
	Active                int                   `json:"active"`
	Idle                  int                   `json:"idle"`
}

// NewPool creates a standalone pool for key. It fails with
// ErrInvalidTemplate when the catalog has no settings for key.
func NewPool[K comparable](key K, catalog Catalog[K], opts ...Option) (*Pool[K], error) {
	return newPool(key, catalog, nil, buildOptions(opts))
}

func newPool[K comparable](key K, catalog Catalog[K], owner tracker[K], o options) (*Pool[K], error) {
	settings, ok := catalog.Settings(key)
	if !ok {
		return nil, errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "template has no pool settings").
			WithDetail("template", key)
	}

	label := fmt.Sprint(key)
	p := &Pool[K]{
		key:       key,
		label:     label,
		settings:  settings.normalized(),
		catalog:   catalog,
		owner:     owner,
		logger:    o.logger.With(zap.String("template", label)),
		observer:  o.observer,
		populated: make(map[*Poolable[K]]struct{}),
	}
	if p.owner == nil {
		p.owner = p
	}
	if !p.settings.CapacityLimitBehavior.Valid() {
		return nil, errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "unknown capacity limit behavior").
			WithDetail("template", key).
			WithDetail("behavior", int(p.settings.CapacityLimitBehavior))
	}
	p.report()
	return p, nil
}

// Key returns the template key of the pool.
func (p *Pool[K]) Key() K {
	return p.key
}

// Settings returns the pool's own copy of its settings.
func (p *Pool[K]) Settings() Settings {
	return p.settings.Copy()
}

// PopulatedCount returns the number of live instances.
func (p *Pool[K]) PopulatedCount() int {
	return len(p.populated)
}

// ActiveCount returns the number of instances handed out.
func (p *Pool[K]) ActiveCount() int {
	return len(p.active)
}

// IdleCount returns the number of instances available for reuse.
func (p *Pool[K]) IdleCount() int {
	return len(p.idle)
}

// Active returns the active objects, oldest retrieval first.
func (p *Pool[K]) Active() []Object[K] {
	return objects(p.active)
}

// Idle returns the idle objects, oldest return first.
func (p *Pool[K]) Idle() []Object[K] {
	return objects(p.idle)
}

// Tracks reports whether obj is a live instance of this pool.
func (p *Pool[K]) Tracks(obj Object[K]) bool {
	if obj == nil || obj.Lifecycle() == nil {
		return false
	}
	_, ok := p.populated[obj.Lifecycle()]
	return ok
}

// Stats returns a snapshot of the pool's accounting.
func (p *Pool[K]) Stats() Stats {
	return Stats{
		Template:              p.label,
		CapacityLimitBehavior: p.settings.CapacityLimitBehavior,
		PoolCapacity:          p.settings.PoolCapacity,
		Populated:             len(p.populated),
		Active:                len(p.active),
		Idle:                  len(p.idle),
	}
}

// Retrieve acquires an instance, applies placements to it and runs its
// retrieve transition. A nil object with a nil error means the pool
// rejected the request.
func (p *Pool[K]) Retrieve(placements ...Placement[K]) (Object[K], error) {
	pb, retrieve, err := p.GetObject()
	if err != nil || pb == nil {
		return nil, err
	}
	for _, place := range placements {
		if place != nil {
			place(pb.object)
		}
	}
	if retrieve {
		pb.onRetrieved()
	}
	return pb.object, nil
}

// GetObject picks the instance for a request and records it as active.
// retrieve is false when the instance was already active and handed out
// again, in which case its retrieve transition must not run.
func (p *Pool[K]) GetObject() (pb *Poolable[K], retrieve bool, err error) {
	if n := len(p.idle); n > 0 {
		pb = p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		p.active = append(p.active, pb)
		p.acquired(OutcomeReused)
		return pb, true, nil
	}

	if len(p.active) >= p.settings.PoolCapacity {
		switch p.settings.CapacityLimitBehavior {
		case LimitNone, LimitDisposeOnReturn:
			// no ceiling on active instances
		case LimitRetrieveOldestActive:
			pb = p.active[0]
			copy(p.active, p.active[1:])
			p.active[len(p.active)-1] = pb
			p.acquired(OutcomeRotated)
			return pb, false, nil
		case LimitRecycleOldestActive:
			pb = p.active[0]
			if err := pb.Return(); err != nil {
				return nil, false, err
			}
			if !remove(&p.idle, pb) {
				return nil, false, errors.Wrap(ErrRecycleInterrupted, errors.ErrorTypeProtocol, "cannot recycle oldest active object").
					WithDetail("template", p.key)
			}
			p.active = append(p.active, pb)
			p.acquired(OutcomeRecycled)
			return pb, true, nil
		case LimitRejectPopulation:
			p.acquired(OutcomeRejected)
			return nil, false, nil
		case LimitThrowException:
			p.acquired(OutcomeExhausted)
			return nil, false, errors.Wrap(ErrPoolExhausted, errors.ErrorTypeCapacity, "cannot acquire object").
				WithDetail("template", p.key).
				WithDetail("capacity", p.settings.PoolCapacity)
		}
	}

	pb, err = p.populate()
	if err != nil {
		return nil, false, err
	}
	p.active = append(p.active, pb)
	p.acquired(OutcomeCreated)
	return pb, true, nil
}

// populate creates and registers a new, hidden instance.
func (p *Pool[K]) populate() (*Poolable[K], error) {
	obj, err := p.catalog.Create(p.key)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create object").
			WithDetail("template", p.key)
	}
	if obj == nil {
		return nil, errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "template created no object").
			WithDetail("template", p.key)
	}
	pb := obj.Lifecycle()
	if pb == nil {
		p.catalog.Destroy(p.key, obj)
		return nil, errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "created object is not poolable").
			WithDetail("template", p.key)
	}
	if pb.populated {
		return nil, errors.Wrap(ErrDoublePopulation, errors.ErrorTypeProtocol, "template returned a populated object").
			WithDetail("template", p.key)
	}

	if a, ok := obj.(Activator); ok {
		a.SetActive(false)
	}
	p.populated[pb] = struct{}{}
	if err := pb.onPopulated(p.key, obj, p.owner, p.logger); err != nil {
		delete(p.populated, pb)
		return nil, err
	}
	p.logger.Debug("populated object", zap.Int("populated", len(p.populated)))
	return pb, nil
}

// ReturnObject moves pb from the active to the idle set. overflow reports
// that the pool trims returns and the idle set is now above capacity, so
// pb must be destroyed.
func (p *Pool[K]) ReturnObject(pb *Poolable[K]) (overflow bool, err error) {
	if _, ok := p.populated[pb]; !ok {
		return false, errors.Wrap(ErrNotTracked, errors.ErrorTypeProtocol, "cannot return object").
			WithDetail("template", p.key)
	}
	if slices.Contains(p.idle, pb) {
		return false, errors.Wrap(ErrAlreadyIdle, errors.ErrorTypeProtocol, "cannot return object").
			WithDetail("template", p.key)
	}

	remove(&p.active, pb)
	p.idle = append(p.idle, pb)
	p.observer.Returned(p.label)
	p.report()

	// Trimming against the idle count keeps a pool running above capacity
	// from destroying and recreating on every cycle.
	return p.settings.CapacityLimitBehavior == LimitDisposeOnReturn &&
		len(p.idle) > p.settings.PoolCapacity, nil
}

// DisposeObject stops tracking pb. It is a no-op for unknown instances.
func (p *Pool[K]) DisposeObject(pb *Poolable[K]) {
	_, tracked := p.populated[pb]
	delete(p.populated, pb)
	removedActive := remove(&p.active, pb)
	removedIdle := remove(&p.idle, pb)
	if tracked || removedActive || removedIdle {
		p.report()
	}
}

// DisposeIdle destroys every idle instance.
func (p *Pool[K]) DisposeIdle() {
	queue := slices.Clone(p.idle)
	for _, pb := range queue {
		p.destroy(pb, ReasonIdleSweep)
	}
	if len(queue) > 0 {
		p.logger.Debug("disposed idle objects", zap.Int("count", len(queue)))
	}
}

// DisposeAll returns every active instance and then destroys the idle set.
func (p *Pool[K]) DisposeAll() error {
	queue := slices.Clone(p.active)

	var errs []error
	for _, pb := range queue {
		if err := pb.Return(); err != nil {
			errs = append(errs, err)
		}
	}
	p.DisposeIdle()
	return errors.Join(errs...)
}

// NotifyReturned implements tracker for standalone pools.
func (p *Pool[K]) NotifyReturned(pb *Poolable[K]) (bool, error) {
	return p.ReturnObject(pb)
}

// NotifyDisposed implements tracker for standalone pools.
func (p *Pool[K]) NotifyDisposed(pb *Poolable[K]) {
	p.DisposeObject(pb)
}

// Destroy tears down obj, which must belong to this pool.
func (p *Pool[K]) Destroy(obj Object[K]) error {
	if obj == nil || obj.Lifecycle() == nil {
		return errors.Wrap(ErrInvalidTemplate, errors.ErrorTypeConfig, "cannot destroy object without poolable")
	}
	pb := obj.Lifecycle()
	if pb.disposed {
		return nil
	}
	if _, ok := p.populated[pb]; !ok {
		return errors.Wrap(ErrNotTracked, errors.ErrorTypeProtocol, "cannot destroy object").
			WithDetail("template", p.key)
	}
	p.destroy(pb, ReasonExplicit)
	return nil
}

// destroy releases the object's resources and runs its disposed
// transition. Destroying a disposed instance is a no-op.
func (p *Pool[K]) destroy(pb *Poolable[K], reason string) {
	if pb.disposed {
		return
	}
	p.catalog.Destroy(p.key, pb.object)
	pb.onDisposed()
	p.observer.Disposed(p.label, reason)
	p.logger.Debug("disposed object", zap.String("reason", reason))
}

func (p *Pool[K]) acquired(outcome string) {
	p.observer.Acquired(p.label, outcome)
	p.report()
}

func (p *Pool[K]) report() {
	p.observer.Counts(p.label, len(p.populated), len(p.active), len(p.idle))
}

func objects[K comparable](set []*Poolable[K]) []Object[K] {
	out := make([]Object[K], len(set))
	for i, pb := range set {
		out[i] = pb.object
	}
	return out
}

// remove deletes pb from set, keeping the order of the rest.
func remove[K comparable](set *[]*Poolable[K], pb *Poolable[K]) bool {
	i := slices.Index(*set, pb)
	if i < 0 {
		return false
	}
	*set = slices.Delete(*set, i, i+1)
	return true
}
