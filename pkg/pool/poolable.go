package pool

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
	"github.com/ajitpratap0/spawnpool/pkg/logger"
)

// Object is a pooled instance. Lifecycle returns the state the pool keeps
// for it; a nil Poolable marks an object that cannot be pooled.
//
// Embedding Poolable in a struct makes a pointer to that struct an Object.
type Object[K comparable] interface {
	Lifecycle() *Poolable[K]
}

// Activator is implemented by objects that can be made observably present
// or absent. The pool hides an object before hand-off and on return.
type Activator interface {
	SetActive(active bool)
}

// Detacher is implemented by objects that hold a parent or placement
// relationship to clear on return.
type Detacher interface {
	Detach()
}

// tracker is the pool side of a Poolable: it owns the bookkeeping the
// Poolable reports its transitions to.
type tracker[K comparable] interface {
	NotifyReturned(p *Poolable[K]) (overflow bool, err error)
	NotifyDisposed(p *Poolable[K])
	destroy(p *Poolable[K], reason string)
}

// Poolable is the per-instance lifecycle state machine. An instance moves
// from unpopulated to populated once, then between active and idle, and
// ends disposed. The zero value is an unpopulated Poolable.
//
// Poolable is not safe for concurrent use. Listeners run synchronously and
// must not return, acquire or destroy the same instance.
type Poolable[K comparable] struct {
	template   K
	populated  bool
	active     bool
	disposed   bool
	identifier uint64

	object    Object[K]
	owner     tracker[K]
	logger    *zap.Logger
	listeners listeners[K]
}

// Lifecycle returns p, so that structs embedding Poolable satisfy Object.
func (p *Poolable[K]) Lifecycle() *Poolable[K] {
	return p
}

// Template returns the key of the template the instance was populated for.
func (p *Poolable[K]) Template() K {
	return p.template
}

// IsPopulated reports whether the instance has been registered with a pool.
func (p *Poolable[K]) IsPopulated() bool {
	return p.populated
}

// IsActive reports whether the instance is handed out.
func (p *Poolable[K]) IsActive() bool {
	return p.active
}

// IsDisposed reports whether the instance has been torn down.
func (p *Poolable[K]) IsDisposed() bool {
	return p.disposed
}

// Identifier returns the identifier of the current retrieval, or
// InvalidIdentifier when the instance is not active.
func (p *Poolable[K]) Identifier() uint64 {
	return p.identifier
}

// Object returns the object the Poolable was populated with.
func (p *Poolable[K]) Object() Object[K] {
	return p.object
}

// Subscribe registers fn for ev and returns a function that removes it.
// Listeners run in registration order.
func (p *Poolable[K]) Subscribe(ev Event, fn Listener[K]) (unsubscribe func()) {
	if ev < 0 || ev >= eventCount || fn == nil {
		return func() {}
	}
	id := p.listeners.add(ev, fn)
	return func() { p.listeners.remove(ev, id) }
}

// Return hands the instance back to its pool. Returning an instance that
// is not active logs a warning and does nothing.
func (p *Poolable[K]) Return() error {
	if p.disposed {
		return errors.Wrap(ErrAlreadyDisposed, errors.ErrorTypeProtocol, "cannot return object").
			WithDetail("template", p.template)
	}
	if !p.active {
		p.log().Warn("object returned while not active",
			zap.Any("template", p.template),
			zap.Bool("populated", p.populated))
		return nil
	}

	overflow, err := p.owner.NotifyReturned(p)
	if err != nil {
		return err
	}

	p.active = false
	p.identifier = InvalidIdentifier
	if a, ok := p.object.(Activator); ok {
		a.SetActive(false)
	}
	if d, ok := p.object.(Detacher); ok {
		d.Detach()
	}
	p.listeners.fire(Returned, p)

	if overflow {
		p.owner.destroy(p, ReasonOverflow)
	}
	return nil
}

// CreateInstanceIdentity returns a weak reference to the current
// retrieval. The reference of an inactive instance is never active.
func (p *Poolable[K]) CreateInstanceIdentity() Instance[K] {
	if p.identifier == InvalidIdentifier {
		p.log().Warn("instance identity requested for inactive object",
			zap.Any("template", p.template),
			zap.Bool("disposed", p.disposed))
	}
	return Instance[K]{poolable: p, identifier: p.identifier}
}

func (p *Poolable[K]) onPopulated(template K, object Object[K], owner tracker[K], log *zap.Logger) error {
	if p.populated {
		return errors.Wrap(ErrDoublePopulation, errors.ErrorTypeProtocol, "cannot populate object").
			WithDetail("template", template)
	}
	p.template = template
	p.object = object
	p.owner = owner
	p.logger = log
	p.populated = true
	p.listeners.fire(Populated, p)
	return nil
}

func (p *Poolable[K]) onRetrieved() {
	p.active = true
	p.identifier = nextIdentifier()
	if a, ok := p.object.(Activator); ok {
		a.SetActive(true)
	}
	p.listeners.fire(Retrieved, p)
}

// onDisposed runs once, after the object's resources have been released.
func (p *Poolable[K]) onDisposed() {
	p.disposed = true
	p.active = false
	p.identifier = InvalidIdentifier
	if p.owner != nil {
		p.owner.NotifyDisposed(p)
	}
	p.listeners.fire(Disposed, p)
}

func (p *Poolable[K]) log() *zap.Logger {
	if p.logger != nil {
		return p.logger
	}
	return logger.Get()
}
