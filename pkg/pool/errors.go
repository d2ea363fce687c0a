package pool

import "github.com/ajitpratap0/spawnpool/pkg/errors"

// Sentinel errors returned by the pool. Returned errors wrap one of these,
// test them with errors.Is.
var (
	// ErrInvalidTemplate reports a template without pool settings or a
	// created object that does not carry a Poolable.
	ErrInvalidTemplate = errors.Sentinel(errors.ErrorTypeConfig, "invalid template")
	// ErrDoublePopulation reports a Poolable registered with a pool twice.
	ErrDoublePopulation = errors.Sentinel(errors.ErrorTypeProtocol, "poolable already populated")
	// ErrAlreadyDisposed reports use of a torn down instance.
	ErrAlreadyDisposed = errors.Sentinel(errors.ErrorTypeProtocol, "object already disposed")
	// ErrPoolExhausted is returned under LimitThrowException.
	ErrPoolExhausted = errors.Sentinel(errors.ErrorTypeCapacity, "pool exhausted")
	// ErrNotTracked reports an instance its pool does not know about.
	ErrNotTracked = errors.Sentinel(errors.ErrorTypeProtocol, "object not tracked by pool")
	// ErrAlreadyIdle reports a return of an instance that is already idle.
	ErrAlreadyIdle = errors.Sentinel(errors.ErrorTypeProtocol, "object already returned")
	// ErrUntracked reports an instance that was created outside the registry.
	ErrUntracked = errors.Sentinel(errors.ErrorTypeProtocol, "object not created by registry")
	// ErrRecycleInterrupted reports a recycled instance that a Returned
	// listener took out of the idle set.
	ErrRecycleInterrupted = errors.Sentinel(errors.ErrorTypeProtocol, "recycled object left idle set")
)
