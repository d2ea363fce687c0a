package pool

// Instance is a weak reference to one retrieval of a pooled object. It
// stops being active as soon as the object is returned or disposed, even
// if the same object is later handed out again.
type Instance[K comparable] struct {
	poolable   *Poolable[K]
	identifier uint64
}

// IsActive reports whether the referenced retrieval is still current.
func (i Instance[K]) IsActive() bool {
	return i.poolable != nil &&
		i.identifier != InvalidIdentifier &&
		i.poolable.identifier == i.identifier
}

// TryResolve returns the object while the reference is active.
func (i Instance[K]) TryResolve() (Object[K], bool) {
	if !i.IsActive() {
		return nil, false
	}
	return i.poolable.object, true
}

// Identifier returns the identifier captured when the reference was made.
func (i Instance[K]) Identifier() uint64 {
	return i.identifier
}
