package pool

import "sync/atomic"

// InvalidIdentifier is the identifier of an instance that is not active.
const InvalidIdentifier uint64 = 0

// lastIdentifier is shared by every registry in the process so that an
// identifier is never reused for two retrievals.
var lastIdentifier atomic.Uint64

// nextIdentifier returns a fresh identifier. A wrapped counter skips the
// invalid sentinel.
func nextIdentifier() uint64 {
	for {
		if id := lastIdentifier.Add(1); id != InvalidIdentifier {
			return id
		}
	}
}
