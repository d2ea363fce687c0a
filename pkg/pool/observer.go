package pool

// Acquisition outcomes reported to an Observer.
const (
	OutcomeReused    = "reused"
	OutcomeCreated   = "created"
	OutcomeRotated   = "rotated"
	OutcomeRecycled  = "recycled"
	OutcomeRejected  = "rejected"
	OutcomeExhausted = "exhausted"
)

// Disposal reasons reported to an Observer.
const (
	ReasonOverflow  = "overflow"
	ReasonIdleSweep = "idle_sweep"
	ReasonExplicit  = "explicit"
	ReasonUntracked = "untracked"
)

// Observer receives pool accounting as it changes. Templates are reported
// by their fmt.Sprint form. Implementations must not call back into the
// registry.
type Observer interface {
	Acquired(template, outcome string)
	Returned(template string)
	Disposed(template, reason string)
	Counts(template string, populated, active, idle int)
}

type nopObserver struct{}

func (nopObserver) Acquired(string, string) {}
func (nopObserver) Returned(string) {}
func (nopObserver) Disposed(string, string) {}
func (nopObserver) Counts(string, int, int, int) {}
