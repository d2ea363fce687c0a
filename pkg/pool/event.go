package pool

import "fmt"

// Event identifies a lifecycle transition of a Poolable.
type Event int

const (
	// Populated fires once, when the instance is registered with its pool.
	Populated Event = iota
	// Retrieved fires each time the instance is handed out.
	Retrieved
	// Returned fires each time the instance goes back to the idle set.
	Returned
	// Disposed fires once, when the instance is torn down.
	Disposed

	eventCount
)

func (e Event) String() string {
	switch e {
	case Populated:
		return "populated"
	case Retrieved:
		return "retrieved"
	case Returned:
		return "returned"
	case Disposed:
		return "disposed"
	default:
		return fmt.Sprintf("Event(%d)", int(e))
	}
}

// Listener is notified synchronously of a lifecycle transition.
type Listener[K comparable] func(p *Poolable[K])

type subscription[K comparable] struct {
	id uint64
	fn Listener[K]
}

// listeners keeps per-event subscriptions in registration order.
type listeners[K comparable] struct {
	nextID uint64
	byKind [eventCount][]subscription[K]
}

func (l *listeners[K]) add(ev Event, fn Listener[K]) uint64 {
	l.nextID++
	l.byKind[ev] = append(l.byKind[ev], subscription[K]{id: l.nextID, fn: fn})
	return l.nextID
}

func (l *listeners[K]) remove(ev Event, id uint64) {
	subs := l.byKind[ev]
	for i, s := range subs {
		if s.id == id {
			l.byKind[ev] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// fire calls the listeners registered when dispatch begins. Changes made
// by a listener apply to the next dispatch.
func (l *listeners[K]) fire(ev Event, p *Poolable[K]) {
	subs := l.byKind[ev]
	if len(subs) == 0 {
		return
	}
	snapshot := make([]subscription[K], len(subs))
	copy(snapshot, subs)
	for _, s := range snapshot {
		s.fn(p)
	}
}
