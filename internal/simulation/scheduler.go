package simulation

import (
	"container/heap"

	"github.com/ajitpratap0/spawnpool/pkg/pool"
)

// DelayedReturns returns instances after a number of frames. It holds weak
// Instance references, so a scheduled return of an instance that was
// recycled or destroyed in the meantime is dropped instead of returning the
// object's later retrieval.
type DelayedReturns struct {
	queue returnQueue
	seq   uint64
}

// Due is the outcome of one Advance.
type Due struct {
	Returned int
	Stale    int
	Errors   []error
}

type scheduledReturn struct {
	frame int
	seq   uint64
	ref   pool.Instance[string]
}

// Schedule arranges for ref to be returned on frame.
func (d *DelayedReturns) Schedule(frame int, ref pool.Instance[string]) {
	d.seq++
	heap.Push(&d.queue, scheduledReturn{frame: frame, seq: d.seq, ref: ref})
}

// Len returns the number of pending returns.
func (d *DelayedReturns) Len() int {
	return len(d.queue)
}

// Advance returns every instance due on or before frame, in schedule order.
func (d *DelayedReturns) Advance(frame int) Due {
	var due Due
	for len(d.queue) > 0 && d.queue[0].frame <= frame {
		next := heap.Pop(&d.queue).(scheduledReturn)
		obj, ok := next.ref.TryResolve()
		if !ok {
			due.Stale++
			continue
		}
		if err := obj.Lifecycle().Return(); err != nil {
			due.Errors = append(due.Errors, err)
			continue
		}
		due.Returned++
	}
	return due
}

// returnQueue is a min-heap ordered by frame, then by schedule order.
type returnQueue []scheduledReturn

func (q returnQueue) Len() int { return len(q) }

func (q returnQueue) Less(i, j int) bool {
	if q[i].frame != q[j].frame {
		return q[i].frame < q[j].frame
	}
	return q[i].seq < q[j].seq
}

func (q returnQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *returnQueue) Push(x any) { *q = append(*q, x.(scheduledReturn)) }

func (q *returnQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = scheduledReturn{}
	*q = old[:n-1]
	return item
}
