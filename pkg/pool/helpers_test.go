package pool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/spawnpool/pkg/testutil"
)

// entity is a host object that records what the pool did to it.
type entity struct {
	Poolable[string]
	serial    int
	visible   bool
	detached  int
	destroyed int
	x, y      float64
}

func (e *entity) SetActive(active bool) { e.visible = active }
func (e *entity) Detach()               { e.detached++ }

// notPoolable is an object whose template forgot the Poolable.
type notPoolable struct{ destroyed bool }

func (*notPoolable) Lifecycle() *Poolable[string] { return nil }

func nopLogger() *zap.Logger { return zap.NewNop() }

type fixture struct {
	catalog  *TemplateSet[string]
	registry *Registry[string]
	logs     *observer.ObservedLogs
	created  int
	// onCreate runs before the pool populates a new entity.
	onCreate func(e *entity)
}

func newFixture(t *testing.T, behavior CapacityLimitBehavior, capacity int) *fixture {
	t.Helper()
	log, logs := testutil.ObservedLogger(zap.DebugLevel)
	f := &fixture{logs: logs}
	f.catalog = NewTemplateSet[string]()
	f.addTemplate(t, "thing", behavior, capacity)
	f.registry = NewRegistry[string](f.catalog, WithLogger(log))
	return f
}

func (f *fixture) addTemplate(t *testing.T, key string, behavior CapacityLimitBehavior, capacity int) {
	t.Helper()
	require.NoError(t, f.catalog.Register(Template[string]{
		Key:      key,
		Settings: &Settings{CapacityLimitBehavior: behavior, PoolCapacity: capacity},
		New: func(string) (Object[string], error) {
			f.created++
			e := &entity{serial: f.created}
			if f.onCreate != nil {
				f.onCreate(e)
			}
			return e, nil
		},
		Destroy: func(_ string, obj Object[string]) {
			obj.(*entity).destroyed++
		},
	}))
}

func (f *fixture) pool(t *testing.T) *Pool[string] {
	t.Helper()
	p, err := f.registry.GetPool("thing")
	require.NoError(t, err)
	return p
}

func (f *fixture) acquire(t *testing.T) *entity {
	t.Helper()
	obj, err := f.registry.Acquire("thing")
	require.NoError(t, err)
	require.NotNil(t, obj)
	return obj.(*entity)
}

func (f *fixture) warnings() []string {
	return testutil.Messages(f.logs, zap.WarnLevel)
}

// recorder collects lifecycle events across instances in firing order.
type recorder struct {
	events []string
}

func (r *recorder) watch(p *Poolable[string], label string) {
	for ev := Populated; ev < eventCount; ev++ {
		p.Subscribe(ev, func(*Poolable[string]) {
			r.events = append(r.events, fmt.Sprintf("%s:%s", label, ev))
		})
	}
}

// requireConsistent checks active ∪ idle = populated and active ∩ idle = ∅.
func requireConsistent(t *testing.T, p *Pool[string]) {
	t.Helper()
	seen := make(map[*Poolable[string]]string)
	for _, pb := range p.active {
		_, dup := seen[pb]
		require.False(t, dup, "instance listed twice in active")
		seen[pb] = "active"
	}
	for _, pb := range p.idle {
		where, dup := seen[pb]
		require.False(t, dup, "instance in idle is also %s", where)
		seen[pb] = "idle"
	}
	require.Len(t, seen, len(p.populated))
	for pb := range p.populated {
		_, ok := seen[pb]
		assert.True(t, ok, "populated instance is neither active nor idle")
		assert.False(t, pb.disposed)
	}
	for _, pb := range p.active {
		assert.True(t, pb.active)
	}
	for _, pb := range p.idle {
		assert.False(t, pb.active)
	}
}
