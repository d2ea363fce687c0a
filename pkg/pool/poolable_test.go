package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
)

func TestPoolable_ZeroValue(t *testing.T) {
	var p Poolable[string]

	assert.False(t, p.IsPopulated())
	assert.False(t, p.IsActive())
	assert.False(t, p.IsDisposed())
	assert.Equal(t, InvalidIdentifier, p.Identifier())
	assert.Same(t, &p, p.Lifecycle())
}

func TestPoolable_LifecycleEvents(t *testing.T) {
	f := newFixture(t, LimitNone, 4)
	rec := &recorder{}
	f.onCreate = func(e *entity) { rec.watch(&e.Poolable, "a") }

	a := f.acquire(t)
	require.NoError(t, a.Return())
	a2 := f.acquire(t)
	require.Same(t, a, a2)
	require.NoError(t, f.registry.Destroy(a))

	assert.Equal(t, []string{
		"a:populated",
		"a:retrieved",
		"a:returned",
		"a:retrieved",
		"a:disposed",
	}, rec.events)
}

func TestPoolable_PopulationSetsTemplate(t *testing.T) {
	f := newFixture(t, LimitNone, 1)
	a := f.acquire(t)

	assert.True(t, a.IsPopulated())
	assert.Equal(t, "thing", a.Template())
	assert.Same(t, Object[string](a), a.Object())
}

func TestPoolable_DoublePopulation(t *testing.T) {
	f := newFixture(t, LimitNone, 1)
	a := f.acquire(t)

	err := a.onPopulated("thing", a, f.registry, zap.NewNop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDoublePopulation))
	assert.True(t, errors.IsType(err, errors.ErrorTypeProtocol))
}

func TestPoolable_RetrieveAssignsFreshIdentifier(t *testing.T) {
	f := newFixture(t, LimitNone, 2)

	a := f.acquire(t)
	first := a.Identifier()
	assert.NotEqual(t, InvalidIdentifier, first)
	assert.True(t, a.IsActive())
	assert.True(t, a.visible)

	require.NoError(t, a.Return())
	assert.Equal(t, InvalidIdentifier, a.Identifier())
	assert.False(t, a.IsActive())
	assert.False(t, a.visible)
	assert.Equal(t, 1, a.detached)

	b := f.acquire(t)
	require.Same(t, a, b)
	assert.Greater(t, b.Identifier(), first)
}

func TestPoolable_IdentifiersIncreaseAcrossInstances(t *testing.T) {
	f := newFixture(t, LimitNone, 8)

	var last uint64
	for i := 0; i < 8; i++ {
		e := f.acquire(t)
		assert.Greater(t, e.Identifier(), last)
		last = e.Identifier()
	}
}

func TestPoolable_NewInstanceHiddenUntilRetrieved(t *testing.T) {
	f := newFixture(t, LimitNone, 1)
	var visibleAtPopulate *bool
	f.onCreate = func(e *entity) {
		e.visible = true
		e.Subscribe(Populated, func(*Poolable[string]) {
			v := e.visible
			visibleAtPopulate = &v
		})
	}

	a := f.acquire(t)
	require.NotNil(t, visibleAtPopulate)
	assert.False(t, *visibleAtPopulate)
	assert.True(t, a.visible)
}

func TestPoolable_ReturnWhileInactiveIsNoop(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)
	returned := 0
	a.Subscribe(Returned, func(*Poolable[string]) { returned++ })

	require.NoError(t, a.Return())
	require.NoError(t, a.Return())

	assert.Equal(t, 1, returned)
	assert.Equal(t, 1, a.detached)
	assert.Equal(t, 1, f.pool(t).IdleCount())
	assert.Equal(t, []string{"object returned while not active"}, f.warnings())
	requireConsistent(t, f.pool(t))
}

func TestPoolable_ReturnAfterDispose(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)
	require.NoError(t, f.registry.Destroy(a))

	err := a.Return()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyDisposed))
	assert.True(t, a.IsDisposed())
}

func TestPoolable_DisposeResetsState(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)

	require.NoError(t, f.registry.Destroy(a))

	assert.True(t, a.IsDisposed())
	assert.False(t, a.IsActive())
	assert.True(t, a.IsPopulated())
	assert.Equal(t, InvalidIdentifier, a.Identifier())
	assert.Equal(t, 1, a.destroyed)
	assert.Equal(t, 0, f.pool(t).PopulatedCount())
	assert.Equal(t, 0, f.pool(t).ActiveCount())
}

func TestPoolable_SubscribeOrderAndUnsubscribe(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)

	var calls []string
	a.Subscribe(Returned, func(*Poolable[string]) { calls = append(calls, "first") })
	stop := a.Subscribe(Returned, func(*Poolable[string]) { calls = append(calls, "second") })
	a.Subscribe(Returned, func(*Poolable[string]) { calls = append(calls, "third") })

	require.NoError(t, a.Return())
	assert.Equal(t, []string{"first", "second", "third"}, calls)

	stop()
	calls = nil
	f.acquire(t)
	require.NoError(t, a.Return())
	assert.Equal(t, []string{"first", "third"}, calls)
}

func TestPoolable_UnsubscribeDuringDispatch(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)

	var calls []string
	var stopSecond func()
	a.Subscribe(Returned, func(*Poolable[string]) {
		calls = append(calls, "first")
		stopSecond()
	})
	stopSecond = a.Subscribe(Returned, func(*Poolable[string]) { calls = append(calls, "second") })

	require.NoError(t, a.Return())
	// the snapshot taken before dispatch still includes the second listener
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	f.acquire(t)
	require.NoError(t, a.Return())
	assert.Equal(t, []string{"first"}, calls)
}

func TestPoolable_SubscribeIgnoresInvalidInput(t *testing.T) {
	var p Poolable[string]
	stop := p.Subscribe(Event(42), func(*Poolable[string]) {})
	stop()
	stop = p.Subscribe(Returned, nil)
	stop()
	assert.Empty(t, p.listeners.byKind[Returned])
}

func TestPoolable_ReturnedListenerSeesPostTransitionCounts(t *testing.T) {
	f := newFixture(t, LimitNone, 4)
	a := f.acquire(t)
	f.acquire(t)
	p := f.pool(t)

	var active, idle int
	var wasActive bool
	a.Subscribe(Returned, func(pb *Poolable[string]) {
		active, idle = p.ActiveCount(), p.IdleCount()
		wasActive = pb.IsActive()
	})

	require.NoError(t, a.Return())
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, idle)
	assert.False(t, wasActive)
}

func TestPoolable_RetrievedListenerSeesActiveState(t *testing.T) {
	f := newFixture(t, LimitNone, 4)
	p := f.pool(t)

	var active int
	var id uint64
	f.onCreate = func(e *entity) {
		e.Subscribe(Retrieved, func(pb *Poolable[string]) {
			active = p.ActiveCount()
			id = pb.Identifier()
		})
	}

	a := f.acquire(t)
	assert.Equal(t, 1, active)
	assert.Equal(t, a.Identifier(), id)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "populated", Populated.String())
	assert.Equal(t, "retrieved", Retrieved.String())
	assert.Equal(t, "returned", Returned.String())
	assert.Equal(t, "disposed", Disposed.String())
	assert.Equal(t, "Event(9)", Event(9).String())
}
