package pool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/spawnpool/pkg/errors"
)

// fillToCapacity acquires capacity instances.
func fillToCapacity(t *testing.T, f *fixture, capacity int) []*entity {
	t.Helper()
	out := make([]*entity, capacity)
	for i := range out {
		out[i] = f.acquire(t)
	}
	return out
}

func TestPool_NoneCreatesBeyondCapacity(t *testing.T) {
	f := newFixture(t, LimitNone, 2)

	got := fillToCapacity(t, f, 3)

	p := f.pool(t)
	assert.NotSame(t, got[0], got[1])
	assert.NotSame(t, got[1], got[2])
	assert.NotSame(t, got[0], got[2])
	assert.Equal(t, 3, p.ActiveCount())
	assert.Equal(t, 0, p.IdleCount())
	assert.Equal(t, 3, p.PopulatedCount())
	requireConsistent(t, p)
}

func TestPool_RejectPopulation(t *testing.T) {
	f := newFixture(t, LimitRejectPopulation, 2)
	fillToCapacity(t, f, 2)

	obj, err := f.registry.Acquire("thing")

	require.NoError(t, err)
	assert.Nil(t, obj)
	p := f.pool(t)
	assert.Equal(t, 2, p.ActiveCount())
	assert.Equal(t, 2, p.PopulatedCount())
	requireConsistent(t, p)
}

func TestPool_ThrowException(t *testing.T) {
	f := newFixture(t, LimitThrowException, 2)
	fillToCapacity(t, f, 2)

	obj, err := f.registry.Acquire("thing")

	require.Error(t, err)
	assert.Nil(t, obj)
	assert.True(t, errors.Is(err, ErrPoolExhausted))
	assert.True(t, errors.IsType(err, errors.ErrorTypeCapacity))
	p := f.pool(t)
	assert.Equal(t, 2, p.ActiveCount())
	assert.Equal(t, 2, p.PopulatedCount())
}

func TestPool_RetrieveOldestActive(t *testing.T) {
	const capacity = 3
	f := newFixture(t, LimitRetrieveOldestActive, capacity)
	got := fillToCapacity(t, f, capacity)
	retrieved := 0
	for _, e := range got {
		e.Subscribe(Retrieved, func(*Poolable[string]) { retrieved++ })
	}
	id := got[0].Identifier()

	placed := false
	obj, err := f.registry.Acquire("thing", func(Object[string]) { placed = true })
	require.NoError(t, err)

	p := f.pool(t)
	assert.Same(t, got[0], obj)
	assert.True(t, placed)
	assert.Equal(t, []Object[string]{got[1], got[2], got[0]}, p.Active())
	assert.Equal(t, capacity, p.ActiveCount())
	assert.Equal(t, capacity, p.PopulatedCount())
	assert.Equal(t, 0, retrieved)
	assert.Equal(t, id, got[0].Identifier())
	requireConsistent(t, p)
}

func TestPool_RecycleOldestActive(t *testing.T) {
	const capacity = 2
	f := newFixture(t, LimitRecycleOldestActive, capacity)
	got := fillToCapacity(t, f, capacity)
	rec := &recorder{}
	rec.watch(&got[0].Poolable, "oldest")
	id := got[0].Identifier()

	obj, err := f.registry.Acquire("thing")
	require.NoError(t, err)

	p := f.pool(t)
	assert.Same(t, got[0], obj)
	assert.Equal(t, []string{"oldest:returned", "oldest:retrieved"}, rec.events)
	assert.Equal(t, []Object[string]{got[1], got[0]}, p.Active())
	assert.Equal(t, capacity, p.ActiveCount())
	assert.Equal(t, 0, p.IdleCount())
	assert.Equal(t, capacity, p.PopulatedCount())
	assert.NotEqual(t, id, got[0].Identifier())
	assert.Equal(t, 1, got[0].detached)
	requireConsistent(t, p)
}

func TestPool_RecycleInterruptedByListener(t *testing.T) {
	f := newFixture(t, LimitRecycleOldestActive, 1)
	a := f.acquire(t)
	a.Subscribe(Returned, func(pb *Poolable[string]) {
		_ = f.registry.Destroy(a)
	})

	_, err := f.registry.Acquire("thing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRecycleInterrupted))
	requireConsistent(t, f.pool(t))
}

func TestPool_DisposeOnReturnAcquiresLikeNone(t *testing.T) {
	f := newFixture(t, LimitDisposeOnReturn, 2)

	fillToCapacity(t, f, 3)

	p := f.pool(t)
	assert.Equal(t, 3, p.ActiveCount())
	assert.Equal(t, 3, p.PopulatedCount())
}

func TestPool_IdleReusePrecedesPolicy(t *testing.T) {
	f := newFixture(t, LimitDisposeOnReturn, 1)
	a := f.acquire(t)
	require.NoError(t, a.Return())

	p := f.pool(t)
	assert.Equal(t, []Object[string]{a}, p.Idle())
	assert.Equal(t, 1, p.PopulatedCount())

	b := f.acquire(t)
	assert.Same(t, a, b)
	assert.Equal(t, 0, p.IdleCount())
	assert.Equal(t, 1, f.created)
}

func TestPool_DisposeOnReturnTrimsExcessIdle(t *testing.T) {
	f := newFixture(t, LimitDisposeOnReturn, 1)
	rec := &recorder{}
	a := f.acquire(t)
	b := f.acquire(t)
	rec.watch(&b.Poolable, "b")
	p := f.pool(t)

	require.NoError(t, a.Return())
	assert.Equal(t, []Object[string]{a}, p.Idle())
	assert.Equal(t, 0, a.destroyed)

	require.NoError(t, b.Return())
	assert.Equal(t, []Object[string]{a}, p.Idle())
	assert.Equal(t, 1, p.PopulatedCount())
	assert.False(t, p.Tracks(b))
	assert.True(t, b.IsDisposed())
	assert.Equal(t, 1, b.destroyed)
	assert.Equal(t, []string{"b:returned", "b:disposed"}, rec.events)
	requireConsistent(t, p)
}

func TestPool_DisposeOnReturnComparesIdleNotPopulated(t *testing.T) {
	f := newFixture(t, LimitDisposeOnReturn, 2)
	got := fillToCapacity(t, f, 4)

	require.NoError(t, got[0].Return())
	require.NoError(t, got[1].Return())

	p := f.pool(t)
	// four populated is above capacity, but two idle is not
	assert.Equal(t, 4, p.PopulatedCount())
	assert.Equal(t, 2, p.IdleCount())
	assert.False(t, got[1].IsDisposed())
}

func TestPool_IdleIsLIFO(t *testing.T) {
	f := newFixture(t, LimitNone, 3)
	got := fillToCapacity(t, f, 3)
	for _, e := range got {
		require.NoError(t, e.Return())
	}

	p := f.pool(t)
	assert.Equal(t, []Object[string]{got[0], got[1], got[2]}, p.Idle())
	assert.Same(t, got[2], f.acquire(t))
	assert.Same(t, got[1], f.acquire(t))
	assert.Same(t, got[0], f.acquire(t))
	assert.Equal(t, 3, f.created)
}

func TestPool_ActiveInRetrievalOrder(t *testing.T) {
	f := newFixture(t, LimitNone, 3)
	got := fillToCapacity(t, f, 3)
	require.NoError(t, got[0].Return())
	again := f.acquire(t)

	assert.Equal(t, []Object[string]{got[1], got[2], again}, f.pool(t).Active())
}

func TestPool_CapacityClampedToOne(t *testing.T) {
	for _, capacity := range []int{0, -5} {
		t.Run(fmt.Sprint(capacity), func(t *testing.T) {
			f := newFixture(t, LimitRejectPopulation, capacity)
			f.acquire(t)

			obj, err := f.registry.Acquire("thing")
			require.NoError(t, err)
			assert.Nil(t, obj)
			assert.Equal(t, 1, f.pool(t).Settings().PoolCapacity)
		})
	}
}

func TestPool_SettingsCopiedAtCreation(t *testing.T) {
	settings := &Settings{CapacityLimitBehavior: LimitRejectPopulation, PoolCapacity: 1}
	catalog := NewTemplateSet(Template[string]{
		Key:      "thing",
		Settings: settings,
		New:      func(string) (Object[string], error) { return &entity{}, nil },
	})
	p, err := NewPool[string]("thing", catalog, WithLogger(nopLogger()))
	require.NoError(t, err)

	settings.PoolCapacity = 10
	settings.CapacityLimitBehavior = LimitNone

	assert.Equal(t, Settings{CapacityLimitBehavior: LimitRejectPopulation, PoolCapacity: 1}, p.Settings())
	_, err = p.Retrieve()
	require.NoError(t, err)
	obj, err := p.Retrieve()
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestPool_InvalidTemplateWithoutSettings(t *testing.T) {
	catalog := NewTemplateSet(Template[string]{
		Key: "bare",
		New: func(string) (Object[string], error) { return &entity{}, nil },
	})

	_, err := NewPool[string]("bare", catalog, WithLogger(nopLogger()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = NewPool[string]("missing", catalog, WithLogger(nopLogger()))
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

func TestPool_InvalidBehavior(t *testing.T) {
	catalog := NewTemplateSet(Template[string]{
		Key:      "thing",
		Settings: &Settings{CapacityLimitBehavior: CapacityLimitBehavior(99), PoolCapacity: 1},
	})
	_, err := NewPool[string]("thing", catalog, WithLogger(nopLogger()))
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

func TestPool_CreatedObjectNotPoolable(t *testing.T) {
	var discarded []*notPoolable
	catalog := NewTemplateSet(Template[string]{
		Key:      "broken",
		Settings: &Settings{PoolCapacity: 1},
		New:      func(string) (Object[string], error) { return &notPoolable{}, nil },
		Destroy: func(_ string, obj Object[string]) {
			np := obj.(*notPoolable)
			np.destroyed = true
			discarded = append(discarded, np)
		},
	})
	p, err := NewPool[string]("broken", catalog, WithLogger(nopLogger()))
	require.NoError(t, err)

	obj, err := p.Retrieve()

	require.Error(t, err)
	assert.Nil(t, obj)
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
	require.Len(t, discarded, 1)
	assert.True(t, discarded[0].destroyed)
	assert.Equal(t, 0, p.PopulatedCount())
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPool_FactoryError(t *testing.T) {
	boom := errors.New(errors.ErrorTypeInternal, "out of memory")
	catalog := NewTemplateSet(Template[string]{
		Key:      "thing",
		Settings: &Settings{PoolCapacity: 1},
		New:      func(string) (Object[string], error) { return nil, boom },
	})
	p, err := NewPool[string]("thing", catalog, WithLogger(nopLogger()))
	require.NoError(t, err)

	_, err = p.Retrieve()
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPool_FactoryReturnsPopulatedObject(t *testing.T) {
	f := newFixture(t, LimitNone, 1)
	shared := f.acquire(t)
	require.NoError(t, f.catalog.Register(Template[string]{
		Key:      "alias",
		Settings: &Settings{PoolCapacity: 1},
		New:      func(string) (Object[string], error) { return shared, nil },
	}))

	_, err := f.registry.Acquire("alias")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDoublePopulation))
	assert.Equal(t, "thing", shared.Template())
}

func TestPool_ReturnObjectValidation(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)
	p := f.pool(t)

	stranger := &entity{}
	_, err := p.ReturnObject(&stranger.Poolable)
	assert.True(t, errors.Is(err, ErrNotTracked))

	require.NoError(t, a.Return())
	_, err = p.ReturnObject(&a.Poolable)
	assert.True(t, errors.Is(err, ErrAlreadyIdle))
	assert.Equal(t, 1, p.IdleCount())
	requireConsistent(t, p)
}

func TestPool_DisposeObjectIsIdempotent(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)
	b := f.acquire(t)
	require.NoError(t, b.Return())
	p := f.pool(t)

	p.DisposeObject(&a.Poolable)
	p.DisposeObject(&a.Poolable)
	p.DisposeObject(&b.Poolable)
	p.DisposeObject(&(&entity{}).Poolable)

	assert.Equal(t, 0, p.PopulatedCount())
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 0, p.IdleCount())
}

func TestPool_DestroyTwiceIsNoop(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	a := f.acquire(t)
	disposed := 0
	a.Subscribe(Disposed, func(*Poolable[string]) { disposed++ })

	require.NoError(t, f.registry.Destroy(a))
	require.NoError(t, f.registry.Destroy(a))
	require.NoError(t, f.pool(t).Destroy(a))

	assert.Equal(t, 1, disposed)
	assert.Equal(t, 1, a.destroyed)
}

func TestPool_DestroyForeignObject(t *testing.T) {
	f := newFixture(t, LimitNone, 2)
	f.addTemplate(t, "other", LimitNone, 1)
	other, err := f.registry.Acquire("other")
	require.NoError(t, err)

	err = f.pool(t).Destroy(other)
	assert.True(t, errors.Is(err, ErrNotTracked))
	assert.False(t, other.Lifecycle().IsDisposed())

	err = f.pool(t).Destroy(&notPoolable{})
	assert.True(t, errors.Is(err, ErrInvalidTemplate))
}

func TestPool_DisposeIdle(t *testing.T) {
	f := newFixture(t, LimitNone, 4)
	got := fillToCapacity(t, f, 4)
	require.NoError(t, got[0].Return())
	require.NoError(t, got[2].Return())

	p := f.pool(t)
	p.DisposeIdle()

	assert.Equal(t, 0, p.IdleCount())
	assert.Equal(t, 2, p.ActiveCount())
	assert.Equal(t, 2, p.PopulatedCount())
	assert.Equal(t, 1, got[0].destroyed)
	assert.Equal(t, 0, got[1].destroyed)
	assert.Equal(t, 1, got[2].destroyed)
	requireConsistent(t, p)
}

func TestPool_DisposeAll(t *testing.T) {
	f := newFixture(t, LimitNone, 3)
	got := fillToCapacity(t, f, 3)
	require.NoError(t, got[1].Return())
	rec := &recorder{}
	for i, e := range got {
		rec.watch(&e.Poolable, fmt.Sprint(i))
	}

	p := f.pool(t)
	require.NoError(t, p.DisposeAll())

	assert.Equal(t, 0, p.PopulatedCount())
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 0, p.IdleCount())
	for _, e := range got {
		assert.True(t, e.IsDisposed())
		assert.Equal(t, 1, e.destroyed)
	}
	// actives are returned in retrieval order, then idle is swept oldest first
	assert.Equal(t, []string{
		"0:returned", "2:returned",
		"1:disposed", "0:disposed", "2:disposed",
	}, rec.events)
}

func TestPool_DisposeAllWithDisposeOnReturn(t *testing.T) {
	f := newFixture(t, LimitDisposeOnReturn, 1)
	got := fillToCapacity(t, f, 3)

	p := f.pool(t)
	require.NoError(t, p.DisposeAll())

	assert.Equal(t, 0, p.PopulatedCount())
	for _, e := range got {
		assert.Equal(t, 1, e.destroyed)
	}
}

func TestPool_Stats(t *testing.T) {
	f := newFixture(t, LimitRecycleOldestActive, 5)
	got := fillToCapacity(t, f, 3)
	require.NoError(t, got[0].Return())

	assert.Equal(t, Stats{
		Template:              "thing",
		CapacityLimitBehavior: LimitRecycleOldestActive,
		PoolCapacity:          5,
		Populated:             3,
		Active:                2,
		Idle:                  1,
	}, f.pool(t).Stats())
}

func TestPool_InvariantsUnderMixedWorkload(t *testing.T) {
	behaviors := []CapacityLimitBehavior{
		LimitNone,
		LimitDisposeOnReturn,
		LimitRetrieveOldestActive,
		LimitRecycleOldestActive,
		LimitRejectPopulation,
		LimitThrowException,
	}
	for _, behavior := range behaviors {
		t.Run(behavior.String(), func(t *testing.T) {
			f := newFixture(t, behavior, 3)
			p := f.pool(t)
			var held []Object[string]

			for step := 0; step < 60; step++ {
				switch {
				case step%7 == 3 && len(held) > 0:
					require.NoError(t, f.registry.Destroy(held[0]))
					held = held[1:]
				case step%3 == 2 && len(held) > 0:
					_ = held[len(held)-1].Lifecycle().Return()
					held = held[:len(held)-1]
				case step%11 == 10:
					p.DisposeIdle()
				default:
					idleBefore := p.IdleCount()
					createdBefore := f.created
					obj, err := f.registry.Acquire("thing")
					if idleBefore > 0 {
						require.NoError(t, err)
						assert.Equal(t, createdBefore, f.created, "idle reuse must not create")
					}
					if err == nil && obj != nil {
						held = append(held, obj)
					}
				}
				requireConsistent(t, p)
			}
		})
	}
}

func TestCapacityLimitBehavior_Text(t *testing.T) {
	for b := LimitNone; b <= LimitThrowException; b++ {
		text, err := b.MarshalText()
		require.NoError(t, err)

		var parsed CapacityLimitBehavior
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, b, parsed)
	}

	b, err := ParseCapacityLimitBehavior("Recycle-Oldest-Active")
	require.NoError(t, err)
	assert.Equal(t, LimitRecycleOldestActive, b)

	b, err = ParseCapacityLimitBehavior("")
	require.NoError(t, err)
	assert.Equal(t, LimitNone, b)

	_, err = ParseCapacityLimitBehavior("evict_random")
	assert.Error(t, err)

	_, err = CapacityLimitBehavior(-1).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "CapacityLimitBehavior(-1)", CapacityLimitBehavior(-1).String())
}
