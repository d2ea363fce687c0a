// Package pool implements keyed object pools with capacity policies for
// objects that are expensive to create and cheap to hide, such as game
// entities spawned and despawned every frame.
//
// # Architecture
//
// A Registry maps a template key to a Pool, creating the pool the first
// time the key is used. A Catalog tells the pool the Settings of its
// template, how to create a new instance and how to release one.
//
// Core Types:
//
//   - Registry[K]: keyed set of pools, the entry point for callers
//   - Pool[K]: the populated, active and idle instances of one template
//   - Poolable[K]: lifecycle state of one instance, embedded in objects
//   - Instance[K]: weak reference to one retrieval of an instance
//   - TemplateSet[K]: map-backed Catalog
//
// # Lifecycle
//
// An instance is populated once, then alternates between active and idle
// until it is disposed:
//
//	unpopulated -> populated -> active <-> idle
//	                    \________\__________\____> disposed
//
// Listeners subscribed with Poolable.Subscribe observe the Populated,
// Retrieved, Returned and Disposed transitions. Pool bookkeeping is
// updated before the corresponding event fires, so a listener reading
// counts sees the state after the transition.
//
// # Capacity
//
// Idle instances are always reused first, most recently returned first.
// Once the active count reaches the pool capacity the CapacityLimitBehavior
// decides:
//
//	none                    create a new instance anyway
//	dispose_on_return       create anyway; destroy returns beyond capacity idle
//	retrieve_oldest_active  hand out the oldest active instance again
//	recycle_oldest_active   return the oldest active instance, then hand it out
//	reject_population       yield no instance
//	throw_exception         fail with ErrPoolExhausted
//
// Under retrieve_oldest_active the instance keeps its retrieval: no
// Retrieved event fires and existing Instance references stay active.
// Under recycle_oldest_active Returned and then Retrieved fire.
//
// # Usage
//
//	type Bullet struct {
//		pool.Poolable[string]
//		X, Y float64
//	}
//
//	catalog := pool.NewTemplateSet(pool.Template[string]{
//		Key:      "bullet",
//		Settings: &pool.Settings{CapacityLimitBehavior: pool.LimitRecycleOldestActive, PoolCapacity: 64},
//		New:      func(string) (pool.Object[string], error) { return &Bullet{}, nil },
//	})
//	registry := pool.NewRegistry[string](catalog)
//
//	obj, err := registry.Acquire("bullet", func(o pool.Object[string]) {
//		o.(*Bullet).X, o.(*Bullet).Y = 10, 20
//	})
//	if err != nil {
//		return err
//	}
//	if obj == nil {
//		return nil // rejected
//	}
//	defer obj.Lifecycle().Return()
//
// # Concurrency
//
// Registries, pools and poolables are meant to be driven from one update
// loop and are not safe for concurrent use. Listeners and observers must
// not return, acquire or destroy instances of the pool that is notifying
// them.
package pool
