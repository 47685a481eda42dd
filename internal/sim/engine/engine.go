// Package engine advances the world one tick at a time across a fixed pool of worker
// goroutines. Each tick runs an entity phase and then a block phase; the last worker to reach
// the barrier stitches the partial results into a Snapshot, publishes it, and builds the next
// tick's work from the enqueue buffers.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickcraft.ai/internal/sim/assert"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/scheduler"
	"tickcraft.ai/internal/sim/tuning"
)

// Listener receives every published Snapshot on the stitching goroutine, outside any engine
// lock. The next tick does not start until it returns.
type Listener func(*Snapshot)

type Config struct {
	Env      *catalogs.Catalogs
	Tuning   tuning.Tuning
	Logger   *zap.Logger
	Listener Listener
	// StartTick numbers the snapshot published by Start. Resumed worlds continue their count.
	StartTick int64
}

type topologyKind uint8

const (
	topoLoad topologyKind = iota
	topoUnload
	topoJoin
	topoLeave
	topoSpawn
)

type topologyEvent struct {
	kind      topologyKind
	cuboids   []*cuboid.Cuboid
	addresses []geom.CuboidAddress
	entity    *entity.Entity
	creature  *entity.Creature
	id        int32
}

type Engine struct {
	env      *catalogs.Catalogs
	tuning   tuning.Tuning
	log      *zap.Logger
	listener Listener
	first    int64
	workers  int
	barrier  *barrier
	wg       sync.WaitGroup

	// Enqueue buffers shared with producers. Never held across a phase.
	mu        sync.Mutex
	mutations []mutation.BlockMutation
	topology  []topologyEvent
	queues    map[int32]*scheduler.Queue

	// Driver monitor.
	driverMu   sync.Mutex
	driverCond *sync.Cond
	published  *Snapshot
	requested  int64
	started    bool
	stopped    bool

	// Owned by the goroutine holding the stitcher role.
	plan     *plan
	partials []partial
	delayed  delayedWork
}

func New(cfg Config) *Engine {
	cfg.Tuning.ApplyDefaults()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		env:      cfg.Env,
		tuning:   cfg.Tuning,
		log:      log.Named("engine"),
		listener: cfg.Listener,
		first:    cfg.StartTick,
		workers:  cfg.Tuning.WorkerThreads,
		queues:   map[int32]*scheduler.Queue{},
	}
	e.barrier = newBarrier(e.workers)
	e.driverCond = sync.NewCond(&e.driverMu)
	e.partials = make([]partial, e.workers)
	e.delayed.creatures = map[int32][]mutation.CreatureChange{}
	return e
}

// EnqueueMutation schedules a block mutation for the next tick.
func (e *Engine) EnqueueMutation(m mutation.BlockMutation) {
	e.mu.Lock()
	e.mutations = append(e.mutations, m)
	e.mu.Unlock()
}

func (e *Engine) CuboidsWereLoaded(cs []*cuboid.Cuboid) {
	e.mu.Lock()
	e.topology = append(e.topology, topologyEvent{kind: topoLoad, cuboids: cs})
	e.mu.Unlock()
}

func (e *Engine) CuboidsWereUnloaded(addrs []geom.CuboidAddress) {
	e.mu.Lock()
	e.topology = append(e.topology, topologyEvent{kind: topoUnload, addresses: addrs})
	e.mu.Unlock()
}

// EntityDidJoin adds a client entity at the next tick boundary. Changes may be enqueued for it
// immediately.
func (e *Engine) EntityDidJoin(en *entity.Entity) {
	e.mu.Lock()
	e.topology = append(e.topology, topologyEvent{kind: topoJoin, entity: en})
	if e.queues[en.ID] == nil {
		e.queues[en.ID] = &scheduler.Queue{}
	}
	e.mu.Unlock()
}

// EntityDidLeave removes the entity at the next tick boundary and discards its queued changes.
func (e *Engine) EntityDidLeave(id int32) {
	e.mu.Lock()
	e.topology = append(e.topology, topologyEvent{kind: topoLeave, id: id})
	delete(e.queues, id)
	e.mu.Unlock()
}

func (e *Engine) CreatureDidSpawn(c *entity.Creature) {
	e.mu.Lock()
	e.topology = append(e.topology, topologyEvent{kind: topoSpawn, creature: c})
	e.mu.Unlock()
}

// EnqueueEntityChange queues a client change at the given commit level. It returns false when
// the entity is unknown or already has the maximum number of pending changes; the caller is
// expected to disconnect the client.
func (e *Engine) EnqueueEntityChange(id int32, c mutation.EntityChange, commit int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	q := e.queues[id]
	if q == nil || q.Len() >= e.tuning.MaxPendingActions {
		return false
	}
	q.Push(scheduler.Pending{Change: c, Commit: commit})
	return true
}

// PendingCount reports the queued plus in-progress changes of one entity.
func (e *Engine) PendingCount(id int32) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if q := e.queues[id]; q != nil {
		return q.Len()
	}
	return 0
}

// Start merges everything enqueued so far into the first tick, publishes it and launches the workers.
func (e *Engine) Start() *Snapshot {
	e.driverMu.Lock()
	assert.True(!e.started, "engine started twice")
	e.started = true
	e.driverMu.Unlock()

	p := newPlan(e.first, emptySnapshot(), e)
	e.mu.Lock()
	topo := e.topology
	e.topology = nil
	e.mu.Unlock()
	p.applyTopology(topo)
	snap := p.snapshot()
	e.publish(snap)
	if e.listener != nil {
		e.listener(snap)
	}

	e.log.Info("engine started",
		zap.Int64("tick", snap.Tick),
		zap.Int("workers", e.workers),
		zap.Int64("millis_per_tick", e.tuning.MillisPerTick),
		zap.Int("entities", len(snap.Entities)),
		zap.Int("cuboids", len(snap.Cuboids)))

	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.runWorker(i)
	}
	return snap
}

// StartNextTick requests one more tick. It blocks while the previously requested tick is still
// running.
func (e *Engine) StartNextTick() {
	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	assert.True(e.started && !e.stopped, "StartNextTick on an engine that is not running")
	for e.published == nil || e.requested > e.published.Tick {
		e.driverCond.Wait()
	}
	e.requested = e.published.Tick + 1
	e.driverCond.Broadcast()
}

// WaitForPreviousTick blocks until the last requested tick is published and returns it.
func (e *Engine) WaitForPreviousTick() *Snapshot {
	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	for e.published == nil || (e.requested >= 0 && e.published.Tick < e.requested) {
		e.driverCond.Wait()
	}
	return e.published
}

func (e *Engine) RunTick() *Snapshot {
	e.StartNextTick()
	return e.WaitForPreviousTick()
}

// Latest returns the most recently published Snapshot, or nil before Start.
func (e *Engine) Latest() *Snapshot {
	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	return e.published
}

// Stats returns the statistics of the last published tick.
func (e *Engine) Stats() TickStats {
	if s := e.Latest(); s != nil {
		return s.Stats
	}
	return TickStats{}
}

// Run paces ticks at millis_per_tick until ctx is done. A tick that overruns its slot is not
// made up; the ticker drops the missed beats.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Duration(e.tuning.MillisPerTick) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			snap := e.RunTick()
			if took := time.Since(start); took > interval {
				e.log.Warn("tick overran its slot",
					zap.Int64("tick", snap.Tick),
					zap.Duration("took", took),
					zap.Duration("interval", interval))
			}
		}
	}
}

// Shutdown lets the in-flight tick finish, then stops the workers and waits for them to exit.
func (e *Engine) Shutdown() {
	e.driverMu.Lock()
	if !e.started || e.stopped {
		e.driverMu.Unlock()
		return
	}
	for e.requested > e.published.Tick {
		e.driverCond.Wait()
	}
	e.stopped = true
	e.requested = -1
	e.driverCond.Broadcast()
	e.driverMu.Unlock()

	e.wg.Wait()
	e.log.Info("engine stopped", zap.Int64("last_tick", e.Latest().Tick))
}

func (e *Engine) publish(s *Snapshot) {
	e.driverMu.Lock()
	e.published = s
	e.driverCond.Broadcast()
	e.driverMu.Unlock()
}

// awaitRequest blocks the stitcher until a tick after current is requested. -1 means stop.
func (e *Engine) awaitRequest(current int64) int64 {
	e.driverMu.Lock()
	defer e.driverMu.Unlock()
	for e.requested >= 0 && e.requested <= current {
		e.driverCond.Wait()
	}
	return e.requested
}
