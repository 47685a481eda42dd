package engine

import (
	"time"

	"go.uber.org/zap"

	"tickcraft.ai/internal/sim/assert"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/process"
)

// plan is one tick's materials and work. The stitcher builds it; workers only read it, except
// that each worker writes its own partial and the mid-tick stitcher appends same-tick block
// mutations to the per-worker cuboid work.
type plan struct {
	tick      int64
	ctx       mutation.Context
	entities  map[int32]*entity.Entity
	creatures map[int32]*entity.Creature
	cuboids   map[geom.CuboidAddress]*cuboid.Cuboid
	commits   map[int32]int64
	work      []workerPlan
	dropped   int

	started    time.Time
	entityDone time.Time
}

type workerPlan struct {
	entities  map[int32]process.EntityWork
	creatures map[int32][]mutation.CreatureChange
	cuboids   map[geom.CuboidAddress][]mutation.BlockMutation
}

type partial struct {
	entities  process.EntityResult
	creatures process.CreatureResult
	cuboids   process.CuboidResult
}

type dueMutation struct {
	due int64
	m   mutation.BlockMutation
}

type dueChange struct {
	due    int64
	target int32
	c      mutation.EntityChange
}

// delayedWork holds exports waiting for their tick, in the order they were exported.
type delayedWork struct {
	mutations []dueMutation
	changes   []dueChange
	creatures map[int32][]mutation.CreatureChange
}

func newPlan(tick int64, prev *Snapshot, e *Engine) *plan {
	p := &plan{
		tick:      tick,
		entities:  clone(prev.Entities),
		creatures: clone(prev.Creatures),
		cuboids:   clone(prev.Cuboids),
		commits:   clone(prev.CommitLevels),
		work:      make([]workerPlan, e.workers),
	}
	for i := range p.work {
		p.work[i] = workerPlan{
			entities:  map[int32]process.EntityWork{},
			creatures: map[int32][]mutation.CreatureChange{},
			cuboids:   map[geom.CuboidAddress][]mutation.BlockMutation{},
		}
	}
	p.ctx = mutation.Context{
		Tick:   tick,
		Env:    e.env,
		Tuning: e.tuning,
		LookupBlock: func(l geom.AbsoluteLocation) (uint16, bool) {
			c, ok := p.cuboids[l.Cuboid()]
			if !ok {
				return 0, false
			}
			return c.Block(l.Block()), true
		},
		LookupCreature: func(id int32) (*entity.Creature, bool) {
			c, ok := p.creatures[id]
			return c, ok
		},
	}
	return p
}

// applyTopology merges loads, joins, spawns and their removals in arrival order.
func (p *plan) applyTopology(events []topologyEvent) {
	for _, ev := range events {
		switch ev.kind {
		case topoLoad:
			for _, c := range ev.cuboids {
				_, dup := p.cuboids[c.Address()]
				assert.True(!dup, "cuboid %s loaded twice", c.Address())
				p.cuboids[c.Address()] = c
			}
		case topoUnload:
			for _, a := range ev.addresses {
				_, ok := p.cuboids[a]
				assert.True(ok, "unload of unknown cuboid %s", a)
				delete(p.cuboids, a)
			}
		case topoJoin:
			_, dup := p.entities[ev.entity.ID]
			assert.True(!dup, "entity %d joined twice", ev.entity.ID)
			p.entities[ev.entity.ID] = ev.entity
			p.commits[ev.entity.ID] = 0
		case topoLeave:
			_, ok := p.entities[ev.id]
			assert.True(ok, "leave of unknown entity %d", ev.id)
			delete(p.entities, ev.id)
			delete(p.commits, ev.id)
		case topoSpawn:
			_, dup := p.creatures[ev.creature.ID]
			assert.True(!dup, "creature %d spawned twice", ev.creature.ID)
			assert.True(ev.creature.ID < 0, "creature id %d must be negative", ev.creature.ID)
			p.creatures[ev.creature.ID] = ev.creature
		}
	}
}

func (p *plan) addMutation(m mutation.BlockMutation, workers int) {
	a := m.Location().Cuboid()
	if _, ok := p.cuboids[a]; !ok {
		p.dropped++
		return
	}
	w := &p.work[cuboidOwner(a, workers)]
	w.cuboids[a] = append(w.cuboids[a], m)
}

// snapshot wraps the plan's materials without running any work. Used for tick 0.
func (p *plan) snapshot() *Snapshot {
	s := emptySnapshot()
	s.Tick = p.tick
	s.Entities, s.Creatures, s.Cuboids, s.CommitLevels = p.entities, p.creatures, p.cuboids, p.commits
	s.Stats = TickStats{Tick: p.tick, Entities: len(p.entities), Creatures: len(p.creatures), Cuboids: len(p.cuboids)}
	return s
}

// stitch runs on the final arrival at the end-of-tick barrier.
func (e *Engine) stitch() {
	var snap *Snapshot
	if e.plan == nil {
		snap = e.Latest()
	} else {
		snap = e.mergeResults(e.plan)
		e.publish(snap)
		if e.listener != nil {
			e.listener(snap)
		}
	}

	next := e.awaitRequest(snap.Tick)
	if next < 0 {
		e.plan = &plan{tick: -1}
		return
	}
	e.plan = e.buildPlan(snap, next)
}

// gatherSameTick runs on the final arrival at the mid-tick barrier. It routes block mutations
// exported by the entity phase with no delay into this tick's block phase, in ascending order
// of the exporting entity so the result does not depend on the worker count.
func (e *Engine) gatherSameTick(p *plan) {
	p.entityDone = time.Now()
	byEntity := map[int32]mutation.Exports{}
	for i := range e.partials {
		for id, x := range e.partials[i].entities.Exports {
			byEntity[id] = x
		}
	}
	mpt := e.tuning.MillisPerTick
	for _, id := range process.SortedIDs(byEntity) {
		for _, sm := range byEntity[id].Mutations {
			if mutation.TicksUntilDue(sm.DelayMillis, mpt, 0) == 0 {
				p.addMutation(sm.Mutation, e.workers)
			}
		}
	}
}

// buildPlan drains the enqueue buffers into the materials of prev and schedules tick.
func (e *Engine) buildPlan(prev *Snapshot, tick int64) *plan {
	p := newPlan(tick, prev, e)
	mpt := e.tuning.MillisPerTick

	e.mu.Lock()
	topo, fresh := e.topology, e.mutations
	e.topology, e.mutations = nil, nil
	p.applyTopology(topo)
	for _, id := range process.SortedIDs(p.entities) {
		q := e.queues[id]
		if q == nil || q.Len() == 0 {
			continue
		}
		r := q.Schedule(mpt, p.commits[id])
		p.commits[id] = r.Commit
		if len(r.Run) == 0 {
			continue
		}
		w := &p.work[entityOwner(id, e.workers)]
		ew := w.entities[id]
		for _, pend := range r.Run {
			ew.Client = append(ew.Client, pend.Change)
		}
		w.entities[id] = ew
	}
	e.mu.Unlock()

	// Server-origin changes first in each entity's work, in export order.
	keep := e.delayed.changes[:0]
	for _, d := range e.delayed.changes {
		if d.due > tick {
			keep = append(keep, d)
			continue
		}
		if _, ok := p.entities[d.target]; !ok {
			continue
		}
		w := &p.work[entityOwner(d.target, e.workers)]
		ew := w.entities[d.target]
		ew.Server = append(ew.Server, d.c)
		w.entities[d.target] = ew
	}
	e.delayed.changes = keep

	for id, list := range e.delayed.creatures {
		if _, ok := p.creatures[id]; ok {
			p.work[entityOwner(id, e.workers)].creatures[id] = list
		}
	}
	e.delayed.creatures = map[int32][]mutation.CreatureChange{}

	keepM := e.delayed.mutations[:0]
	for _, d := range e.delayed.mutations {
		if d.due > tick {
			keepM = append(keepM, d)
			continue
		}
		p.addMutation(d.m, e.workers)
	}
	e.delayed.mutations = keepM
	for _, m := range fresh {
		p.addMutation(m, e.workers)
	}

	p.started = time.Now()
	return p
}

// mergeResults folds the workers' partials into the tick's Snapshot and files every export
// under the tick it is due.
func (e *Engine) mergeResults(p *plan) *Snapshot {
	done := time.Now()
	s := emptySnapshot()
	s.Tick = p.tick
	s.Entities, s.Creatures, s.Cuboids, s.CommitLevels = p.entities, p.creatures, p.cuboids, p.commits

	entityExports := map[int32]mutation.Exports{}
	creatureExports := map[int32]mutation.Exports{}
	cuboidExports := map[geom.CuboidAddress]mutation.Exports{}
	st := TickStats{Tick: p.tick, DroppedMutations: p.dropped}

	for i := range e.partials {
		part := &e.partials[i]
		for id, en := range part.entities.Entities {
			s.Entities[id] = en
		}
		for id, list := range part.entities.Committed {
			s.CommittedChanges[id] = list
		}
		for id, x := range part.entities.Exports {
			entityExports[id] = x
		}
		st.CommittedChanges += part.entities.CommittedCount

		for id, c := range part.creatures.Creatures {
			s.Creatures[id] = c
		}
		for id, x := range part.creatures.Exports {
			creatureExports[id] = x
		}

		for a, c := range part.cuboids.Cuboids {
			s.Cuboids[a] = c
		}
		for a, list := range part.cuboids.Committed {
			s.CommittedMutations[a] = list
		}
		for a, list := range part.cuboids.ChangedBlocks {
			s.ChangedBlocks[a] = list
		}
		for a, x := range part.cuboids.Exports {
			cuboidExports[a] = x
		}
		st.CommittedMutations += part.cuboids.CommittedCount
		st.DroppedMutations += part.cuboids.Dropped
		e.partials[i] = partial{}
	}

	for id, c := range s.Creatures {
		if c.Health <= 0 {
			delete(s.Creatures, id)
		}
	}

	for _, id := range process.SortedIDs(entityExports) {
		e.file(s, entityExports[id], 0)
	}
	for _, id := range process.SortedIDs(creatureExports) {
		e.file(s, creatureExports[id], 1)
	}
	for _, a := range process.SortedAddresses(cuboidExports) {
		e.file(s, cuboidExports[a], 1)
	}

	st.Entities, st.Creatures, st.Cuboids = len(s.Entities), len(s.Creatures), len(s.Cuboids)
	if !p.entityDone.IsZero() {
		st.EntityPhase = p.entityDone.Sub(p.started)
		st.BlockPhase = done.Sub(p.entityDone)
	}
	s.Stats = st

	if st.DroppedMutations > 0 {
		e.log.Warn("dropped mutations for unloaded cuboids", zap.Int64("tick", s.Tick), zap.Int("count", st.DroppedMutations))
	}
	e.log.Debug("tick",
		zap.Int64("tick", s.Tick),
		zap.Int("committed_changes", st.CommittedChanges),
		zap.Int("committed_mutations", st.CommittedMutations),
		zap.Duration("entity_phase", st.EntityPhase),
		zap.Duration("block_phase", st.BlockPhase))
	return s
}

// file records x in the Snapshot and queues it for its due tick. minBlockOffset is 0 for
// entity-phase exports, whose undelayed block mutations already ran in this tick's block phase.
func (e *Engine) file(s *Snapshot, x mutation.Exports, minBlockOffset int64) {
	mpt := e.tuning.MillisPerTick
	for _, sm := range x.Mutations {
		off := mutation.TicksUntilDue(sm.DelayMillis, mpt, minBlockOffset)
		if off == 0 {
			continue
		}
		s.ExportedMutations = append(s.ExportedMutations, sm)
		e.delayed.mutations = append(e.delayed.mutations, dueMutation{due: s.Tick + off, m: sm.Mutation})
	}
	for _, sc := range x.Changes {
		s.ExportedChanges = append(s.ExportedChanges, sc)
		due := s.Tick + mutation.TicksUntilDue(sc.DelayMillis, mpt, 1)
		e.delayed.changes = append(e.delayed.changes, dueChange{due: due, target: sc.Target, c: sc.Change})
	}
	for _, cc := range x.CreatureChanges {
		s.ExportedCreatureChanges = append(s.ExportedCreatureChanges, cc)
		e.delayed.creatures[cc.Target] = append(e.delayed.creatures[cc.Target], cc.Change)
	}
}
