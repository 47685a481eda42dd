// Package process holds the single-goroutine evaluation primitives. Engine workers run them over
// their partition each tick; the client projection runs the same functions to predict.
package process

import (
	"sort"

	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
)

// EntityWork is one entity's work for a tick. Server-origin changes (drops, refunds) run before
// the client changes admitted by the scheduler.
type EntityWork struct {
	Server []mutation.EntityChange
	Client []mutation.EntityChange
}

type EntityResult struct {
	// Entities holds a value for every entity that had work, changed or not.
	Entities map[int32]*entity.Entity
	// Committed maps each entity to the client changes that applied.
	Committed      map[int32][]mutation.EntityChange
	CommittedCount int
	// Exports is keyed by the exporting entity so callers can merge partitions in a stable order.
	Exports map[int32]mutation.Exports
}

// All flattens Exports in ascending entity order.
func (r EntityResult) All() mutation.Exports { return flatten(r.Exports) }

// ProcessEntities applies work against entities. ctx.Sink is replaced per entity.
// Work for entities not in the map is dropped.
func ProcessEntities(ctx mutation.Context, entities map[int32]*entity.Entity, work map[int32]EntityWork) EntityResult {
	res := EntityResult{
		Entities:  make(map[int32]*entity.Entity, len(work)),
		Committed: map[int32][]mutation.EntityChange{},
		Exports:   map[int32]mutation.Exports{},
	}
	for _, id := range SortedIDs(work) {
		e, ok := entities[id]
		if !ok {
			continue
		}
		w := work[id]
		var out mutation.Exports
		ctx.Sink = &out
		m := entity.NewMutable(e)
		for _, c := range w.Server {
			c.Apply(&ctx, m)
		}
		for _, c := range w.Client {
			if c.Apply(&ctx, m) {
				res.Committed[id] = append(res.Committed[id], c)
				res.CommittedCount++
			}
		}
		res.Entities[id] = m.Freeze()
		if !out.Empty() {
			res.Exports[id] = out
		}
	}
	return res
}

type CreatureResult struct {
	Creatures      map[int32]*entity.Creature
	CommittedCount int
	Exports        map[int32]mutation.Exports
}

func (r CreatureResult) All() mutation.Exports { return flatten(r.Exports) }

func ProcessCreatures(ctx mutation.Context, creatures map[int32]*entity.Creature, work map[int32][]mutation.CreatureChange) CreatureResult {
	res := CreatureResult{
		Creatures: make(map[int32]*entity.Creature, len(work)),
		Exports:   map[int32]mutation.Exports{},
	}
	for _, id := range SortedIDs(work) {
		c, ok := creatures[id]
		if !ok {
			continue
		}
		var out mutation.Exports
		ctx.Sink = &out
		m := entity.NewMutableCreature(c)
		for _, ch := range work[id] {
			if ch.Apply(&ctx, m) {
				res.CommittedCount++
			}
		}
		res.Creatures[id] = m.Freeze()
		if !out.Empty() {
			res.Exports[id] = out
		}
	}
	return res
}

type CuboidResult struct {
	// Cuboids holds a value for every cuboid that had work, changed or not.
	Cuboids        map[geom.CuboidAddress]*cuboid.Cuboid
	ChangedBlocks  map[geom.CuboidAddress][]geom.BlockAddress
	Committed      map[geom.CuboidAddress][]mutation.BlockMutation
	CommittedCount int
	// Dropped counts mutations addressed to cuboids that are not loaded.
	Dropped int
	Exports map[geom.CuboidAddress]mutation.Exports
}

// All flattens Exports in cuboid address order.
func (r CuboidResult) All() mutation.Exports {
	var out mutation.Exports
	for _, a := range SortedAddresses(r.Exports) {
		out.Merge(r.Exports[a])
	}
	return out
}

// ProcessCuboids applies each cuboid's mutations in order.
func ProcessCuboids(ctx mutation.Context, cuboids map[geom.CuboidAddress]*cuboid.Cuboid, work map[geom.CuboidAddress][]mutation.BlockMutation) CuboidResult {
	res := CuboidResult{
		Cuboids:       make(map[geom.CuboidAddress]*cuboid.Cuboid, len(work)),
		ChangedBlocks: map[geom.CuboidAddress][]geom.BlockAddress{},
		Committed:     map[geom.CuboidAddress][]mutation.BlockMutation{},
		Exports:       map[geom.CuboidAddress]mutation.Exports{},
	}
	for _, addr := range SortedAddresses(work) {
		list := work[addr]
		c, ok := cuboids[addr]
		if !ok {
			res.Dropped += len(list)
			continue
		}
		var exp mutation.Exports
		ctx.Sink = &exp
		m := cuboid.NewMutable(c)
		for _, mu := range list {
			if mu.Apply(&ctx, m) {
				res.Committed[addr] = append(res.Committed[addr], mu)
				res.CommittedCount++
			}
		}
		out := m.Freeze()
		res.Cuboids[addr] = out
		if out != c {
			res.ChangedBlocks[addr] = m.Touched()
		}
		if !exp.Empty() {
			res.Exports[addr] = exp
		}
	}
	return res
}

// BucketByCuboid groups mutations by the cuboid they target, keeping order.
func BucketByCuboid(into map[geom.CuboidAddress][]mutation.BlockMutation, list []mutation.BlockMutation) map[geom.CuboidAddress][]mutation.BlockMutation {
	if into == nil {
		into = map[geom.CuboidAddress][]mutation.BlockMutation{}
	}
	for _, m := range list {
		a := m.Location().Cuboid()
		into[a] = append(into[a], m)
	}
	return into
}

func flatten(m map[int32]mutation.Exports) mutation.Exports {
	var out mutation.Exports
	for _, id := range SortedIDs(m) {
		out.Merge(m[id])
	}
	return out
}

func SortedIDs[V any](m map[int32]V) []int32 {
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func SortedAddresses[V any](m map[geom.CuboidAddress]V) []geom.CuboidAddress {
	out := make([]geom.CuboidAddress, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i], out[j]) })
	return out
}

// Less orders cuboid addresses by X, then Y, then Z.
func Less(a, b geom.CuboidAddress) bool {
	if a.X != b.X {
		return a.X < b.X
	}
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.Z < b.Z
}
