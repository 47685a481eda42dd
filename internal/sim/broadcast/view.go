// Package broadcast turns published engine snapshots into the per-client tick stream.
package broadcast

import (
	"tickcraft.ai/internal/client/projection"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/process"
)

// View remembers what one client has been sent so that each tick carries only the difference.
// Next is called from the engine's completion listener, so a View is only touched on the
// stitching goroutine.
type View struct {
	id int32

	lastTick int64
	started  bool
	self     *entity.Entity
	others   map[int32]*entity.PartialEntity
	cuboids  map[geom.CuboidAddress]*cuboid.Cuboid
}

func NewView(id int32) *View {
	return &View{
		id:      id,
		others:  map[int32]*entity.PartialEntity{},
		cuboids: map[geom.CuboidAddress]*cuboid.Cuboid{},
	}
}

func (v *View) ID() int32 { return v.id }

// Next computes the update for s. Snapshots must be passed in tick order; a skipped tick is
// handled by comparing full cuboids instead of the tick's changed-block lists.
func (v *View) Next(s *engine.Snapshot) projection.ServerTick {
	out := projection.ServerTick{Tick: s.Tick, LatestLocalCommitIncluded: s.CommitLevels[v.id]}
	consecutive := v.started && s.Tick == v.lastTick+1

	for _, a := range process.SortedAddresses(v.cuboids) {
		if _, ok := s.Cuboids[a]; !ok {
			out.RemovedCuboids = append(out.RemovedCuboids, a)
			delete(v.cuboids, a)
		}
	}
	for _, a := range process.SortedAddresses(s.Cuboids) {
		c := s.Cuboids[a]
		prev, ok := v.cuboids[a]
		switch {
		case !ok:
			out.AddedCuboids = append(out.AddedCuboids, c)
		case prev == c:
			continue
		case consecutive && s.ChangedBlocks[a] != nil:
			out.BlockUpdates = appendBlocks(out.BlockUpdates, c, s.ChangedBlocks[a])
		default:
			out.BlockUpdates = appendBlocks(out.BlockUpdates, c, diffBlocks(prev, c))
		}
		v.cuboids[a] = c
	}

	if e, ok := s.Entities[v.id]; ok {
		switch {
		case v.self == nil:
			out.ThisEntity = e
		case v.self != e:
			out.ThisEntityUpdate = e
		}
		v.self = e
	}

	visible := others(s, v.id)
	for _, id := range process.SortedIDs(v.others) {
		if _, ok := visible[id]; !ok {
			out.RemovedEntities = append(out.RemovedEntities, id)
			delete(v.others, id)
		}
	}
	for _, id := range process.SortedIDs(visible) {
		e := visible[id]
		prev, ok := v.others[id]
		switch {
		case !ok:
			out.AddedEntities = append(out.AddedEntities, e)
		case !prev.Equal(e):
			out.EntityUpdates = append(out.EntityUpdates, e)
		default:
			continue
		}
		v.others[id] = e
	}

	v.lastTick, v.started = s.Tick, true
	return out
}

// others collects every entity and creature except the viewer, in the partial form clients see.
func others(s *engine.Snapshot, self int32) map[int32]*entity.PartialEntity {
	out := make(map[int32]*entity.PartialEntity, len(s.Entities)+len(s.Creatures))
	for id, e := range s.Entities {
		if id != self {
			out[id] = e.Partial()
		}
	}
	for id, c := range s.Creatures {
		out[id] = c.Partial()
	}
	return out
}

func appendBlocks(into []mutation.SetBlock, c *cuboid.Cuboid, list []geom.BlockAddress) []mutation.SetBlock {
	base := c.Address()
	for _, b := range list {
		into = append(into, mutation.SetBlock{At: geom.Join(base, b), Block: c.Block(b), Damage: c.Damage(b)})
	}
	return into
}

func diffBlocks(prev, cur *cuboid.Cuboid) []geom.BlockAddress {
	var out []geom.BlockAddress
	for i := 0; i < cuboid.Volume; i++ {
		b := geom.BlockFromIndex(i)
		if prev.Block(b) != cur.Block(b) || prev.Damage(b) != cur.Damage(b) {
			out = append(out, b)
		}
	}
	return out
}
