package projection

import (
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/process"
)

// state is one consistent view of the world: the shadow or the projection. Maps are replaced,
// never edited, once a state has been handed out.
type state struct {
	entity  *entity.Entity
	others  map[int32]*entity.PartialEntity
	cuboids map[geom.CuboidAddress]*cuboid.Cuboid
}

func newState() state {
	return state{
		others:  map[int32]*entity.PartialEntity{},
		cuboids: map[geom.CuboidAddress]*cuboid.Cuboid{},
	}
}

func (s state) clone() state {
	return state{entity: s.entity, others: cloneMap(s.others), cuboids: cloneMap(s.cuboids)}
}

func (s state) block(l geom.AbsoluteLocation) (uint16, bool) {
	c, ok := s.cuboids[l.Cuboid()]
	if !ok {
		return 0, false
	}
	return c.Block(l.Block()), true
}

func (p *Projection) context(s *state) mutation.Context {
	return mutation.Context{
		Tick:        p.serverTick + 1,
		Env:         p.env,
		Tuning:      p.tuning,
		LookupBlock: s.block,
		LookupCreature: func(id int32) (*entity.Creature, bool) {
			o, ok := s.others[id]
			if !ok || id >= 0 {
				return nil, false
			}
			return &entity.Creature{ID: o.ID, Type: o.Kind, Location: o.Location, Health: o.Health}, true
		},
	}
}

// applyWithFollowUps runs change against s and then its consequences for each tick of the
// horizon. Consequences that land beyond the horizon are dropped. s is untouched on failure.
func (p *Projection) applyWithFollowUps(s *state, change mutation.EntityChange, touched map[geom.CuboidAddress]map[geom.BlockAddress]struct{}) (followUps, bool) {
	if s.entity == nil {
		return nil, false
	}
	f := make(followUps, len(p.schedule))
	if !p.step(s, 0, change, nil, f, touched) {
		return nil, false
	}
	for k := 1; k <= len(f); k++ {
		p.step(s, k, nil, f[k-1], f, touched)
	}
	return f, true
}

// step applies one tick's worth of work at offset k: entity changes first, then block
// mutations, including those the entity changes exported for the same tick. Exports go to f at
// k plus their delay; with f nil the work is replayed as recorded and exports are ignored.
// With a client change, step fails without touching s when the change does not apply.
func (p *Projection) step(s *state, k int, client mutation.EntityChange, list []work, f followUps, touched map[geom.CuboidAddress]map[geom.BlockAddress]struct{}) bool {
	var server []mutation.EntityChange
	var blocks []mutation.BlockMutation
	for _, w := range list {
		if w.change != nil {
			server = append(server, w.change)
		} else {
			blocks = append(blocks, w.mutation)
		}
	}

	ctx := p.context(s)
	ctx.Tick += int64(k)
	if (client != nil || len(server) > 0) && s.entity != nil {
		ew := process.EntityWork{Server: server}
		if client != nil {
			ew.Client = []mutation.EntityChange{client}
		}
		res := process.ProcessEntities(ctx, map[int32]*entity.Entity{p.localID: s.entity}, map[int32]process.EntityWork{p.localID: ew})
		if client != nil && res.CommittedCount == 0 {
			return false
		}
		s.entity = res.Entities[p.localID]
		now := p.route(f, k, res.All(), 0)
		if k > 0 {
			for _, m := range now {
				f[k-1] = append(f[k-1], work{mutation: m})
			}
		}
		blocks = append(blocks, now...)
	}
	if len(blocks) == 0 {
		return true
	}

	bucketed := process.BucketByCuboid(nil, blocks)
	res := process.ProcessCuboids(ctx, s.cuboids, bucketed)
	for a, c := range res.Cuboids {
		s.cuboids[a] = c
	}
	for a, list := range res.ChangedBlocks {
		addTouched(touched, a, list)
	}
	p.route(f, k, res.All(), 1)
	return true
}

// route files exports into f and returns the block mutations due in the same tick.
func (p *Projection) route(f followUps, k int, x mutation.Exports, minBlockOffset int64) []mutation.BlockMutation {
	if f == nil {
		return nil
	}
	mpt := p.tuning.MillisPerTick
	var now []mutation.BlockMutation
	for _, sm := range x.Mutations {
		off := mutation.TicksUntilDue(sm.DelayMillis, mpt, minBlockOffset)
		if off == 0 {
			now = append(now, sm.Mutation)
			continue
		}
		if at := k + int(off); at <= len(f) {
			f[at-1] = append(f[at-1], work{mutation: sm.Mutation})
		}
	}
	for _, sc := range x.Changes {
		// Other entities are only partially known here; their consequences come from the server.
		if sc.Target != p.localID {
			continue
		}
		off := mutation.TicksUntilDue(sc.DelayMillis, mpt, 1)
		if at := k + int(off); at <= len(f) {
			f[at-1] = append(f[at-1], work{change: sc.Change})
		}
	}
	return now
}

// applyBlocks applies authoritative block updates to s and returns the touched blocks.
func applyBlocks(ctx mutation.Context, s *state, list []mutation.BlockMutation) map[geom.CuboidAddress][]geom.BlockAddress {
	res := process.ProcessCuboids(ctx, s.cuboids, process.BucketByCuboid(nil, list))
	for a, c := range res.Cuboids {
		s.cuboids[a] = c
	}
	return res.ChangedBlocks
}

func addTouched(into map[geom.CuboidAddress]map[geom.BlockAddress]struct{}, a geom.CuboidAddress, list []geom.BlockAddress) {
	set := into[a]
	if set == nil {
		set = map[geom.BlockAddress]struct{}{}
		into[a] = set
	}
	for _, b := range list {
		set[b] = struct{}{}
	}
}

func mergeTouched(into, from map[geom.CuboidAddress]map[geom.BlockAddress]struct{}) {
	for a, set := range from {
		dst := into[a]
		if dst == nil {
			dst = make(map[geom.BlockAddress]struct{}, len(set))
			into[a] = dst
		}
		for b := range set {
			dst[b] = struct{}{}
		}
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
