// Package mutation is the scheduled work model shared by the tick engine and the client
// projection: time-costed entity changes, block mutations, creature changes, and the sink
// through which applying one of them exports follow-ups.
package mutation

import (
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/tuning"
)

// CancelCost is the time cost sentinel meaning "cancel whatever is in progress".
const CancelCost int64 = -1

// ReachBlocks bounds how far from an entity it can break, place or hit.
const ReachBlocks int64 = 6

// Context is the read-only view one evaluation runs against, plus the sink for its exports.
type Context struct {
	Tick   int64
	Env    *catalogs.Catalogs
	Tuning tuning.Tuning

	// LookupBlock reads the previous tick's cuboids. ok=false when the cuboid is not loaded.
	LookupBlock    func(geom.AbsoluteLocation) (block uint16, ok bool)
	LookupCreature func(id int32) (*entity.Creature, bool)

	Sink Sink
}

func (c *Context) MillisPerTick() int64 { return c.Tuning.MillisPerTick }

func (c *Context) block(l geom.AbsoluteLocation) (uint16, bool) {
	if c.LookupBlock == nil {
		return 0, false
	}
	return c.LookupBlock(l)
}

func (c *Context) itemWeight(item string) int {
	d, ok := c.Env.Item(item)
	if !ok {
		return 0
	}
	return d.Weight
}

// EntityChange is a unit of work targeting one entity.
type EntityChange interface {
	Kind() Kind
	// TimeCostMillis is the declared cost; CancelCost marks a cancellation.
	TimeCostMillis() int64
	Apply(ctx *Context, e *entity.MutableEntity) bool
}

// BlockMutation is a unit of work targeting one block.
type BlockMutation interface {
	Kind() Kind
	Location() geom.AbsoluteLocation
	Apply(ctx *Context, c *cuboid.Mutable) bool
}

// CreatureChange is a unit of work targeting one creature.
type CreatureChange interface {
	Kind() Kind
	Apply(ctx *Context, c *entity.MutableCreature) bool
}

// Sink receives follow-ups exported while applying a change or mutation.
//
// Next block mutations exported by an entity change run in the same tick's block phase;
// everything else runs no earlier than the next tick. Future delays are in milliseconds.
type Sink interface {
	Next(m BlockMutation)
	Future(m BlockMutation, delayMillis int64)
	NextEntity(target int32, c EntityChange)
	FutureEntity(target int32, c EntityChange, delayMillis int64)
	NextCreature(target int32, c CreatureChange)
}

type ScheduledMutation struct {
	Mutation    BlockMutation
	DelayMillis int64
}

type ScheduledChange struct {
	Target      int32
	Change      EntityChange
	DelayMillis int64
}

type ScheduledCreatureChange struct {
	Target int32
	Change CreatureChange
}

// Exports is the collecting Sink.
type Exports struct {
	Mutations       []ScheduledMutation
	Changes         []ScheduledChange
	CreatureChanges []ScheduledCreatureChange
}

func (x *Exports) Next(m BlockMutation) {
	x.Mutations = append(x.Mutations, ScheduledMutation{Mutation: m})
}

func (x *Exports) Future(m BlockMutation, delayMillis int64) {
	x.Mutations = append(x.Mutations, ScheduledMutation{Mutation: m, DelayMillis: delayMillis})
}

func (x *Exports) NextEntity(target int32, c EntityChange) {
	x.Changes = append(x.Changes, ScheduledChange{Target: target, Change: c})
}

func (x *Exports) FutureEntity(target int32, c EntityChange, delayMillis int64) {
	x.Changes = append(x.Changes, ScheduledChange{Target: target, Change: c, DelayMillis: delayMillis})
}

func (x *Exports) NextCreature(target int32, c CreatureChange) {
	x.CreatureChanges = append(x.CreatureChanges, ScheduledCreatureChange{Target: target, Change: c})
}

func (x *Exports) Empty() bool {
	return len(x.Mutations) == 0 && len(x.Changes) == 0 && len(x.CreatureChanges) == 0
}

// Merge appends o's exports in order.
func (x *Exports) Merge(o Exports) {
	x.Mutations = append(x.Mutations, o.Mutations...)
	x.Changes = append(x.Changes, o.Changes...)
	x.CreatureChanges = append(x.CreatureChanges, o.CreatureChanges...)
}

// TicksUntilDue converts an export delay into a tick offset, rounding up.
// minOffset is 0 for block mutations exported from the entity phase and 1 otherwise.
func TicksUntilDue(delayMillis, millisPerTick, minOffset int64) int64 {
	off := int64(0)
	if delayMillis > 0 {
		off = (delayMillis + millisPerTick - 1) / millisPerTick
	}
	if off < minOffset {
		off = minOffset
	}
	return off
}
