package mutation

import (
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/geom"
)

// ReplaceBlock swaps Expect for Block. When the block no longer matches, the placed item is
// refunded to Source next tick.
type ReplaceBlock struct {
	At         geom.AbsoluteLocation `msgpack:"at"`
	Expect     uint16                `msgpack:"expect"`
	Block      uint16                `msgpack:"block"`
	Source     int32                 `msgpack:"source"`
	RefundItem string                `msgpack:"refund,omitempty"`
}

func (ReplaceBlock) Kind() Kind                        { return KindReplaceBlock }
func (r ReplaceBlock) Location() geom.AbsoluteLocation { return r.At }
func (r ReplaceBlock) Apply(ctx *Context, c *cuboid.Mutable) bool {
	b := r.At.Block()
	if c.Block(b) != r.Expect {
		if r.Source != 0 && r.RefundItem != "" {
			ctx.Sink.NextEntity(r.Source, StoreItems{Item: r.RefundItem, Count: 1})
		}
		return false
	}
	c.SetBlock(b, r.Block)
	c.SetDamage(b, 0)
	scheduleGrowth(ctx, r.At, r.Block)
	return true
}

// IncrementalBreak adds Damage to a block and breaks it once the damage reaches the block's
// toughness. The drop is delivered to Breaker next tick.
type IncrementalBreak struct {
	At      geom.AbsoluteLocation `msgpack:"at"`
	Breaker int32                 `msgpack:"breaker"`
	Damage  int64                 `msgpack:"damage"`
}

func (IncrementalBreak) Kind() Kind                        { return KindIncrementalBreak }
func (i IncrementalBreak) Location() geom.AbsoluteLocation { return i.At }
func (i IncrementalBreak) Apply(ctx *Context, c *cuboid.Mutable) bool {
	b := i.At.Block()
	cur := c.Block(b)
	def, ok := ctx.Env.Block(cur)
	if !ok || cur == catalogs.Air || !def.Breakable {
		return false
	}
	total := int64(c.Damage(b)) + i.Damage
	if total < def.ToughnessMillis {
		c.SetDamage(b, uint16(total))
		return true
	}
	c.SetBlock(b, catalogs.Air)
	c.SetDamage(b, 0)
	if def.DropsItem != "" && i.Breaker != 0 {
		ctx.Sink.NextEntity(i.Breaker, StoreItems{Item: def.DropsItem, Count: 1})
	}
	return true
}

// SetBlock is an authoritative overwrite of a block and its damage. Clients receive block
// updates as SetBlock values.
type SetBlock struct {
	At     geom.AbsoluteLocation `msgpack:"at"`
	Block  uint16                `msgpack:"block"`
	Damage uint16                `msgpack:"damage,omitempty"`
}

func (SetBlock) Kind() Kind                        { return KindSetBlock }
func (s SetBlock) Location() geom.AbsoluteLocation { return s.At }
func (s SetBlock) Apply(_ *Context, c *cuboid.Mutable) bool {
	b := s.At.Block()
	c.SetBlock(b, s.Block)
	c.SetDamage(b, s.Damage)
	return true
}

// Grow advances a growing block one stage. It re-exports itself until the block has no
// further stage, so a sapling is a multi-tick export chain.
type Grow struct {
	At   geom.AbsoluteLocation `msgpack:"at"`
	From uint16                `msgpack:"from"`
}

func (Grow) Kind() Kind                        { return KindGrow }
func (g Grow) Location() geom.AbsoluteLocation { return g.At }
func (g Grow) Apply(ctx *Context, c *cuboid.Mutable) bool {
	b := g.At.Block()
	if c.Block(b) != g.From {
		return false
	}
	def, ok := ctx.Env.Block(g.From)
	if !ok || def.GrowsInto == "" {
		return false
	}
	next, ok := ctx.Env.BlockID(def.GrowsInto)
	if !ok {
		return false
	}
	c.SetBlock(b, next)
	scheduleGrowth(ctx, g.At, next)
	return true
}

func scheduleGrowth(ctx *Context, at geom.AbsoluteLocation, block uint16) {
	def, ok := ctx.Env.Block(block)
	if !ok || def.GrowsInto == "" {
		return
	}
	ctx.Sink.Future(Grow{At: at, From: block}, def.GrowMillis)
}
