package mutation

import (
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
)

const (
	PlaceCostMillis int64 = 50
	HitCostMillis   int64 = 100
	EatCostMillis   int64 = 100
	EatHealAmount         = 10
)

// Move walks the entity to To. The cost is declared by the sender and must cover the distance.
type Move struct {
	To         geom.AbsoluteLocation `msgpack:"to"`
	CostMillis int64                 `msgpack:"cost"`
}

// NewMove prices a move at the configured millis per block.
func NewMove(from, to geom.AbsoluteLocation, millisPerBlock int64) Move {
	return Move{To: to, CostMillis: from.Manhattan(to) * millisPerBlock}
}

func (Move) Kind() Kind              { return KindMove }
func (m Move) TimeCostMillis() int64 { return m.CostMillis }
func (m Move) Apply(ctx *Context, e *entity.MutableEntity) bool {
	dist := e.Location().Manhattan(m.To)
	if dist == 0 || dist > ctx.Tuning.Movement.MaxMoveDistance {
		return false
	}
	if m.CostMillis < dist*ctx.Tuning.Movement.MillisPerBlock {
		return false
	}
	b, ok := ctx.block(m.To)
	if !ok {
		return false
	}
	if def, ok := ctx.Env.Block(b); !ok || def.Solid {
		return false
	}
	e.SetLocation(m.To)
	return true
}

// BreakBlock spends Millis of work on the target block. The block breaks once its accumulated
// damage reaches its toughness.
type BreakBlock struct {
	Target geom.AbsoluteLocation `msgpack:"target"`
	Millis int64                 `msgpack:"millis"`
}

func (BreakBlock) Kind() Kind              { return KindBreakBlock }
func (b BreakBlock) TimeCostMillis() int64 { return b.Millis }
func (b BreakBlock) Apply(ctx *Context, e *entity.MutableEntity) bool {
	if b.Millis <= 0 || e.Location().Manhattan(b.Target) > ReachBlocks {
		return false
	}
	block, ok := ctx.block(b.Target)
	if !ok {
		return false
	}
	if def, ok := ctx.Env.Block(block); !ok || !def.Breakable {
		return false
	}
	ctx.Sink.Next(IncrementalBreak{At: b.Target, Breaker: e.ID(), Damage: b.Millis})
	return true
}

// PlaceBlock puts one held item into the world as its block form.
type PlaceBlock struct {
	Target geom.AbsoluteLocation `msgpack:"target"`
	Item   string                `msgpack:"item"`
}

func (PlaceBlock) Kind() Kind            { return KindPlaceBlock }
func (PlaceBlock) TimeCostMillis() int64 { return PlaceCostMillis }
func (p PlaceBlock) Apply(ctx *Context, e *entity.MutableEntity) bool {
	def, ok := ctx.Env.Item(p.Item)
	if !ok || def.PlaceAs == "" {
		return false
	}
	if p.Target == e.Location() || e.Location().Manhattan(p.Target) > ReachBlocks {
		return false
	}
	cur, ok := ctx.block(p.Target)
	if !ok || cur != catalogs.Air {
		return false
	}
	block, ok := ctx.Env.BlockID(def.PlaceAs)
	if !ok {
		return false
	}
	if !e.RemoveItems(p.Item, 1, def.Weight) {
		return false
	}
	ctx.Sink.Next(ReplaceBlock{At: p.Target, Expect: catalogs.Air, Block: block, Source: e.ID(), RefundItem: p.Item})
	return true
}

// Craft runs a recipe from the entity's inventory. Millis must cover the recipe time.
type Craft struct {
	Recipe string `msgpack:"recipe"`
	Millis int64  `msgpack:"millis"`
}

// NewCraft prices a craft from the recipe catalog.
func NewCraft(env *catalogs.Catalogs, recipe string) (Craft, bool) {
	r, ok := env.Recipe(recipe)
	if !ok {
		return Craft{}, false
	}
	return Craft{Recipe: recipe, Millis: r.Millis}, true
}

func (Craft) Kind() Kind              { return KindCraft }
func (c Craft) TimeCostMillis() int64 { return c.Millis }
func (c Craft) Apply(ctx *Context, e *entity.MutableEntity) bool {
	r, ok := ctx.Env.Recipe(c.Recipe)
	if !ok || c.Millis < r.Millis {
		return false
	}
	for _, in := range r.Inputs {
		if e.Count(in.Item) < in.Count {
			return false
		}
	}
	weight := e.Weight()
	for _, in := range r.Inputs {
		weight -= in.Count * ctx.itemWeight(in.Item)
	}
	for _, out := range r.Outputs {
		weight += out.Count * ctx.itemWeight(out.Item)
	}
	if max := ctx.Tuning.Inventory.MaxWeight; max > 0 && weight > max {
		return false
	}
	for _, in := range r.Inputs {
		e.RemoveItems(in.Item, in.Count, ctx.itemWeight(in.Item))
	}
	for _, out := range r.Outputs {
		e.AddItems(out.Item, out.Count, ctx.itemWeight(out.Item), ctx.Tuning.Inventory.MaxWeight)
	}
	return true
}

// Hit damages a creature in reach; the damage lands next tick.
type Hit struct {
	Target int32 `msgpack:"target"`
	Damage int   `msgpack:"damage"`
}

func (Hit) Kind() Kind            { return KindHit }
func (Hit) TimeCostMillis() int64 { return HitCostMillis }
func (h Hit) Apply(ctx *Context, e *entity.MutableEntity) bool {
	if h.Damage <= 0 || ctx.LookupCreature == nil {
		return false
	}
	c, ok := ctx.LookupCreature(h.Target)
	if !ok || c.Health <= 0 || e.Location().Manhattan(c.Location) > ReachBlocks {
		return false
	}
	ctx.Sink.NextCreature(h.Target, TakeDamage{Amount: h.Damage})
	return true
}

// Eat consumes one FOOD item and heals.
type Eat struct {
	Item string `msgpack:"item"`
}

func (Eat) Kind() Kind            { return KindEat }
func (Eat) TimeCostMillis() int64 { return EatCostMillis }
func (f Eat) Apply(ctx *Context, e *entity.MutableEntity) bool {
	def, ok := ctx.Env.Item(f.Item)
	if !ok || def.Kind != "FOOD" {
		return false
	}
	max := ctx.Tuning.Inventory.EntityHealth
	if e.Health() >= max || !e.RemoveItems(f.Item, 1, def.Weight) {
		return false
	}
	h := e.Health() + EatHealAmount
	if h > max {
		h = max
	}
	e.SetHealth(h)
	return true
}

// Cancel discards the entity's in-progress change. Applying it does nothing.
type Cancel struct{}

func (Cancel) Kind() Kind                                 { return KindCancel }
func (Cancel) TimeCostMillis() int64                      { return CancelCost }
func (Cancel) Apply(*Context, *entity.MutableEntity) bool { return true }

// StoreItems is a server-origin change delivering items (drops, refunds) to an entity.
type StoreItems struct {
	Item  string `msgpack:"item"`
	Count int    `msgpack:"count"`
}

func (StoreItems) Kind() Kind            { return KindStoreItems }
func (StoreItems) TimeCostMillis() int64 { return 0 }
func (s StoreItems) Apply(ctx *Context, e *entity.MutableEntity) bool {
	if _, ok := ctx.Env.Item(s.Item); !ok {
		return false
	}
	return e.AddItems(s.Item, s.Count, ctx.itemWeight(s.Item), ctx.Tuning.Inventory.MaxWeight)
}

// SelectItem changes the entity's selected item to one it holds ("" clears).
type SelectItem struct {
	Item string `msgpack:"item"`
}

func (SelectItem) Kind() Kind            { return KindSelectItem }
func (SelectItem) TimeCostMillis() int64 { return 0 }
func (s SelectItem) Apply(_ *Context, e *entity.MutableEntity) bool {
	if s.Item != "" && e.Count(s.Item) == 0 {
		return false
	}
	e.SetSelected(s.Item)
	return true
}
