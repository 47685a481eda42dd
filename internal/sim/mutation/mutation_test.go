package mutation

import (
	"errors"
	"testing"

	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/tuning"
)

type world struct {
	env    *catalogs.Catalogs
	cuboid *cuboid.Cuboid
	out    Exports
}

func newWorld(t *testing.T) *world {
	t.Helper()
	env, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	// Stone floor at y=0, air above.
	m := cuboid.NewMutable(cuboid.New(geom.CuboidAddress{}, catalogs.Air))
	stone := env.MustBlockID("STONE")
	for x := uint8(0); x < geom.Edge; x++ {
		for z := uint8(0); z < geom.Edge; z++ {
			m.SetBlock(geom.BlockAddress{X: x, Y: 0, Z: z}, stone)
		}
	}
	return &world{env: env, cuboid: m.Freeze()}
}

func (w *world) ctx() *Context {
	w.out = Exports{}
	return &Context{
		Tick:   1,
		Env:    w.env,
		Tuning: tuning.Defaults(),
		LookupBlock: func(l geom.AbsoluteLocation) (uint16, bool) {
			if l.Cuboid() != w.cuboid.Address() {
				return 0, false
			}
			return w.cuboid.Block(l.Block()), true
		},
		LookupCreature: func(id int32) (*entity.Creature, bool) {
			if id == -1 {
				return &entity.Creature{ID: -1, Type: "COW", Location: geom.AbsoluteLocation{X: 3, Y: 1, Z: 1}, Health: 10}, true
			}
			return nil, false
		},
		Sink: &w.out,
	}
}

func at(x, y, z int32) geom.AbsoluteLocation { return geom.AbsoluteLocation{X: x, Y: y, Z: z} }

func TestMove_CostAndBounds(t *testing.T) {
	w := newWorld(t)
	e := entity.NewMutable(entity.New(1, at(1, 1, 1), 100))

	mv := NewMove(e.Location(), at(3, 1, 1), 50)
	if mv.TimeCostMillis() != 100 {
		t.Fatalf("cost: %d", mv.TimeCostMillis())
	}
	if !mv.Apply(w.ctx(), e) || e.Location() != at(3, 1, 1) {
		t.Fatalf("move failed: %v", e.Location())
	}
	if (Move{To: at(4, 1, 1), CostMillis: 10}).Apply(w.ctx(), e) {
		t.Fatalf("underpriced move accepted")
	}
	if NewMove(e.Location(), at(3, 0, 1), 50).Apply(w.ctx(), e) {
		t.Fatalf("move into solid block accepted")
	}
	if NewMove(e.Location(), at(3, 1, 40), 50).Apply(w.ctx(), e) {
		t.Fatalf("move beyond max distance accepted")
	}
	if NewMove(e.Location(), at(3, 1, -1), 50).Apply(w.ctx(), e) {
		t.Fatalf("move into unloaded cuboid accepted")
	}
}

func TestBreakBlock_AccumulatesDamageThenDrops(t *testing.T) {
	w := newWorld(t)
	e := entity.NewMutable(entity.New(7, at(1, 1, 1), 100))
	target := at(1, 0, 1)

	ctx := w.ctx()
	if !(BreakBlock{Target: target, Millis: 100}).Apply(ctx, e) {
		t.Fatalf("break rejected")
	}
	if len(w.out.Mutations) != 1 || w.out.Mutations[0].DelayMillis != 0 {
		t.Fatalf("exports: %+v", w.out.Mutations)
	}
	brk := w.out.Mutations[0].Mutation

	c := cuboid.NewMutable(w.cuboid)
	ctx = w.ctx()
	if !brk.Apply(ctx, c) {
		t.Fatalf("first increment failed")
	}
	if c.Block(target.Block()) != w.env.MustBlockID("STONE") || c.Damage(target.Block()) != 100 {
		t.Fatalf("after first increment: block=%d damage=%d", c.Block(target.Block()), c.Damage(target.Block()))
	}
	if !w.out.Empty() {
		t.Fatalf("unexpected exports: %+v", w.out)
	}

	ctx = w.ctx()
	if !brk.Apply(ctx, c) {
		t.Fatalf("second increment failed")
	}
	if c.Block(target.Block()) != catalogs.Air || c.Damage(target.Block()) != 0 {
		t.Fatalf("block not broken")
	}
	if len(w.out.Changes) != 1 || w.out.Changes[0].Target != 7 {
		t.Fatalf("drop exports: %+v", w.out.Changes)
	}
	if s, ok := w.out.Changes[0].Change.(StoreItems); !ok || s.Item != "STONE" || s.Count != 1 {
		t.Fatalf("drop: %+v", w.out.Changes[0].Change)
	}
}

func TestPlaceBlock_RefundOnConflict(t *testing.T) {
	w := newWorld(t)
	base := entity.New(2, at(1, 1, 1), 100)
	base.Inventory = entity.NewInventory([]entity.Stack{{Item: "DIRT", Count: 2}}, 2)
	e := entity.NewMutable(base)

	if !(PlaceBlock{Target: at(2, 1, 1), Item: "DIRT"}).Apply(w.ctx(), e) {
		t.Fatalf("place rejected")
	}
	if e.Count("DIRT") != 1 || e.Weight() != 1 {
		t.Fatalf("inventory: count=%d weight=%d", e.Count("DIRT"), e.Weight())
	}
	rb := w.out.Mutations[0].Mutation.(ReplaceBlock)

	// Someone else filled the spot first.
	c := cuboid.NewMutable(w.cuboid)
	c.SetBlock(rb.At.Block(), w.env.MustBlockID("LOG"))
	if rb.Apply(w.ctx(), c) {
		t.Fatalf("replace over non-air succeeded")
	}
	if len(w.out.Changes) != 1 || w.out.Changes[0].Target != 2 {
		t.Fatalf("refund missing: %+v", w.out)
	}
	if (PlaceBlock{Target: at(1, 1, 1), Item: "DIRT"}).Apply(w.ctx(), e) {
		t.Fatalf("placing into own location accepted")
	}
	if (PlaceBlock{Target: at(2, 1, 1), Item: "STICK"}).Apply(w.ctx(), e) {
		t.Fatalf("placing a non-block item accepted")
	}
}

func TestCraft_AllOrNothing(t *testing.T) {
	w := newWorld(t)
	base := entity.New(3, at(1, 1, 1), 100)
	base.Inventory = entity.NewInventory([]entity.Stack{{Item: "LOG", Count: 1}}, 2)
	e := entity.NewMutable(base)

	craft, ok := NewCraft(w.env, "log_to_planks")
	if !ok || craft.TimeCostMillis() != 1000 {
		t.Fatalf("NewCraft: %+v %v", craft, ok)
	}
	if (Craft{Recipe: "log_to_planks", Millis: 10}).Apply(w.ctx(), e) {
		t.Fatalf("underpriced craft accepted")
	}
	if !craft.Apply(w.ctx(), e) {
		t.Fatalf("craft failed")
	}
	if e.Count("LOG") != 0 || e.Count("PLANK") != 2 || e.Weight() != 2 {
		t.Fatalf("after craft: log=%d plank=%d weight=%d", e.Count("LOG"), e.Count("PLANK"), e.Weight())
	}
	if craft.Apply(w.ctx(), e) {
		t.Fatalf("craft without inputs accepted")
	}

	sticks, _ := NewCraft(w.env, "planks_to_sticks")
	heavy := entity.New(4, at(1, 1, 1), 100)
	heavy.Inventory = entity.NewInventory([]entity.Stack{{Item: "PLANK", Count: 2}, {Item: "STONE", Count: 99}}, 200)
	h := entity.NewMutable(heavy)
	if sticks.Apply(w.ctx(), h) {
		t.Fatalf("craft over max weight accepted")
	}
	if h.Count("PLANK") != 2 || h.Freeze() != heavy {
		t.Fatalf("failed craft left partial state")
	}
}

func TestHit_ExportsCreatureDamage(t *testing.T) {
	w := newWorld(t)
	e := entity.NewMutable(entity.New(5, at(1, 1, 1), 100))
	if !(Hit{Target: -1, Damage: 4}).Apply(w.ctx(), e) {
		t.Fatalf("hit rejected")
	}
	if len(w.out.CreatureChanges) != 1 || w.out.CreatureChanges[0].Target != -1 {
		t.Fatalf("exports: %+v", w.out)
	}
	if (Hit{Target: -9, Damage: 4}).Apply(w.ctx(), e) {
		t.Fatalf("hit on unknown creature accepted")
	}

	c := entity.NewMutableCreature(&entity.Creature{ID: -1, Type: "COW", Health: 3})
	if !(TakeDamage{Amount: 4}).Apply(w.ctx(), c) || c.Health() != 0 {
		t.Fatalf("damage: health=%d", c.Health())
	}
	if (TakeDamage{Amount: 1}).Apply(w.ctx(), c) {
		t.Fatalf("damage on dead creature accepted")
	}
}

func TestGrow_ChainsUntilMature(t *testing.T) {
	w := newWorld(t)
	sapling := w.env.MustBlockID("SAPLING")
	spot := at(5, 1, 5)

	c := cuboid.NewMutable(w.cuboid)
	if !(ReplaceBlock{At: spot, Expect: catalogs.Air, Block: sapling}).Apply(w.ctx(), c) {
		t.Fatalf("plant failed")
	}
	stages := []string{"YOUNG_TREE", "LOG"}
	next := w.out
	for _, want := range stages {
		if len(next.Mutations) != 1 || next.Mutations[0].DelayMillis != 500 {
			t.Fatalf("growth export: %+v", next.Mutations)
		}
		g := next.Mutations[0].Mutation
		if !g.Apply(w.ctx(), c) {
			t.Fatalf("grow into %s failed", want)
		}
		if c.Block(spot.Block()) != w.env.MustBlockID(want) {
			t.Fatalf("block after grow: %d want %s", c.Block(spot.Block()), want)
		}
		next = w.out
	}
	if !next.Empty() {
		t.Fatalf("mature block kept growing: %+v", next)
	}
}

func TestEatAndStore(t *testing.T) {
	w := newWorld(t)
	e := entity.NewMutable(entity.New(6, at(1, 1, 1), 95))
	if !(StoreItems{Item: "APPLE", Count: 1}).Apply(w.ctx(), e) {
		t.Fatalf("store failed")
	}
	if (StoreItems{Item: "NOPE", Count: 1}).Apply(w.ctx(), e) {
		t.Fatalf("store of unknown item accepted")
	}
	if !(Eat{Item: "APPLE"}).Apply(w.ctx(), e) || e.Health() != 100 || e.Count("APPLE") != 0 {
		t.Fatalf("eat: health=%d apples=%d", e.Health(), e.Count("APPLE"))
	}
	if (SelectItem{Item: "APPLE"}).Apply(w.ctx(), e) {
		t.Fatalf("selecting a missing item accepted")
	}
}

func TestTicksUntilDue(t *testing.T) {
	cases := []struct{ delay, min, want int64 }{
		{0, 0, 0},
		{0, 1, 1},
		{1, 0, 1},
		{100, 1, 1},
		{101, 1, 2},
		{500, 1, 5},
	}
	for _, tc := range cases {
		if got := TicksUntilDue(tc.delay, 100, tc.min); got != tc.want {
			t.Fatalf("TicksUntilDue(%d, 100, %d)=%d want %d", tc.delay, tc.min, got, tc.want)
		}
	}
}

func TestCodec_RoundTripAndUnknown(t *testing.T) {
	in := []Tagged{
		Move{To: at(1, 2, 3), CostMillis: 150},
		Craft{Recipe: "log_to_planks", Millis: 1000},
		Cancel{},
		IncrementalBreak{At: at(-4, 0, 9), Breaker: 3, Damage: 20},
		TakeDamage{Amount: 2},
	}
	for _, v := range in {
		b, err := Encode(v)
		if err != nil {
			t.Fatalf("Encode %s: %v", v.Kind(), err)
		}
		if Kind(b[0]) != v.Kind() {
			t.Fatalf("tag byte %d for %s", b[0], v.Kind())
		}
		out, err := Decode(b)
		if err != nil {
			t.Fatalf("Decode %s: %v", v.Kind(), err)
		}
		if out != v {
			t.Fatalf("round trip %s: %#v != %#v", v.Kind(), out, v)
		}
	}

	if _, err := Decode([]byte{0xEE, 0x80}); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if _, err := Decode(nil); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
	b, _ := Encode(SetBlock{At: at(0, 0, 0), Block: 1})
	if _, err := DecodeEntityChange(b); err == nil {
		t.Fatalf("block mutation decoded as entity change")
	}
	if k, ok := KindByName("CRAFT"); !ok || k != KindCraft {
		t.Fatalf("KindByName: %v %v", k, ok)
	}
}
