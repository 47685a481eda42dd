package process

import (
	"testing"

	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/tuning"
)

func testContext(t *testing.T, cuboids map[geom.CuboidAddress]*cuboid.Cuboid) (mutation.Context, *catalogs.Catalogs) {
	t.Helper()
	env, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return mutation.Context{
		Tick:   1,
		Env:    env,
		Tuning: tuning.Defaults(),
		LookupBlock: func(l geom.AbsoluteLocation) (uint16, bool) {
			c, ok := cuboids[l.Cuboid()]
			if !ok {
				return 0, false
			}
			return c.Block(l.Block()), true
		},
	}, env
}

func TestProcessEntities_ServerBeforeClient(t *testing.T) {
	ctx, _ := testContext(t, nil)
	e := entity.New(1, geom.AbsoluteLocation{}, 90)
	idle := entity.New(2, geom.AbsoluteLocation{}, 100)
	ents := map[int32]*entity.Entity{1: e, 2: idle}

	// The apple only exists once the server-origin store has run.
	res := ProcessEntities(ctx, ents, map[int32]EntityWork{
		1: {
			Server: []mutation.EntityChange{mutation.StoreItems{Item: "APPLE", Count: 1}},
			Client: []mutation.EntityChange{mutation.Eat{Item: "APPLE"}, mutation.Eat{Item: "APPLE"}},
		},
		2:  {},
		99: {Client: []mutation.EntityChange{mutation.Cancel{}}},
	})
	if res.CommittedCount != 1 || len(res.Committed[1]) != 1 {
		t.Fatalf("committed: %d %+v", res.CommittedCount, res.Committed)
	}
	if got := res.Entities[1]; got == e || got.Health != 100 {
		t.Fatalf("entity 1: %+v", got)
	}
	if res.Entities[2] != idle {
		t.Fatalf("idle entity replaced")
	}
	if _, ok := res.Entities[99]; ok {
		t.Fatalf("work for an unknown entity produced a value")
	}
}

func TestProcessCuboids_IdentityAndTouched(t *testing.T) {
	a := geom.CuboidAddress{}
	b := geom.CuboidAddress{X: 1}
	cubs := map[geom.CuboidAddress]*cuboid.Cuboid{a: cuboid.New(a, catalogs.Air), b: cuboid.New(b, catalogs.Air)}
	ctx, env := testContext(t, cubs)
	stone := env.MustBlockID("STONE")

	target := geom.AbsoluteLocation{X: 2, Y: 3, Z: 4}
	work := BucketByCuboid(nil, []mutation.BlockMutation{
		mutation.SetBlock{At: target, Block: stone},
		mutation.ReplaceBlock{At: target, Expect: catalogs.Air, Block: stone, Source: 5, RefundItem: "STONE"},
		mutation.SetBlock{At: geom.AbsoluteLocation{X: 40}, Block: catalogs.Air},
		mutation.SetBlock{At: geom.AbsoluteLocation{X: 99}, Block: stone},
	})
	res := ProcessCuboids(ctx, cubs, work)

	if res.Cuboids[a] == cubs[a] || res.Cuboids[a].Block(target.Block()) != stone {
		t.Fatalf("cuboid a not rebuilt")
	}
	if res.Cuboids[b] != cubs[b] {
		t.Fatalf("no-op write replaced cuboid b")
	}
	if _, ok := res.ChangedBlocks[b]; ok {
		t.Fatalf("unchanged cuboid reported changed blocks")
	}
	if got := res.ChangedBlocks[a]; len(got) != 1 || got[0] != target.Block() {
		t.Fatalf("changed blocks: %v", got)
	}
	if res.Dropped != 1 {
		t.Fatalf("dropped: %d", res.Dropped)
	}
	// The replace lost the race and refunds next tick.
	if res.CommittedCount != 2 || len(res.All().Changes) != 1 || res.All().Changes[0].Target != 5 {
		t.Fatalf("committed=%d exports=%+v", res.CommittedCount, res.Exports)
	}
}

func TestProcessCreatures(t *testing.T) {
	ctx, _ := testContext(t, nil)
	cow := &entity.Creature{ID: -3, Type: "COW", Health: 5}
	res := ProcessCreatures(ctx, map[int32]*entity.Creature{-3: cow}, map[int32][]mutation.CreatureChange{
		-3: {mutation.TakeDamage{Amount: 2}, mutation.TakeDamage{Amount: 0}},
	})
	if res.CommittedCount != 1 || res.Creatures[-3].Health != 3 || cow.Health != 5 {
		t.Fatalf("creature result: %+v committed=%d", res.Creatures[-3], res.CommittedCount)
	}
}

func TestSortedAddresses(t *testing.T) {
	m := map[geom.CuboidAddress]int{{X: 1}: 0, {Z: -1}: 0, {Y: 2}: 0, {X: -1, Y: 5}: 0}
	got := SortedAddresses(m)
	want := []geom.CuboidAddress{{X: -1, Y: 5}, {Z: -1}, {Y: 2}, {X: 1}}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: %v", got)
		}
	}
}
