package snapshot

import (
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"

	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/process"
)

// Capture converts a published engine snapshot to its file form. Everything is emitted in
// sorted order so equal worlds produce equal files.
func Capture(s *engine.Snapshot, seed, millisPerTick int64, paletteDigest string) SnapshotV1 {
	out := SnapshotV1{
		Header:        Header{Version: Version, Tick: s.Tick},
		Seed:          seed,
		MillisPerTick: millisPerTick,
		PaletteDigest: paletteDigest,
	}
	for _, a := range process.SortedAddresses(s.Cuboids) {
		c := s.Cuboids[a]
		cv := CuboidV1{Addr: [3]int{int(a.X), int(a.Y), int(a.Z)}, RLE: cuboid.EncodeRLE(c)}
		for _, b := range c.Damaged() {
			cv.Damage = append(cv.Damage, DamageV1{Index: b.Index(), Damage: c.Damage(b)})
		}
		out.Cuboids = append(out.Cuboids, cv)
	}
	for _, id := range process.SortedIDs(s.Entities) {
		e := s.Entities[id]
		ev := EntityV1{
			ID:       e.ID,
			Pos:      [3]int32{e.Location.X, e.Location.Y, e.Location.Z},
			Health:   e.Health,
			Weight:   e.Inventory.Weight(),
			Selected: e.Selected,
		}
		for _, st := range e.Inventory.Stacks() {
			if ev.Inventory == nil {
				ev.Inventory = map[string]int{}
			}
			ev.Inventory[st.Item] = st.Count
		}
		out.Entities = append(out.Entities, ev)
	}
	for _, id := range process.SortedIDs(s.Creatures) {
		c := s.Creatures[id]
		out.Creatures = append(out.Creatures, CreatureV1{
			ID:     c.ID,
			Type:   c.Type,
			Pos:    [3]int32{c.Location.X, c.Location.Y, c.Location.Z},
			Health: c.Health,
		})
	}
	for _, id := range process.SortedIDs(s.CommitLevels) {
		out.Commits = append(out.Commits, CommitV1{Entity: id, Level: s.CommitLevels[id]})
	}
	out.Header.Digest = out.Digest()
	return out
}

// Digest is an xxh3 hash over the world content (header excluded).
func (s SnapshotV1) Digest() string {
	h := xxh3.New()
	for _, c := range s.Cuboids {
		fmt.Fprintf(h, "c%v:%s;", c.Addr, c.RLE)
		for _, d := range c.Damage {
			fmt.Fprintf(h, "d%d:%d;", d.Index, d.Damage)
		}
	}
	for _, e := range s.Entities {
		items := make([]string, 0, len(e.Inventory))
		for k := range e.Inventory {
			items = append(items, k)
		}
		sort.Strings(items)
		fmt.Fprintf(h, "e%d:%v:%d:%s;", e.ID, e.Pos, e.Health, e.Selected)
		for _, k := range items {
			fmt.Fprintf(h, "i%s:%d;", k, e.Inventory[k])
		}
	}
	for _, c := range s.Creatures {
		fmt.Fprintf(h, "k%d:%s:%v:%d;", c.ID, c.Type, c.Pos, c.Health)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// CuboidValues rebuilds the cuboids.
func (s SnapshotV1) CuboidValues() ([]*cuboid.Cuboid, error) {
	out := make([]*cuboid.Cuboid, 0, len(s.Cuboids))
	for _, cv := range s.Cuboids {
		a := geom.CuboidAddress{X: int16(cv.Addr[0]), Y: int16(cv.Addr[1]), Z: int16(cv.Addr[2])}
		c, err := cuboid.DecodeRLE(a, cv.RLE)
		if err != nil {
			return nil, fmt.Errorf("cuboid %v: %w", a, err)
		}
		if len(cv.Damage) > 0 {
			m := cuboid.NewMutable(c)
			for _, d := range cv.Damage {
				if d.Index < 0 || d.Index >= cuboid.Volume {
					return nil, fmt.Errorf("cuboid %v: damage index %d", a, d.Index)
				}
				m.SetDamage(geom.BlockFromIndex(d.Index), d.Damage)
			}
			c = m.Freeze()
		}
		out = append(out, c)
	}
	return out, nil
}

func (s SnapshotV1) CreatureValues() []*entity.Creature {
	out := make([]*entity.Creature, 0, len(s.Creatures))
	for _, c := range s.Creatures {
		out = append(out, &entity.Creature{
			ID:       c.ID,
			Type:     c.Type,
			Location: geom.AbsoluteLocation{X: c.Pos[0], Y: c.Pos[1], Z: c.Pos[2]},
			Health:   c.Health,
		})
	}
	return out
}
