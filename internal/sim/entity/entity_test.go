package entity

import (
	"testing"

	"tickcraft.ai/internal/sim/geom"
)

func TestMutableEntity_NoChangeKeepsPointer(t *testing.T) {
	e := New(1, geom.AbsoluteLocation{X: 1}, 100)
	m := NewMutable(e)
	m.SetLocation(e.Location)
	m.SetHealth(100)
	if m.Freeze() != e {
		t.Fatalf("expected same pointer")
	}
}

func TestMutableEntity_Inventory(t *testing.T) {
	e := New(1, geom.AbsoluteLocation{}, 100)
	m := NewMutable(e)
	if !m.AddItems("LOG", 3, 2, 10) {
		t.Fatalf("add failed")
	}
	if m.AddItems("LOG", 3, 2, 10) {
		t.Fatalf("expected weight limit rejection")
	}
	m.SetSelected("LOG")
	if !m.RemoveItems("LOG", 3, 2) {
		t.Fatalf("remove failed")
	}
	if m.RemoveItems("LOG", 1, 2) {
		t.Fatalf("remove from empty succeeded")
	}
	if !m.AddItems("DIRT", 2, 1, 10) {
		t.Fatalf("add dirt failed")
	}
	out := m.Freeze()
	if e.Inventory.Len() != 0 {
		t.Fatalf("base inventory mutated")
	}
	if out.Inventory.Count("DIRT") != 2 || out.Inventory.Count("LOG") != 0 || out.Inventory.Weight() != 2 {
		t.Fatalf("inventory=%v weight=%d", out.Inventory.Stacks(), out.Inventory.Weight())
	}
	if out.Selected != "" {
		t.Fatalf("selection should clear when stack empties, got %q", out.Selected)
	}

	// Writes after Freeze do not leak into the frozen value.
	m.AddItems("DIRT", 1, 1, 10)
	if out.Inventory.Count("DIRT") != 2 {
		t.Fatalf("frozen inventory aliased")
	}
}

func TestEntity_Equal(t *testing.T) {
	a := &Entity{ID: 1, Health: 5, Inventory: NewInventory([]Stack{{Item: "LOG", Count: 1}}, 2)}
	b := &Entity{ID: 1, Health: 5, Inventory: NewInventory([]Stack{{Item: "LOG", Count: 1}}, 2)}
	if !a.Equal(b) {
		t.Fatalf("expected equal")
	}
	c := &Entity{ID: 1, Health: 4, Inventory: a.Inventory}
	if a.Equal(c) {
		t.Fatalf("expected not equal")
	}
}

func TestMutableCreature_HealthClamp(t *testing.T) {
	c := &Creature{ID: -1, Type: "COW", Health: 3}
	m := NewMutableCreature(c)
	m.SetHealth(-5)
	out := m.Freeze()
	if out.Health != 0 || c.Health != 3 {
		t.Fatalf("health=%d base=%d", out.Health, c.Health)
	}
}
