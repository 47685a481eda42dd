package entity

import "tickcraft.ai/internal/sim/geom"

// MutableEntity is a single-goroutine builder over an Entity. Freeze returns the base pointer
// when nothing changed, which keeps identity-based change detection exact.
type MutableEntity struct {
	base     *Entity
	location geom.AbsoluteLocation
	health   int
	selected string
	items    map[string]int
	weight   int
	changed  bool
}

func NewMutable(e *Entity) *MutableEntity {
	return &MutableEntity{
		base:     e,
		location: e.Location,
		health:   e.Health,
		selected: e.Selected,
		weight:   e.Inventory.weight,
	}
}

func (m *MutableEntity) ID() int32 { return m.base.ID }

func (m *MutableEntity) Location() geom.AbsoluteLocation { return m.location }

func (m *MutableEntity) SetLocation(l geom.AbsoluteLocation) {
	if l != m.location {
		m.location = l
		m.changed = true
	}
}

func (m *MutableEntity) Health() int { return m.health }

func (m *MutableEntity) SetHealth(h int) {
	if h != m.health {
		m.health = h
		m.changed = true
	}
}

func (m *MutableEntity) Selected() string { return m.selected }

func (m *MutableEntity) SetSelected(item string) {
	if item != m.selected {
		m.selected = item
		m.changed = true
	}
}

func (m *MutableEntity) Count(item string) int {
	if m.items != nil {
		return m.items[item]
	}
	return m.base.Inventory.items[item]
}

func (m *MutableEntity) Weight() int { return m.weight }

// AddItems adds count units of unitWeight each, refusing to exceed maxWeight.
func (m *MutableEntity) AddItems(item string, count, unitWeight, maxWeight int) bool {
	if count <= 0 {
		return false
	}
	w := m.weight + count*unitWeight
	if maxWeight > 0 && w > maxWeight {
		return false
	}
	m.ensureItems()
	m.items[item] += count
	m.weight = w
	m.changed = true
	return true
}

// RemoveItems removes count units, failing if fewer are held.
func (m *MutableEntity) RemoveItems(item string, count, unitWeight int) bool {
	if count <= 0 || m.Count(item) < count {
		return false
	}
	m.ensureItems()
	m.items[item] -= count
	if m.items[item] == 0 {
		delete(m.items, item)
		if m.selected == item {
			m.selected = ""
		}
	}
	m.weight -= count * unitWeight
	m.changed = true
	return true
}

func (m *MutableEntity) ensureItems() {
	if m.items != nil {
		return
	}
	m.items = make(map[string]int, len(m.base.Inventory.items)+1)
	for k, v := range m.base.Inventory.items {
		m.items[k] = v
	}
}

func (m *MutableEntity) Freeze() *Entity {
	if !m.changed {
		return m.base
	}
	inv := m.base.Inventory
	if m.items != nil {
		inv = Inventory{weight: m.weight}
		if len(m.items) > 0 {
			inv.items = m.items
		}
	}
	out := &Entity{
		ID:        m.base.ID,
		Location:  m.location,
		Health:    m.health,
		Inventory: inv,
		Selected:  m.selected,
	}
	// Rebase so later writes copy again instead of aliasing the frozen map.
	m.base, m.items, m.changed = out, nil, false
	return out
}

// MutableCreature is the creature counterpart of MutableEntity.
type MutableCreature struct {
	base     *Creature
	location geom.AbsoluteLocation
	health   int
	changed  bool
}

func NewMutableCreature(c *Creature) *MutableCreature {
	return &MutableCreature{base: c, location: c.Location, health: c.Health}
}

func (m *MutableCreature) ID() int32 { return m.base.ID }

func (m *MutableCreature) Type() string { return m.base.Type }

func (m *MutableCreature) Location() geom.AbsoluteLocation { return m.location }

func (m *MutableCreature) SetLocation(l geom.AbsoluteLocation) {
	if l != m.location {
		m.location = l
		m.changed = true
	}
}

func (m *MutableCreature) Health() int { return m.health }

func (m *MutableCreature) SetHealth(h int) {
	if h < 0 {
		h = 0
	}
	if h != m.health {
		m.health = h
		m.changed = true
	}
}

func (m *MutableCreature) Freeze() *Creature {
	if !m.changed {
		return m.base
	}
	return &Creature{ID: m.base.ID, Type: m.base.Type, Location: m.location, Health: m.health}
}
