package entity

import (
	"sort"

	"tickcraft.ai/internal/sim/geom"
)

const KindPlayer = "PLAYER"

// Entity is the full state of one client-owned entity. Values are never modified after
// construction; a new version replaces the old one by ID.
type Entity struct {
	ID        int32
	Location  geom.AbsoluteLocation
	Health    int
	Inventory Inventory
	Selected  string
}

// PartialEntity is what other clients can see of an entity or creature.
type PartialEntity struct {
	ID       int32
	Kind     string
	Location geom.AbsoluteLocation
	Health   int
}

// Creature is an AI-driven entity. Creature ids are negative.
type Creature struct {
	ID       int32
	Type     string
	Location geom.AbsoluteLocation
	Health   int
}

func New(id int32, loc geom.AbsoluteLocation, health int) *Entity {
	return &Entity{ID: id, Location: loc, Health: health}
}

func (e *Entity) Partial() *PartialEntity {
	return &PartialEntity{ID: e.ID, Kind: KindPlayer, Location: e.Location, Health: e.Health}
}

func (e *Entity) Equal(o *Entity) bool {
	if e == o {
		return true
	}
	if e == nil || o == nil {
		return false
	}
	return e.ID == o.ID && e.Location == o.Location && e.Health == o.Health &&
		e.Selected == o.Selected && e.Inventory.Equal(o.Inventory)
}

func (p *PartialEntity) Equal(o *PartialEntity) bool {
	if p == o {
		return true
	}
	if p == nil || o == nil {
		return false
	}
	return *p == *o
}

func (c *Creature) Partial() *PartialEntity {
	return &PartialEntity{ID: c.ID, Kind: c.Type, Location: c.Location, Health: c.Health}
}

// Inventory is an immutable item->count bag with a cached total weight.
type Inventory struct {
	items  map[string]int
	weight int
}

type Stack struct {
	Item  string `json:"item" msgpack:"item"`
	Count int    `json:"count" msgpack:"count"`
}

// NewInventory builds an inventory from stacks; weight is the caller-computed total.
func NewInventory(stacks []Stack, weight int) Inventory {
	inv := Inventory{weight: weight}
	for _, s := range stacks {
		if s.Count <= 0 {
			continue
		}
		if inv.items == nil {
			inv.items = map[string]int{}
		}
		inv.items[s.Item] += s.Count
	}
	return inv
}

func (i Inventory) Count(item string) int { return i.items[item] }

func (i Inventory) Weight() int { return i.weight }

func (i Inventory) Len() int { return len(i.items) }

// Stacks returns the contents sorted by item id.
func (i Inventory) Stacks() []Stack {
	out := make([]Stack, 0, len(i.items))
	for k, v := range i.items {
		out = append(out, Stack{Item: k, Count: v})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Item < out[b].Item })
	return out
}

func (i Inventory) Equal(o Inventory) bool {
	if i.weight != o.weight || len(i.items) != len(o.items) {
		return false
	}
	for k, v := range i.items {
		if o.items[k] != v {
			return false
		}
	}
	return true
}
