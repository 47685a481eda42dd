package protocol

import (
	"encoding/base64"
	"errors"
	"fmt"

	"tickcraft.ai/internal/client/projection"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
)

// ErrNegativeCost rejects an ACT whose declared cost is negative; only CANCEL carries the
// negative sentinel.
var ErrNegativeCost = errors.New("act: negative time cost")

// clientKinds are the actions a client may send; everything else only arises on the server.
var clientKinds = map[mutation.Kind]bool{
	mutation.KindMove:       true,
	mutation.KindBreakBlock: true,
	mutation.KindPlaceBlock: true,
	mutation.KindCraft:      true,
	mutation.KindHit:        true,
	mutation.KindEat:        true,
	mutation.KindCancel:     true,
	mutation.KindSelectItem: true,
}

func NewAct(commit int64, c mutation.EntityChange) (ActMsg, error) {
	b, err := mutation.Encode(c)
	if err != nil {
		return ActMsg{}, err
	}
	return ActMsg{
		Type:            TypeAct,
		ProtocolVersion: Version,
		Commit:          commit,
		Action:          base64.StdEncoding.EncodeToString(b),
	}, nil
}

// Change decodes the action carried by an ACT message.
func (m ActMsg) Change() (mutation.EntityChange, error) {
	raw, err := base64.StdEncoding.DecodeString(m.Action)
	if err != nil {
		return nil, fmt.Errorf("act: %w", err)
	}
	c, err := mutation.DecodeEntityChange(raw)
	if err != nil {
		return nil, err
	}
	if !clientKinds[c.Kind()] {
		return nil, fmt.Errorf("act: %s is server-only", c.Kind())
	}
	if c.TimeCostMillis() < 0 && c.Kind() != mutation.KindCancel {
		return nil, fmt.Errorf("%w: %s costs %d", ErrNegativeCost, c.Kind(), c.TimeCostMillis())
	}
	return c, nil
}

func NewKick(code, message string) KickMsg {
	return KickMsg{Type: TypeKick, ProtocolVersion: Version, Code: code, Message: message}
}

// NewTick converts one client's tick update to its wire form.
func NewTick(u projection.ServerTick) TickMsg {
	m := TickMsg{
		Type:            TypeTick,
		ProtocolVersion: Version,
		Tick:            u.Tick,
		LatestCommit:    u.LatestLocalCommitIncluded,
		RemovedEntities: u.RemovedEntities,
	}
	switch {
	case u.ThisEntity != nil:
		m.Self, m.SelfIsNew = entityPayload(u.ThisEntity), true
	case u.ThisEntityUpdate != nil:
		m.Self = entityPayload(u.ThisEntityUpdate)
	}
	for _, e := range u.AddedEntities {
		m.AddedEntities = append(m.AddedEntities, partialPayload(e))
	}
	for _, e := range u.EntityUpdates {
		m.EntityUpdates = append(m.EntityUpdates, partialPayload(e))
	}
	for _, c := range u.AddedCuboids {
		m.AddedCuboids = append(m.AddedCuboids, cuboidPayload(c))
	}
	for _, a := range u.RemovedCuboids {
		m.RemovedCuboids = append(m.RemovedCuboids, addrPayload(a))
	}
	for _, b := range u.BlockUpdates {
		m.BlockUpdates = append(m.BlockUpdates, BlockPayload{Pos: pos(b.At), Block: b.Block, Damage: b.Damage})
	}
	return m
}

// ServerTick converts a TICK message back into the projection's input.
func (m TickMsg) ServerTick() (projection.ServerTick, error) {
	u := projection.ServerTick{
		Tick:                      m.Tick,
		LatestLocalCommitIncluded: m.LatestCommit,
		RemovedEntities:           m.RemovedEntities,
	}
	if m.Self != nil {
		e := m.Self.Entity()
		if m.SelfIsNew {
			u.ThisEntity = e
		} else {
			u.ThisEntityUpdate = e
		}
	}
	for _, p := range m.AddedEntities {
		u.AddedEntities = append(u.AddedEntities, p.Partial())
	}
	for _, p := range m.EntityUpdates {
		u.EntityUpdates = append(u.EntityUpdates, p.Partial())
	}
	for _, cp := range m.AddedCuboids {
		c, err := cp.Cuboid()
		if err != nil {
			return projection.ServerTick{}, err
		}
		u.AddedCuboids = append(u.AddedCuboids, c)
	}
	for _, a := range m.RemovedCuboids {
		u.RemovedCuboids = append(u.RemovedCuboids, address(a))
	}
	for _, b := range m.BlockUpdates {
		u.BlockUpdates = append(u.BlockUpdates, mutation.SetBlock{At: location(b.Pos), Block: b.Block, Damage: b.Damage})
	}
	return u, nil
}

func entityPayload(e *entity.Entity) *EntityPayload {
	stacks := e.Inventory.Stacks()
	inv := make([]ItemStack, 0, len(stacks))
	for _, s := range stacks {
		inv = append(inv, ItemStack{Item: s.Item, Count: s.Count})
	}
	return &EntityPayload{
		ID:        e.ID,
		Pos:       pos(e.Location),
		Health:    e.Health,
		Inventory: inv,
		Weight:    e.Inventory.Weight(),
		Selected:  e.Selected,
	}
}

func (p *EntityPayload) Entity() *entity.Entity {
	stacks := make([]entity.Stack, 0, len(p.Inventory))
	for _, s := range p.Inventory {
		stacks = append(stacks, entity.Stack{Item: s.Item, Count: s.Count})
	}
	return &entity.Entity{
		ID:        p.ID,
		Location:  location(p.Pos),
		Health:    p.Health,
		Inventory: entity.NewInventory(stacks, p.Weight),
		Selected:  p.Selected,
	}
}

func partialPayload(e *entity.PartialEntity) PartialPayload {
	return PartialPayload{ID: e.ID, Kind: e.Kind, Pos: pos(e.Location), Health: e.Health}
}

func (p PartialPayload) Partial() *entity.PartialEntity {
	return &entity.PartialEntity{ID: p.ID, Kind: p.Kind, Location: location(p.Pos), Health: p.Health}
}

func cuboidPayload(c *cuboid.Cuboid) CuboidPayload {
	out := CuboidPayload{Addr: addrPayload(c.Address()), RLE: cuboid.EncodeRLE(c)}
	base := c.Address()
	for _, b := range c.Damaged() {
		out.Damage = append(out.Damage, BlockPayload{Pos: pos(geom.Join(base, b)), Block: c.Block(b), Damage: c.Damage(b)})
	}
	return out
}

func (p CuboidPayload) Cuboid() (*cuboid.Cuboid, error) {
	a := address(p.Addr)
	c, err := cuboid.DecodeRLE(a, p.RLE)
	if err != nil {
		return nil, fmt.Errorf("cuboid %v: %w", a, err)
	}
	if len(p.Damage) == 0 {
		return c, nil
	}
	m := cuboid.NewMutable(c)
	for _, d := range p.Damage {
		l := location(d.Pos)
		if l.Cuboid() != a {
			return nil, fmt.Errorf("cuboid %v: damage at %v outside", a, l)
		}
		m.SetDamage(l.Block(), d.Damage)
	}
	return m.Freeze(), nil
}

func pos(l geom.AbsoluteLocation) [3]int32 { return [3]int32{l.X, l.Y, l.Z} }

func location(p [3]int32) geom.AbsoluteLocation {
	return geom.AbsoluteLocation{X: p[0], Y: p[1], Z: p[2]}
}

func addrPayload(a geom.CuboidAddress) [3]int { return [3]int{int(a.X), int(a.Y), int(a.Z)} }

func address(p [3]int) geom.CuboidAddress {
	return geom.CuboidAddress{X: int16(p[0]), Y: int16(p[1]), Z: int16(p[2])}
}
