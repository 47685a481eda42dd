package cuboid

import (
	"fmt"
	"sort"

	"tickcraft.ai/internal/sim/geom"
)

// Volume is the number of blocks in one cuboid.
const Volume = geom.Edge * geom.Edge * geom.Edge

// Cuboid is an immutable 32x32x32 partition of the world.
// A changed cuboid is a new *Cuboid; pointer identity is the change signal.
type Cuboid struct {
	addr   geom.CuboidAddress
	blocks []uint16
	// Sparse damage aspect (incremental breaking). Never written after construction.
	damage map[geom.BlockAddress]uint16
}

// New returns a cuboid filled with a single block type.
func New(addr geom.CuboidAddress, fill uint16) *Cuboid {
	blocks := make([]uint16, Volume)
	if fill != 0 {
		for i := range blocks {
			blocks[i] = fill
		}
	}
	return &Cuboid{addr: addr, blocks: blocks}
}

// FromBlocks takes ownership of blocks.
func FromBlocks(addr geom.CuboidAddress, blocks []uint16) (*Cuboid, error) {
	if len(blocks) != Volume {
		return nil, fmt.Errorf("cuboid %v: %d blocks, want %d", addr, len(blocks), Volume)
	}
	return &Cuboid{addr: addr, blocks: blocks}, nil
}

func (c *Cuboid) Address() geom.CuboidAddress { return c.addr }

func (c *Cuboid) Block(b geom.BlockAddress) uint16 { return c.blocks[b.Index()] }

func (c *Cuboid) Damage(b geom.BlockAddress) uint16 { return c.damage[b] }

// Damaged lists the blocks carrying damage, in storage order.
func (c *Cuboid) Damaged() []geom.BlockAddress {
	out := make([]geom.BlockAddress, 0, len(c.damage))
	for b := range c.damage {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// Each calls fn for every block index in storage order.
func (c *Cuboid) Each(fn func(i int, block uint16)) {
	for i, v := range c.blocks {
		fn(i, v)
	}
}

// Mutable is a copy-on-write builder over one Cuboid. It is owned by a single goroutine.
type Mutable struct {
	base    *Cuboid
	blocks  []uint16
	damage  map[geom.BlockAddress]uint16
	touched map[geom.BlockAddress]struct{}
	dirty   bool
}

func NewMutable(base *Cuboid) *Mutable {
	return &Mutable{base: base}
}

func (m *Mutable) Address() geom.CuboidAddress { return m.base.addr }

func (m *Mutable) Block(b geom.BlockAddress) uint16 {
	if m.blocks != nil {
		return m.blocks[b.Index()]
	}
	return m.base.blocks[b.Index()]
}

func (m *Mutable) SetBlock(b geom.BlockAddress, v uint16) {
	if m.Block(b) == v {
		return
	}
	if m.blocks == nil {
		m.blocks = make([]uint16, Volume)
		copy(m.blocks, m.base.blocks)
	}
	m.blocks[b.Index()] = v
	m.touch(b)
}

func (m *Mutable) Damage(b geom.BlockAddress) uint16 {
	if m.damage != nil {
		return m.damage[b]
	}
	return m.base.damage[b]
}

func (m *Mutable) SetDamage(b geom.BlockAddress, v uint16) {
	if m.Damage(b) == v {
		return
	}
	if m.damage == nil {
		m.damage = make(map[geom.BlockAddress]uint16, len(m.base.damage)+1)
		for k, d := range m.base.damage {
			m.damage[k] = d
		}
	}
	if v == 0 {
		delete(m.damage, b)
	} else {
		m.damage[b] = v
	}
	m.touch(b)
}

func (m *Mutable) touch(b geom.BlockAddress) {
	if m.touched == nil {
		m.touched = map[geom.BlockAddress]struct{}{}
	}
	m.touched[b] = struct{}{}
	m.dirty = true
}

// Touched lists every block address written over the builder's lifetime, in storage order.
func (m *Mutable) Touched() []geom.BlockAddress {
	out := make([]geom.BlockAddress, 0, len(m.touched))
	for b := range m.touched {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index() < out[j].Index() })
	return out
}

// Freeze returns the resulting cuboid. With no effective writes the original pointer comes back.
func (m *Mutable) Freeze() *Cuboid {
	if !m.dirty {
		return m.base
	}
	out := &Cuboid{addr: m.base.addr, blocks: m.base.blocks, damage: m.base.damage}
	if m.blocks != nil {
		out.blocks = m.blocks
	}
	if m.damage != nil {
		if len(m.damage) == 0 {
			out.damage = nil
		} else {
			out.damage = m.damage
		}
	}
	// Rebase so later writes copy again instead of aliasing the frozen storage.
	m.base, m.blocks, m.damage, m.dirty = out, nil, nil, false
	return out
}
