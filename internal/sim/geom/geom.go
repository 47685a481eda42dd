package geom

import "fmt"

// Edge is the side length of a cuboid in blocks.
const Edge = 32

const (
	shiftY = 5
	shiftZ = 10
	mask5  = 31
)

// CuboidAddress identifies a cuboid in cuboid-space (one unit = Edge blocks).
type CuboidAddress struct{ X, Y, Z int16 }

// BlockAddress is a block position local to its cuboid (0..31 on each axis).
type BlockAddress struct{ X, Y, Z uint8 }

// AbsoluteLocation is a block position in world space.
type AbsoluteLocation struct{ X, Y, Z int32 }

func (c CuboidAddress) String() string { return fmt.Sprintf("c(%d,%d,%d)", c.X, c.Y, c.Z) }

func (c CuboidAddress) Base() AbsoluteLocation {
	return AbsoluteLocation{X: int32(c.X) * Edge, Y: int32(c.Y) * Edge, Z: int32(c.Z) * Edge}
}

// Index is the linear index of the block inside cuboid storage.
func (b BlockAddress) Index() int {
	return int(b.X) | int(b.Y)<<shiftY | int(b.Z)<<shiftZ
}

func BlockFromIndex(i int) BlockAddress {
	return BlockAddress{X: uint8(i & mask5), Y: uint8((i >> shiftY) & mask5), Z: uint8((i >> shiftZ) & mask5)}
}

func (l AbsoluteLocation) String() string { return fmt.Sprintf("(%d,%d,%d)", l.X, l.Y, l.Z) }

func (l AbsoluteLocation) Cuboid() CuboidAddress {
	return CuboidAddress{X: int16(floorDiv(l.X)), Y: int16(floorDiv(l.Y)), Z: int16(floorDiv(l.Z))}
}

func (l AbsoluteLocation) Block() BlockAddress {
	return BlockAddress{X: uint8(mod(l.X)), Y: uint8(mod(l.Y)), Z: uint8(mod(l.Z))}
}

func (l AbsoluteLocation) Add(dx, dy, dz int32) AbsoluteLocation {
	return AbsoluteLocation{X: l.X + dx, Y: l.Y + dy, Z: l.Z + dz}
}

// Manhattan returns the block-grid distance between two locations.
func (l AbsoluteLocation) Manhattan(o AbsoluteLocation) int64 {
	return abs(int64(l.X)-int64(o.X)) + abs(int64(l.Y)-int64(o.Y)) + abs(int64(l.Z)-int64(o.Z))
}

func Join(c CuboidAddress, b BlockAddress) AbsoluteLocation {
	return c.Base().Add(int32(b.X), int32(b.Y), int32(b.Z))
}

func floorDiv(v int32) int32 {
	q := v / Edge
	if v%Edge < 0 {
		q--
	}
	return q
}

func mod(v int32) int32 {
	m := v % Edge
	if m < 0 {
		m += Edge
	}
	return m
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
