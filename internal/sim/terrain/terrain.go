// Package terrain generates the initial cuboids of a world. Generation is a pure function of
// the seed and the address, so any cuboid can be regenerated on demand.
package terrain

import (
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/tuning"
)

type Generator struct {
	Seed     int64
	SurfaceY int32

	// Per-mille chance of a surface feature on a grass column.
	SaplingPermille int
	LogPermille     int
	// No features within this many blocks of the origin so spawns are always open.
	SpawnClearRadius int32

	air, bedrock, stone, dirt, grass, log, sapling uint16
}

func New(env *catalogs.Catalogs, w tuning.World) *Generator {
	return &Generator{
		Seed:             w.Seed,
		SurfaceY:         w.SurfaceY,
		SaplingPermille:  8,
		LogPermille:      4,
		SpawnClearRadius: 6,
		air:              catalogs.Air,
		bedrock:          env.MustBlockID("BEDROCK"),
		stone:            env.MustBlockID("STONE"),
		dirt:             env.MustBlockID("DIRT"),
		grass:            env.MustBlockID("GRASS"),
		log:              env.MustBlockID("LOG"),
		sapling:          env.MustBlockID("SAPLING"),
	}
}

// Cuboid builds the cuboid at a. Layers, top down: grass at SurfaceY-1, three dirt, stone,
// and bedrock 32 blocks under the surface.
func (g *Generator) Cuboid(a geom.CuboidAddress) *cuboid.Cuboid {
	base := a.Base()
	blocks := make([]uint16, cuboid.Volume)
	for z := int32(0); z < geom.Edge; z++ {
		for x := int32(0); x < geom.Edge; x++ {
			wx, wz := base.X+x, base.Z+z
			feature := g.featureAt(wx, wz)
			for y := int32(0); y < geom.Edge; y++ {
				wy := base.Y + y
				b := g.layer(wy)
				if wy == g.SurfaceY && feature != g.air {
					b = feature
				}
				if b == g.air {
					continue
				}
				blocks[geom.BlockAddress{X: uint8(x), Y: uint8(y), Z: uint8(z)}.Index()] = b
			}
		}
	}
	c, _ := cuboid.FromBlocks(a, blocks)
	return c
}

func (g *Generator) layer(wy int32) uint16 {
	depth := g.SurfaceY - wy
	switch {
	case depth <= 0:
		return g.air
	case depth == 1:
		return g.grass
	case depth <= 4:
		return g.dirt
	case depth < geom.Edge:
		return g.stone
	default:
		return g.bedrock
	}
}

func (g *Generator) featureAt(wx, wz int32) uint16 {
	if wx*wx+wz*wz <= g.SpawnClearRadius*g.SpawnClearRadius {
		return g.air
	}
	roll := int(hash2(g.Seed, wx, wz) % 1000)
	switch {
	case roll < g.SaplingPermille:
		return g.sapling
	case roll < g.SaplingPermille+g.LogPermille:
		return g.log
	}
	return g.air
}

// Region lists the cuboid addresses within radius cuboids of the origin column, covering the
// surface layer and the one below it.
func (g *Generator) Region(radius int) []geom.CuboidAddress {
	surface := geom.AbsoluteLocation{Y: g.SurfaceY}.Cuboid().Y
	var out []geom.CuboidAddress
	for x := -radius; x <= radius; x++ {
		for z := -radius; z <= radius; z++ {
			for _, y := range []int16{surface - 1, surface} {
				out = append(out, geom.CuboidAddress{X: int16(x), Y: y, Z: int16(z)})
			}
		}
	}
	return out
}

// Spawn is where entity id stands on joining: on the surface, spread along a diagonal.
func (g *Generator) Spawn(id int32) geom.AbsoluteLocation {
	d := (id % 4) - 2
	return geom.AbsoluteLocation{X: d, Y: g.SurfaceY, Z: -d}
}

// Creatures places count deterministic creatures on the surface outside the spawn clearing.
func (g *Generator) Creatures(count int, health int) []*entity.Creature {
	out := make([]*entity.Creature, 0, count)
	for i := 0; i < count; i++ {
		h := hash2(g.Seed+int64(i), int32(i), -int32(i))
		x := int32(h%24) - 12
		z := int32((h>>16)%24) - 12
		if x*x+z*z <= g.SpawnClearRadius*g.SpawnClearRadius {
			x += g.SpawnClearRadius + 1
		}
		out = append(out, &entity.Creature{
			ID:       -int32(i + 1),
			Type:     "COW",
			Location: geom.AbsoluteLocation{X: x, Y: g.SurfaceY, Z: z},
			Health:   health,
		})
	}
	return out
}

func hash2(seed int64, x, z int32) uint64 {
	ux := uint64(uint32(x))
	uz := uint64(uint32(z))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
