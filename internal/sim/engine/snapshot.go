package engine

import (
	"time"

	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
)

// Snapshot is the published result of one tick. Nothing in it is modified after publication;
// consumers may keep references across ticks and compare values by pointer.
type Snapshot struct {
	Tick int64

	Entities     map[int32]*entity.Entity
	Creatures    map[int32]*entity.Creature
	Cuboids      map[geom.CuboidAddress]*cuboid.Cuboid
	CommitLevels map[int32]int64

	CommittedChanges   map[int32][]mutation.EntityChange
	CommittedMutations map[geom.CuboidAddress][]mutation.BlockMutation
	ChangedBlocks      map[geom.CuboidAddress][]geom.BlockAddress

	// Exports scheduled for later ticks, with the delay they were exported with.
	ExportedMutations       []mutation.ScheduledMutation
	ExportedChanges         []mutation.ScheduledChange
	ExportedCreatureChanges []mutation.ScheduledCreatureChange

	Stats TickStats
}

type TickStats struct {
	Tick               int64
	Entities           int
	Creatures          int
	Cuboids            int
	CommittedChanges   int
	CommittedMutations int
	DroppedMutations   int
	EntityPhase        time.Duration
	BlockPhase         time.Duration
}

// Block reads one block. ok is false when the cuboid is not loaded.
func (s *Snapshot) Block(l geom.AbsoluteLocation) (uint16, bool) {
	c, ok := s.Cuboids[l.Cuboid()]
	if !ok {
		return 0, false
	}
	return c.Block(l.Block()), true
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Entities:           map[int32]*entity.Entity{},
		Creatures:          map[int32]*entity.Creature{},
		Cuboids:            map[geom.CuboidAddress]*cuboid.Cuboid{},
		CommitLevels:       map[int32]int64{},
		CommittedChanges:   map[int32][]mutation.EntityChange{},
		CommittedMutations: map[geom.CuboidAddress][]mutation.BlockMutation{},
		ChangedBlocks:      map[geom.CuboidAddress][]geom.BlockAddress{},
	}
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
