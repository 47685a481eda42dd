package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	MillisPerTick      int64 `yaml:"millis_per_tick"`
	WorkerThreads      int   `yaml:"worker_threads"`
	MaxPendingActions  int   `yaml:"max_pending_actions"`
	MaxFollowUpTicks   int   `yaml:"max_follow_up_ticks"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`

	Movement  Movement  `yaml:"movement"`
	Inventory Inventory `yaml:"inventory"`
	World     World     `yaml:"world"`
}

type Movement struct {
	MillisPerBlock  int64 `yaml:"millis_per_block"`
	MaxMoveDistance int64 `yaml:"max_move_distance"`
}

type Inventory struct {
	MaxWeight    int `yaml:"max_weight"`
	EntityHealth int `yaml:"entity_health"`
}

type World struct {
	Seed          int64 `yaml:"seed"`
	SurfaceY      int32 `yaml:"surface_y"`
	RadiusCuboids int   `yaml:"radius_cuboids"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		MillisPerTick:      100,
		WorkerThreads:      4,
		MaxPendingActions:  20,
		MaxFollowUpTicks:   3,
		SnapshotEveryTicks: 3000,
		Movement: Movement{
			MillisPerBlock:  50,
			MaxMoveDistance: 4,
		},
		Inventory: Inventory{
			MaxWeight:    200,
			EntityHealth: 100,
		},
		World: World{
			Seed:          1337,
			SurfaceY:      0,
			RadiusCuboids: 1,
		},
	}
}

// ApplyDefaults fills every zero field from Defaults.
func (t *Tuning) ApplyDefaults() {
	d := Defaults()
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = d.ProtocolVersion
	}
	if t.MillisPerTick <= 0 {
		t.MillisPerTick = d.MillisPerTick
	}
	if t.WorkerThreads <= 0 {
		t.WorkerThreads = d.WorkerThreads
	}
	if t.MaxPendingActions <= 0 {
		t.MaxPendingActions = d.MaxPendingActions
	}
	if t.MaxFollowUpTicks <= 0 {
		t.MaxFollowUpTicks = d.MaxFollowUpTicks
	}
	if t.SnapshotEveryTicks <= 0 {
		t.SnapshotEveryTicks = d.SnapshotEveryTicks
	}
	if t.Movement.MillisPerBlock <= 0 {
		t.Movement.MillisPerBlock = d.Movement.MillisPerBlock
	}
	if t.Movement.MaxMoveDistance <= 0 {
		t.Movement.MaxMoveDistance = d.Movement.MaxMoveDistance
	}
	if t.Inventory.MaxWeight <= 0 {
		t.Inventory.MaxWeight = d.Inventory.MaxWeight
	}
	if t.Inventory.EntityHealth <= 0 {
		t.Inventory.EntityHealth = d.Inventory.EntityHealth
	}
	if t.World.Seed == 0 {
		t.World.Seed = d.World.Seed
	}
	if t.World.RadiusCuboids <= 0 {
		t.World.RadiusCuboids = d.World.RadiusCuboids
	}
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}
