package main

import (
	"encoding/json"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"tickcraft.ai/internal/client/projection"
	"tickcraft.ai/internal/protocol"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/tuning"
)

// bot wanders, places dirt next to itself and digs it up again. Every action goes through the
// projection first and is only sent when the prediction accepts it.
type bot struct {
	env        *catalogs.Catalogs
	tune       tuning.Tuning
	proj       *projection.Projection
	log        *zap.Logger
	rng        *rand.Rand
	maxPending int

	step   int
	sent   int
	events events
}

func newBot(env *catalogs.Catalogs, tune tuning.Tuning, w protocol.WelcomeMsg, seed int64, log *zap.Logger) *bot {
	tune.MillisPerTick = w.WorldParams.MillisPerTick
	tune.MaxPendingActions = w.WorldParams.MaxPendingActions
	tune.MaxFollowUpTicks = w.WorldParams.MaxFollowUpTicks
	if w.Catalogs.BlockPalette.Digest != env.Blocks.PaletteDigest {
		log.Warn("server block palette differs from local catalogs; predictions will diverge")
	}
	b := &bot{env: env, tune: tune, log: log, rng: rand.New(rand.NewSource(seed)), maxPending: 2}
	b.proj = projection.New(env, tune, w.EntityID, &b.events, log)
	return b
}

// onTick folds one TICK into the projection and returns the actions to send next.
func (b *bot) onTick(raw []byte, nowMillis int64) ([]protocol.ActMsg, error) {
	var msg protocol.TickMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode tick: %w", err)
	}
	u, err := msg.ServerTick()
	if err != nil {
		return nil, err
	}
	pending := b.proj.ApplyChangesForServerTick(u, nowMillis)
	if pending >= b.maxPending || !b.proj.Active() {
		return nil, nil
	}
	change := b.next()
	if change == nil {
		return nil, nil
	}
	commit := b.proj.ApplyLocalChange(change, nowMillis)
	if commit == 0 {
		return nil, nil
	}
	act, err := protocol.NewAct(commit, change)
	if err != nil {
		return nil, err
	}
	b.sent++
	return []protocol.ActMsg{act}, nil
}

func (b *bot) next() mutation.EntityChange {
	self := b.proj.ProjectedEntity()
	beside := self.Location.Add(1, 0, 0)
	b.step++
	switch b.step % 3 {
	case 0:
		to := self.Location.Add(int32(b.rng.Intn(3)-1), 0, int32(b.rng.Intn(3)-1))
		return mutation.NewMove(self.Location, to, b.tune.Movement.MillisPerBlock)
	case 1:
		if self.Inventory.Count("DIRT") == 0 {
			return nil
		}
		return mutation.PlaceBlock{Target: beside, Item: "DIRT"}
	default:
		id, ok := b.proj.ProjectedBlock(beside)
		if !ok {
			return nil
		}
		def, ok := b.env.Block(id)
		if !ok || !def.Breakable || id == catalogs.Air {
			return nil
		}
		return mutation.BreakBlock{Target: beside, Millis: def.ToughnessMillis}
	}
}

// events counts listener callbacks.
type events struct {
	cuboidsLoaded, blockChanges, cuboidsUnloaded int
	selfChanges, othersLoaded, othersChanged     int
	othersUnloaded                               int
}

func (e *events) CuboidDidLoad(*cuboid.Cuboid) { e.cuboidsLoaded++ }
func (e *events) CuboidDidChange(_ *cuboid.Cuboid, changed []geom.BlockAddress) {
	e.blockChanges += len(changed)
}
func (e *events) CuboidDidUnload(geom.CuboidAddress)         { e.cuboidsUnloaded++ }
func (e *events) ThisEntityDidLoad(*entity.Entity)           {}
func (e *events) ThisEntityDidChange(_, _ *entity.Entity)    { e.selfChanges++ }
func (e *events) OtherEntityDidLoad(*entity.PartialEntity)   { e.othersLoaded++ }
func (e *events) OtherEntityDidChange(*entity.PartialEntity) { e.othersChanged++ }
func (e *events) OtherEntityDidUnload(int32)                 { e.othersUnloaded++ }
