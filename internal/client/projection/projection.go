// Package projection is the client side of the simulation: it applies the local entity's
// changes speculatively, before the server confirms them, and reconciles that prediction
// against every authoritative tick.
//
// A Projection is not safe for concurrent use. Feed it network ticks and local input from the
// same goroutine.
package projection

import (
	"go.uber.org/zap"

	"tickcraft.ai/internal/sim/assert"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/tuning"
)

// ServerTick is the authoritative content of one tick as this client may see it.
type ServerTick struct {
	Tick int64

	AddedEntities   []*entity.PartialEntity
	RemovedEntities []int32
	EntityUpdates   []*entity.PartialEntity

	// ThisEntity is the full local entity, sent once. ThisEntityUpdate replaces it afterwards.
	ThisEntity       *entity.Entity
	ThisEntityUpdate *entity.Entity

	AddedCuboids   []*cuboid.Cuboid
	RemovedCuboids []geom.CuboidAddress
	BlockUpdates   []mutation.SetBlock

	// LatestLocalCommitIncluded is the highest local commit level the server has processed,
	// whether the change succeeded or not.
	LatestLocalCommitIncluded int64
}

// Listener is how presentation learns about state changes. Every call reports projected state.
type Listener interface {
	CuboidDidLoad(c *cuboid.Cuboid)
	CuboidDidChange(c *cuboid.Cuboid, changed []geom.BlockAddress)
	CuboidDidUnload(a geom.CuboidAddress)
	ThisEntityDidLoad(e *entity.Entity)
	ThisEntityDidChange(authoritative, projected *entity.Entity)
	OtherEntityDidLoad(e *entity.PartialEntity)
	OtherEntityDidChange(e *entity.PartialEntity)
	OtherEntityDidUnload(id int32)
}

// work is one follow-up consequence: an entity change for the local entity or a block mutation.
type work struct {
	change   mutation.EntityChange
	mutation mutation.BlockMutation
}

// followUps[i] holds the consequences due i+1 ticks after the tick they were computed against.
type followUps [][]work

type speculative struct {
	commit    int64
	change    mutation.EntityChange
	followUps followUps
	appliedAt int64
}

type Projection struct {
	env      *catalogs.Catalogs
	tuning   tuning.Tuning
	localID  int32
	listener Listener
	log      *zap.Logger

	active     bool
	serverTick int64
	nextCommit int64

	shadow    state
	projected state
	queue     []speculative
	schedule  followUps

	// Blocks the speculative layer has written in the current projected state.
	specTouched map[geom.CuboidAddress]map[geom.BlockAddress]struct{}

	// Last entity values handed to the listener.
	notifiedAuth *entity.Entity
	notifiedProj *entity.Entity
}

func New(env *catalogs.Catalogs, cfg tuning.Tuning, localID int32, l Listener, log *zap.Logger) *Projection {
	cfg.ApplyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Projection{
		env:         env,
		tuning:      cfg,
		localID:     localID,
		listener:    l,
		log:         log.Named("projection"),
		shadow:      newState(),
		projected:   newState(),
		schedule:    make(followUps, cfg.MaxFollowUpTicks),
		specTouched: map[geom.CuboidAddress]map[geom.BlockAddress]struct{}{},
	}
}

// Active reports whether the local entity has arrived.
func (p *Projection) Active() bool { return p.active }

// PendingCount is the number of unconfirmed local changes.
func (p *Projection) PendingCount() int { return len(p.queue) }

func (p *Projection) ProjectedEntity() *entity.Entity { return p.projected.entity }

func (p *Projection) ShadowEntity() *entity.Entity { return p.shadow.entity }

func (p *Projection) ProjectedBlock(l geom.AbsoluteLocation) (uint16, bool) {
	return p.projected.block(l)
}

func (p *Projection) ProjectedOther(id int32) *entity.PartialEntity { return p.projected.others[id] }

// ApplyLocalChange predicts change on top of the projected state and returns the commit level
// to send with it, or 0 if it was rejected locally and must not be sent.
func (p *Projection) ApplyLocalChange(change mutation.EntityChange, nowMillis int64) int64 {
	if !p.active {
		return 0
	}
	if change.Kind() == mutation.KindCancel && len(p.queue) == 0 {
		return 0
	}

	next := p.projected.clone()
	touched := map[geom.CuboidAddress]map[geom.BlockAddress]struct{}{}
	f, ok := p.applyWithFollowUps(&next, change, touched)
	if !ok {
		return 0
	}

	p.nextCommit++
	p.queue = append(p.queue, speculative{commit: p.nextCommit, change: change, followUps: f, appliedAt: nowMillis})
	old := p.projected
	p.projected = next
	mergeTouched(p.specTouched, touched)
	p.notify(old, touched, nil)
	return p.nextCommit
}

// ApplyChangesForServerTick folds one authoritative tick into the shadow state, drops the
// local changes it confirmed, replays the rest and notifies the listener of the net effect.
// It returns the number of local changes still unconfirmed.
func (p *Projection) ApplyChangesForServerTick(u ServerTick, nowMillis int64) int {
	// Authoritative content goes to the shadow only.
	replaced := map[geom.CuboidAddress]struct{}{}
	authTouched := p.applyAuthoritative(u, replaced)
	p.serverTick = u.Tick

	// Entries in the old projection that the new shadow no longer shares by identity.
	reverted := map[geom.CuboidAddress]struct{}{}
	for a, c := range p.projected.cuboids {
		if p.shadow.cuboids[a] != c {
			reverted[a] = struct{}{}
		}
	}

	p.advanceSchedule()

	kept := p.queue[:0]
	for _, s := range p.queue {
		if s.commit > u.LatestLocalCommitIncluded {
			kept = append(kept, s)
			continue
		}
		for i, list := range s.followUps {
			p.schedule[i] = append(p.schedule[i], list...)
		}
		if nowMillis > 0 && s.appliedAt > 0 {
			p.log.Debug("local change confirmed",
				zap.Int64("commit", s.commit),
				zap.Int64("latency_ms", nowMillis-s.appliedAt))
		}
	}
	p.queue = kept

	old, oldTouched := p.projected, p.specTouched
	p.rebuild()

	candidates := map[geom.CuboidAddress]map[geom.BlockAddress]struct{}{}
	mergeTouched(candidates, authTouched)
	mergeTouched(candidates, oldTouched)
	mergeTouched(candidates, p.specTouched)
	for a := range replaced {
		delete(candidates, a)
	}
	p.notify(old, candidates, reverted)
	return len(p.queue)
}

func (p *Projection) applyAuthoritative(u ServerTick, replaced map[geom.CuboidAddress]struct{}) map[geom.CuboidAddress]map[geom.BlockAddress]struct{} {
	sh := &p.shadow
	sh.cuboids = cloneMap(sh.cuboids)
	sh.others = cloneMap(sh.others)

	for _, a := range u.RemovedCuboids {
		delete(sh.cuboids, a)
	}
	for _, c := range u.AddedCuboids {
		_, dup := sh.cuboids[c.Address()]
		assert.True(!dup, "cuboid %s sent twice", c.Address())
		sh.cuboids[c.Address()] = c
	}
	touched := map[geom.CuboidAddress]map[geom.BlockAddress]struct{}{}
	// A cuboid unloaded and reloaded in one tick has no known candidate blocks.
	for _, c := range u.AddedCuboids {
		replaced[c.Address()] = struct{}{}
	}
	if len(u.BlockUpdates) > 0 {
		list := make([]mutation.BlockMutation, len(u.BlockUpdates))
		for i, b := range u.BlockUpdates {
			list[i] = b
		}
		res := applyBlocks(p.context(sh), sh, list)
		for a, blocks := range res {
			addTouched(touched, a, blocks)
		}
	}

	for _, id := range u.RemovedEntities {
		delete(sh.others, id)
	}
	for _, e := range u.AddedEntities {
		sh.others[e.ID] = e
	}
	for _, e := range u.EntityUpdates {
		sh.others[e.ID] = e
	}

	if u.ThisEntity != nil {
		assert.True(!p.active, "local entity %d sent twice", p.localID)
		sh.entity = u.ThisEntity
		p.active = true
	}
	if u.ThisEntityUpdate != nil && p.active {
		sh.entity = u.ThisEntityUpdate
	}
	return touched
}

func (p *Projection) advanceSchedule() {
	n := len(p.schedule)
	if n == 0 {
		return
	}
	copy(p.schedule, p.schedule[1:])
	p.schedule[n-1] = nil
}

// rebuild recomputes the projected state from the shadow: scheduled consequences of confirmed
// changes first, then every unconfirmed change in order. Changes that no longer apply are dropped.
func (p *Projection) rebuild() {
	next := p.shadow.clone()
	touched := map[geom.CuboidAddress]map[geom.BlockAddress]struct{}{}

	for k := 1; k <= len(p.schedule); k++ {
		p.step(&next, k, nil, p.schedule[k-1], nil, touched)
	}

	kept := p.queue[:0]
	for _, s := range p.queue {
		f, ok := p.applyWithFollowUps(&next, s.change, touched)
		if !ok {
			p.log.Debug("speculative change no longer applies",
				zap.Int64("commit", s.commit),
				zap.Stringer("kind", s.change.Kind()))
			continue
		}
		s.followUps = f
		kept = append(kept, s)
	}
	for i := len(kept); i < len(p.queue); i++ {
		p.queue[i] = speculative{}
	}
	p.queue = kept
	p.projected = next
	p.specTouched = touched
}
