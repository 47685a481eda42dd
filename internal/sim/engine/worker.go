package engine

import (
	"go.uber.org/zap"

	"tickcraft.ai/internal/sim/process"
)

// runWorker is one member of the pool. Every iteration is one tick: stitch point, entity
// phase, mid-tick barrier, block phase.
func (e *Engine) runWorker(i int) {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			// A half-applied tick cannot be repaired.
			e.log.Fatal("tick worker panicked",
				zap.Int("worker", i),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	for {
		if e.barrier.arrive() {
			e.stitch()
			e.barrier.releaseWaitingThreads()
		}
		p := e.plan
		if p.tick < 0 {
			return
		}
		w := &p.work[i]
		part := &e.partials[i]
		part.entities = process.ProcessEntities(p.ctx, p.entities, w.entities)
		part.creatures = process.ProcessCreatures(p.ctx, p.creatures, w.creatures)

		if e.barrier.arrive() {
			e.gatherSameTick(p)
			e.barrier.releaseWaitingThreads()
		}
		part.cuboids = process.ProcessCuboids(p.ctx, p.cuboids, w.cuboids)
	}
}
