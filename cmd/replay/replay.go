package main

import (
	"fmt"
	"sort"

	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/tuning"
)

func verifySnapshot(snap snapshot.SnapshotV1, cats *catalogs.Catalogs) error {
	if got := snap.Digest(); got != snap.Header.Digest {
		return fmt.Errorf("digest mismatch: computed %s, header %s", got, snap.Header.Digest)
	}
	if cats != nil && snap.PaletteDigest != cats.Blocks.PaletteDigest {
		return fmt.Errorf("block palette %s does not match configs (%s)", snap.PaletteDigest, cats.Blocks.PaletteDigest)
	}
	return nil
}

type logSummary struct {
	First, Last int64
	Ticks       int
	Gaps        int
	Commits     map[int32]int64
	Actions     map[string]int
	Dropped     int
	// SnapshotDigest is the digest logged at the snapshot's tick, if that tick was logged.
	SnapshotDigest string
}

// scanTickLog reads every tick log file in dataDir, checks the ticks are increasing and
// collects the commit history. snapTick selects which logged digest to report.
func scanTickLog(dataDir string, snapTick int64) (logSummary, error) {
	sum := logSummary{Commits: map[int32]int64{}, Actions: map[string]int{}}
	files, err := ticklog.TickLogFiles(dataDir)
	if err != nil {
		return sum, err
	}
	for _, path := range files {
		err := ticklog.ReadTickFile(path, func(e ticklog.TickEntry) error {
			if sum.Ticks > 0 {
				if e.Tick <= sum.Last {
					return fmt.Errorf("tick %d logged after %d", e.Tick, sum.Last)
				}
				if e.Tick != sum.Last+1 {
					sum.Gaps++
				}
			} else {
				sum.First = e.Tick
			}
			sum.Last = e.Tick
			sum.Ticks++
			sum.Dropped += e.DroppedMutations
			for _, c := range e.Commits {
				if c.Level <= sum.Commits[c.Entity] {
					return fmt.Errorf("tick %d: entity %d commit %d after %d", e.Tick, c.Entity, c.Level, sum.Commits[c.Entity])
				}
				sum.Commits[c.Entity] = c.Level
				for _, a := range c.Actions {
					sum.Actions[a]++
				}
			}
			if e.Tick == snapTick {
				sum.SnapshotDigest = e.Digest
			}
			return nil
		})
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// simulate seeds an engine with the snapshot's world and runs ticks with no input. Entities are
// not restored, matching a server restart.
func simulate(snap snapshot.SnapshotV1, cats *catalogs.Catalogs, tune tuning.Tuning, workers int, ticks int) (string, error) {
	cuboids, err := snap.CuboidValues()
	if err != nil {
		return "", err
	}
	tune.WorkerThreads = workers
	e := engine.New(engine.Config{Env: cats, Tuning: tune, StartTick: snap.Header.Tick + 1})
	defer e.Shutdown()
	e.CuboidsWereLoaded(cuboids)
	for _, c := range snap.CreatureValues() {
		e.CreatureDidSpawn(c)
	}
	s := e.Start()
	for i := 0; i < ticks; i++ {
		s = e.RunTick()
	}
	return snapshot.Capture(s, snap.Seed, snap.MillisPerTick, snap.PaletteDigest).Header.Digest, nil
}

func sortedActions(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
