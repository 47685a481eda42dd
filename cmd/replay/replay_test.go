package main

import (
	"testing"

	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/terrain"
	"tickcraft.ai/internal/sim/tuning"
)

func captured(t *testing.T) (snapshot.SnapshotV1, *catalogs.Catalogs, tuning.Tuning) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.WorkerThreads = 2
	gen := terrain.New(cats, tune.World)
	var cuboids []*cuboid.Cuboid
	for _, a := range gen.Region(1) {
		cuboids = append(cuboids, gen.Cuboid(a))
	}
	e := engine.New(engine.Config{Env: cats, Tuning: tune, StartTick: 100})
	t.Cleanup(e.Shutdown)
	e.CuboidsWereLoaded(cuboids)
	for _, c := range gen.Creatures(3, 20) {
		e.CreatureDidSpawn(c)
	}
	s := e.Start()
	return snapshot.Capture(s, tune.World.Seed, tune.MillisPerTick, cats.Blocks.PaletteDigest), cats, tune
}

func TestVerifySnapshot(t *testing.T) {
	snap, cats, _ := captured(t)
	if err := verifySnapshot(snap, cats); err != nil {
		t.Fatalf("verify: %v", err)
	}
	tampered := snap
	tampered.Creatures = append([]snapshot.CreatureV1(nil), snap.Creatures...)
	tampered.Creatures[0].Health++
	if err := verifySnapshot(tampered, cats); err == nil {
		t.Fatalf("tampered snapshot verified")
	}
	foreign := snap
	foreign.PaletteDigest = "x"
	if err := verifySnapshot(foreign, cats); err == nil {
		t.Fatalf("foreign palette verified")
	}
}

func TestScanTickLog(t *testing.T) {
	dir := t.TempDir()
	l := ticklog.NewTickLogger(dir)
	entries := []ticklog.TickEntry{
		{Tick: 10, Commits: []ticklog.CommitEntry{{Entity: 1, Level: 1, Actions: []string{"MOVE"}}}},
		{Tick: 11, Digest: "abc"},
		{Tick: 13, DroppedMutations: 2, Commits: []ticklog.CommitEntry{{Entity: 1, Level: 3, Actions: []string{"MOVE", "PLACE_BLOCK"}}}},
	}
	for _, e := range entries {
		if err := l.WriteTick(e); err != nil {
			t.Fatal(err)
		}
	}
	_ = l.Close()

	sum, err := scanTickLog(dir, 11)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if sum.Ticks != 3 || sum.First != 10 || sum.Last != 13 || sum.Gaps != 1 || sum.Dropped != 2 {
		t.Fatalf("summary %+v", sum)
	}
	if sum.Commits[1] != 3 || sum.Actions["MOVE"] != 2 || sum.SnapshotDigest != "abc" {
		t.Fatalf("summary %+v", sum)
	}
}

func TestScanTickLog_RejectsCommitRegression(t *testing.T) {
	dir := t.TempDir()
	l := ticklog.NewTickLogger(dir)
	_ = l.WriteTick(ticklog.TickEntry{Tick: 1, Commits: []ticklog.CommitEntry{{Entity: 4, Level: 5}}})
	_ = l.WriteTick(ticklog.TickEntry{Tick: 2, Commits: []ticklog.CommitEntry{{Entity: 4, Level: 5}}})
	_ = l.Close()
	if _, err := scanTickLog(dir, 0); err == nil {
		t.Fatalf("repeated commit level accepted")
	}
}

func TestSimulate_SameAcrossWorkerCounts(t *testing.T) {
	snap, cats, tune := captured(t)
	a, err := simulate(snap, cats, tune, 1, 20)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	b, err := simulate(snap, cats, tune, 4, 20)
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if a != b {
		t.Fatalf("digests differ: %s vs %s", a, b)
	}
}
