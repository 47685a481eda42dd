package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"tickcraft.ai/internal/config"
	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/terrain"
	"tickcraft.ai/internal/sim/tuning"
)

func setup(t *testing.T) (*catalogs.Catalogs, tuning.Tuning, *terrain.Generator) {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	tune := tuning.Defaults()
	tune.WorkerThreads = 2
	return cats, tune, terrain.New(cats, tune.World)
}

func TestSpawner_StarterItems(t *testing.T) {
	cats, tune, gen := setup(t)
	spawn, err := spawner(cats, tune, gen, map[string]int{"DIRT": 8, "LOG": 2})
	if err != nil {
		t.Fatalf("spawner: %v", err)
	}
	e := spawn(3)
	if e.ID != 3 || e.Location != gen.Spawn(3) || e.Health != tune.Inventory.EntityHealth {
		t.Fatalf("entity %+v", e)
	}
	if e.Inventory.Count("DIRT") != 8 || e.Inventory.Count("LOG") != 2 {
		t.Fatalf("inventory %+v", e.Inventory.Stacks())
	}
	if e.Inventory.Weight() != 8*1+2*2 {
		t.Fatalf("weight = %d", e.Inventory.Weight())
	}
}

func TestSpawner_Rejects(t *testing.T) {
	cats, tune, gen := setup(t)
	if _, err := spawner(cats, tune, gen, map[string]int{"DIAMOND": 1}); err == nil {
		t.Fatalf("unknown item accepted")
	}
	if _, err := spawner(cats, tune, gen, map[string]int{"DIRT": tune.Inventory.MaxWeight + 1}); err == nil {
		t.Fatalf("overweight starter kit accepted")
	}
}

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000000000900.snap.zst", "000000003000.snap.zst", "junk.snap.zst", "000000009999.json"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := latestSnapshot(dir); got != filepath.Join(dir, "000000003000.snap.zst") {
		t.Fatalf("latest = %q", got)
	}
	if got := latestSnapshot(filepath.Join(dir, "missing")); got != "" {
		t.Fatalf("missing dir = %q", got)
	}
}

func TestLoadWorld_FreshThenResume(t *testing.T) {
	cats, tune, gen := setup(t)
	cfg := config.Defaults()
	cfg.Storage.DataDir = t.TempDir()
	src := worldSource{Cfg: cfg, Cats: cats, Tune: tune, Gen: gen, LoadLatest: true}

	fresh, err := loadWorld(src, zap.NewNop())
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	r := tune.World.RadiusCuboids
	if fresh.Tick != 0 || len(fresh.Cuboids) != (2*r+1)*(2*r+1)*2 || len(fresh.Creatures) != cfg.World.Creatures {
		t.Fatalf("fresh world: tick %d, %d cuboids, %d creatures", fresh.Tick, len(fresh.Cuboids), len(fresh.Creatures))
	}

	e := engine.New(engine.Config{Env: cats, Tuning: tune, StartTick: 40})
	t.Cleanup(e.Shutdown)
	e.CuboidsWereLoaded(fresh.Cuboids)
	for _, c := range fresh.Creatures {
		e.CreatureDidSpawn(c)
	}
	s := e.Start()
	snap := snapshot.Capture(s, tune.World.Seed, tune.MillisPerTick, cats.Blocks.PaletteDigest)
	if err := snapshot.WriteSnapshot(snapshot.Path(filepath.Join(cfg.Storage.DataDir, "snapshots"), s.Tick), snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	resumed, err := loadWorld(src, zap.NewNop())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Tick != 41 || len(resumed.Cuboids) != len(fresh.Cuboids) || len(resumed.Creatures) != len(fresh.Creatures) {
		t.Fatalf("resumed world: tick %d, %d cuboids, %d creatures", resumed.Tick, len(resumed.Cuboids), len(resumed.Creatures))
	}
}

func TestLoadWorld_RejectsForeignPalette(t *testing.T) {
	cats, tune, gen := setup(t)
	cfg := config.Defaults()
	cfg.Storage.DataDir = t.TempDir()
	path := filepath.Join(cfg.Storage.DataDir, "bad.snap.zst")
	snap := snapshot.SnapshotV1{Header: snapshot.Header{Version: snapshot.Version, Tick: 5}, PaletteDigest: "other"}
	snap.Header.Digest = snap.Digest()
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := worldSource{Cfg: cfg, Cats: cats, Tune: tune, Gen: gen, Snapshot: path}
	if _, err := loadWorld(src, zap.NewNop()); err == nil {
		t.Fatalf("foreign palette accepted")
	}
}

type entries struct {
	mu  sync.Mutex
	got []ticklog.TickEntry
}

func (w *entries) WriteTick(e ticklog.TickEntry) error {
	w.mu.Lock()
	w.got = append(w.got, e)
	w.mu.Unlock()
	return nil
}

func TestTickSink_FansOut(t *testing.T) {
	cats, tune, gen := setup(t)
	dir := t.TempDir()
	var written []int64
	x := snapshot.NewExporter(snapshot.ExporterConfig{
		Dir:        dir,
		EveryTicks: 2,
		OnWrite:    func(_ string, snap snapshot.SnapshotV1) { written = append(written, snap.Header.Tick) },
	})
	w := &entries{}
	broadcasts := 0
	sink := &tickSink{
		Seed:          tune.World.Seed,
		MillisPerTick: tune.MillisPerTick,
		PaletteDigest: cats.Blocks.PaletteDigest,
		Broadcast:     func(*engine.Snapshot) { broadcasts++ },
		Writers:       []tickWriter{w},
		Exporter:      x,
		Logger:        zap.NewNop(),
	}
	e := engine.New(engine.Config{Env: cats, Tuning: tune, Listener: sink.Publish})
	e.CuboidsWereLoaded([]*cuboid.Cuboid{gen.Cuboid(gen.Region(0)[1])})
	e.Start()
	for i := 0; i < 3; i++ {
		e.RunTick()
	}
	e.Shutdown()
	x.Close()

	if broadcasts != 4 || len(w.got) != 4 {
		t.Fatalf("broadcasts %d, entries %d", broadcasts, len(w.got))
	}
	for _, entry := range w.got {
		if due := entry.Tick%2 == 0; due != (entry.Digest != "") {
			t.Fatalf("tick %d digest %q", entry.Tick, entry.Digest)
		}
	}
	if len(written) != 2 || written[0] != 0 || written[1] != 2 {
		t.Fatalf("snapshots written at %v", written)
	}
}
