package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tickcraft.ai/internal/config"
	"tickcraft.ai/internal/persistence/indexdb"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/terrain"
	"tickcraft.ai/internal/sim/tuning"
)

type worldSource struct {
	Cfg   *config.Config
	Cats  *catalogs.Catalogs
	Tune  tuning.Tuning
	Gen   *terrain.Generator
	Index *indexdb.SQLiteIndex

	Snapshot   string
	LoadLatest bool
}

// startState is what the engine is seeded with before Start.
type startState struct {
	Tick      int64
	Cuboids   []*cuboid.Cuboid
	Creatures []*entity.Creature
}

// loadWorld resumes from a snapshot when one is named or found, and generates a fresh world
// otherwise. Entities are not restored: clients rejoin after a restart.
func loadWorld(src worldSource, logger *zap.Logger) (startState, error) {
	path := strings.TrimSpace(src.Snapshot)
	if path == "" && src.LoadLatest {
		path = findLatest(src.Index, filepath.Join(src.Cfg.Storage.DataDir, "snapshots"), logger)
	}
	if path == "" {
		st := startState{Creatures: src.Gen.Creatures(src.Cfg.World.Creatures, src.Cfg.World.CreatureHealth)}
		for _, a := range src.Gen.Region(src.Tune.World.RadiusCuboids) {
			st.Cuboids = append(st.Cuboids, src.Gen.Cuboid(a))
		}
		logger.Info("generated fresh world",
			zap.Int64("seed", src.Gen.Seed),
			zap.Int("cuboids", len(st.Cuboids)),
			zap.Int("creatures", len(st.Creatures)))
		return st, nil
	}

	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return startState{}, fmt.Errorf("read snapshot: %w", err)
	}
	if got := snap.Digest(); got != snap.Header.Digest {
		return startState{}, fmt.Errorf("snapshot %s: digest %s, header says %s", path, got, snap.Header.Digest)
	}
	if snap.PaletteDigest != src.Cats.Blocks.PaletteDigest {
		return startState{}, fmt.Errorf("snapshot %s: block palette differs from configs", path)
	}
	if snap.MillisPerTick != src.Tune.MillisPerTick {
		logger.Warn("snapshot tick length differs from tuning",
			zap.Int64("snapshot", snap.MillisPerTick),
			zap.Int64("tuning", src.Tune.MillisPerTick))
	}
	cuboids, err := snap.CuboidValues()
	if err != nil {
		return startState{}, fmt.Errorf("snapshot %s: %w", path, err)
	}
	logger.Info("resumed from snapshot",
		zap.String("path", path),
		zap.Int64("tick", snap.Header.Tick),
		zap.Int("cuboids", len(cuboids)),
		zap.Int("dropped_entities", len(snap.Entities)))
	return startState{
		Tick:      snap.Header.Tick + 1,
		Cuboids:   cuboids,
		Creatures: snap.CreatureValues(),
	}, nil
}

// findLatest asks the index first and falls back to scanning the snapshot directory.
func findLatest(idx *indexdb.SQLiteIndex, dir string, logger *zap.Logger) string {
	if idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, path, _, err := idx.LatestSnapshot(ctx)
		switch {
		case err == nil:
			if _, statErr := os.Stat(path); statErr == nil {
				return path
			}
			logger.Warn("indexed snapshot missing on disk", zap.String("path", path))
		case !errors.Is(err, indexdb.ErrNoSnapshot):
			logger.Warn("index: latest snapshot", zap.Error(err))
		}
	}
	return latestSnapshot(dir)
}

func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick int64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseInt(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// spawner builds joining entities: on the terrain spawn point, full health, starter items.
func spawner(cats *catalogs.Catalogs, tune tuning.Tuning, gen *terrain.Generator, starter map[string]int) (func(int32) *entity.Entity, error) {
	items := make([]string, 0, len(starter))
	for item := range starter {
		items = append(items, item)
	}
	sort.Strings(items)

	var stacks []entity.Stack
	weight := 0
	for _, item := range items {
		def, ok := cats.Item(item)
		if !ok {
			return nil, fmt.Errorf("starter item %s: not in items.json", item)
		}
		stacks = append(stacks, entity.Stack{Item: item, Count: starter[item]})
		weight += def.Weight * starter[item]
	}
	if weight > tune.Inventory.MaxWeight {
		return nil, fmt.Errorf("starter items weigh %d, max_weight is %d", weight, tune.Inventory.MaxWeight)
	}
	return func(id int32) *entity.Entity {
		e := entity.New(id, gen.Spawn(id), tune.Inventory.EntityHealth)
		e.Inventory = entity.NewInventory(stacks, weight)
		return e
	}, nil
}
