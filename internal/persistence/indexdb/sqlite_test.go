package indexdb

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/tuning"
)

func open(t *testing.T) *SQLiteIndex {
	t.Helper()
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestSQLiteIndex_TicksAndCommits(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	_ = idx.WriteTick(ticklog.TickEntry{Tick: 1, Entities: 2, CommittedChanges: 2,
		Commits: []ticklog.CommitEntry{{Entity: 7, Level: 2, Actions: []string{"MOVE", "CRAFT"}}}})
	_ = idx.WriteTick(ticklog.TickEntry{Tick: 2, Entities: 2})
	_ = idx.WriteTick(ticklog.TickEntry{Tick: 3, Entities: 2, Digest: "abcd",
		Commits: []ticklog.CommitEntry{{Entity: 7, Level: 3, Actions: []string{"CANCEL"}}}})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM ticks`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("ticks=%d err=%v", n, err)
	}
	var actions string
	if err := idx.db.QueryRow(`SELECT actions FROM commits WHERE tick=1 AND entity_id=7`).Scan(&actions); err != nil || actions != "MOVE,CRAFT" {
		t.Fatalf("actions=%q err=%v", actions, err)
	}
	var digestCount int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE digest IS NOT NULL`).Scan(&digestCount); err != nil || digestCount != 1 {
		t.Fatalf("digests=%d err=%v", digestCount, err)
	}

	hist, err := idx.CommitHistory(ctx, 7)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0] != [2]int64{1, 2} || hist[1] != [2]int64{3, 3} {
		t.Fatalf("history %v", hist)
	}
}

func TestSQLiteIndex_LatestSnapshot(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	if _, _, _, err := idx.LatestSnapshot(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("empty index: %v", err)
	}
	idx.RecordSnapshot("/data/a", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 100, Digest: "d1"}, Seed: 9})
	idx.RecordSnapshot("/data/b", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 300, Digest: "d3"}, Seed: 9})
	idx.RecordSnapshot("/data/c", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 200, Digest: "d2"}, Seed: 9})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	tick, path, digest, err := idx.LatestSnapshot(ctx)
	if err != nil || tick != 300 || path != "/data/b" || digest != "d3" {
		t.Fatalf("latest: %d %s %s %v", tick, path, digest, err)
	}
}

func TestSQLiteIndex_UpsertCatalogs(t *testing.T) {
	idx := open(t)
	env, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	if err := idx.UpsertCatalogs("../../../configs", env, tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	var digest string
	if err := idx.db.QueryRow(`SELECT digest FROM catalogs WHERE name='blocks_palette'`).Scan(&digest); err != nil || digest != env.Blocks.PaletteDigest {
		t.Fatalf("palette digest %q err %v", digest, err)
	}
	var n int
	if err := idx.db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 6 {
		t.Fatalf("catalog rows=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_ClosedIsNoop(t *testing.T) {
	idx := open(t)
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteTick(ticklog.TickEntry{Tick: 1}); err != nil {
		t.Fatalf("write after close: %v", err)
	}
	if err := idx.Flush(context.Background()); err != nil {
		t.Fatalf("flush after close: %v", err)
	}
}
