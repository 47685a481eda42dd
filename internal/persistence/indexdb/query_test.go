package indexdb

import (
	"context"
	"testing"

	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
)

func TestSQLiteIndex_Queries(t *testing.T) {
	idx := open(t)
	ctx := context.Background()

	_ = idx.WriteTick(ticklog.TickEntry{Tick: 1, EntityPhaseMicros: 10, BlockPhaseMicros: 5,
		Commits: []ticklog.CommitEntry{{Entity: 3, Level: 1, Actions: []string{"MOVE"}}}})
	_ = idx.WriteTick(ticklog.TickEntry{Tick: 2, EntityPhaseMicros: 900, BlockPhaseMicros: 100, Digest: "ff"})
	_ = idx.WriteTick(ticklog.TickEntry{Tick: 3, EntityPhaseMicros: 40,
		Commits: []ticklog.CommitEntry{{Entity: 3, Level: 4, Actions: []string{"PLACE_BLOCK", "BREAK_BLOCK"}}}})
	idx.RecordSnapshot("/s/2", snapshot.SnapshotV1{Header: snapshot.Header{Tick: 2, Digest: "ff"}, Cuboids: make([]snapshot.CuboidV1, 3)})
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	slow, err := idx.SlowestTicks(ctx, 2)
	if err != nil || len(slow) != 2 || slow[0].Tick != 2 || slow[0].Digest != "ff" || slow[1].Tick != 3 {
		t.Fatalf("slowest %+v: %v", slow, err)
	}
	commits, err := idx.Commits(ctx, 3, 0)
	if err != nil || len(commits) != 2 || commits[1].Level != 4 || len(commits[1].Actions) != 2 {
		t.Fatalf("commits %+v: %v", commits, err)
	}
	snaps, err := idx.Snapshots(ctx, 0)
	if err != nil || len(snaps) != 1 || snaps[0].Path != "/s/2" || snaps[0].Cuboids != 3 {
		t.Fatalf("snapshots %+v: %v", snaps, err)
	}
}
