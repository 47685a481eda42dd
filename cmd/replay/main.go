package main

import (
	"flag"
	"fmt"
	"os"

	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		dataDir    = flag.String("data", "", "data dir whose tick log to scan (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning file")
		ticks      = flag.Int("simulate", 0, "run this many idle ticks from the snapshot at two worker counts and compare")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d tick=%d seed=%d millis_per_tick=%d cuboids=%d entities=%d creatures=%d digest=%s\n",
		snap.Header.Version, snap.Header.Tick, snap.Seed, snap.MillisPerTick,
		len(snap.Cuboids), len(snap.Entities), len(snap.Creatures), snap.Header.Digest)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	if err := verifySnapshot(snap, cats); err != nil {
		fmt.Fprintln(os.Stderr, "verify:", err)
		os.Exit(1)
	}
	fmt.Println("digest ok")

	if *dataDir != "" {
		sum, err := scanTickLog(*dataDir, snap.Header.Tick)
		if err != nil {
			fmt.Fprintln(os.Stderr, "tick log:", err)
			os.Exit(1)
		}
		fmt.Printf("tick log: ticks=%d first=%d last=%d gaps=%d dropped_mutations=%d entities=%d\n",
			sum.Ticks, sum.First, sum.Last, sum.Gaps, sum.Dropped, len(sum.Commits))
		for _, a := range sortedActions(sum.Actions) {
			fmt.Printf("  %-12s %d\n", a, sum.Actions[a])
		}
		switch {
		case sum.SnapshotDigest == "":
			fmt.Println("snapshot tick has no logged digest")
		case sum.SnapshotDigest != snap.Header.Digest:
			fmt.Fprintf(os.Stderr, "logged digest %s differs from snapshot %s\n", sum.SnapshotDigest, snap.Header.Digest)
			os.Exit(1)
		default:
			fmt.Println("logged digest matches snapshot")
		}
	}

	if *ticks > 0 {
		tune, err := tuning.Load(*tuningPath)
		if err != nil {
			tune = tuning.Defaults()
		}
		a, err := simulate(snap, cats, tune, 1, *ticks)
		if err != nil {
			fmt.Fprintln(os.Stderr, "simulate:", err)
			os.Exit(1)
		}
		b, err := simulate(snap, cats, tune, tune.WorkerThreads+1, *ticks)
		if err != nil {
			fmt.Fprintln(os.Stderr, "simulate:", err)
			os.Exit(1)
		}
		if a != b {
			fmt.Fprintf(os.Stderr, "nondeterministic: %s with 1 worker, %s with %d\n", a, b, tune.WorkerThreads+1)
			os.Exit(1)
		}
		fmt.Printf("simulate ok: %d ticks, digest=%s\n", *ticks, a)
	}
}
