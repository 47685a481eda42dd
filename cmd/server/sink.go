package main

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"tickcraft.ai/internal/persistence/indexdb"
	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/transport/ws"
)

type tickWriter interface {
	WriteTick(ticklog.TickEntry) error
}

// tickSink fans every published snapshot out to clients and persistence. It runs on the
// engine's stitching goroutine, so everything it calls must return quickly.
type tickSink struct {
	Seed          int64
	MillisPerTick int64
	PaletteDigest string

	Broadcast func(*engine.Snapshot)
	Writers   []tickWriter
	Exporter  *snapshot.Exporter
	Logger    *zap.Logger
}

func (k *tickSink) Publish(s *engine.Snapshot) {
	if k.Broadcast != nil {
		k.Broadcast(s)
	}
	entry := ticklog.NewTickEntry(s)
	if k.Exporter.Due(s.Tick) {
		snap := snapshot.Capture(s, k.Seed, k.MillisPerTick, k.PaletteDigest)
		entry.Digest = snap.Header.Digest
		k.Exporter.Offer(snap)
	}
	for _, w := range k.Writers {
		if err := w.WriteTick(entry); err != nil {
			k.Logger.Warn("tick write failed", zap.Int64("tick", s.Tick), zap.Error(err))
		}
	}
}

func metricsHandler(name string, eng *engine.Engine, srv *ws.Server, idx *indexdb.SQLiteIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := eng.Stats()

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP tickcraft_tick Last published tick.\n")
		fmt.Fprintf(rw, "# TYPE tickcraft_tick gauge\n")
		fmt.Fprintf(rw, "tickcraft_tick{server=%q} %d\n", name, st.Tick)

		fmt.Fprintf(rw, "# HELP tickcraft_clients Connected clients.\n")
		fmt.Fprintf(rw, "# TYPE tickcraft_clients gauge\n")
		fmt.Fprintf(rw, "tickcraft_clients{server=%q} %d\n", name, srv.Sessions())

		fmt.Fprintf(rw, "# HELP tickcraft_world_objects Objects in the last published tick.\n")
		fmt.Fprintf(rw, "# TYPE tickcraft_world_objects gauge\n")
		fmt.Fprintf(rw, "tickcraft_world_objects{server=%q,kind=%q} %d\n", name, "entities", st.Entities)
		fmt.Fprintf(rw, "tickcraft_world_objects{server=%q,kind=%q} %d\n", name, "creatures", st.Creatures)
		fmt.Fprintf(rw, "tickcraft_world_objects{server=%q,kind=%q} %d\n", name, "cuboids", st.Cuboids)

		fmt.Fprintf(rw, "# HELP tickcraft_tick_committed Changes and mutations committed in the last tick.\n")
		fmt.Fprintf(rw, "# TYPE tickcraft_tick_committed gauge\n")
		fmt.Fprintf(rw, "tickcraft_tick_committed{server=%q,kind=%q} %d\n", name, "changes", st.CommittedChanges)
		fmt.Fprintf(rw, "tickcraft_tick_committed{server=%q,kind=%q} %d\n", name, "mutations", st.CommittedMutations)
		fmt.Fprintf(rw, "tickcraft_tick_committed{server=%q,kind=%q} %d\n", name, "dropped", st.DroppedMutations)

		fmt.Fprintf(rw, "# HELP tickcraft_phase_ms Phase duration of the last tick in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE tickcraft_phase_ms gauge\n")
		fmt.Fprintf(rw, "tickcraft_phase_ms{server=%q,phase=%q} %.3f\n", name, "entity", float64(st.EntityPhase.Microseconds())/1000)
		fmt.Fprintf(rw, "tickcraft_phase_ms{server=%q,phase=%q} %.3f\n", name, "block", float64(st.BlockPhase.Microseconds())/1000)

		if idx != nil {
			fmt.Fprintf(rw, "# HELP tickcraft_index_dropped_total Index writes dropped because the writer was saturated.\n")
			fmt.Fprintf(rw, "# TYPE tickcraft_index_dropped_total counter\n")
			fmt.Fprintf(rw, "tickcraft_index_dropped_total{server=%q} %d\n", name, idx.Dropped())
		}
	}
}
