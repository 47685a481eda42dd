package snapshot

import (
	"sync"

	"go.uber.org/zap"
)

type ExporterConfig struct {
	Dir        string
	EveryTicks int64
	Logger     *zap.Logger
	// OnWrite runs on the exporter goroutine after each file is in place.
	OnWrite func(path string, snap SnapshotV1)
}

// Exporter writes captured snapshots to disk off the tick path.
type Exporter struct {
	cfg ExporterConfig
	log *zap.Logger
	ch  chan SnapshotV1
	wg  sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewExporter(cfg ExporterConfig) *Exporter {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	x := &Exporter{cfg: cfg, log: cfg.Logger.Named("snapshot"), ch: make(chan SnapshotV1, 2)}
	x.wg.Add(1)
	go func() {
		defer x.wg.Done()
		x.loop()
	}()
	return x
}

// Due reports whether tick should be captured.
func (x *Exporter) Due(tick int64) bool {
	return x != nil && x.cfg.EveryTicks > 0 && tick%x.cfg.EveryTicks == 0
}

// Offer hands snap to the writer. It never blocks: if the writer is still busy with earlier
// snapshots this one is skipped.
func (x *Exporter) Offer(snap SnapshotV1) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return false
	}
	select {
	case x.ch <- snap:
		return true
	default:
		x.log.Warn("snapshot skipped, writer busy", zap.Int64("tick", snap.Header.Tick))
		return false
	}
}

// Close waits for pending writes.
func (x *Exporter) Close() {
	x.mu.Lock()
	if !x.closed {
		x.closed = true
		close(x.ch)
	}
	x.mu.Unlock()
	x.wg.Wait()
}

func (x *Exporter) loop() {
	for snap := range x.ch {
		path := Path(x.cfg.Dir, snap.Header.Tick)
		if err := WriteSnapshot(path, snap); err != nil {
			x.log.Error("write snapshot", zap.Int64("tick", snap.Header.Tick), zap.Error(err))
			continue
		}
		x.log.Info("snapshot written",
			zap.Int64("tick", snap.Header.Tick),
			zap.String("path", path),
			zap.String("digest", snap.Header.Digest))
		if x.cfg.OnWrite != nil {
			x.cfg.OnWrite(path, snap)
		}
	}
}
