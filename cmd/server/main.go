package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tickcraft.ai/internal/config"
	"tickcraft.ai/internal/persistence/indexdb"
	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/terrain"
	"tickcraft.ai/internal/sim/tuning"
	"tickcraft.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/server.toml", "server config (TOML)")
		addr       = flag.String("addr", "", "http listen address (overrides network.bind_address)")
		snapPath   = flag.String("snapshot", "", "snapshot to resume from (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "resume from the newest snapshot in the data dir when -snapshot is empty")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Defaults(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Network.BindAddress = *addr
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, *snapPath, *loadLatest, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, snapPath string, loadLatest bool, logger *zap.Logger) error {
	cats, err := catalogs.Load(cfg.Server.ConfigDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	tune, err := tuning.Load(cfg.Server.TuningFile)
	if os.IsNotExist(err) {
		logger.Warn("tuning file not found, using defaults", zap.String("path", cfg.Server.TuningFile))
		tune, err = tuning.Defaults(), nil
	}
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if tune.ProtocolVersion != "1.0" {
		logger.Warn("tuning protocol_version differs from the wire version", zap.String("tuning", tune.ProtocolVersion))
	}
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return err
	}

	var idx *indexdb.SQLiteIndex
	if cfg.Storage.Index {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.Storage.DataDir, "index", "world.sqlite"))
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(cfg.Server.ConfigDir, cats, tune); err != nil {
			logger.Warn("index: upsert catalogs", zap.Error(err))
		}
	}

	gen := terrain.New(cats, tune.World)
	start, err := loadWorld(worldSource{
		Cfg:        cfg,
		Cats:       cats,
		Tune:       tune,
		Gen:        gen,
		Index:      idx,
		Snapshot:   snapPath,
		LoadLatest: loadLatest,
	}, logger)
	if err != nil {
		return err
	}

	spawn, err := spawner(cats, tune, gen, cfg.World.StarterItems)
	if err != nil {
		return err
	}

	var tickLog *ticklog.TickLogger
	if cfg.Storage.TickLog {
		tickLog = ticklog.NewTickLogger(cfg.Storage.DataDir)
		defer tickLog.Close()
	}
	var exporter *snapshot.Exporter
	if cfg.Storage.Snapshots {
		exporter = snapshot.NewExporter(snapshot.ExporterConfig{
			Dir:        filepath.Join(cfg.Storage.DataDir, "snapshots"),
			EveryTicks: int64(tune.SnapshotEveryTicks),
			Logger:     logger,
			OnWrite: func(path string, snap snapshot.SnapshotV1) {
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
			},
		})
		defer exporter.Close()
	}

	sink := &tickSink{
		Seed:          tune.World.Seed,
		MillisPerTick: tune.MillisPerTick,
		PaletteDigest: cats.Blocks.PaletteDigest,
		Exporter:      exporter,
		Logger:        logger,
	}
	if tickLog != nil {
		sink.Writers = append(sink.Writers, tickLog)
	}
	if idx != nil {
		sink.Writers = append(sink.Writers, idx)
	}
	eng := engine.New(engine.Config{
		Env:       cats,
		Tuning:    tune,
		Logger:    logger,
		Listener:  sink.Publish,
		StartTick: start.Tick,
	})
	srv := ws.NewServer(ws.Config{
		Sim:           eng,
		Env:           cats,
		Tuning:        tune,
		Spawn:         spawn,
		Logger:        logger,
		ActsPerSecond: cfg.Network.ActsPerSecond,
		ActBurst:      cfg.Network.ActBurst,
		OutQueue:      cfg.Network.OutQueueSize,
	})
	sink.Broadcast = srv.Broadcast

	eng.CuboidsWereLoaded(start.Cuboids)
	for _, c := range start.Creatures {
		eng.CreatureDidSpawn(c)
	}
	eng.Start()

	ctx, cancel := signalContext()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eng.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("engine stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(cfg.Server.Name, eng, srv, idx))
	mux.HandleFunc("/v1/ws", srv.Handler())

	httpSrv := &http.Server{
		Addr:              cfg.Network.BindAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.Network.ShutdownGrace)
		defer cancel2()
		_ = httpSrv.Shutdown(ctx2)
	}()

	logger.Info("listening",
		zap.String("addr", cfg.Network.BindAddress),
		zap.String("name", cfg.Server.Name),
		zap.Int64("tick", start.Tick))
	err = httpSrv.ListenAndServe()
	cancel()
	<-done
	eng.Shutdown()
	if idx != nil {
		flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.Network.ShutdownGrace)
		_ = idx.Flush(flushCtx)
		cancelFlush()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
