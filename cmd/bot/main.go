package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"tickcraft.ai/internal/config"
	"tickcraft.ai/internal/protocol"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/tuning"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "player name")
		configDir  = flag.String("configs", "./configs", "catalog directory (must match the server's)")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning file for movement costs")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "script seed")
		level      = flag.String("log_level", "info", "log level")
	)
	flag.Parse()

	logger, err := config.NewLogger(config.LoggingConfig{Level: *level, Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.Named("bot")
	defer logger.Sync()

	env, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatal("load catalogs", zap.Error(err))
	}
	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		logger.Warn("tuning not loaded, using defaults", zap.Error(err))
		tune = tuning.Defaults()
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer conn.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	if err := play(conn, env, tune, *name, *seed, logger); err != nil {
		logger.Error("disconnected", zap.Error(err))
	}
}

// play runs the HELLO handshake and then answers every TICK until the connection ends.
func play(conn *websocket.Conn, env *catalogs.Catalogs, tune tuning.Tuning, name string, seed int64, logger *zap.Logger) error {
	hello := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Name: name}
	if err := conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("send HELLO: %w", err)
	}

	var b *bot
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				return fmt.Errorf("decode WELCOME: %w", err)
			}
			logger.Info("WELCOME",
				zap.Int32("entity", w.EntityID),
				zap.String("session", w.SessionID),
				zap.Int64("millis_per_tick", w.WorldParams.MillisPerTick),
				zap.Int64("seed", w.WorldParams.Seed))
			b = newBot(env, tune, w, seed, logger)

		case protocol.TypeTick:
			if b == nil {
				return fmt.Errorf("TICK before WELCOME")
			}
			acts, err := b.onTick(msg, time.Now().UnixMilli())
			if err != nil {
				return err
			}
			for _, act := range acts {
				if err := conn.WriteJSON(act); err != nil {
					return err
				}
			}

		case protocol.TypeKick:
			var k protocol.KickMsg
			_ = json.Unmarshal(msg, &k)
			return fmt.Errorf("kicked: %s %s", k.Code, k.Message)
		}
	}
}
