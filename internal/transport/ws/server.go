package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tickcraft.ai/internal/protocol"
	"tickcraft.ai/internal/sim/broadcast"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/tuning"
)

// Simulation is the part of the engine a connection drives.
type Simulation interface {
	EntityDidJoin(e *entity.Entity)
	EntityDidLeave(id int32)
	EnqueueEntityChange(id int32, c mutation.EntityChange, commit int64) bool
}

type Config struct {
	Sim    Simulation
	Env    *catalogs.Catalogs
	Tuning tuning.Tuning
	// Spawn builds the entity for a newly joined client.
	Spawn  func(id int32) *entity.Entity
	Logger *zap.Logger

	ActsPerSecond float64
	ActBurst      int
	// OutQueue is the number of encoded messages buffered per client before it is dropped as slow.
	OutQueue int
}

type Server struct {
	cfg Config
	log *zap.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Int32

	mu       sync.Mutex
	sessions map[int32]*session
}

type session struct {
	id        int32
	sessionID string
	out       chan []byte
	view      *broadcast.View
	limiter   *rate.Limiter

	ctx        context.Context
	cancel     context.CancelFunc
	kickOnce   sync.Once
	kick       []byte
	lastCommit int64
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ActsPerSecond <= 0 {
		cfg.ActsPerSecond = 50
	}
	if cfg.ActBurst <= 0 {
		cfg.ActBurst = cfg.Tuning.MaxPendingActions
	}
	if cfg.OutQueue <= 0 {
		cfg.OutQueue = 64
	}
	return &Server{
		cfg: cfg,
		log: cfg.Logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[int32]*session{},
	}
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		defer s.leave(sess)

		go s.writeLoop(conn, sess)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				sess.cancel()
				return
			}
			if code, text := s.handle(sess, msg); code != "" {
				s.kickSession(sess, code, text)
			}
		}
	}
}

// Broadcast sends every connected client its view of snap. It is the engine's tick listener
// and runs on the stitching goroutine; a client that cannot keep up is dropped.
func (s *Server) Broadcast(snap *engine.Snapshot) {
	s.mu.Lock()
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.mu.Unlock()

	for _, sess := range list {
		b, err := json.Marshal(protocol.NewTick(sess.view.Next(snap)))
		if err != nil {
			s.log.Error("encode tick", zap.Int32("entity", sess.id), zap.Error(err))
			continue
		}
		select {
		case sess.out <- b:
		default:
			s.kickSession(sess, protocol.ErrSlowClient, "tick queue full")
		}
	}
}

// handle admits one client message. A non-empty code kicks the client.
func (s *Server) handle(sess *session, msg []byte) (code, text string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ErrProtoBadRequest, "bad json"
	}
	if base.Type != protocol.TypeAct {
		return "", ""
	}
	if base.ProtocolVersion != protocol.Version {
		return protocol.ErrProtoVersion, "bad protocol_version"
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		return protocol.ErrProtoBadRequest, err.Error()
	}
	var act protocol.ActMsg
	if err := json.Unmarshal(msg, &act); err != nil {
		return protocol.ErrProtoBadRequest, "bad ACT"
	}
	c, err := act.Change()
	if err != nil {
		return protocol.ErrBadAction, err.Error()
	}
	if act.Commit <= sess.lastCommit {
		return protocol.ErrBadAction, "commit levels must increase"
	}
	if !sess.limiter.Allow() {
		return protocol.ErrRateLimit, "too many actions"
	}
	if !s.cfg.Sim.EnqueueEntityChange(sess.id, c, act.Commit) {
		return protocol.ErrBackpressure, "too many pending actions"
	}
	sess.lastCommit = act.Commit
	return "", ""
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}
	if base.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.NewKick(protocol.ErrProtoVersion, "bad protocol_version"))
		return nil
	}
	if err := protocol.Validate(base.Type, msg); err != nil {
		_ = writeJSON(conn, protocol.NewKick(protocol.ErrProtoBadRequest, err.Error()))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.Name == "" {
		hello.Name = "player"
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        s.nextID.Add(1),
		sessionID: uuid.NewString(),
		out:       make(chan []byte, s.cfg.OutQueue),
		limiter:   rate.NewLimiter(rate.Limit(s.cfg.ActsPerSecond), s.cfg.ActBurst),
		ctx:       ctx,
		cancel:    cancel,
	}
	sess.view = broadcast.NewView(sess.id)

	// Join before WELCOME so the client's first tick already knows its entity.
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	s.cfg.Sim.EntityDidJoin(s.cfg.Spawn(sess.id))
	if err := writeJSON(conn, s.welcome(sess)); err != nil {
		s.leave(sess)
		return nil
	}
	s.log.Info("session joined",
		zap.Int32("entity", sess.id),
		zap.String("session", sess.sessionID),
		zap.String("name", hello.Name))
	return sess
}

func (s *Server) welcome(sess *session) protocol.WelcomeMsg {
	env, tu := s.cfg.Env, s.cfg.Tuning
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.sessionID,
		EntityID:        sess.id,
		WorldParams: protocol.WorldParams{
			MillisPerTick:     tu.MillisPerTick,
			CuboidEdge:        geom.Edge,
			MaxPendingActions: tu.MaxPendingActions,
			MaxFollowUpTicks:  tu.MaxFollowUpTicks,
			Seed:              tu.World.Seed,
		},
		Catalogs: protocol.CatalogDigests{
			BlockPalette:  protocol.DigestRef{Digest: env.Blocks.PaletteDigest, Count: len(env.Blocks.Palette)},
			ItemPalette:   protocol.DigestRef{Digest: env.Items.PaletteDigest, Count: len(env.Items.Palette)},
			RecipesDigest: env.Recipes.Digest,
		},
	}
}

func (s *Server) leave(sess *session) {
	sess.cancel()
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	s.cfg.Sim.EntityDidLeave(sess.id)
	s.log.Info("session left", zap.Int32("entity", sess.id), zap.String("session", sess.sessionID))
}

// kickSession records the reason and stops the writer, which sends it and closes the connection.
func (s *Server) kickSession(sess *session, code, text string) {
	sess.kickOnce.Do(func() {
		b, _ := json.Marshal(protocol.NewKick(code, text))
		sess.kick = b
		s.log.Warn("kick", zap.Int32("entity", sess.id), zap.String("code", code), zap.String("reason", text))
		sess.cancel()
	})
}

func (s *Server) writeLoop(conn *websocket.Conn, sess *session) {
	for {
		select {
		case <-sess.ctx.Done():
			// kick is written before cancel inside kickOnce.
			if sess.kick != nil {
				_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
				_ = conn.WriteMessage(websocket.TextMessage, sess.kick)
			}
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = conn.Close()
			return
		case b := <-sess.out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				sess.cancel()
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
