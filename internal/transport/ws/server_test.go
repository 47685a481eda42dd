package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tickcraft.ai/internal/protocol"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/cuboid"
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/entity"
	"tickcraft.ai/internal/sim/geom"
	"tickcraft.ai/internal/sim/mutation"
	"tickcraft.ai/internal/sim/tuning"
)

func loadEnv(t *testing.T) *catalogs.Catalogs {
	t.Helper()
	env, err := catalogs.Load("../../../configs")
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return env
}

func spawn(id int32) *entity.Entity {
	return entity.New(id, geom.AbsoluteLocation{X: 1, Y: 1, Z: 1}, 100)
}

// fakeSim accepts up to limit changes per entity.
type fakeSim struct {
	mu      sync.Mutex
	limit   int
	joined  []int32
	left    []int32
	pending map[int32]int
}

func (f *fakeSim) EntityDidJoin(e *entity.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, e.ID)
}

func (f *fakeSim) EntityDidLeave(id int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, id)
}

func (f *fakeSim) EnqueueEntityChange(id int32, _ mutation.EntityChange, _ int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = map[int32]int{}
	}
	if f.pending[id] >= f.limit {
		return false
	}
	f.pending[id]++
	return true
}

func (f *fakeSim) leftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.left)
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, protocol.WelcomeMsg) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, Name: "t"}); err != nil {
		t.Fatalf("hello: %v", err)
	}
	var w protocol.WelcomeMsg
	readJSON(t, conn, &w)
	if w.Type != protocol.TypeWelcome || w.EntityID == 0 || w.SessionID == "" {
		t.Fatalf("welcome: %+v", w)
	}
	return conn, w
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
}

func sendAct(t *testing.T, conn *websocket.Conn, commit int64, c mutation.EntityChange) {
	t.Helper()
	m, err := protocol.NewAct(commit, c)
	if err != nil {
		t.Fatalf("NewAct: %v", err)
	}
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expectKick reads until a KICK arrives and returns its code.
func expectKick(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	for {
		var base protocol.KickMsg
		readJSON(t, conn, &base)
		if base.Type == protocol.TypeKick {
			return base.Code
		}
	}
}

func TestServer_BackpressureKicks(t *testing.T) {
	sim := &fakeSim{limit: 20}
	s := NewServer(Config{Sim: sim, Env: loadEnv(t), Tuning: tuning.Defaults(), Spawn: spawn, ActBurst: 100, ActsPerSecond: 1000})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _ := dial(t, srv)
	for i := int64(1); i <= 21; i++ {
		sendAct(t, conn, i, mutation.Cancel{})
	}
	if code := expectKick(t, conn); code != protocol.ErrBackpressure {
		t.Fatalf("kick code %s", code)
	}
	deadline := time.Now().Add(5 * time.Second)
	for sim.leftCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sim.leftCount() != 1 || s.Sessions() != 0 {
		t.Fatalf("left=%d sessions=%d", sim.leftCount(), s.Sessions())
	}
}

func TestServer_RateLimitKicks(t *testing.T) {
	sim := &fakeSim{limit: 100}
	s := NewServer(Config{Sim: sim, Env: loadEnv(t), Tuning: tuning.Defaults(), Spawn: spawn, ActBurst: 2, ActsPerSecond: 0.01})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _ := dial(t, srv)
	for i := int64(1); i <= 3; i++ {
		sendAct(t, conn, i, mutation.Cancel{})
	}
	if code := expectKick(t, conn); code != protocol.ErrRateLimit {
		t.Fatalf("kick code %s", code)
	}
}

func TestServer_RejectsReusedCommit(t *testing.T) {
	s := NewServer(Config{Sim: &fakeSim{limit: 100}, Env: loadEnv(t), Tuning: tuning.Defaults(), Spawn: spawn})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _ := dial(t, srv)
	sendAct(t, conn, 2, mutation.Cancel{})
	sendAct(t, conn, 2, mutation.Cancel{})
	if code := expectKick(t, conn); code != protocol.ErrBadAction {
		t.Fatalf("kick code %s", code)
	}
}

func TestServer_KicksNegativeCostAct(t *testing.T) {
	sim := &fakeSim{limit: 100}
	s := NewServer(Config{Sim: sim, Env: loadEnv(t), Tuning: tuning.Defaults(), Spawn: spawn})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	conn, _ := dial(t, srv)
	sendAct(t, conn, 1, mutation.Move{To: geom.AbsoluteLocation{X: 5}, CostMillis: -1000})
	if code := expectKick(t, conn); code != protocol.ErrBadAction {
		t.Fatalf("kick code %s", code)
	}
	sim.mu.Lock()
	defer sim.mu.Unlock()
	if len(sim.pending) != 0 {
		t.Fatalf("forged act reached the simulation: %v", sim.pending)
	}
}

func TestServer_TicksReachClient(t *testing.T) {
	env := loadEnv(t)
	tu := tuning.Defaults()
	tu.WorkerThreads = 2

	var s *Server
	e := engine.New(engine.Config{Env: env, Tuning: tu, Listener: func(snap *engine.Snapshot) { s.Broadcast(snap) }})
	t.Cleanup(e.Shutdown)
	s = NewServer(Config{Sim: e, Env: env, Tuning: tu, Spawn: spawn})
	e.CuboidsWereLoaded([]*cuboid.Cuboid{cuboid.New(geom.CuboidAddress{}, catalogs.Air)})
	e.Start()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	conn, w := dial(t, srv)

	e.RunTick()
	var tick protocol.TickMsg
	readJSON(t, conn, &tick)
	if tick.Self == nil || !tick.SelfIsNew || tick.Self.ID != w.EntityID || len(tick.AddedCuboids) != 1 {
		t.Fatalf("first tick: %+v", tick)
	}

	sendAct(t, conn, 1, mutation.NewMove(geom.AbsoluteLocation{X: 1, Y: 1, Z: 1}, geom.AbsoluteLocation{X: 2, Y: 1, Z: 1}, tu.Movement.MillisPerBlock))
	deadline := time.Now().Add(5 * time.Second)
	for e.PendingCount(w.EntityID) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.RunTick()
	readJSON(t, conn, &tick)
	if tick.LatestCommit != 1 || tick.Self == nil || tick.SelfIsNew || tick.Self.Pos != [3]int32{2, 1, 1} {
		t.Fatalf("second tick: %+v", tick)
	}
}
