package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	ticklog "tickcraft.ai/internal/persistence/log"
	"tickcraft.ai/internal/persistence/snapshot"
	"tickcraft.ai/internal/sim/catalogs"
	"tickcraft.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index over the tick log and snapshot files.
// Writes are queued and applied in batches on one goroutine; the files stay the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

type reqKind int

const (
	reqTick reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	tick     ticklog.TickEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick      int64
	Path      string
	Digest    string
	Seed      int64
	Cuboids   int
	Entities  int
	Creatures int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS ticks (
			tick INTEGER PRIMARY KEY,
			entities INTEGER NOT NULL,
			creatures INTEGER NOT NULL,
			cuboids INTEGER NOT NULL,
			committed_changes INTEGER NOT NULL,
			committed_mutations INTEGER NOT NULL,
			dropped_mutations INTEGER NOT NULL,
			entity_phase_us INTEGER NOT NULL,
			block_phase_us INTEGER NOT NULL,
			digest TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS commits (
			tick INTEGER NOT NULL,
			entity_id INTEGER NOT NULL,
			commit_level INTEGER NOT NULL,
			actions TEXT NOT NULL,
			PRIMARY KEY (tick, entity_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_commits_entity_tick ON commits(entity_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL,
			seed INTEGER NOT NULL,
			cuboids INTEGER NOT NULL,
			entities INTEGER NOT NULL,
			creatures INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the queue was full.
func (s *SQLiteIndex) Dropped() int64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WriteTick(entry ticklog.TickEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqTick, tick: entry})
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: snapshotRow{
		Tick:      snap.Header.Tick,
		Path:      path,
		Digest:    snap.Header.Digest,
		Seed:      snap.Seed,
		Cuboids:   len(snap.Cuboids),
		Entities:  len(snap.Entities),
		Creatures: len(snap.Creatures),
	}})
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrNoSnapshot is returned when no snapshot has been recorded.
var ErrNoSnapshot = errors.New("indexdb: no snapshot")

// LatestSnapshot returns the newest recorded snapshot file.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (tick int64, path, digest string, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT tick, path, digest FROM snapshots ORDER BY tick DESC LIMIT 1`)
	if err := row.Scan(&tick, &path, &digest); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, "", "", ErrNoSnapshot
		}
		return 0, "", "", err
	}
	return tick, path, digest, nil
}

// CommitHistory lists the (tick, commit level) pairs at which an entity committed changes.
func (s *SQLiteIndex) CommitHistory(ctx context.Context, entityID int32) ([][2]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tick, commit_level FROM commits WHERE entity_id = ? ORDER BY tick`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]int64
	for rows.Next() {
		var p [2]int64
		if err := rows.Scan(&p[0], &p[1]); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	read := func(name, file, digest string) {
		if configDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, file))
		if err != nil {
			return
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
	}
	read("blocks_defs", "blocks.json", cats.Blocks.DefsDigest)
	read("items_defs", "items.json", cats.Items.DefsDigest)
	read("recipes", "recipes.json", cats.Recipes.Digest)
	if b, _ := json.Marshal(cats.Blocks.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "blocks_palette", digest: cats.Blocks.PaletteDigest, json: b})
	}
	if b, _ := json.Marshal(cats.Items.Palette); len(b) > 0 {
		rows = append(rows, kv{name: "items_palette", digest: cats.Items.PaletteDigest, json: b})
	}
	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertTick, _ := s.db.Prepare(`INSERT OR REPLACE INTO ticks(tick,entities,creatures,cuboids,committed_changes,committed_mutations,dropped_mutations,entity_phase_us,block_phase_us,digest) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertCommit, _ := s.db.Prepare(`INSERT OR REPLACE INTO commits(tick,entity_id,commit_level,actions) VALUES(?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,digest,seed,cuboids,entities,creatures) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertTick, insertCommit, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTick:
			t := r.tick
			var digest any
			if t.Digest != "" {
				digest = t.Digest
			}
			if insertTick != nil {
				if _, err := tx.Stmt(insertTick).Exec(
					t.Tick,
					t.Entities,
					t.Creatures,
					t.Cuboids,
					t.CommittedChanges,
					t.CommittedMutations,
					t.DroppedMutations,
					t.EntityPhaseMicros,
					t.BlockPhaseMicros,
					digest,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
			for _, c := range t.Commits {
				if insertCommit == nil {
					break
				}
				if _, err := tx.Stmt(insertCommit).Exec(t.Tick, c.Entity, c.Level, strings.Join(c.Actions, ",")); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.Tick,
					sn.Path,
					sn.Digest,
					sn.Seed,
					sn.Cuboids,
					sn.Entities,
					sn.Creatures,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
