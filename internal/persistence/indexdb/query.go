package indexdb

import (
	"context"
	"strings"
)

type SnapshotRecord struct {
	Tick      int64  `json:"tick"`
	Path      string `json:"path"`
	Digest    string `json:"digest"`
	Seed      int64  `json:"seed"`
	Cuboids   int    `json:"cuboids"`
	Entities  int    `json:"entities"`
	Creatures int    `json:"creatures"`
}

// Snapshots lists recorded snapshots, newest first.
func (s *SQLiteIndex) Snapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,path,digest,seed,cuboids,entities,creatures FROM snapshots ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRecord
	for rows.Next() {
		var r SnapshotRecord
		if err := rows.Scan(&r.Tick, &r.Path, &r.Digest, &r.Seed, &r.Cuboids, &r.Entities, &r.Creatures); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type TickRecord struct {
	Tick               int64  `json:"tick"`
	Entities           int    `json:"entities"`
	CommittedChanges   int    `json:"committed_changes"`
	CommittedMutations int    `json:"committed_mutations"`
	DroppedMutations   int    `json:"dropped_mutations"`
	EntityPhaseMicros  int64  `json:"entity_phase_us"`
	BlockPhaseMicros   int64  `json:"block_phase_us"`
	Digest             string `json:"digest,omitempty"`
}

// SlowestTicks lists the ticks with the longest combined phase time.
func (s *SQLiteIndex) SlowestTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,entities,committed_changes,committed_mutations,dropped_mutations,entity_phase_us,block_phase_us,COALESCE(digest,'')
		FROM ticks ORDER BY entity_phase_us+block_phase_us DESC, tick LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TickRecord
	for rows.Next() {
		var r TickRecord
		if err := rows.Scan(&r.Tick, &r.Entities, &r.CommittedChanges, &r.CommittedMutations, &r.DroppedMutations, &r.EntityPhaseMicros, &r.BlockPhaseMicros, &r.Digest); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type CommitRecord struct {
	Tick    int64    `json:"tick"`
	Level   int64    `json:"level"`
	Actions []string `json:"actions"`
}

// Commits lists what one entity committed, oldest first.
func (s *SQLiteIndex) Commits(ctx context.Context, entityID int32, limit int) ([]CommitRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tick,commit_level,actions FROM commits WHERE entity_id=? ORDER BY tick LIMIT ?`, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CommitRecord
	for rows.Next() {
		var r CommitRecord
		var actions string
		if err := rows.Scan(&r.Tick, &r.Level, &actions); err != nil {
			return nil, err
		}
		if actions != "" {
			r.Actions = strings.Split(actions, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
