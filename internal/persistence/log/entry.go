package log

import (
	"tickcraft.ai/internal/sim/engine"
	"tickcraft.ai/internal/sim/process"
)

// TickEntry summarizes one published tick.
type TickEntry struct {
	Tick               int64         `json:"tick"`
	Entities           int           `json:"entities"`
	Creatures          int           `json:"creatures"`
	Cuboids            int           `json:"cuboids"`
	CommittedChanges   int           `json:"committed_changes"`
	CommittedMutations int           `json:"committed_mutations"`
	DroppedMutations   int           `json:"dropped_mutations,omitempty"`
	EntityPhaseMicros  int64         `json:"entity_phase_us"`
	BlockPhaseMicros   int64         `json:"block_phase_us"`
	Commits            []CommitEntry `json:"commits,omitempty"`
	// Digest is set on ticks that were also written as a snapshot.
	Digest string `json:"digest,omitempty"`
}

// CommitEntry is what one entity committed in the tick.
type CommitEntry struct {
	Entity  int32    `json:"entity"`
	Level   int64    `json:"level"`
	Actions []string `json:"actions"`
}

func NewTickEntry(s *engine.Snapshot) TickEntry {
	st := s.Stats
	e := TickEntry{
		Tick:               s.Tick,
		Entities:           st.Entities,
		Creatures:          st.Creatures,
		Cuboids:            st.Cuboids,
		CommittedChanges:   st.CommittedChanges,
		CommittedMutations: st.CommittedMutations,
		DroppedMutations:   st.DroppedMutations,
		EntityPhaseMicros:  st.EntityPhase.Microseconds(),
		BlockPhaseMicros:   st.BlockPhase.Microseconds(),
	}
	for _, id := range process.SortedIDs(s.CommittedChanges) {
		list := s.CommittedChanges[id]
		c := CommitEntry{Entity: id, Level: s.CommitLevels[id], Actions: make([]string, 0, len(list))}
		for _, ch := range list {
			c.Actions = append(c.Actions, ch.Kind().String())
		}
		e.Commits = append(e.Commits, c)
	}
	return e
}
