// Package scheduler decides, per entity and per tick, which queued changes run within the
// tick's time budget. A change costing more than the remaining budget is carried across ticks;
// at most one change is in progress per entity.
package scheduler

import "tickcraft.ai/internal/sim/mutation"

type Pending struct {
	Change mutation.EntityChange
	Commit int64
}

type Queue struct {
	items      []Pending
	inProgress *Pending
	remaining  int64
}

func (q *Queue) Push(p Pending) { q.items = append(q.items, p) }

// Len counts queued changes plus the in-progress one.
func (q *Queue) Len() int {
	n := len(q.items)
	if q.inProgress != nil {
		n++
	}
	return n
}

// InProgress reports the carried change and its remaining millis.
func (q *Queue) InProgress() (Pending, int64, bool) {
	if q.inProgress == nil {
		return Pending{}, 0, false
	}
	return *q.inProgress, q.remaining, true
}

type Result struct {
	// Run lists the changes to apply this tick, in order.
	Run []Pending
	// Commit is the commit level of the last change scheduled, or the previous level.
	Commit int64
	// CarriedMillis is what remains of the in-progress change after this tick.
	CarriedMillis int64
}

func isCancel(p Pending) bool { return p.Change.Kind() == mutation.KindCancel }

// costOf is the budget a change consumes. Only a cancel may declare a negative cost; any other
// negative cost counts as zero so it can never add budget. Apply then rejects the change.
func costOf(p Pending) int64 {
	if c := p.Change.TimeCostMillis(); c > 0 {
		return c
	}
	return 0
}

// Schedule spends one tick's budget on the queue.
func (q *Queue) Schedule(millisPerTick, prevCommit int64) Result {
	res := Result{Commit: prevCommit}
	budget := millisPerTick

	if len(q.items) > 0 && isCancel(q.items[0]) {
		res.Commit = q.items[0].Commit
		q.items = q.items[1:]
		q.inProgress, q.remaining = nil, 0
	}

	if q.inProgress != nil {
		if q.remaining > budget {
			q.remaining -= budget
			res.CarriedMillis = q.remaining
			return res
		}
		budget -= q.remaining
		res.Run = append(res.Run, *q.inProgress)
		res.Commit = q.inProgress.Commit
		q.inProgress, q.remaining = nil, 0
	}

	for budget > 0 && len(q.items) > 0 {
		head := q.items[0]
		q.items = q.items[1:]
		if isCancel(head) {
			// Nothing is in progress here, so a cancel only advances the commit level.
			res.Commit = head.Commit
			continue
		}
		cost := costOf(head)
		if cost <= budget {
			budget -= cost
			res.Run = append(res.Run, head)
			res.Commit = head.Commit
			continue
		}
		h := head
		q.inProgress, q.remaining = &h, cost-budget
		budget = 0
	}
	res.CarriedMillis = q.remaining
	if len(q.items) == 0 {
		q.items = nil
	}
	return res
}
