package restructure

import (
	"slices"

	"github.com/matzehuels/regionkit/pkg/flow"
	"github.com/matzehuels/regionkit/pkg/verify"
)

// Queue hands out aggregation candidates and retries the ones that fail.
//
// Candidates are ordered by a key (raw core mass unless an external
// ordering is set) and popped lowest first, or highest first when
// HighestFirst is set. Failed candidates go to a retry list. When the main
// list runs out, the retry list becomes the main list. Once a whole retry
// pass fails in a row, one final round runs; if that makes no progress
// either, the queue is exhausted. The final round lets aggregators relax
// their target rules.
type Queue struct {
	HighestFirst bool

	sorter     *verify.Sorter
	targets    []flow.Unit
	todo       []flow.Unit
	failRow    int
	finalRound bool
}

// NewQueue returns a queue ordered by key. A nil key orders by raw mass.
func NewQueue(key verify.ValueFunc) *Queue {
	if key == nil {
		key = verify.RawMass
	}
	return &Queue{sorter: verify.NewSorter(key)}
}

// Feed replaces the queue contents with targets and resets the rounds.
func (q *Queue) Feed(env *Env, targets []flow.Unit) {
	q.targets = slices.Clone(targets)
	q.todo = nil
	q.failRow = 0
	q.finalRound = false
	q.sort(env)
}

// sort orders targets so that the next candidate sits at the end.
func (q *Queue) sort(env *Env) {
	q.sorter.Sort(env.Model, q.targets, !q.HighestFirst)
}

// Next pops the next candidate. ok is false once the queue is exhausted.
func (q *Queue) Next(env *Env) (u flow.Unit, ok bool) {
	if len(q.targets) == 0 {
		if len(q.todo) == 0 {
			return flow.Unit{}, false
		}
		if q.failRow >= len(q.todo) {
			if q.finalRound {
				return flow.Unit{}, false
			}
			q.finalRound = true
		}
		q.targets, q.todo = q.todo, nil
	}
	q.sort(env)
	last := len(q.targets) - 1
	u = q.targets[last]
	q.targets = q.targets[:last]
	return u, true
}

// Done records the outcome for candidate u. Failed candidates are retried.
func (q *Queue) Done(u flow.Unit, ok bool) {
	if ok {
		q.failRow = 0
		return
	}
	q.failRow++
	q.todo = append(q.todo, u)
}

// FinalRound reports whether the queue is in its last retry round.
func (q *Queue) FinalRound() bool { return q.finalRound }

// Failed returns the candidates waiting for a retry. After the queue is
// exhausted these are the candidates that could not be placed.
func (q *Queue) Failed() []flow.Unit { return slices.Clone(q.todo) }

// Pending returns every candidate not yet resolved.
func (q *Queue) Pending() []flow.Unit {
	return append(slices.Clone(q.targets), q.todo...)
}
