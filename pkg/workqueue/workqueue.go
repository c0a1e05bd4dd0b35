// Package workqueue implements the ordered work-unit queue (C8): a single
// mutex-guarded slice of units handed to device workers, supporting FORWARD
// (FIFO), REVERSE (LIFO) and RANDOM pop order.
package workqueue

import (
	"errors"
	"math/rand/v2"
	"sync"
)

// Order selects pop order.
type Order int

const (
	Forward Order = iota
	Reverse
	Random
)

// ErrEmpty is returned by Pop when the queue has been drained.
var ErrEmpty = errors.New("workqueue: empty")

// Unit is one slice of layer-0 candidates: Offset..Offset+Max-1 within the
// candidate space, identified by ID for result reporting.
type Unit struct {
	ID     uint64
	Offset uint64
	Max    uint64
}

// Queue is a mutex-guarded work-unit list. The zero value is not usable;
// construct with New.
type Queue struct {
	mu    sync.Mutex
	order Order
	units []Unit
	rng   *rand.Rand
}

// New creates an empty queue with the given pop order.
func New(order Order) *Queue {
	return &Queue{
		order: order,
		rng:   rand.New(rand.NewPCG(1, 0xDEADBEEF)),
	}
}

// Push appends a unit. O(1): units are appended to the tail and Forward/
// Reverse pop from the head/tail respectively, so no tail scan is needed
// (spec's "could be O(1) with a cached tail pointer" note applies to a
// pointer-linked implementation; a slice already has it).
func (q *Queue) Push(id, offset, max uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.units = append(q.units, Unit{ID: id, Offset: offset, Max: max})
}

// Pop selects a unit per the queue's order and, if remove is true, removes
// it from the queue. It returns the unit and the number of units remaining
// after the call (before removal, if remove is false). Pop fails with
// ErrEmpty when the queue has been drained.
func (q *Queue) Pop(remove bool) (Unit, int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.units) == 0 {
		return Unit{}, 0, ErrEmpty
	}

	idx := 0
	switch q.order {
	case Forward:
		idx = 0
	case Reverse:
		idx = len(q.units) - 1
	case Random:
		idx = q.rng.IntN(len(q.units))
	}

	u := q.units[idx]
	if remove {
		q.units = append(q.units[:idx:idx], q.units[idx+1:]...)
	}
	return u, len(q.units), nil
}

// Len reports how many units remain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.units)
}

// Destroy drains the queue. Go's GC reclaims the backing array; this exists
// so callers have the same init/push/pop/destroy lifecycle the reference
// queue exposes.
func (q *Queue) Destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.units = nil
}
