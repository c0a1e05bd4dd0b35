// Package scheduler implements the per-device worker state machine and the
// two scheduling modes described in spec §4.6/§5 (C10): a worker transitions
// START -> WAIT -> PROCESSING -> {WAIT | FOUND_KEY | ERROR}, and any state
// can be driven to END once another worker finds the key or the work queue
// empties.
//
// Grounded on oisee-z80-optimizer/pkg/stoke/search.go's goroutine-per-chain
// shape (one goroutine per parallel search unit, a shared mutex-guarded
// result, a ticker-driven progress report) generalized into an explicit
// state machine. The async mode uses one condition variable, owned by the
// Scheduler and woken by every worker; workers have no condition variable
// of their own.
package scheduler

import (
	"fmt"
	"sync"

	"github.com/RfidResearchGroup/ht2crack/pkg/workqueue"
)

// State is one worker's position in the C10 state machine.
type State int

const (
	StateStart State = iota
	StateWait
	StateProcessing
	StateFoundKey
	StateError
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "START"
	case StateWait:
		return "WAIT"
	case StateProcessing:
		return "PROCESSING"
	case StateFoundKey:
		return "FOUND_KEY"
	case StateError:
		return "ERROR"
	case StateEnd:
		return "END"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// WorkerStatus is one worker's state cell: a mutex-guarded state, the
// recovered key once FOUND_KEY, and the error once ERROR. The "found"
// publication rule (a worker sets FOUND_KEY under its own mutex; the
// scheduler reads it under that same mutex before driving other workers to
// END) falls directly out of every method here taking the same mutex.
type WorkerStatus struct {
	mu    sync.Mutex
	state State
	key   uint64
	err   error
}

func newWorkerStatus() *WorkerStatus {
	return &WorkerStatus{state: StateStart}
}

// State returns the worker's current state.
func (w *WorkerStatus) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Key returns the recovered key. Only meaningful once State is FoundKey.
func (w *WorkerStatus) Key() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// Err returns the worker's recorded error. Only meaningful once State is
// Error.
func (w *WorkerStatus) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *WorkerStatus) transition(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *WorkerStatus) setFoundKey(key uint64) {
	w.mu.Lock()
	w.state = StateFoundKey
	w.key = key
	w.mu.Unlock()
}

func (w *WorkerStatus) setError(err error) {
	w.mu.Lock()
	w.state = StateError
	w.err = err
	w.mu.Unlock()
}

// Processor processes one work unit, reporting whether it found the key.
// Exactly one work-unit is outstanding per worker at a time (per spec's
// "Only a worker in PROCESSING may hold a work-unit").
type Processor func(u workqueue.Unit) (found bool, key uint64, err error)

// Worker binds one device's queue handle and processing function to its
// own WorkerStatus cell.
type Worker struct {
	ID      int
	Status  *WorkerStatus
	queue   *workqueue.Queue
	process Processor
}

// NewWorker creates a worker in state START, reading units from q and
// processing them with process.
func NewWorker(id int, q *workqueue.Queue, process Processor) *Worker {
	return &Worker{ID: id, Status: newWorkerStatus(), queue: q, process: process}
}

// RunSequential implements spec's sequential scheduling mode: one batch of
// len(workers) worker goroutines runs, the scheduler waits for all of them
// to join, checks results, and repeats until the queue is empty or one
// worker finds the key. Simpler and cancellation-free, since no worker
// outlives its batch.
func RunSequential(workers []*Worker) (found bool, key uint64, err error) {
	for _, w := range workers {
		w.Status.transition(StateWait)
	}

	for {
		type outcome struct {
			matched bool
			key     uint64
			err     error
		}
		outcomes := make([]outcome, len(workers))
		var wg sync.WaitGroup
		anyWork := false

		for i, w := range workers {
			u, _, popErr := w.queue.Pop(true)
			if popErr != nil {
				continue
			}
			anyWork = true
			wg.Add(1)
			go func(i int, w *Worker, u workqueue.Unit) {
				defer wg.Done()
				w.Status.transition(StateProcessing)
				matched, k, perr := w.process(u)
				if perr != nil {
					w.Status.setError(perr)
					outcomes[i] = outcome{err: perr}
					return
				}
				if matched {
					w.Status.setFoundKey(k)
					outcomes[i] = outcome{matched: true, key: k}
					return
				}
				w.Status.transition(StateWait)
			}(i, w, u)
		}
		wg.Wait()

		for _, o := range outcomes {
			if o.err != nil {
				return false, 0, o.err
			}
			if o.matched {
				return true, o.key, nil
			}
		}
		if !anyWork {
			for _, w := range workers {
				w.Status.transition(StateEnd)
			}
			return false, 0, nil
		}
	}
}

// Scheduler coordinates async-mode workers: a single mutex/condition-
// variable pair ("condusleep" in spec terms) the scheduler blocks on
// between status checks, woken by any worker's transition.
type Scheduler struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewScheduler creates an async scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Scheduler) wake() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// RunAsync implements spec's async scheduling mode: every worker is
// long-lived, looping pop-process-report until it finds the key, errors, or
// the queue empties. The scheduler blocks on its condition variable between
// checks and, as soon as one worker reports FOUND_KEY or ERROR, drives
// every other worker to END.
func (s *Scheduler) RunAsync(workers []*Worker) (found bool, key uint64, err error) {
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Status.transition(StateWait)
			s.wake()
			for {
				if w.Status.State() == StateEnd {
					return
				}
				u, _, popErr := w.queue.Pop(true)
				if popErr != nil {
					w.Status.transition(StateEnd)
					s.wake()
					return
				}
				w.Status.transition(StateProcessing)
				matched, k, perr := w.process(u)
				if w.Status.State() == StateEnd {
					return
				}
				if perr != nil {
					w.Status.setError(perr)
					s.wake()
					return
				}
				if matched {
					w.Status.setFoundKey(k)
					s.wake()
					return
				}
				w.Status.transition(StateWait)
				s.wake()
			}
		}(w)
	}

	found, key, err = s.awaitOutcome(workers)

	for _, w := range workers {
		if st := w.Status.State(); st != StateFoundKey && st != StateError {
			w.Status.transition(StateEnd)
		}
	}
	s.wake()
	wg.Wait()
	return found, key, err
}

// awaitOutcome blocks until a worker reaches FoundKey or Error, or every
// worker reaches End.
func (s *Scheduler) awaitOutcome(workers []*Worker) (bool, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		allEnded := true
		for _, w := range workers {
			switch w.Status.State() {
			case StateFoundKey:
				return true, w.Status.Key(), nil
			case StateError:
				return false, 0, w.Status.Err()
			case StateEnd:
			default:
				allEnded = false
			}
		}
		if allEnded {
			return false, 0, nil
		}
		s.cond.Wait()
	}
}
