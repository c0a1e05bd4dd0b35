package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RfidResearchGroup/ht2crack/pkg/workqueue"
)

func fillQueue(n int) *workqueue.Queue {
	q := workqueue.New(workqueue.Forward)
	for i := uint64(0); i < uint64(n); i++ {
		q.Push(i, i*100, 100)
	}
	return q
}

func TestRunSequentialFindsKeyInMatchingUnit(t *testing.T) {
	q := fillQueue(10)
	var workers []*Worker
	for i := 0; i < 4; i++ {
		i := i
		w := NewWorker(i, q, func(u workqueue.Unit) (bool, uint64, error) {
			if u.ID == 7 {
				return true, 0xdeadbeefcafe, nil
			}
			return false, 0, nil
		})
		workers = append(workers, w)
	}

	found, key, err := RunSequential(workers)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0xdeadbeefcafe), key)
}

func TestRunSequentialExhaustsQueueWithoutMatch(t *testing.T) {
	q := fillQueue(6)
	var workers []*Worker
	for i := 0; i < 3; i++ {
		w := NewWorker(i, q, func(u workqueue.Unit) (bool, uint64, error) {
			return false, 0, nil
		})
		workers = append(workers, w)
	}

	found, _, err := RunSequential(workers)
	require.NoError(t, err)
	require.False(t, found)
	for _, w := range workers {
		require.Equal(t, StateEnd, w.Status.State())
	}
}

func TestRunSequentialPropagatesWorkerError(t *testing.T) {
	q := fillQueue(6)
	wantErr := errors.New("boom")
	w1 := NewWorker(0, q, func(u workqueue.Unit) (bool, uint64, error) {
		return false, 0, wantErr
	})
	w2 := NewWorker(1, q, func(u workqueue.Unit) (bool, uint64, error) {
		return false, 0, nil
	})

	_, _, err := RunSequential([]*Worker{w1, w2})
	require.ErrorIs(t, err, wantErr)
}

func TestRunAsyncFindsKeyAndEndsOtherWorkers(t *testing.T) {
	q := fillQueue(20)
	sched := NewScheduler()
	var workers []*Worker
	for i := 0; i < 4; i++ {
		w := NewWorker(i, q, func(u workqueue.Unit) (bool, uint64, error) {
			if u.ID == 15 {
				return true, 0x1a2b3c4d5e6f, nil
			}
			return false, 0, nil
		})
		workers = append(workers, w)
	}

	found, key, err := sched.RunAsync(workers)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(0x1a2b3c4d5e6f), key)

	foundCount := 0
	for _, w := range workers {
		st := w.Status.State()
		require.Contains(t, []State{StateFoundKey, StateEnd}, st)
		if st == StateFoundKey {
			foundCount++
		}
	}
	require.Equal(t, 1, foundCount)
}

func TestRunAsyncExhaustsQueueWithoutMatch(t *testing.T) {
	q := fillQueue(4)
	sched := NewScheduler()
	var workers []*Worker
	for i := 0; i < 2; i++ {
		w := NewWorker(i, q, func(u workqueue.Unit) (bool, uint64, error) {
			return false, 0, nil
		})
		workers = append(workers, w)
	}

	found, _, err := sched.RunAsync(workers)
	require.NoError(t, err)
	require.False(t, found)
	for _, w := range workers {
		require.Equal(t, StateEnd, w.Status.State())
	}
}

func TestStateStringsAreHumanReadable(t *testing.T) {
	require.Equal(t, "START", StateStart.String())
	require.Equal(t, "FOUND_KEY", StateFoundKey.String())
	require.Equal(t, "END", StateEnd.String())
}
