package workqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardOrderIsFIFO(t *testing.T) {
	q := New(Forward)
	q.Push(1, 0, 10)
	q.Push(2, 10, 10)
	q.Push(3, 20, 10)

	u, _, err := q.Pop(true)
	require.NoError(t, err)
	require.Equal(t, uint64(1), u.ID)

	u, _, err = q.Pop(true)
	require.NoError(t, err)
	require.Equal(t, uint64(2), u.ID)
}

func TestReverseOrderIsLIFO(t *testing.T) {
	q := New(Reverse)
	q.Push(1, 0, 10)
	q.Push(2, 10, 10)
	q.Push(3, 20, 10)

	u, _, err := q.Pop(true)
	require.NoError(t, err)
	require.Equal(t, uint64(3), u.ID)

	u, _, err = q.Pop(true)
	require.NoError(t, err)
	require.Equal(t, uint64(2), u.ID)
}

func TestRandomOrderPopsEveryUnitExactlyOnce(t *testing.T) {
	q := New(Random)
	const n = 50
	for i := uint64(0); i < n; i++ {
		q.Push(i, i*10, 10)
	}

	seen := map[uint64]bool{}
	for i := 0; i < n; i++ {
		u, _, err := q.Pop(true)
		require.NoError(t, err)
		require.False(t, seen[u.ID], "id %d popped twice", u.ID)
		seen[u.ID] = true
	}
	require.Len(t, seen, n)
	_, _, err := q.Pop(true)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestPopWithoutRemoveDoesNotDequeue(t *testing.T) {
	q := New(Forward)
	q.Push(1, 0, 10)

	u1, remaining, err := q.Pop(false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), u1.ID)
	require.Equal(t, 1, remaining)

	u2, _, err := q.Pop(true)
	require.NoError(t, err)
	require.Equal(t, u1, u2)
}

func TestPopOnEmptyQueueReturnsErrEmpty(t *testing.T) {
	q := New(Forward)
	_, _, err := q.Pop(true)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestDestroyDrainsQueue(t *testing.T) {
	q := New(Forward)
	q.Push(1, 0, 10)
	q.Push(2, 10, 10)
	require.Equal(t, 2, q.Len())

	q.Destroy()
	require.Equal(t, 0, q.Len())
	_, _, err := q.Pop(true)
	require.ErrorIs(t, err, ErrEmpty)
}
