package partialkey

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

// buildTrace synthesizes a valid (nR, aR) trace for key/uid: a nonce nR is
// chosen, Init run, 32 keystream bits extracted, and aR set so that
// normalizeAR(aR) xor keystream == 0xffffffff, exactly the relation
// testKey checks.
func buildTrace(key uint64, uid, nR uint32) trace.AuthTrace {
	s := hitag2.Init(key, uid, nR)
	_, b := hitag2.NStep(s, 32)
	// choose aR such that bits.Reverse32(aR) == ^uint32(b)
	aR := reverse32(^uint32(b))
	return trace.AuthTrace{UID: uid, NR: nR, AR: aR}
}

func reverse32(x uint32) uint32 {
	var out uint32
	for i := 0; i < 32; i++ {
		if x&(1<<uint(i)) != 0 {
			out |= 1 << uint(31-i)
		}
	}
	return out
}

func TestBuildTableEntriesAreFilterIndifferent(t *testing.T) {
	table := BuildTable(0x2ab12bf2, 0x1234)
	require.NotEmpty(t, table)
	for _, e := range table {
		require.True(t, hitag2.FilterIndifferent(e.KLowerY))
	}
}

func TestIsBadGuessAgreesWithTableContents(t *testing.T) {
	table := BuildTable(0x2ab12bf2, 0x1234)
	require.NotEmpty(t, table)

	entry := table[len(table)/2]
	bad, found := isBadGuess(entry.YXorB, table, entry.NotB32)
	require.False(t, bad)
	require.True(t, found)

	bad, found = isBadGuess(entry.YXorB, table, !entry.NotB32)
	require.True(t, bad)
	require.False(t, found)
}

func TestTestKeyRecoversKnownKey(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2

	tr := buildTrace(key, uid, 0x4b71e49d)
	partial := key & ((1 << 34) - 1)

	got, ok := testKey(uid, partial, tr.NR, tr.AR)
	require.True(t, ok)
	require.Equal(t, uint64(key), got)
}

// TestCrackKLowerRecoversKnownKey drives the per-klower search Crack fans
// out over directly, for the correct klower guess. Exercising the full
// Crack (65536 klower guesses, each a 2^18-entry table build) isn't
// practical at unit-test scale; this is the same search at the scale
// scenario S3 actually cares about.
func TestCrackKLowerRecoversKnownKey(t *testing.T) {
	const key = 0x0000a5a5a5a5 & hitag2.StateMask
	const uid = 0x2ab12bf2
	const klower = uint32(key & 0xffff)

	traces := []trace.AuthTrace{
		buildTrace(key, uid, 0x11111111),
		buildTrace(key, uid, 0x22222222),
	}

	result, ok := crackKLower(uid, klower, traces)
	require.True(t, ok)
	require.Equal(t, uint64(key), result.Key)
	require.Equal(t, klower, result.KLower)
}

func TestCrackRequiresTwoTraces(t *testing.T) {
	_, _, err := Crack(0x2ab12bf2, nil, DefaultConfig(), zerolog.Nop())
	require.Error(t, err)
}
