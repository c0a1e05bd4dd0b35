package keyverify

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

func buildTrace(key uint64, uid, nR uint32) trace.AuthTrace {
	s := hitag2.Init(key, uid, nR)
	_, b := hitag2.NStep(s, 32)
	return trace.AuthTrace{UID: uid, NR: nR, AR: ^uint32(b)}
}

func TestVerifyAcceptsMatchingKey(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	tr := buildTrace(key, uid, 0x4b71e49d)
	require.True(t, Verify(key, uid, tr))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	tr := buildTrace(key, uid, 0x4b71e49d)
	require.False(t, Verify(key^1, uid, tr))
}

func TestVerifyRejectsWrongUID(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	tr := buildTrace(key, uid, 0x4b71e49d)
	require.False(t, Verify(key, uid^1, tr))
}

func TestVerifyAnyFindsMatchAmongTraces(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	wrong := trace.AuthTrace{UID: uid, NR: 0x11112222, AR: 0xdeadbeef}
	right := buildTrace(key, uid, 0x4b71e49d)
	require.True(t, VerifyAny(key, uid, []trace.AuthTrace{wrong, right}))
}

func TestVerifyAnyFailsWhenNoneMatch(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	wrong1 := trace.AuthTrace{UID: uid, NR: 0x11112222, AR: 0xdeadbeef}
	wrong2 := trace.AuthTrace{UID: uid, NR: 0x33334444, AR: 0xcafef00d}
	require.False(t, VerifyAny(key, uid, []trace.AuthTrace{wrong1, wrong2}))
}

func TestVerifyAllRequiresEveryTraceToMatch(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0x2ab12bf2
	right1 := buildTrace(key, uid, 0x4b71e49d)
	right2 := buildTrace(key, uid, 0x11112222)
	wrong := trace.AuthTrace{UID: uid, NR: 0x33334444, AR: 0xdeadbeef}

	require.True(t, VerifyAll(key, uid, []trace.AuthTrace{right1, right2}))
	require.False(t, VerifyAll(key, uid, []trace.AuthTrace{right1, wrong}))
}
