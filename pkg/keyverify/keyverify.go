// Package keyverify implements the key verifier (C11): it replays a
// candidate key against authentication exchanges and reports whether the
// derived keystream matches. The verify command uses it; the attack
// packages confirm their own candidates with their own checks.
package keyverify

import (
	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

// Verify inits key against uid and t's reader nonce, derives 32 keystream
// bits, and reports whether they match t's observed keystream — the same
// aR-versus-derived-keystream comparison every reference cracker makes
// before printing a recovered key.
func Verify(key uint64, uid uint32, t trace.AuthTrace) bool {
	s := hitag2.Init(key, uid, t.NR)
	_, bits := hitag2.NStep(s, 32)
	return uint32(bits) == t.Keystream()
}

// VerifyAny reports whether key holds against at least one of traces. Every
// trace in the list is checked; none is skipped.
func VerifyAny(key uint64, uid uint32, traces []trace.AuthTrace) bool {
	for _, t := range traces {
		if Verify(key, uid, t) {
			return true
		}
	}
	return false
}

// VerifyAll reports whether key holds against every trace in traces, for
// confirming a candidate against a whole batch rather than any single pair.
func VerifyAll(key uint64, uid uint32, traces []trace.AuthTrace) bool {
	for _, t := range traces {
		if !Verify(key, uid, t) {
			return false
		}
	}
	return true
}
