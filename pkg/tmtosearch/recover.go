package tmtosearch

import "github.com/RfidResearchGroup/ht2crack/pkg/hitag2"

// Recover takes a confirmed Match plus the tag's uid and the reader's
// encrypted nonce-response (nR) and recovers the 48-bit key.
//
// The table holds the state at m.BitOffset steps into the keystream. To
// reach the state RecoverKey expects (immediately after Init, before any
// keystream was produced) the state is rolled back through the remaining
// bitOffset steps and then through a further 64 keystream steps that the
// cipher takes after Init, before the table's keystream begins — the same
// two-stage rollback the reference tool's rollbackrng performs.
func Recover(m Match, uid, nR uint32) uint64 {
	var reg uint64
	for _, b := range m.State {
		reg = (reg << 8) | uint64(b)
	}
	s := hitag2.State{Shiftreg: reg}
	s = hitag2.Rollback(s, m.BitOffset)
	s = hitag2.Rollback(s, 64)
	return hitag2.RecoverKey(s, uid, nR)
}
