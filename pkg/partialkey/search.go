package partialkey

import (
	"math/bits"
	"sort"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
)

// isBadGuess looks up z = kmiddle xor nR[0:18] in a klower's sorted Tklower
// table. found is true when z is present and its recorded notb32 agrees
// with the trace's aR bit 0 — kmiddle survives as a candidate. bad is true
// when z is present but notb32 disagrees — kmiddle is provably wrong and
// the whole klower/kmiddle pair can be abandoned. Neither flag set means z
// simply never arose during table construction, which carries no
// information either way.
func isBadGuess(z uint32, table []Entry, aR0 bool) (bad, found bool) {
	idx := sort.Search(len(table), func(i int) bool { return table[i].YXorB >= z })
	if idx >= len(table) || table[idx].YXorB != z {
		return false, false
	}
	if table[idx].NotB32 != aR0 {
		return true, false
	}
	return false, true
}

// normalizeAR mirrors aR end to end. The reference source computes this
// as its own per-byte rev32 followed by an explicit byte-order swap; those
// two operations compose to exactly a whole-word bit mirror, which
// math/bits already expresses directly.
func normalizeAR(aR uint32) uint32 {
	return bits.Reverse32(aR)
}

// testKey brute-forces the remaining 14 high key bits against one (nR, aR)
// trace, given a candidate 34-bit partial key (kmiddle<<16 | klower).
func testKey(uid uint32, partial uint64, nR, aR uint32) (uint64, bool) {
	normAR := normalizeAR(aR)
	for kupper := uint64(0); kupper < 0x4000; kupper++ {
		key := (kupper << 34) | partial
		s := hitag2.Init(key, uid, nR)
		_, b := hitag2.NStep(s, 32)
		if normAR^uint32(b) == 0xffffffff {
			return key, true
		}
	}
	return 0, false
}
