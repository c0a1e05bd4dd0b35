package tmtotable

import "github.com/RfidResearchGroup/ht2crack/pkg/hitag2"

// jumpTable holds the 48-bit linear image of each one-hot initial state
// after a fixed number of forward steps. Because Step is linear in the
// state bits (the filter only decides the keystream bit, not the state
// transition), XORing together the images for every set bit of a real
// state reproduces that state's image after the same number of steps —
// the "jump" trick that makes enumeration ~48 XORs per visited state
// instead of one Step call per step (§4.2).
type jumpTable [48]uint64

// buildJumpTable steps a one-hot state through `steps` forward steps for
// each of the 48 bit positions, recording the resulting state.
func buildJumpTable(steps uint64) jumpTable {
	var t jumpTable
	mask := uint64(1)
	for i := 0; i < 48; i++ {
		s := hitag2.State{Shiftreg: mask}
		s, _ = hitag2.NStep(s, int(steps))
		t[i] = s.Shiftreg
		mask <<= 1
	}
	return t
}

// jump applies a jumpTable to state: the XOR of t[i] over every bit i set
// in state.
func jump(state uint64, t jumpTable) uint64 {
	var out uint64
	for i := 0; i < 48; i++ {
		if (state>>uint(i))&1 == 1 {
			out ^= t[i]
		}
	}
	return out
}
