// Package bitslice implements Attack 5: a bitsliced brute-force search that
// recovers the post-init cipher state directly from two observed
// authentication traces, testing many candidate states in parallel across
// the lanes of a bit vector instead of one state at a time.
//
// ht2crack5.c packs 256 candidates into a 256-bit SIMD vector via a GCC
// vector extension and expresses f_a_bs/f_b_bs/f_c_bs/lfsr_bs as plain
// bitwise operators over it. This uses github.com/bits-and-blooms/bitset's
// BitSet as the lane-vector type instead, with the same formulas expressed
// as Union/Intersection/SymmetricDifference/Complement chains — the
// portable equivalent of the GCC extension's per-operator SIMD lowering.
package bitslice

import "github.com/bits-and-blooms/bitset"

// word holds one bit of laneCount candidate states, one state per lane
// (bit position 0..laneCount-1). Every filter formula in filter.go is
// expressed as a chain of BitSet set operations so it evaluates every lane
// in one pass.
type word = *bitset.BitSet

const (
	laneCount = 64
	laneBits  = 6 // log2(laneCount)
)

func newWord() word {
	return bitset.New(laneCount)
}

// laneBit[i] has lane L set iff bit i of L is 1, for L in [0, laneCount).
// Broadcasting these as the initial value of up to laneBits unknown
// positions tests every combination of those bits across the word's lanes
// in one pass — the bitsliced equivalent of ht2crack5.c's
// initial_bitslices[0..7] counting pattern (there built once via memset
// tricks over 256 lanes; built here with a direct loop since bitset.Set
// makes the trick unnecessary).
var laneBit [laneBits]word

func init() {
	for i := 0; i < laneBits; i++ {
		w := newWord()
		for lane := 0; lane < laneCount; lane++ {
			if (lane>>uint(i))&1 == 1 {
				w.Set(uint(lane))
			}
		}
		laneBit[i] = w
	}
}

// broadcast returns a word with every lane set to bit (0 or 1).
func broadcast(bit int) word {
	w := newWord()
	if bit == 0 {
		return w
	}
	for lane := 0; lane < laneCount; lane++ {
		w.Set(uint(lane))
	}
	return w
}

// expand spreads value's low-order bits into the positions mask marks,
// leaving every other position zero. Ported verbatim from ht2crack5.c's
// expand; used to turn a dense 20-bit loop counter into a sparse 48-bit
// partial state during layer-0 enumeration.
func expand(mask, value uint64) uint64 {
	var fill uint64
	for bit := uint(0); bit < 48; bit++ {
		if mask&1 != 0 {
			fill |= (value & 1) << bit
			value >>= 1
		}
		mask >>= 1
	}
	return fill
}
