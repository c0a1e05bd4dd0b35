// Package partialkey implements Attack 3: recover the lower 34 bits of the
// key directly from authentication traces (no table, no brute force of the
// full key), using the filter function's known insensitivity to the top 14
// state bits for a carefully chosen set of candidate nonces.
package partialkey

import (
	"sort"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
)

// Entry is one row of the per-klower Tklower table: for a candidate
// "y" value (standing in for the unknown nonce XOR key_high32 quantity,
// restricted to the 18 bits that survive the filter's indifference to the
// top 14 state bits), the xor of y with the 18 keystream bits it would
// produce, plus the complement of the 33rd keystream bit — ported from
// `struct Tklower` in ht2crack3.c.
type Entry struct {
	YXorB   uint32
	NotB32  bool
	KLowerY uint64
}

// filterPreShift evaluates the filter against a state one step earlier
// than Filter's own convention expects. The reference source's
// hitag2_crypt uses bit offsets each exactly one less than fnf/Filter's —
// algebraically that is just Filter applied to the state shifted left by
// one, so there is no need to duplicate the fa/fb/fc table lookups here.
func filterPreShift(s uint64) uint8 {
	return hitag2.Filter(s << 1)
}

// BuildTable constructs the sorted Tklower table for one candidate value
// of klower (the key's lower 16 bits): for every 18-bit y whose keystream
// contribution the filter is indifferent to in its top 14 bits, record
// (y xor b[0:18], notb32, klowery).
func BuildTable(uid uint64, klower uint32) []Entry {
	table := make([]Entry, 0, 0x40000)

	for y := uint32(0); y < 0x40000; y++ {
		klowery := uint64(y)<<16 | uint64(klower)
		if !hitag2.FilterIndifferent(klowery) {
			continue
		}

		shiftreg := (uint64(klower) << 32) | uid
		var b uint32
		ytmp := y
		for j := 0; j < 2; j++ {
			shiftreg |= (uint64(ytmp) & 0xffff) << 48
			for i := 0; i < 16; i++ {
				shiftreg >>= 1
				bit := filterPreShift(shiftreg)
				b = (b >> 1) | (uint32(bit) << 31)
			}
			ytmp >>= 16
		}

		yxorb := y ^ (b & 0x3ffff)

		// the 33rd bit's complement: the next shift doesn't change the
		// filter's output since the bit being shifted in is never read by
		// it, so there's no need to know what it actually is
		shiftreg >>= 1
		notb32 := filterPreShift(shiftreg)^1 == 1

		table = append(table, Entry{YXorB: yxorb, NotB32: notb32, KLowerY: klowery})
	}

	sort.Slice(table, func(i, j int) bool { return table[i].YXorB < table[j].YXorB })
	return table
}
