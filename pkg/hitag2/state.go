// Package hitag2 implements the HiTag2 48-bit NLFSR stream cipher: the
// primitive that every attack in this module treats as a fixed, external
// building block.
package hitag2

// StateMask keeps the shift register to its authoritative 48 bits.
const StateMask = 0xffffffffffff

// State is the HiTag2 PRNG state: a 48-bit shift register plus a twin
// fast-path fingerprint (Lfsr) that is a fixed linear combination of the
// shift register's bits. Lfsr is always derivable from Shiftreg; callers
// never set it directly except through Init/Step/Rollback.
//
// Value type with methods, no hidden globals: callers own their own State
// and advance it explicitly.
type State struct {
	Shiftreg uint64
	Lfsr     uint64
}

// Equal reports whether two states hold the same shift register content.
// Lfsr is derived, so it is not compared independently.
func (s State) Equal(o State) bool {
	return s.Shiftreg == o.Shiftreg
}

func newState(shiftreg uint64) State {
	s := State{Shiftreg: shiftreg & StateMask}
	buildLFSR(&s)
	return s
}
