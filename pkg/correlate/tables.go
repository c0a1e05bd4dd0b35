package correlate

// fnA, fnB and fnC are the same filter-function lookup constants as
// hitag2.Filter, but reproduced locally: here they're indexed by a packed
// state (packstate/f20) rather than extracted bit-by-bit from a raw state,
// so the lookup shape differs enough from hitag2.Filter's table form that
// duplicating the three constants reads clearer than threading unexported
// tables across a package boundary.
const (
	fnA uint64 = 0x2C79
	fnB uint64 = 0x6671
	fnC uint64 = 0x7907287B
)

// pickBits2_2 through pickBits1_2_1 pull the filter function's five input
// nibbles out of fixed bit positions of a state. Ported verbatim from
// ht2crack4.c's pickbits* macros.
func pickBits2_2(s uint64, a, b uint) uint64 {
	return ((s >> a) & 3) | ((s >> (b - 2)) & 0xC)
}

func pickBits1x4(s uint64, a, b, c, d uint) uint64 {
	return ((s >> a) & 1) | ((s >> (b - 1)) & 2) | ((s >> (c - 2)) & 4) | ((s >> (d - 3)) & 8)
}

func pickBits1_1_2(s uint64, a, b, c uint) uint64 {
	return ((s >> a) & 1) | ((s >> (b - 1)) & 2) | ((s >> (c - 2)) & 0xC)
}

func pickBits2_1_1(s uint64, a, b, c uint) uint64 {
	return ((s >> a) & 3) | ((s >> (b - 2)) & 4) | ((s >> (c - 3)) & 8)
}

func pickBits1_2_1(s uint64, a, b, c uint) uint64 {
	return ((s >> a) & 1) | ((s >> (b - 1)) & 6) | ((s >> (c - 3)) & 8)
}

// packedSize maps the number of confirmed low bits of a state to the number
// of those bits the filter function actually reads (pre-shifted lfsr
// convention). Ported verbatim from ht2crack4.c's packed_size.
var packedSize = [...]uint{
	0, 0, 0, 1, 2, 2, 3, 4, 4, 5, 5, 5, 5, 6, 6, 7, 8,
	8, 9, 9, 9, 9, 10, 10, 11, 11, 11, 12, 12, 13, 14, 14, 15,
	15, 16, 17, 17, 17, 17, 17, 17, 17, 17, 17, 18, 19, 19, 20, 20,
}

// pfna, pfnb, pfnc are the empirically-derived probabilities that fnA, fnB
// and fnC (respectively) return 1 given only the low n bits of their input
// nibble are known; row index is (known bits - 1), column index is the
// known bit pattern. Ported verbatim from ht2crack4.c.
var pfna = [][]float64{
	{0.50000, 0.50000},
	{0.50000, 0.50000, 0.50000, 0.50000},
	{0.50000, 0.00000, 0.50000, 1.00000, 0.50000, 1.00000, 0.50000, 0.00000},
}

var pfnb = [][]float64{
	{0.62500, 0.37500},
	{0.50000, 0.75000, 0.75000, 0.00000},
	{0.50000, 0.50000, 0.50000, 0.00000, 0.50000, 1.00000, 1.00000, 0.00000},
}

var pfnc = [][]float64{
	{0.50000, 0.50000},
	{0.62500, 0.62500, 0.37500, 0.37500},
	{0.75000, 0.50000, 0.25000, 0.75000, 0.50000, 0.75000, 0.50000, 0.00000},
	{1.00000, 1.00000, 0.50000, 0.50000, 0.50000, 0.50000, 0.50000, 0.00000,
		0.50000, 0.00000, 0.00000, 1.00000, 0.50000, 1.00000, 0.50000, 0.00000},
}

// packstate packs a pre-shifted state's five filter-input nibbles into one
// 20-bit value, for f20's table-free reproduction of the filter function.
// Ported verbatim from ht2crack4.c's packstate.
func packstate(s uint64) uint64 {
	packed := pickBits2_2(s, 2, 5)
	packed |= pickBits1_1_2(s, 8, 12, 14) << 4
	packed |= pickBits1x4(s, 17, 21, 23, 26) << 8
	packed |= pickBits2_1_1(s, 28, 31, 33) << 12
	packed |= pickBits1_2_1(s, 34, 43, 46) << 16
	return packed
}

// f20 evaluates the filter function on an already-packed 20-bit state, the
// same result hitag2.Filter would give on the unpacked state. Ported
// verbatim from ht2crack4.c's f20.
func f20(y uint64) uint8 {
	bitindex := (fnA >> (y & 0xf)) & 1
	bitindex |= ((fnB << 1) >> ((y >> 4) & 0xf)) & 0x02
	bitindex |= ((fnB << 2) >> ((y >> 8) & 0xf)) & 0x04
	bitindex |= ((fnB << 3) >> ((y >> 12) & 0xf)) & 0x08
	bitindex |= ((fnA << 4) >> ((y >> 16) & 0xf)) & 0x10
	return uint8((fnC >> bitindex) & 1)
}

// bitScore estimates the probability that the low `size` bits of s (a
// candidate partial state) produce keystream bit b, using however many of
// the filter function's five nibbles those low bits actually cover. Ported
// verbatim from ht2crack4.c's bit_score.
func bitScore(s, size, b uint64) float64 {
	chopped := s & ((1 << size) - 1)
	packed := packstate(chopped)
	n := packedSize[size]

	b1 := b & 1

	var prob float64
	switch {
	case n == 0:
		return 0.5
	case n < 4:
		nibprob1 := pfna[n-1][packed]
		nibprob0 := 1.0 - nibprob1
		prob = nibprob0*pfnc[0][0] + nibprob1*pfnc[0][1]
	case n < 20:
		fncinput := (fnA >> (packed & 0xf)) & 1
		fncinput |= ((fnB << 1) >> ((packed >> 4) & 0xf)) & 0x02
		fncinput |= ((fnB << 2) >> ((packed >> 8) & 0xf)) & 0x04
		fncinput |= ((fnB << 3) >> ((packed >> 12) & 0xf)) & 0x08
		fncinput |= ((fnA << 4) >> ((packed >> 16) & 0xf)) & 0x10
		fncinput &= (1 << (n / 4)) - 1

		if n%4 == 0 {
			prob = pfnc[n/4-1][fncinput]
		} else if n <= 16 {
			nibprob1 := pfnb[n%4-1][packed>>((n/4)*4)]
			nibprob0 := 1.0 - nibprob1
			prob = nibprob0*pfnc[n/4][fncinput] + nibprob1*pfnc[n/4][fncinput|(1<<(n/4))]
		} else {
			nibprob1 := pfna[n%4-1][packed>>16]
			nibprob0 := 1.0 - nibprob1
			hi := float64((fnC >> (fncinput | 0x10)) & 1)
			lo := float64((fnC >> fncinput) & 1)
			prob = nibprob0*lo + nibprob1*hi
		}
	default: // n == 20
		prob = float64(f20(packed))
	}

	if b1 != 0 {
		return prob
	}
	return 1.0 - prob
}

// score runs bitScore over every bit of a keystream window, weighting each
// bit's contribution by packedSize[size]+1, one more than the number of
// filter input bits the state bits behind it cover, so longer/more-complete
// windows dominate shorter ones. A zero
// partial score short-circuits the recursion: ported verbatim from
// ht2crack4.c's score.
func score(s, size uint64, ks uint64, kssize uint64) float64 {
	if size == 1 || kssize == 1 {
		sc := bitScore(s, size, ks&1)
		return sc * float64(packedSize[size]+1)
	}

	sc := bitScore(s, size, ks&1)
	if sc == 0.0 {
		return 0.0
	}

	sc2 := score(s>>1, size-1, ks>>1, kssize-1)
	if sc2 == 0.0 {
		return 0.0
	}
	return sc*float64(packedSize[size]+1) + sc2
}
