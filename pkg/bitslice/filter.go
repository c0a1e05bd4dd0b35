package bitslice

// and, or, xor and not wrap bits-and-blooms/bitset's set-algebra methods so
// the filter formulas below read the same as ht2crack5.c's operator-based
// f_a_bs/f_b_bs/f_c_bs macros. Intersection/Union/SymmetricDifference/
// Complement each return a new BitSet rather than mutating their receiver,
// so these compose exactly like the bitwise operators they stand in for.
func and(a, b word) word { return a.Intersection(b) }
func or(a, b word) word  { return a.Union(b) }
func xor(a, b word) word { return a.SymmetricDifference(b) }
func not(a word) word    { return a.Complement() }

// faBS, fbBS and fcBS are boolean-circuit forms of hitag2.Filter's fa/fb/fc
// lookup tables: where Filter indexes a table with a 4- or 5-bit nibble,
// these compute the identical result with AND/OR/XOR/NOT, so the same
// formula runs across every lane of a word in one pass instead of needing
// one table lookup per lane. Ported verbatim from ht2crack5.c's
// f_a_bs/f_b_bs/f_c_bs macros, with the C operators replaced by the and/or/
// xor/not wrappers above.
func faBS(a, b, c, d word) word {
	// ~(((a|b)&c)^(a|d)^b)
	return not(xor(xor(and(or(a, b), c), or(a, d)), b))
}

func fbBS(a, b, c, d word) word {
	// ~(((d|c)&(a^b))^(d|a|b))
	return not(xor(and(or(d, c), xor(a, b)), or(or(d, a), b)))
}

func fcBS(a, b, c, d, e word) word {
	// ~((((((c^e)|d)&a)^b)&(c^b)) ^ (((d^e)|a)&((d^b)|c)))
	left := and(xor(and(or(xor(c, e), d), a), b), xor(c, b))
	right := and(or(xor(d, e), a), or(xor(d, b), c))
	return not(xor(left, right))
}

// filterOffsetGroups are hitag2.Filter's five nibble-extraction offsets
// (x1 through x5, in order). filterBS evaluates the filter at layer L by
// reading state[offset+L] in place of state[offset] — the bitsliced
// equivalent of evaluating Filter on the state shifted right by L.
//
// Grounded on ht2crack5.c's filterL_k functions: filter1_0 through
// filter31_4 are ~31 hand-unrolled copies of this exact formula, each
// reading state at these same four base offsets plus a fixed layer number.
// They are one formula at a shifted read position repeated by hand, not 31
// independent derivations, so one generic function replaces all of them.
var filterOffsetGroups = [5][4]int{
	{2, 3, 5, 6},
	{8, 12, 14, 15},
	{17, 21, 23, 26},
	{28, 29, 31, 33},
	{34, 43, 44, 46},
}

// filterBS evaluates the bitsliced filter at layer L against state, a
// per-position array of words indexed by absolute position (state[p] holds
// position p's bit across every lane). state must cover every position up
// to 46+L.
func filterBS(state []word, layer int) word {
	g := filterOffsetGroups
	x1 := faBS(state[g[0][0]+layer], state[g[0][1]+layer], state[g[0][2]+layer], state[g[0][3]+layer])
	x2 := fbBS(state[g[1][0]+layer], state[g[1][1]+layer], state[g[1][2]+layer], state[g[1][3]+layer])
	x3 := fbBS(state[g[2][0]+layer], state[g[2][1]+layer], state[g[2][2]+layer], state[g[2][3]+layer])
	x4 := fbBS(state[g[3][0]+layer], state[g[3][1]+layer], state[g[3][2]+layer], state[g[3][3]+layer])
	x5 := faBS(state[g[4][0]+layer], state[g[4][1]+layer], state[g[4][2]+layer], state[g[4][3]+layer])
	return fcBS(x1, x2, x3, x4, x5)
}
