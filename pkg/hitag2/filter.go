package hitag2

// Filter-function constants, wire-level invariants shared with the rest of
// the attack suite (table builder, partial-key scorer, bitslice engine all
// reproduce these exact bits).
const (
	faConst uint32 = 0x2C79
	fbConst uint32 = 0x6671
	fcConst uint32 = 0x7907287B
)

// faTable, fbTable, fcTable are faConst/fbConst/fcConst unpacked into
// per-index lookup tables once at init, the same way the Z80 tables
// (Sz53Table, ParityTable, ...) are unpacked once instead of re-deriving a
// bit on every access.
var (
	faTable [16]uint8
	fbTable [16]uint8
	fcTable [32]uint8
)

func init() {
	for i := 0; i < 16; i++ {
		faTable[i] = uint8((faConst >> uint(i)) & 1)
		fbTable[i] = uint8((fbConst >> uint(i)) & 1)
	}
	for i := 0; i < 32; i++ {
		fcTable[i] = uint8((fcConst >> uint(i)) & 1)
	}
}

func bitn(x uint64, bit uint) uint64 {
	return (x >> bit) & 1
}

// Filter evaluates the nonlinear filter function f(S): five 4-bit nibbles
// are extracted from fixed positions of the pre-shifted state, each nibble
// indexes fa or fb, and the five single-bit results are packed into a
// 5-bit index into fc.
func Filter(s uint64) uint8 {
	x1 := bitn(s, 2) | bitn(s, 3)<<1 | bitn(s, 5)<<2 | bitn(s, 6)<<3
	x2 := bitn(s, 8) | bitn(s, 12)<<1 | bitn(s, 14)<<2 | bitn(s, 15)<<3
	x3 := bitn(s, 17) | bitn(s, 21)<<1 | bitn(s, 23)<<2 | bitn(s, 26)<<3
	x4 := bitn(s, 28) | bitn(s, 29)<<1 | bitn(s, 31)<<2 | bitn(s, 33)<<3
	x5 := bitn(s, 34) | bitn(s, 43)<<1 | bitn(s, 44)<<2 | bitn(s, 46)<<3

	x6 := uint64(faTable[x1]) |
		uint64(fbTable[x2])<<1 |
		uint64(fbTable[x3])<<2 |
		uint64(fbTable[x4])<<3 |
		uint64(faTable[x5])<<4

	return fcTable[x6]
}
