package hitag2

// Init loads the post-init PRNG state for (key, uid, nonce): key_low16
// occupies bits [47..32], uid occupies bits [31..0], then 32 bits are
// shifted in one at a time, each XORing a bit of key_high32, the matching
// bit of nonce, and the filter output of the state at that instant. The
// bits emitted by Filter during these 32 shifts are the keystream that
// encrypts the reader's response (E3, E4).
func Init(key uint64, uid, nonce uint32) State {
	s := newState((key&0xffff)<<32 | uint64(uid))
	for i := uint(0); i < 32; i++ {
		f := uint64(Filter(s.Shiftreg))
		in := ((key >> (16 + i)) & 1) ^ uint64((nonce>>i)&1) ^ f
		s = newState((s.Shiftreg >> 1) | (in << 47))
	}
	return s
}

// Step advances the state by one position and returns the keystream bit
// emitted at that position (computed from the state before the shift).
func Step(s State) (State, uint8) {
	bit := Filter(s.Shiftreg)
	next := (s.Shiftreg >> 1) | (forwardTaps(s.Shiftreg) << 47)
	return newState(next), bit
}

// NStep advances the state by n positions and returns the n keystream
// bits packed MSB-first: the earliest bit ends up shifted furthest to the
// left, the last bit produced occupies bit 0.
func NStep(s State, n int) (State, uint64) {
	var bits uint64
	for i := 0; i < n; i++ {
		var b uint8
		s, b = Step(s)
		bits = (bits << 1) | uint64(b)
	}
	return s, bits
}

// Rollback undoes steps forward steps, recovering earlier state. It is the
// exact functional inverse of Step: Rollback(s, 1) after Step(s) always
// reproduces s.
func Rollback(s State, steps int) State {
	reg := s.Shiftreg
	for i := 0; i < steps; i++ {
		reg = ((reg << 1) & StateMask) | rollbackTaps(reg)
	}
	return newState(reg)
}

// ShiftUIDBack replays uid (MSB-first) into the state 32 times, recording
// the filter output produced after each shift. It is how the key-recovery
// path of Attack 2 and Attack 5 reconstructs the value the reference
// implementation calls b: the post-init state's upper 32 bits equal
// key_high32 XOR nR XOR b, and b is exactly this function's output.
//
// This mirrors try_state's inline replay in the reference source: a
// left-shift-new-bit-at-bottom walk distinct from Step's own convention,
// kept distinct because it reconstructs a hypothetical history (as if uid,
// not a keystream, had been shifted through the register) rather than
// advancing real time.
func ShiftUIDBack(s State, uid uint32) (afterState uint64, b uint32) {
	reg := s.Shiftreg
	for i := uint(0); i < 32; i++ {
		reg = ((reg << 1) | uint64((uid>>(31-i))&1)) & StateMask
		bit := Filter(reg)
		b = (b << 1) | uint32(bit)
	}
	return reg, b
}

// RecoverKey reconstructs a candidate 48-bit key from a post-init state
// S* and the known uid/nR that produced it (§4.3 inversion detail, §4.6
// host verification). key_low16 sits untouched in S*'s low 16 bits; the
// high 32 bits come from undoing the nonce/uid mixing via ShiftUIDBack.
func RecoverKey(postInit State, uid, nR uint32) uint64 {
	keyLow16 := postInit.Shiftreg & 0xffff
	upper := (postInit.Shiftreg >> 16) & 0xffffffff
	_, b := ShiftUIDBack(postInit, uid)
	keyHigh32 := upper ^ uint64(nR) ^ uint64(b)
	return (keyHigh32 << 16) | keyLow16
}
