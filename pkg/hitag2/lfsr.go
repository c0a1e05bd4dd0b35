package hitag2

// buildLFSR derives the fast-path fingerprint from the shift register. The
// formula is a fixed XOR combination of shifted copies of the state and of
// state^(state>>1); it exists purely to accelerate repeated n-step advance
// and carries no information Shiftreg doesn't already have.
func buildLFSR(s *State) {
	state := s.Shiftreg
	temp := state ^ (state >> 1)
	s.Lfsr = state ^ (state >> 6) ^ (state >> 16) ^
		(state >> 26) ^ (state >> 30) ^ (state >> 41) ^
		(temp >> 2) ^ (temp >> 7) ^ (temp >> 22) ^
		(temp >> 42) ^ (temp >> 46)
}

// forwardTaps are the sixteen LFSR feedback tap positions (pre-shift
// state), XORed together to produce the bit shifted into position 47 on
// each forward step. rollbackTaps (fnR, below) is this function's exact
// inverse: rollbackTaps(step(s)) always recovers bit 0 of s.
func forwardTaps(s uint64) uint64 {
	return bitn(s, 0) ^ bitn(s, 2) ^ bitn(s, 3) ^ bitn(s, 6) ^ bitn(s, 7) ^
		bitn(s, 8) ^ bitn(s, 16) ^ bitn(s, 22) ^ bitn(s, 23) ^ bitn(s, 26) ^
		bitn(s, 30) ^ bitn(s, 41) ^ bitn(s, 42) ^ bitn(s, 43) ^ bitn(s, 46) ^ bitn(s, 47)
}

// rollbackTaps is fnR, the sub-function rollback depends on: sixteen tap
// positions renumbered 0-47 (the reference source numbers them 1-48)
// relative to forwardTaps, since it is evaluated one step later in time.
func rollbackTaps(x uint64) uint64 {
	return bitn(x, 1) ^ bitn(x, 2) ^ bitn(x, 5) ^ bitn(x, 6) ^ bitn(x, 7) ^
		bitn(x, 15) ^ bitn(x, 21) ^ bitn(x, 22) ^ bitn(x, 25) ^ bitn(x, 29) ^
		bitn(x, 40) ^ bitn(x, 41) ^ bitn(x, 42) ^ bitn(x, 45) ^ bitn(x, 46) ^ bitn(x, 47)
}
