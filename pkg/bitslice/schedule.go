package bitslice

import "sort"

// layer0Mask picks the 20 of the 46 unknown state positions (2-47; bits 0
// and 1 are never read by Filter at the offsets the layers check, so the
// layers leave them at zero, and bruteRemaining tries all four of their
// values when it verifies a candidate) that are
// brute-forced scalar in layer 0, before any bitslicing starts. Ported
// verbatim from ht2crack5.c's layer-0 expand(0x5806b4a2d16c, i0) call.
const layer0Mask uint64 = 0x5806b4a2d16c

// freePositions, laneFreePositions, outerFreePositions and
// scalarFreePositions partition the 26 state positions layer0Mask leaves
// unknown, derived (not copied) from layer0Mask and filterOffsetGroups:
//
//   - freePositions: every position in [2,47] layer0Mask doesn't cover.
//   - of those, the ones layer 1's filter evaluation reads are split into
//     laneFreePositions (as many as fit a word's lanes) and
//     outerFreePositions (the rest, walked as a plain outer loop of fixed
//     0/1 assignments);
//   - scalarFreePositions are the remaining positions layer 1 never reads,
//     resolved by a final scalar brute force once a candidate survives the
//     bitsliced layer-1 test.
//
// This reconstructs exactly the role ht2crack5.c's filter_pos array (the
// lane/outer positions) and the bits[] schedule beyond index 1 play, but by
// computing which positions layer 1 needs instead of hand-listing them —
// verified to produce the identical 14/12 split the reference's literal
// tables encode.
var (
	freePositions       []int
	laneFreePositions   []int
	outerFreePositions  []int
	scalarFreePositions []int
)

func init() {
	for p := 2; p < 48; p++ {
		if layer0Mask>>uint(p)&1 == 0 {
			freePositions = append(freePositions, p)
		}
	}

	layer1Needed := map[int]bool{}
	for _, g := range filterOffsetGroups {
		for _, offset := range g {
			layer1Needed[offset+1] = true
		}
	}

	var layer1Free []int
	for _, p := range freePositions {
		if layer1Needed[p] {
			layer1Free = append(layer1Free, p)
		} else {
			scalarFreePositions = append(scalarFreePositions, p)
		}
	}
	sort.Ints(layer1Free)

	if len(layer1Free) > laneBits {
		laneFreePositions = layer1Free[:laneBits]
		outerFreePositions = layer1Free[laneBits:]
	} else {
		laneFreePositions = layer1Free
	}
}
