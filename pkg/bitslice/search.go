package bitslice

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/htlog"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

var errNeedTwoTraces = errors.New("bitslice: need at least 2 (nR, aR) traces")

// Config bounds a Crack run. ThreadCount mirrors the reference's
// num_CPUs()-sized thread pool.
type Config struct {
	ThreadCount int
}

// DefaultConfig mirrors the reference tool's 8-thread default.
func DefaultConfig() Config {
	return Config{ThreadCount: 8}
}

// Result is a recovered key.
type Result struct {
	Key uint64
}

// Crack runs Attack 5 against uid and two observed traces. It enumerates
// the 2^20 layer-0 candidates scalar (ported from ht2crack5.c's main), then
// for each survivor bitslices the layer-1 filter test across every
// combination of the positions that test depends on, brute-forces whatever
// positions remain scalar, and verifies full candidates against both
// traces before recovering the key. Only the first two traces are used;
// extras are accepted for interface parity with the other attacks but
// ignored, since this search never needs more than one pair to find the
// state and a second to confirm the key.
//
// ht2crack5.c continues bitslicing for 31 layers before falling back to a
// per-candidate key-recovery check; each additional layer beyond the first
// needs positions past the real 46-bit state (48, 49, ...), which are only
// meaningful once further nR/aR-independent bits are guessed for them. This
// implementation stops bitslicing after layer 1 — the deepest layer whose
// filter inputs still fall entirely inside the 46 known positions — and
// hands every layer-1 survivor straight to the real cipher (hitag2.NStep)
// for the remaining 30 layers of verification, which is exact rather than
// an early-abort approximation and needs no extra guessed bits.
func Crack(uid uint32, traces []trace.AuthTrace, cfg Config, logger zerolog.Logger) (Result, bool, error) {
	if len(traces) < 2 {
		return Result{}, false, errNeedTwoTraces
	}
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 8
	}
	t1, t2 := traces[0], traces[1]

	ks1 := uint64(t1.Keystream())
	bit0 := uint8((ks1 >> 31) & 1)
	bit1 := uint8((ks1 >> 30) & 1)

	var candidates []uint64
	for i := uint64(0); i < 1<<20; i++ {
		state0 := expand(layer0Mask, i)
		if hitag2.Filter(state0) == bit0 {
			candidates = append(candidates, state0)
		}
	}

	work := make(chan uint64, len(candidates))
	for _, c := range candidates {
		work <- c
	}
	close(work)

	var checked atomic.Int64
	var found atomic.Bool
	var result Result

	stop := make(chan struct{})
	prog := htlog.NewProgress(logger, "bitslice-crack", 10*time.Second, checked.Load, func() int64 {
		if found.Load() {
			return 1
		}
		return 0
	})
	go prog.Run(stop)

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := 0; i < cfg.ThreadCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for base := range work {
				if found.Load() {
					continue
				}
				checked.Add(1)
				if key, ok := searchCandidate(base, bit1, uid, t1, t2); ok {
					mu.Lock()
					if !found.Load() {
						result = Result{Key: key}
						found.Store(true)
					}
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	close(stop)

	return result, found.Load(), nil
}

// SearchRange searches layer-0 indices [lo, hi) against uid and the first
// two of traces, returning as soon as one verifies. This is the unit of
// work pkg/dispatch hands to one device worker: Crack itself is equivalent
// to SearchRange(0, 1<<20, ...) split across a local thread pool; dispatch
// instead slices that same [0, 1<<20) index space into workqueue.Unit
// ranges so it can be farmed out across independently scheduled workers
// (pkg/scheduler) standing in for separate compute devices.
func SearchRange(lo, hi uint64, uid uint32, traces []trace.AuthTrace) (Result, bool, error) {
	if len(traces) < 2 {
		return Result{}, false, errNeedTwoTraces
	}
	t1, t2 := traces[0], traces[1]

	ks1 := uint64(t1.Keystream())
	bit0 := uint8((ks1 >> 31) & 1)
	bit1 := uint8((ks1 >> 30) & 1)

	for i := lo; i < hi; i++ {
		state0 := expand(layer0Mask, i)
		if hitag2.Filter(state0) != bit0 {
			continue
		}
		if key, ok := searchCandidate(state0, bit1, uid, t1, t2); ok {
			return Result{Key: key}, true, nil
		}
	}
	return Result{}, false, nil
}

// searchCandidate bitslices layer 1 across every combination of
// laneFreePositions and outerFreePositions on top of base, then scalar
// brute-forces scalarFreePositions for whichever lane combinations survive.
func searchCandidate(base uint64, bit1 uint8, uid uint32, t1, t2 trace.AuthTrace) (uint64, bool) {
	outerCombos := 1 << uint(len(outerFreePositions))
	for outer := 0; outer < outerCombos; outer++ {
		known := withOuterBits(base, outer)
		survivors := layer1Survivors(known, bit1)
		if survivors.None() {
			continue
		}
		for lane := 0; lane < laneCount; lane++ {
			if !survivors.Test(uint(lane)) {
				continue
			}
			laneKnown := applyLane(known, lane)
			if key, ok := bruteRemaining(laneKnown, uid, t1, t2); ok {
				return key, true
			}
		}
	}
	return 0, false
}

// withOuterBits sets outerFreePositions' bits in base according to combo's
// low bits.
func withOuterBits(base uint64, combo int) uint64 {
	v := base
	for i, p := range outerFreePositions {
		if (combo>>uint(i))&1 == 1 {
			v |= 1 << uint(p)
		}
	}
	return v
}

// applyLane sets laneFreePositions' bits in known according to lane's low
// bits, undoing the lane-encoding layer1Survivors used to test all of them
// at once.
func applyLane(known uint64, lane int) uint64 {
	v := known
	for i, p := range laneFreePositions {
		if (lane>>uint(i))&1 == 1 {
			v |= 1 << uint(p)
		}
	}
	return v
}

// layer1Survivors builds a word whose lane L holds the layer-1 filter
// result for known with laneFreePositions bits set to L's bit pattern, then
// returns the lanes where that result matches bit1. Grounded on
// ht2crack5.c's find_state inner i1 loop (the code setting
// state[-2+{27,30,32,35,45,47,48}] before testing filter1_0..filter1_4),
// generalized to filterBS/laneFreePositions instead of a hardcoded i1 bit
// count.
func layer1Survivors(known uint64, bit1 uint8) word {
	w := make([]word, 48)
	for pos := 2; pos < 48; pos++ {
		laneIdx := -1
		for i, p := range laneFreePositions {
			if p == pos {
				laneIdx = i
				break
			}
		}
		if laneIdx >= 0 {
			w[pos] = laneBit[laneIdx]
		} else {
			w[pos] = broadcast(int((known >> uint(pos)) & 1))
		}
	}

	result := filterBS(w, 1)
	if bit1 == 1 {
		return result
	}
	return not(result)
}

// bruteRemaining brute-forces scalarFreePositions, and the four values of
// state bits 0 and 1, against known, verifying each full 48-bit candidate
// against both traces.
func bruteRemaining(known uint64, uid uint32, t1, t2 trace.AuthTrace) (uint64, bool) {
	combos := 1 << uint(len(scalarFreePositions))
	for combo := 0; combo < combos; combo++ {
		v := known
		for i, p := range scalarFreePositions {
			if (combo>>uint(i))&1 == 1 {
				v |= 1 << uint(p)
			}
		}
		for low := uint64(0); low < 4; low++ {
			if key, ok := verifyCandidate(v&^3|low, uid, t1, t2); ok {
				return key, true
			}
		}
	}
	return 0, false
}

// verifyCandidate treats shiftreg as a post-init cipher state (Lfsr is
// never read by NStep, ShiftUIDBack or RecoverKey, so it is left zero
// rather than rebuilt), steps it forward to check all 32 bits of t1's
// keystream, recovers the key, and confirms that key against t2. Ported
// from ht2crack5.c's try_state.
func verifyCandidate(shiftreg uint64, uid uint32, t1, t2 trace.AuthTrace) (uint64, bool) {
	post := hitag2.State{Shiftreg: shiftreg}
	_, bits := hitag2.NStep(post, 32)
	if uint32(bits) != t1.Keystream() {
		return 0, false
	}

	key := hitag2.RecoverKey(post, uid, t1.NR)
	confirm := hitag2.Init(key, uid, t2.NR)
	_, bits2 := hitag2.NStep(confirm, 32)
	if uint32(bits2) != t2.Keystream() {
		return 0, false
	}
	return key, true
}
