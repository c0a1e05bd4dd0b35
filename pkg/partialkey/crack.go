package partialkey

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/RfidResearchGroup/ht2crack/pkg/htlog"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

var errNeedTwoTraces = errors.New("partialkey: need at least 2 (nR, aR) traces")

// Config bounds a Crack run: how many worker goroutines share the klower
// search space, ported from ht2crack3.c's NUM_THREADS/klowerrange split
// but expressed as a shared work channel rather than a static per-thread
// range.
type Config struct {
	ThreadCount int
}

// DefaultConfig mirrors the reference tool's 8-thread default.
func DefaultConfig() Config {
	return Config{ThreadCount: 8}
}

// Result is a recovered key plus the partial-key guess that led to it, for
// diagnostics.
type Result struct {
	Key     uint64
	KLower  uint32
	KMiddle uint32
}

// Crack runs Attack 3 against uid and a set of observed (nR, aR) traces: it
// tries every klower (the key's low 16 bits) and, for each, every kmiddle
// (the next 18 bits), pruning kmiddle guesses a single disagreeing trace
// rules out, then brute-forcing the remaining 14 bits for any guess that
// survives every trace. Ported from ht2crack3.c's crack().
func Crack(uid uint32, traces []trace.AuthTrace, cfg Config, logger zerolog.Logger) (Result, bool, error) {
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 8
	}
	if len(traces) < 2 {
		return Result{}, false, errNeedTwoTraces
	}

	work := make(chan uint32, 0x10000)
	for klower := uint32(0); klower < 0x10000; klower++ {
		work <- klower
	}
	close(work)

	var checked atomic.Int64
	var found atomic.Bool
	var result Result

	stop := make(chan struct{})
	prog := htlog.NewProgress(logger, "partialkey-crack", 10*time.Second, checked.Load, func() int64 {
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
			for klower := range work {
				if found.Load() {
					continue
				}
				r, ok := crackKLower(uint64(uid), klower, traces)
				checked.Add(1)
				if ok {
					mu.Lock()
					if !found.Load() {
						result = r
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

// crackKLower searches every kmiddle for one klower guess.
func crackKLower(uid uint64, klower uint32, traces []trace.AuthTrace) (Result, bool) {
	table := BuildTable(uid, klower)

	for kmiddle := uint32(0); kmiddle < 0x40000; kmiddle++ {
		badGuess := false
		anyFound := false
		for _, tr := range traces {
			z := kmiddle ^ (tr.NR & 0x3ffff)
			bad, ok := isBadGuess(z, table, tr.AR&1 == 1)
			if bad {
				badGuess = true
				break
			}
			if ok {
				anyFound = true
			}
		}
		if badGuess || !anyFound {
			continue
		}

		partial := uint64(kmiddle)<<16 | uint64(klower)
		key1, ok1 := testKey(uid32(uid), partial, traces[0].NR, traces[0].AR)
		if !ok1 {
			continue
		}
		key2, ok2 := testKey(uid32(uid), partial, traces[1].NR, traces[1].AR)
		if !ok2 || key1 != key2 {
			continue
		}
		return Result{Key: key1, KLower: klower, KMiddle: kmiddle}, true
	}
	return Result{}, false
}

func uid32(uid uint64) uint32 { return uint32(uid) }
