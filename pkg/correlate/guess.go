package correlate

import (
	"sort"
	"sync"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
)

// nonce is one observed encrypted-nonce/keystream pair, in the wire
// convention trace.AuthTrace already stores (nR reversed, keystream
// recovered from aR). Ported from ht2crack4.c's struct nonce.
type nonce struct {
	encNR uint64
	ks    uint64
}

// guess is one candidate for the key's low `size` bits, plus the partial
// keystream each observed nonce has produced against it so far. score is
// -1 before it's ever been scored, 0 once disproven by any trace, and
// otherwise the average per-trace correlation score. Ported from
// ht2crack4.c's struct guess, with b0to31 sized to the trace count instead
// of a fixed MAX_NONCES array.
type guess struct {
	key    uint64
	score  float64
	b0to31 []uint64
}

// initGuessTable preallocates every guess slot the run will ever use (so
// expandGuesses never reallocates) and seeds the first 65536 — every
// possible value of the key's lower 16 bits — as the round-16 starting
// guesses.
func initGuessTable(maxTableSize, numNonces int) []guess {
	guesses := make([]guess, maxTableSize)
	for i := range guesses {
		guesses[i].b0to31 = make([]uint64, numNonces)
		if i < 0x10000 {
			guesses[i].key = uint64(i)
			guesses[i].score = -1.0
		}
	}
	return guesses
}

// scoreTraces extends g's confirmed keystream by one more bit (the bit at
// position size-16) and scores the resulting size-bit partial state
// against every trace, short-circuiting to a zero score on the first
// trace that rules it out. Ported from ht2crack4.c's score_traces.
func scoreTraces(g *guess, size int, nonces []nonce, uid uint64) {
	if g.score == 0.0 {
		return
	}

	var total float64
	for i, n := range nonces {
		lfsr := (uid >> uint(size-16)) | ((g.key << uint(48-size)) ^ ((n.encNR ^ g.b0to31[i]) << uint(64-size)))
		g.b0to31[i] |= uint64(hitag2.Filter(lfsr)) << uint(size-16)

		lfsr = g.key ^ ((n.encNR ^ g.b0to31[i]) << 16)

		sc := score(lfsr, uint64(size), n.ks, 32)
		if sc == 0.0 {
			g.score = 0.0
			return
		}
		total += sc
	}

	g.score = total / float64(len(nonces))
}

// scoreAllTraces fans scoreTraces out over a fixed pool of goroutines
// sharing a channel of guess indices, the same shape as the table builder
// and table search worker pools.
func scoreAllTraces(guesses []guess, size int, nonces []nonce, uid uint64, threadCount int) {
	work := make(chan int, len(guesses))
	for i := range guesses {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for t := 0; t < threadCount; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				scoreTraces(&guesses[i], size, nonces, uid)
			}
		}()
	}
	wg.Wait()
}

// sortByScoreDesc orders guesses highest-score-first, so the survivors
// kept after each round's halving are the best-correlated ones. Ported
// from ht2crack4.c's cmp_guess.
func sortByScoreDesc(guesses []guess) {
	sort.Slice(guesses, func(i, j int) bool { return guesses[i].score > guesses[j].score })
}

// expandGuesses doubles the surviving guesses: the first halfsize entries
// (already sorted best-first) are copied into the next halfsize slots with
// bit `size` of the key set, so each survivor spawns a 0-guess and a
// 1-guess for the newly-considered key bit. Ported from ht2crack4.c's
// expand_guesses.
func expandGuesses(guesses []guess, halfsize, size int) {
	for i := 0; i < halfsize; i++ {
		src := guesses[i]
		dst := &guesses[i+halfsize]
		dst.key = src.key | (1 << uint(size))
		dst.score = src.score
		copy(dst.b0to31, src.b0to31)
	}
}
