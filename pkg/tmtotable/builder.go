package tmtotable

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/htlog"
	"github.com/rs/zerolog"
)

// seedState is the reference implementation's fixed arbitrary starting
// point for table construction — any fixed seed works, since every thread
// jumps away from it to a distinct offset before it starts recording.
const seedState = 0x123456789abc

// Build enumerates Config.TotalStates PRNG states across Config.ThreadCount
// goroutines and persists (keystream-prefix -> state) into 65,536 sharded
// bucket files under root_dir/table. It mirrors the teacher's worker-pool
// shape (pkg/search/worker.go): a fixed goroutine count, atomic counters,
// a ticker-driven progress reporter — generalized here from a bounded
// task channel to an unbounded per-thread state-space walk.
func Build(cfg Config, logger zerolog.Logger) error {
	if cfg.ThreadCount <= 0 {
		cfg.ThreadCount = 8
	}
	if cfg.BucketCapacityBytes <= 0 {
		cfg.BucketCapacityBytes = DefaultBucketCapacityBytes
	}
	if cfg.StepStride == 0 {
		cfg.StepStride = 2048
	}

	buckets := newBucketGrid(cfg)

	perThreadStride := cfg.StepStride * uint64(cfg.ThreadCount)
	maxEntries := cfg.TotalStates / perThreadStride
	if maxEntries == 0 {
		maxEntries = 1
	}

	// jump-table 2 reaches a thread's starting offset (stride steps, used
	// threadIndex times); jump-table 1 advances one thread's cursor by a
	// full perThreadStride each iteration.
	offsetTable := buildJumpTable(cfg.StepStride)
	strideTable := buildJumpTable(perThreadStride)

	var checked atomic.Int64
	stop := make(chan struct{})
	prog := htlog.NewProgress(logger, "tmto-build", 10*time.Second, checked.Load, nil)
	go prog.Run(stop)

	errs := make(chan error, cfg.ThreadCount)
	var wg sync.WaitGroup
	for thread := 0; thread < cfg.ThreadCount; thread++ {
		wg.Add(1)
		go func(thread int) {
			defer wg.Done()
			errs <- buildThread(thread, maxEntries, offsetTable, strideTable, buckets, &checked)
		}(thread)
	}
	wg.Wait()
	close(stop)
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return buckets.flushAll()
}

// buildThread walks one thread's slice of the state space, recording one
// bucketed record per visited state.
func buildThread(thread int, maxEntries uint64, offsetTable, strideTable jumpTable, buckets *bucketGrid, checked *atomic.Int64) error {
	reg := uint64(seedState)
	for i := 0; i < thread; i++ {
		reg = jump(reg, offsetTable)
	}

	var record [RecordSize]byte
	for n := uint64(0); n < maxEntries; n++ {
		ks1, ks2 := keystreamHalves(reg)

		record[0] = byte(ks1 & 0xff)
		record[1] = byte(ks2 >> 16)
		record[2] = byte(ks2 >> 8)
		record[3] = byte(ks2)
		writeState48(record[4:10], reg)

		hh := byte(ks1 >> 16)
		ll := byte(ks1 >> 8)
		if err := buckets.append(hh, ll, record[:]); err != nil {
			return fmt.Errorf("tmtotable: thread %d: %w", thread, err)
		}
		checked.Add(1)

		reg = jump(reg, strideTable)
	}
	return nil
}

// keystreamHalves extracts 48 keystream bits from state as two 24-bit
// halves, from a throwaway copy so the real enumeration cursor (reg) is
// never advanced by reading keystream.
func keystreamHalves(reg uint64) (ks1, ks2 uint32) {
	s := hitag2.State{Shiftreg: reg}
	s, bits1 := hitag2.NStep(s, 24)
	_, bits2 := hitag2.NStep(s, 24)
	return uint32(bits1) & 0xffffff, uint32(bits2) & 0xffffff
}

func writeState48(dst []byte, state uint64) {
	dst[0] = byte(state >> 40)
	dst[1] = byte(state >> 32)
	dst[2] = byte(state >> 24)
	dst[3] = byte(state >> 16)
	dst[4] = byte(state >> 8)
	dst[5] = byte(state)
}
