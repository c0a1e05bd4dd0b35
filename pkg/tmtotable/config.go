// Package tmtotable builds the Attack 2 time-memory trade-off table: a
// 65,536-bucket, disk-resident mapping from a keystream prefix to the PRNG
// state that produced it.
package tmtotable

// DefaultBucketCapacityBytes is the reference implementation's own default
// (DATAMAX in the original source) — kept unchanged since it's a wire-level
// constant downstream tools assume.
const DefaultBucketCapacityBytes = 196600

// RecordSize is the on-disk record width: 1 leftover byte of the first
// 24-bit keystream half, the full second 24-bit half, and the 48-bit
// state, big-endian (E5).
const RecordSize = 10

// NumBuckets is the number of (HH, LL) shard files: one per first-two-byte
// keystream prefix.
const NumBuckets = 65536

// Config configures a table build. Recognized options per spec.md §4.2:
// thread_count, bucket_capacity, root_dir.
type Config struct {
	RootDir            string // table/ lives under this directory
	ThreadCount        int    // builder threads; also multiplies StepStride into jump-table 1's per-thread stride
	BucketCapacityBytes int   // per-bucket in-RAM buffer size before flush
	TotalStates        uint64 // total PRNG states enumerated across all threads (~2^37 in production; small for tests)
	CompressBuckets    bool   // optional s2 compression of flushed chunks
	StepStride         uint64 // states between consecutive threads' starting points; one thread advances StepStride*ThreadCount per visit (2048 in the reference)
}

// DefaultConfig returns the reference implementation's defaults, with
// TotalStates left at the real ~2^37 scale — callers building a table for
// tests should override it to something tractable.
func DefaultConfig(rootDir string) Config {
	return Config{
		RootDir:              rootDir,
		ThreadCount:          8,
		BucketCapacityBytes:  DefaultBucketCapacityBytes,
		TotalStates:          1 << 37,
		StepStride:           2048,
	}
}
