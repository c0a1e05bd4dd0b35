package tmtotable

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/rs/zerolog"

	"github.com/RfidResearchGroup/ht2crack/pkg/htlog"
)

// SortConfig configures the post-build sort phase: every table/HH/LL.bin
// shard is read, its RecordSize-byte records sorted lexicographically (so
// a binary search over the keystream prefix works in pkg/tmtosearch), and
// written to sorted/HH/LL.bin. The source shard is removed once its sorted
// copy is durably written.
type SortConfig struct {
	RootDir         string
	SorterCount     int
	CompressBuckets bool
}

// Sort runs the sort phase across every bucket that the build phase
// produced. Bucket files are independent, so SorterCount goroutines drain
// a shared work queue of (hh, ll) pairs — the same fixed-pool, shared-queue
// shape as the teacher's worker pool, just with filesystem paths as the
// work item instead of a CPU optimization candidate.
func Sort(cfg SortConfig, logger zerolog.Logger) error {
	if cfg.SorterCount <= 0 {
		cfg.SorterCount = 8
	}

	type shard struct{ hh, ll byte }
	work := make(chan shard, NumBuckets)
	for hh := 0; hh < 256; hh++ {
		for ll := 0; ll < 256; ll++ {
			work <- shard{byte(hh), byte(ll)}
		}
	}
	close(work)

	var done int64
	var mu sync.Mutex
	countDone := func() int64 {
		mu.Lock()
		defer mu.Unlock()
		return done
	}

	stop := make(chan struct{})
	prog := htlog.NewProgress(logger, "tmto-sort", 10*time.Second, countDone, nil)
	go prog.Run(stop)

	errs := make(chan error, cfg.SorterCount)
	var wg sync.WaitGroup
	for i := 0; i < cfg.SorterCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sh := range work {
				sorted, err := sortShard(cfg.RootDir, sh.hh, sh.ll, cfg.CompressBuckets)
				if err != nil {
					errs <- err
					return
				}
				if sorted {
					mu.Lock()
					done++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// sortShard sorts one bucket file in place into the sorted/ tree. It
// reports (false, nil) when the source shard doesn't exist — most (hh, ll)
// prefixes go unused in a table much smaller than the full 2^48 space, and
// that is not an error.
func sortShard(rootDir string, hh, ll byte, compressed bool) (bool, error) {
	srcPath := filepath.Join(rootDir, "table", fmt.Sprintf("%02x", hh), fmt.Sprintf("%02x.bin", ll))
	raw, err := os.ReadFile(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("tmtotable: read %s: %w", srcPath, err)
	}

	payload, err := decodeShard(raw, compressed)
	if err != nil {
		return false, fmt.Errorf("tmtotable: decode %s: %w", srcPath, err)
	}
	if len(payload)%RecordSize != 0 {
		return false, fmt.Errorf("tmtotable: %s: size %d not a multiple of record size %d", srcPath, len(payload), RecordSize)
	}

	records := make([][]byte, 0, len(payload)/RecordSize)
	for off := 0; off < len(payload); off += RecordSize {
		records = append(records, payload[off:off+RecordSize])
	}
	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i], records[j]) < 0
	})

	sorted := make([]byte, 0, len(payload))
	for _, r := range records {
		sorted = append(sorted, r...)
	}

	dstDir := filepath.Join(rootDir, "sorted", fmt.Sprintf("%02x", hh))
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return false, fmt.Errorf("tmtotable: mkdir %s: %w", dstDir, err)
	}
	dstPath := filepath.Join(dstDir, fmt.Sprintf("%02x.bin", ll))
	if err := os.WriteFile(dstPath, sorted, 0o644); err != nil {
		return false, fmt.Errorf("tmtotable: write %s: %w", dstPath, err)
	}

	if err := os.Remove(srcPath); err != nil {
		return false, fmt.Errorf("tmtotable: remove %s: %w", srcPath, err)
	}
	return true, nil
}

func decodeShard(raw []byte, compressed bool) ([]byte, error) {
	if !compressed {
		return raw, nil
	}
	return io.ReadAll(s2.NewReader(bytes.NewReader(raw)))
}
