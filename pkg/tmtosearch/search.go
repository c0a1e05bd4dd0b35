package tmtosearch

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/tmtotable"
)

// keySize is the byte width of the sort/search key within one 10-byte
// table record: the record minus its 6-byte state trailer.
const keySize = tmtotable.RecordSize - 6

// Match is a confirmed table hit: the 6-byte candidate window, the
// matching 6-byte PRNG state from the table, and the bit offset within the
// rng capture the window started at.
type Match struct {
	Window    [6]byte
	State     [6]byte
	BitOffset int
}

// Find runs Attack 2's search phase against the sorted table under
// rootDir: it slides a 48-bit window across the capture, looks each
// window up in the matching sorted shard, and confirms a hit by replaying
// the adjacent 48-bit window forward or backward from the candidate state.
func Find(rootDir string, rng RNGData) (Match, error) {
	bitLen := rng.Bits
	for i := 0; i <= bitLen-48; i++ {
		cand, err := candidateWindow(rng, i)
		if err != nil {
			return Match{}, err
		}

		var rngTest [6]byte
		var fwd bool
		if i < bitLen-96 {
			rngTest, err = candidateWindow(rng, i+48)
			fwd = true
		} else {
			rngTest, err = candidateWindow(rng, i-48)
			fwd = false
		}
		if err != nil {
			return Match{}, err
		}

		m, state, ok, err := searchShard(rootDir, cand, rngTest, fwd)
		if err != nil {
			return Match{}, err
		}
		if ok {
			return Match{Window: m, State: state, BitOffset: i}, nil
		}
	}
	return Match{}, fmt.Errorf("tmtosearch: no match found in %d bits of capture", bitLen)
}

// searchShard loads the sorted shard addressed by cand's first two bytes,
// binary searches for cand's key bytes, and tests every record sharing
// that key (duplicates are adjacent after sorting) against rngTest.
func searchShard(rootDir string, cand, rngTest [6]byte, fwd bool) (m [6]byte, state [6]byte, ok bool, err error) {
	path := filepath.Join(rootDir, "sorted", fmt.Sprintf("%02x", cand[0]), fmt.Sprintf("%02x.bin", cand[1]))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, state, false, nil
		}
		return m, state, false, fmt.Errorf("tmtosearch: read %s: %w", path, err)
	}
	if len(data)%tmtotable.RecordSize != 0 {
		return m, state, false, fmt.Errorf("tmtosearch: %s: size %d not a record multiple", path, len(data))
	}
	n := len(data) / tmtotable.RecordSize
	key := cand[2:6]

	idx := sort.Search(n, func(i int) bool {
		rec := data[i*tmtotable.RecordSize : i*tmtotable.RecordSize+keySize]
		return bytes.Compare(rec, key) >= 0
	})
	if idx >= n {
		return m, state, false, nil
	}
	if !bytes.Equal(data[idx*tmtotable.RecordSize:idx*tmtotable.RecordSize+keySize], key) {
		return m, state, false, nil
	}

	start := idx
	for start > 0 && bytes.Equal(data[(start-1)*tmtotable.RecordSize:(start-1)*tmtotable.RecordSize+keySize], key) {
		start--
	}

	for i := start; i < n; i++ {
		rec := data[i*tmtotable.RecordSize : (i+1)*tmtotable.RecordSize]
		if !bytes.Equal(rec[:keySize], key) {
			break
		}
		var recState [6]byte
		copy(recState[:], rec[keySize:])
		if testCandidate(recState, rngTest, fwd) {
			copy(m[:2], cand[:2])
			copy(m[2:], key)
			return m, recState, true, nil
		}
	}
	return m, state, false, nil
}

// testCandidate rebuilds the PRNG state the table recorded, replays it
// forward (or backward) 48 steps, and checks the emitted keystream matches
// rngTest — the confirmation that the table hit is not a 32-bit hash
// collision.
func testCandidate(stateBytes, rngTest [6]byte, fwd bool) bool {
	var reg uint64
	for _, b := range stateBytes {
		reg = (reg << 8) | uint64(b)
	}
	s := hitag2.State{Shiftreg: reg}

	if fwd {
		s, _ = hitag2.NStep(s, 48)
	} else {
		s = hitag2.Rollback(s, 48)
	}

	s, ks1 := hitag2.NStep(s, 24)
	_, ks2 := hitag2.NStep(s, 24)

	var buf [6]byte
	buf[0] = byte(ks1 >> 16)
	buf[1] = byte(ks1 >> 8)
	buf[2] = byte(ks1)
	buf[3] = byte(ks2 >> 16)
	buf[4] = byte(ks2 >> 8)
	buf[5] = byte(ks2)

	return buf == rngTest
}
