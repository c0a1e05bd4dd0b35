package tmtosearch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
	"github.com/RfidResearchGroup/ht2crack/pkg/tmtotable"
)

// writeState48 packs a 48-bit register big-endian, matching the on-disk
// record convention pkg/tmtotable uses.
func writeState48(dst []byte, state uint64) {
	dst[0] = byte(state >> 40)
	dst[1] = byte(state >> 32)
	dst[2] = byte(state >> 24)
	dst[3] = byte(state >> 16)
	dst[4] = byte(state >> 8)
	dst[5] = byte(state)
}

// buildFixtureTable hand-populates a sorted table from one real forward
// trajectory of the cipher, exactly reproducing what pkg/tmtotable's build
// and sort phases would have produced had they happened to enumerate
// every state along this trajectory. This lets the search+recover path be
// tested against ground truth without running an actual (randomized,
// astronomically large) table build.
func buildFixtureTable(t *testing.T, rootDir string, start hitag2.State, n int) RNGData {
	t.Helper()

	states := make([]hitag2.State, n)
	bits := make([]byte, 0, n)
	cur := start
	for i := 0; i < n; i++ {
		states[i] = cur
		var bit uint8
		cur, bit = hitag2.Step(cur)
		bits = append(bits, bit)
	}

	data := packBits(bits)
	rng := RNGData{Data: data, Bits: n}

	type bucketKey struct{ hh, ll byte }
	records := map[bucketKey][][]byte{}

	for i := 0; i <= n-48; i++ {
		window, err := candidateWindow(rng, i)
		require.NoError(t, err)

		rec := make([]byte, tmtotable.RecordSize)
		copy(rec[:keySize], window[2:6])
		writeState48(rec[keySize:], states[i].Shiftreg)

		bk := bucketKey{window[0], window[1]}
		records[bk] = append(records[bk], rec)
	}

	for bk, recs := range records {
		sort.Slice(recs, func(a, b int) bool {
			for i := 0; i < keySize; i++ {
				if recs[a][i] != recs[b][i] {
					return recs[a][i] < recs[b][i]
				}
			}
			return false
		})
		dir := filepath.Join(rootDir, "sorted", fmt.Sprintf("%02x", bk.hh))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		var flat []byte
		for _, r := range recs {
			flat = append(flat, r...)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("%02x.bin", bk.ll)), flat, 0o644))
	}

	return rng
}

func packBits(bits []byte) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b != 0 {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

func TestFindAndRecoverRoundTrip(t *testing.T) {
	const key = 0x1a2b3c4d5e6f & hitag2.StateMask
	const uid = 0xdeadbeef
	const nonce = 0x01234567

	postInit := hitag2.Init(key, uid, nonce)
	// the 64 steps of keystream consumed encrypting nR and aR happen
	// before the session keystream an eavesdropper actually records begins
	sessionStart, _ := hitag2.NStep(postInit, 64)

	rootDir := t.TempDir()
	rng := buildFixtureTable(t, rootDir, sessionStart, 200)

	match, err := Find(rootDir, rng)
	require.NoError(t, err)

	// nR is the value recoverkey's algebra expects: upper ^ nR ^ b must
	// equal the key's high 32 bits, so derive the nR that makes that hold
	// for this key rather than simulating the full encryption round trip.
	_, b := hitag2.ShiftUIDBack(postInit, uid)
	upper := uint32((postInit.Shiftreg >> 16) & 0xffffffff)
	keyHigh32 := uint32((uint64(key) >> 16) & 0xffffffff)
	nR := upper ^ b ^ keyHigh32

	recovered := Recover(match, uid, nR)
	require.Equal(t, uint64(key), recovered)
}

func TestFindNoMatchReturnsError(t *testing.T) {
	rootDir := t.TempDir()
	rng := RNGData{Data: make([]byte, 64), Bits: 64 * 8}
	_, err := Find(rootDir, rng)
	require.Error(t, err)
}
