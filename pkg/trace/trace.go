// Package trace holds the domain types and text-format I/O shared by every
// attack: an observed authentication exchange, and the hex conventions used
// at the CLI boundary.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"
	"strings"

	"github.com/RfidResearchGroup/ht2crack/pkg/hitag2"
)

// AuthTrace is one observed authentication exchange (E4): a reader nonce
// and the tag's encrypted response, both 32 bits, alongside the shared
// 32-bit UID. Keystream returns the 32 keystream bits the cipher actually
// produced, recovered by removing the reference implementation's known
// constant (aR = ~keystream, so keystream = ~aR).
type AuthTrace struct {
	UID uint32
	NR  uint32
	AR  uint32
}

// Keystream returns the 32 observed keystream bits this trace implies.
func (t AuthTrace) Keystream() uint32 {
	return ^t.AR
}

// ParseHex32 parses an 8-hex-digit (optionally 0x/0X-prefixed) string into
// a uint32. Per §6, UID and nR values cross the wire bit-reversed relative
// to the cipher's internal convention; reverse controls whether that
// reversal is applied after parsing.
func ParseHex32(s string, reverse bool) (uint32, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("trace: invalid hex32 %q: %w", s, err)
	}
	x := uint32(v)
	if reverse {
		x = hitag2.Rev32(x)
	}
	return x, nil
}

// FormatHex32 renders x as 8 lowercase hex digits, applying the same
// bit-reversal convention ParseHex32 undoes.
func FormatHex32(x uint32, reverse bool) string {
	if reverse {
		x = hitag2.Rev32(x)
	}
	return fmt.Sprintf("%08x", x)
}

// FormatKey renders a 48-bit key as 12 hex characters in the reference
// tool's wire convention: the key's 48 bits mirrored end to end (not the
// per-byte reversal hitag2.Rev64 applies — the reference computes this
// output by composing its own per-byte rev64 with an explicit 6-byte
// order swap, which together amount to a single whole-word bit mirror).
func FormatKey(key uint64) string {
	rev := bits.Reverse64(key << 16)
	return fmt.Sprintf("%012x", rev)
}

// ParseKey parses a 12-hex-character wire-format key (the FormatKey
// convention) back into the cipher's internal 48-bit representation.
func ParseKey(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	rev, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("trace: invalid key %q: %w", s, err)
	}
	return bits.Reverse64(rev) >> 16, nil
}

// LoadPairs reads a nonce-pairs file (§6): one "nR aR" hex pair per line,
// each field optionally 0x-prefixed. maxLines bounds how many pairs are
// accepted (1024 for Attack 3, 32 for Attack 4) — a file with more lines
// is not an error, the loader just stops reading.
func LoadPairs(path string, uid uint32, maxLines int) ([]AuthTrace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("trace: open %s: %w", path, err)
	}
	defer f.Close()
	return ParsePairs(f, uid, maxLines)
}

// ParsePairs is LoadPairs's testable core, reading from any io.Reader.
func ParsePairs(r io.Reader, uid uint32, maxLines int) ([]AuthTrace, error) {
	var traces []AuthTrace
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() && len(traces) < maxLines {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("trace: line %d: expected \"nR aR\", got %q", lineNo, line)
		}
		// the nonce-pairs file stores both fields in wire order; the
		// reference loader (ht2crack3.c's main) reverses both on the way
		// in, unlike the CLI positional-argument convention where aR is
		// taken raw
		nR, err := ParseHex32(fields[0], true)
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", lineNo, err)
		}
		aR, err := ParseHex32(fields[1], true)
		if err != nil {
			return nil, fmt.Errorf("trace: line %d: %w", lineNo, err)
		}
		traces = append(traces, AuthTrace{UID: uid, NR: nR, AR: aR})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("trace: reading: %w", err)
	}
	return traces, nil
}
