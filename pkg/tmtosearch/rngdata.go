// Package tmtosearch implements Attack 2's search phase: given a captured
// keystream bitstream and the sorted table pkg/tmtotable built, find a
// 48-bit window of that stream in the table, verify it against the
// adjacent window, and invert the matched PRNG state back to the key.
package tmtosearch

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// RNGData holds a captured keystream as a packed bit array, decoded from a
// hex trace file (whitespace-separated or contiguous hex digits, matching
// the reference tool's loadrngdata).
type RNGData struct {
	Data []byte // packed bytes, MSB-first
	Bits int    // valid bit count (always a multiple of 8 here)
}

// LoadRNGData reads a hex-encoded keystream capture from path.
func LoadRNGData(path string) (RNGData, error) {
	f, err := os.Open(path)
	if err != nil {
		return RNGData{}, fmt.Errorf("tmtosearch: open %s: %w", path, err)
	}
	defer f.Close()
	return ParseRNGData(f)
}

// ParseRNGData is the testable core of LoadRNGData: it decodes hex digits
// from r, skipping newlines, carriage returns and spaces, exactly as the
// reference loadrngdata does.
func ParseRNGData(r io.Reader) (RNGData, error) {
	br := bufio.NewReader(r)
	var out []byte
	var nibble byte
	haveNibble := false

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return RNGData{}, err
		}
		if b == 0x0a || b == 0x0d || b == 0x20 {
			continue
		}
		v, err := hexNibble(b)
		if err != nil {
			return RNGData{}, err
		}
		if !haveNibble {
			nibble = v << 4
			haveNibble = true
			continue
		}
		out = append(out, nibble|v)
		haveNibble = false
	}

	if len(out) < 6 {
		return RNGData{}, fmt.Errorf("tmtosearch: rng data too short: %d bytes", len(out))
	}
	return RNGData{Data: out, Bits: len(out) * 8}, nil
}

func hexNibble(b byte) (byte, error) {
	switch {
	case b >= '0' && b <= '9':
		return b - '0', nil
	case b >= 'a' && b <= 'f':
		return b - 'a' + 10, nil
	case b >= 'A' && b <= 'F':
		return b - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("tmtosearch: invalid hex byte %q", b)
	}
}
