package tmtosearch

import "fmt"

// candidateWindow extracts the 48-bit (6-byte) window of rng starting at
// bitOffset, MSB-first, crossing byte boundaries when bitOffset%8 != 0.
// Direct port of makecand.
func candidateWindow(rng RNGData, bitOffset int) ([6]byte, error) {
	var c [6]byte
	if bitOffset > rng.Bits-48 {
		return c, fmt.Errorf("tmtosearch: bit offset %d exceeds window bound", bitOffset)
	}
	byteNum := bitOffset / 8
	bitNum := bitOffset % 8

	for i := 0; i < 6; i++ {
		if bitNum == 0 {
			c[i] = rng.Data[byteNum+i]
		} else {
			c[i] = (rng.Data[byteNum+i] << uint(bitNum)) | (rng.Data[byteNum+i+1] >> uint(8-bitNum))
		}
	}
	return c, nil
}
