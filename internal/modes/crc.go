package modes

// Mode S CRC-24 generator polynomial
const crcPoly = 0xfff409

var crcTable [256]uint32

// longSyndromes maps the syndrome of a single flipped bit in a 112-bit frame
// to the index of that bit
var longSyndromes map[uint32]int

func init() {
	for i := 0; i < 256; i++ {
		c := uint32(i) << 16
		for j := 0; j < 8; j++ {
			if c&0x800000 != 0 {
				c = (c << 1) ^ crcPoly
			} else {
				c <<= 1
			}
		}
		crcTable[i] = c & 0xffffff
	}

	longSyndromes = make(map[uint32]int, LongFrameLen*8)
	probe := make([]byte, LongFrameLen)
	for i := 0; i < LongFrameLen*8; i++ {
		probe[i/8] = 1 << (7 - uint(i%8))
		longSyndromes[Checksum(probe)] = i
		probe[i/8] = 0
	}
}

// Checksum computes the CRC-24 over the frame payload and XORs it with the
// trailing 24-bit parity field. A clean PI field yields zero; for AP-field
// frames the result is the transmitting aircraft's address.
func Checksum(data []byte) uint32 {
	if len(data) < 4 {
		return 0
	}
	n := len(data) - 3
	var rem uint32
	for _, b := range data[:n] {
		rem = ((rem << 8) ^ crcTable[uint32(b)^(rem>>16)]) & 0xffffff
	}
	return rem ^ (uint32(data[n])<<16 | uint32(data[n+1])<<8 | uint32(data[n+2]))
}

// correctSingleBit flips one bit of a long frame in place when the syndrome
// identifies it. The first 5 bits (DF) are never touched.
func correctSingleBit(data []byte, syndrome uint32) bool {
	if len(data) != LongFrameLen {
		return false
	}
	i, ok := longSyndromes[syndrome]
	if !ok || i < 5 {
		return false
	}
	data[i/8] ^= 1 << (7 - uint(i%8))
	return true
}

// Repairable reports whether a damaged long frame differs from a valid one
// by a single bit outside the DF field
func Repairable(data []byte) bool {
	if len(data) != LongFrameLen {
		return false
	}
	i, ok := longSyndromes[Checksum(data)]
	return ok && i >= 5
}
