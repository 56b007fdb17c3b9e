package jtag

// Shift buffers are LSB first: bit i lives in buf[i/8] at position i%8.

// GetBit returns bit i of buf. Bits past the end of buf read as zero.
func GetBit(buf []byte, i int) bool {
	if i < 0 || i/8 >= len(buf) {
		return false
	}
	return buf[i/8]>>(uint(i)%8)&1 == 1
}

// SetBit sets or clears bit i of buf.
func SetBit(buf []byte, i int, v bool) {
	if v {
		buf[i/8] |= 1 << (uint(i) % 8)
	} else {
		buf[i/8] &^= 1 << (uint(i) % 8)
	}
}

// PackBits stores the low bits of v in a shift buffer.
func PackBits(v uint64, bits int) []byte {
	buf := make([]byte, (bits+7)/8)
	for i := 0; i < bits && i < 64; i++ {
		SetBit(buf, i, v>>uint(i)&1 == 1)
	}
	return buf
}

// UnpackBits reads up to 64 bits from a shift buffer.
func UnpackBits(buf []byte, bits int) uint64 {
	var v uint64
	for i := 0; i < bits && i < 64; i++ {
		if GetBit(buf, i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// ExtractBits copies n bits starting at bit from into a new buffer.
func ExtractBits(buf []byte, from, n int) []byte {
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		SetBit(out, i, GetBit(buf, from+i))
	}
	return out
}

// ConstBits returns a buffer of n bits all set to v.
func ConstBits(n int, v bool) []byte {
	buf := make([]byte, (n+7)/8)
	if v {
		for i := 0; i < n; i++ {
			SetBit(buf, i, true)
		}
	}
	return buf
}
