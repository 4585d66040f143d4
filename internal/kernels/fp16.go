package kernels

import "math"

// Fp16ToFloat32 converts an IEEE 754 half-precision value from its bit
// pattern, including subnormals, infinities and NaN.
func Fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		f = (sign << 31) | ((exp - 15 + 127) << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
