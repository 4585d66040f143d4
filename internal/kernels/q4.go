// Package kernels holds the block-quantization packers used by the
// transcoder. They are deliberately plain loops over caller-owned
// buffers with no allocation of their own.
package kernels

import (
	"encoding/binary"
	"math"
)

// HistogramBuckets is the number of quantized-code buckets both packers
// report into.
const HistogramBuckets = 16

// QuantizeQ4_0 packs src into dst using the scale-only q4_0 scheme: per
// block of qk values, a float32 scale d = max|x|/7 followed by qk/2
// nibble bytes holding codes biased by +8. src holds n values in rows of
// rowLen, and rowLen must be a multiple of qk. Each emitted code
// increments its bucket in hist. Returns the number of bytes written.
func QuantizeQ4_0(src []float32, dst []byte, n, rowLen, qk int, hist []int64) int {
	blockBytes := 4 + qk/2
	out := 0
	for row := 0; row+rowLen <= n; row += rowLen {
		for base := row; base < row+rowLen; base += qk {
			var amax float32
			for l := 0; l < qk; l++ {
				v := src[base+l]
				if v < 0 {
					v = -v
				}
				if v > amax {
					amax = v
				}
			}

			d := amax / 7
			var id float32
			if d != 0 {
				id = 1 / d
			}

			binary.LittleEndian.PutUint32(dst[out:], math.Float32bits(d))
			qs := dst[out+4 : out+blockBytes]
			for l := 0; l < qk; l += 2 {
				vi0 := nibble(src[base+l]*id + 8)
				vi1 := nibble(src[base+l+1]*id + 8)
				hist[vi0]++
				hist[vi1]++
				qs[l/2] = vi0 | vi1<<4
			}
			out += blockBytes
		}
	}
	return out
}

// QuantizeQ4_1 packs src into dst using the affine q4_1 scheme: per
// block, float32 scale d = (max-min)/15 and float32 minimum m, followed
// by qk/2 nibble bytes of codes in [0, 15]. Same contract as
// QuantizeQ4_0.
func QuantizeQ4_1(src []float32, dst []byte, n, rowLen, qk int, hist []int64) int {
	blockBytes := 4 + 4 + qk/2
	out := 0
	for row := 0; row+rowLen <= n; row += rowLen {
		for base := row; base < row+rowLen; base += qk {
			min := src[base]
			max := src[base]
			for l := 1; l < qk; l++ {
				v := src[base+l]
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}

			d := (max - min) / 15
			var id float32
			if d != 0 {
				id = 1 / d
			}

			binary.LittleEndian.PutUint32(dst[out:], math.Float32bits(d))
			binary.LittleEndian.PutUint32(dst[out+4:], math.Float32bits(min))
			qs := dst[out+8 : out+blockBytes]
			for l := 0; l < qk; l += 2 {
				vi0 := nibble((src[base+l] - min) * id)
				vi1 := nibble((src[base+l+1] - min) * id)
				hist[vi0]++
				hist[vi1]++
				qs[l/2] = vi0 | vi1<<4
			}
			out += blockBytes
		}
	}
	return out
}

func nibble(v float32) byte {
	q := math.Round(float64(v))
	if q < 0 {
		q = 0
	} else if q > 15 {
		q = 15
	}
	return byte(q)
}
