package quant

import (
	"fmt"

	"github.com/samcharles93/strata/internal/kernels"
	"github.com/samcharles93/strata/pkg/ggml"
)

// Kernel packs n float32 values from src into dst as blocks of qk
// elements, treating src as rows of rowLen values, and counts every
// emitted code into the 16-bucket hist. It returns the number of bytes
// written to dst.
type Kernel func(src []float32, dst []byte, n, rowLen, qk int, hist []int64) int

// kernelFor selects the built-in packer for a target element type.
func kernelFor(target ggml.ElementType) (Kernel, error) {
	switch target {
	case ggml.TypeQ4_0:
		return kernels.QuantizeQ4_0, nil
	case ggml.TypeQ4_1:
		return kernels.QuantizeQ4_1, nil
	default:
		return nil, fmt.Errorf("no quantization kernel for target type %s", target)
	}
}

// blockBytes returns the packed size of one qk-element block of the
// target type.
func blockBytes(target ggml.ElementType, qk int) int {
	switch target {
	case ggml.TypeQ4_0:
		return 4 + qk/2
	case ggml.TypeQ4_1:
		return 4 + 4 + qk/2
	default:
		return 0
	}
}
