package ggml

import "fmt"

// ElementType identifies the storage encoding of a tensor, using the raw
// tag values found in tensor descriptors.
type ElementType int32

const (
	TypeF32  ElementType = 0
	TypeF16  ElementType = 1
	TypeQ4_0 ElementType = 2
	TypeQ4_1 ElementType = 3
)

// QK is the number of elements per quantization block for the Q4 types.
const QK = 32

// q4DimGranularity is the required modulus for the first dimension of
// block-quantized tensors.
const q4DimGranularity = 64

// ParseElementType validates a raw descriptor tag.
func ParseElementType(raw int32) (ElementType, error) {
	switch t := ElementType(raw); t {
	case TypeF32, TypeF16, TypeQ4_0, TypeQ4_1:
		return t, nil
	default:
		return 0, &ElementTypeError{Raw: raw}
	}
}

func (t ElementType) String() string {
	switch t {
	case TypeF32:
		return "f32"
	case TypeF16:
		return "f16"
	case TypeQ4_0:
		return "q4_0"
	case TypeQ4_1:
		return "q4_1"
	default:
		return fmt.Sprintf("type(%d)", int32(t))
	}
}

// TypeSize returns the storage size in bytes of one block of t. For the
// float types a block is a single element.
func (t ElementType) TypeSize() int {
	switch t {
	case TypeF32:
		return 4
	case TypeF16:
		return 2
	case TypeQ4_0:
		return 4 + QK/2
	case TypeQ4_1:
		return 4 + 4 + QK/2
	default:
		return 0
	}
}

// BlockSize returns the number of elements packed into one block of t;
// 1 for the non-quantized types.
func (t ElementType) BlockSize() int {
	switch t {
	case TypeQ4_0, TypeQ4_1:
		return QK
	default:
		return 1
	}
}

// Quantized reports whether t is a block-quantized encoding.
func (t ElementType) Quantized() bool {
	return t.BlockSize() > 1
}
