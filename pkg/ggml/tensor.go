package ggml

// maxTensorDims is the dimensionality bound of the legacy containers.
const maxTensorDims = 2

// TensorInfo describes one tensor: everything from its descriptor header
// plus the absolute offset where its data starts. Unused dimension slots
// hold 1.
type TensorInfo struct {
	Name      []byte
	NDims     int
	Dims      [maxTensorDims]int
	NElements int
	Type      ElementType

	// StartOffset is the absolute offset of the tensor's first data
	// byte, after any GGJT alignment padding.
	StartOffset int64
}

// DataSize returns the byte length of the tensor's data region. The
// division is exact because block-quantized tensors are validated
// against their block granularity when the descriptor is read.
func (t *TensorInfo) DataSize() int {
	return t.Type.TypeSize() * t.NElements / t.Type.BlockSize()
}
