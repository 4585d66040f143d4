// Package llama knows the fixed hyperparameter record used by
// llama-family checkpoints. It exists so the generic container engine in
// pkg/ggml can stay format-agnostic: callers loading llama weights plug
// ReadHyperparameters into their handler's Hyperparameters hook.
package llama

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/samcharles93/strata/pkg/ggml"
)

// Hyperparameters is the 7-field record that follows the container
// header, in on-disk order. FileType is the checkpoint-wide storage type
// tag (same values as the tensor element type tags).
type Hyperparameters struct {
	NVocab   int32
	NEmbd    int32
	NMult    int32
	NHead    int32
	NLayer   int32
	NRot     int32
	FileType int32
}

// ReadHyperparameters consumes exactly the hyperparameter record from r.
func ReadHyperparameters(r *ggml.Reader) (Hyperparameters, error) {
	var h Hyperparameters
	fields := []*int32{&h.NVocab, &h.NEmbd, &h.NMult, &h.NHead, &h.NLayer, &h.NRot, &h.FileType}
	for _, f := range fields {
		v, err := r.ReadInt32()
		if err != nil {
			return h, fmt.Errorf("read hyperparameters: %w", err)
		}
		*f = v
	}
	if h.NVocab < 0 {
		return h, fmt.Errorf("negative vocabulary size %d", h.NVocab)
	}
	return h, nil
}

// Write emits the record in on-disk order, little-endian.
func (h Hyperparameters) Write(w io.Writer) error {
	fields := []int32{h.NVocab, h.NEmbd, h.NMult, h.NHead, h.NLayer, h.NRot, h.FileType}
	var b [4]byte
	for _, f := range fields {
		binary.LittleEndian.PutUint32(b[:], uint32(f))
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
	}
	return nil
}

// Partial returns the slice of the record the container engine needs.
func (h Hyperparameters) Partial() ggml.PartialHyperparameters {
	return ggml.PartialHyperparameters{NVocab: int(h.NVocab)}
}
