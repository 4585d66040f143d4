// Package quant rewrites a versioned, non-aligned checkpoint into a
// reduced-precision encoding. It preserves the container framing exactly
// and changes only eligible tensor bodies (and the hyperparameter
// storage-type field), so the output re-parses with the generic engine
// in pkg/ggml.
package quant

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/samcharles93/strata/internal/kernels"
	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/pkg/ggml"
	"github.com/samcharles93/strata/pkg/llama"
)

// ErrUnversionedInput is returned when the input uses the oldest,
// unversioned container layout, which the transcoder does not accept.
var ErrUnversionedInput = errors.New("unversioned ggml input is not supported, re-save the checkpoint in a versioned format first")

// SourceTypeError reports an eligible tensor whose stored type cannot be
// requantized.
type SourceTypeError struct {
	Name string
	Type ggml.ElementType
}

func (e *SourceTypeError) Error() string {
	return fmt.Sprintf("tensor %q has type %s, only f32 and f16 tensors can be quantized", e.Name, e.Type)
}

// Options configures a transcode run.
type Options struct {
	// Target is the output element type for quantized tensors; one of
	// TypeQ4_0 or TypeQ4_1.
	Target ggml.ElementType

	// BlockSize is the quantization block length; defaults to ggml.QK.
	BlockSize int

	// Kernel overrides the built-in packer for Target when non-nil.
	Kernel Kernel
}

// Stats are the aggregate counters of one transcode run. The byte totals
// cover tensor bodies only and are exact: every tensor contributes once.
type Stats struct {
	Tensors   int
	Quantized int
	BytesIn   int64
	BytesOut  int64
	Histogram [kernels.HistogramBuckets]int64
}

// Transcode reads a checkpoint from in and writes the re-encoded
// checkpoint to out. Any error aborts the run, leaving whatever was
// already written in place; this is a batch tool, not a transaction.
func Transcode(ctx context.Context, in io.ReadSeeker, out io.Writer, opts Options) (Stats, error) {
	var stats Stats

	if opts.BlockSize == 0 {
		opts.BlockSize = ggml.QK
	}
	kernel := opts.Kernel
	if kernel == nil {
		var err error
		if kernel, err = kernelFor(opts.Target); err != nil {
			return stats, err
		}
	}

	r, err := ggml.NewReader(in)
	if err != nil {
		return stats, err
	}
	w := bufio.NewWriter(out)
	log := logger.FromContext(ctx)

	if err := transcodeHeader(r, w, opts.Target); err != nil {
		return stats, err
	}
	hparams, err := transcodeHyperparameters(r, w, opts.Target)
	if err != nil {
		return stats, err
	}
	if err := transcodeVocabulary(r, w, int(hparams.NVocab)); err != nil {
		return stats, err
	}
	if err := transcodeTensors(r, w, kernel, opts, log, &stats); err != nil {
		return stats, err
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}

	log.Info("transcode finished",
		"tensors", stats.Tensors,
		"quantized", stats.Quantized,
		"bytes_in", stats.BytesIn,
		"bytes_out", stats.BytesOut,
	)
	return stats, nil
}

// transcodeHeader validates and re-emits the magic and format version.
// Only the versioned, non-aligned container layout is accepted.
func transcodeHeader(r *ggml.Reader, w *bufio.Writer, target ggml.ElementType) error {
	if target != ggml.TypeQ4_0 && target != ggml.TypeQ4_1 {
		return fmt.Errorf("unsupported target type %s", target)
	}

	magic, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	if magic == ggml.MagicGGML {
		return ErrUnversionedInput
	}
	if magic != ggml.MagicGGMF {
		return &ggml.MagicError{Magic: magic}
	}
	if err := writeU32(w, magic); err != nil {
		return err
	}

	version, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read format version: %w", err)
	}
	if version != ggml.FormatVersion {
		return &ggml.FormatVersionError{Revision: ggml.RevisionGGMF, Version: version}
	}
	return writeU32(w, version)
}

// transcodeHyperparameters copies the record verbatim except for the
// storage-type field, which is overwritten with the target type.
func transcodeHyperparameters(r *ggml.Reader, w *bufio.Writer, target ggml.ElementType) (llama.Hyperparameters, error) {
	hparams, err := llama.ReadHyperparameters(r)
	if err != nil {
		return hparams, err
	}
	rewritten := hparams
	rewritten.FileType = int32(target)
	return hparams, rewritten.Write(w)
}

// transcodeVocabulary copies the vocabulary table through entry by
// entry, with no reinterpretation.
func transcodeVocabulary(r *ggml.Reader, w *bufio.Writer, nVocab int) error {
	for i := 0; i < nVocab; i++ {
		token, err := r.ReadLenBytes()
		if err != nil {
			return fmt.Errorf("read vocab token %d: %w", i, err)
		}
		score, err := r.ReadFloat32()
		if err != nil {
			return fmt.Errorf("read vocab score %d: %w", i, err)
		}
		if err := writeI32(w, int32(len(token))); err != nil {
			return err
		}
		if _, err := w.Write(token); err != nil {
			return err
		}
		if err := writeU32(w, math.Float32bits(score)); err != nil {
			return err
		}
	}
	return nil
}

func transcodeTensors(r *ggml.Reader, w *bufio.Writer, kernel Kernel, opts Options, log logger.Logger, stats *Stats) error {
	for r.HasData() {
		nDims, err := r.ReadInt32()
		if err != nil {
			return fmt.Errorf("read tensor dimension count: %w", err)
		}
		nameLen, err := r.ReadInt32()
		if err != nil {
			return fmt.Errorf("read tensor name length: %w", err)
		}
		rawType, err := r.ReadInt32()
		if err != nil {
			return fmt.Errorf("read tensor element type: %w", err)
		}
		elemType, err := ggml.ParseElementType(rawType)
		if err != nil {
			return err
		}

		nElements := 1
		dims := [2]int32{1, 1}
		if nDims < 0 || int(nDims) > len(dims) {
			return &ggml.InvariantError{Reason: fmt.Sprintf("tensor dimension count %d out of range", nDims)}
		}
		for i := 0; i < int(nDims); i++ {
			if dims[i], err = r.ReadInt32(); err != nil {
				return fmt.Errorf("read tensor dimension %d: %w", i, err)
			}
			if dims[i] < 0 {
				return fmt.Errorf("negative tensor dimension %d: %w", dims[i], ggml.ErrNumericOverflow)
			}
			nElements *= int(dims[i])
		}
		name, err := r.ReadBytes(int(nameLen))
		if err != nil {
			return fmt.Errorf("read tensor name: %w", err)
		}

		// The eligibility heuristic is kept exactly as existing
		// checkpoints expect it: 2D tensors whose name mentions
		// "weight", nothing else.
		eligible := nDims == 2 && bytes.Contains(name, []byte("weight"))

		outType := elemType
		if eligible {
			outType = opts.Target
		}
		if err := writeTensorHeader(w, nDims, nameLen, outType, dims, name); err != nil {
			return err
		}

		if eligible {
			if err := quantizeBody(r, w, kernel, opts, name, elemType, nElements, int(dims[0]), stats); err != nil {
				return err
			}
		} else {
			info := ggml.TensorInfo{NElements: nElements, Type: elemType}
			if err := copyBody(r, w, info.DataSize(), stats); err != nil {
				return fmt.Errorf("copy tensor %q: %w", name, err)
			}
		}
		stats.Tensors++

		log.Debug("tensor",
			"name", string(name),
			"dims", fmt.Sprintf("[%d, %d]", dims[0], dims[1]),
			"type", elemType.String(),
			"out_type", outType.String(),
			"quantized", eligible,
		)
	}
	return nil
}

// quantizeBody reads an eligible tensor's full body, upconverts f16 to
// f32 if needed, and streams the kernel's packed output.
func quantizeBody(r *ggml.Reader, w *bufio.Writer, kernel Kernel, opts Options, name []byte, src ggml.ElementType, nElements, rowLen int, stats *Stats) error {
	if src != ggml.TypeF32 && src != ggml.TypeF16 {
		return &SourceTypeError{Name: string(name), Type: src}
	}
	qk := opts.BlockSize
	if rowLen%qk != 0 {
		return &ggml.InvariantError{Reason: fmt.Sprintf("tensor %q dims[0] = %d, want multiple of block size %d", name, rowLen, qk)}
	}

	var inBytes int
	data := make([]float32, nElements)
	switch src {
	case ggml.TypeF16:
		inBytes = nElements * 2
		raw, err := r.ReadBytes(inBytes)
		if err != nil {
			return fmt.Errorf("read tensor %q: %w", name, err)
		}
		for i := 0; i < nElements; i++ {
			data[i] = kernels.Fp16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	default:
		inBytes = nElements * 4
		raw, err := r.ReadBytes(inBytes)
		if err != nil {
			return fmt.Errorf("read tensor %q: %w", name, err)
		}
		for i := 0; i < nElements; i++ {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	}

	dst := make([]byte, nElements/qk*blockBytes(opts.Target, qk))
	var hist [kernels.HistogramBuckets]int64
	written := kernel(data, dst, nElements, rowLen, qk, hist[:])
	if _, err := w.Write(dst[:written]); err != nil {
		return err
	}

	for i, v := range hist {
		stats.Histogram[i] += v
	}
	stats.Quantized++
	stats.BytesIn += int64(inBytes)
	stats.BytesOut += int64(written)
	return nil
}

// copyBody passes an ineligible tensor's bytes through unchanged.
func copyBody(r *ggml.Reader, w *bufio.Writer, size int, stats *Stats) error {
	raw, err := r.ReadBytes(size)
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	stats.BytesIn += int64(size)
	stats.BytesOut += int64(size)
	return nil
}

func writeTensorHeader(w *bufio.Writer, nDims, nameLen int32, elemType ggml.ElementType, dims [2]int32, name []byte) error {
	if err := writeI32(w, nDims); err != nil {
		return err
	}
	if err := writeI32(w, nameLen); err != nil {
		return err
	}
	if err := writeI32(w, int32(elemType)); err != nil {
		return err
	}
	for i := 0; i < int(nDims); i++ {
		if err := writeI32(w, dims[i]); err != nil {
			return err
		}
	}
	_, err := w.Write(name)
	return err
}

func writeU32(w *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeI32(w *bufio.Writer, v int32) error {
	return writeU32(w, uint32(v))
}
