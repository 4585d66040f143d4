package ggml

import (
	"fmt"
	"io"
)

// Load runs a single traversal of the checkpoint in rs, reporting
// everything through handler. It returns nil on a clean end-of-stream, a
// *CancelledError[T] if any hook stopped the traversal, or a typed
// format error on the first malformed read. The stream is owned by the
// traversal for its duration.
func Load[T any](rs io.ReadSeeker, handler Handler[T]) error {
	r, err := NewReader(rs)
	if err != nil {
		return err
	}
	return loadFrom(r, handler)
}

func loadFrom[T any](r *Reader, handler Handler[T]) error {
	magic, err := r.ReadUint32()
	if err != nil {
		return fmt.Errorf("read magic: %w", err)
	}
	rev, err := classifyMagic(magic)
	if err != nil {
		return err
	}
	if err := check(handler.ContainerRevision(rev)); err != nil {
		return err
	}

	if rev.Versioned() {
		version, err := r.ReadUint32()
		if err != nil {
			return fmt.Errorf("read format version: %w", err)
		}
		if version != FormatVersion {
			return &FormatVersionError{Revision: rev, Version: version}
		}
	}

	hparams, ctl := handler.Hyperparameters(r)
	if err := check(ctl); err != nil {
		return err
	}

	if err := loadVocabulary(r, handler, rev, hparams.NVocab); err != nil {
		return err
	}

	if !rev.Aligned() {
		if err := check(handler.MultipartMarker(r)); err != nil {
			return err
		}
	}
	return loadTensors(r, handler, rev.Aligned())
}

// loadVocabulary reads nVocab length-prefixed tokens in on-disk order.
// Scores are only present in versioned containers; the unversioned
// layout gets a fixed default of 0.
func loadVocabulary[T any](r *Reader, handler Handler[T], rev ContainerRevision, nVocab int) error {
	for i := 0; i < nVocab; i++ {
		token, err := r.ReadLenBytes()
		if err != nil {
			return fmt.Errorf("read vocab token %d: %w", i, err)
		}
		var score float32
		if rev.Versioned() {
			if score, err = r.ReadFloat32(); err != nil {
				return fmt.Errorf("read vocab score %d: %w", i, err)
			}
		}
		if err := check(handler.VocabToken(i, token, score)); err != nil {
			return err
		}
	}
	return nil
}

// loadTensors reads tensor descriptors until end-of-stream, which is the
// normal loop terminator. After every iteration the reader sits exactly
// at the end of the tensor's data region, read or skipped.
func loadTensors[T any](r *Reader, handler Handler[T], aligned bool) error {
	for r.HasData() {
		info, err := readTensorInfo(r, aligned)
		if err != nil {
			return err
		}

		size := info.DataSize()
		buf, ctl := handler.TensorBuffer(info)
		if err := check(ctl); err != nil {
			return err
		}
		if buf == nil {
			// Skip: the caller does not want these bytes.
			if err := r.SeekTo(info.StartOffset + int64(size)); err != nil {
				return fmt.Errorf("skip tensor %q: %w", info.Name, err)
			}
			continue
		}
		if len(buf) != size {
			return invariantf("tensor %q buffer length %d != data size %d", info.Name, len(buf), size)
		}
		if aligned {
			if err := r.SeekTo(info.StartOffset); err != nil {
				return fmt.Errorf("seek tensor %q: %w", info.Name, err)
			}
		}
		if err := r.ReadInto(buf); err != nil {
			return fmt.Errorf("read tensor %q: %w", info.Name, err)
		}
	}
	return nil
}

// readTensorInfo reads one descriptor header and computes the data start
// offset, applying 32-byte alignment for GGJT containers only.
func readTensorInfo(r *Reader, aligned bool) (TensorInfo, error) {
	var info TensorInfo

	nDimsRaw, err := r.ReadInt32()
	if err != nil {
		return info, fmt.Errorf("read tensor dimension count: %w", err)
	}
	nDims, err := intFrom(nDimsRaw)
	if err != nil {
		return info, err
	}
	if nDims > maxTensorDims {
		return info, invariantf("tensor dimension count %d > %d", nDims, maxTensorDims)
	}

	nameLen, err := r.ReadInt32()
	if err != nil {
		return info, fmt.Errorf("read tensor name length: %w", err)
	}
	rawType, err := r.ReadInt32()
	if err != nil {
		return info, fmt.Errorf("read tensor element type: %w", err)
	}
	elemType, err := ParseElementType(rawType)
	if err != nil {
		return info, err
	}

	nElements := 1
	dims := [maxTensorDims]int{1, 1}
	for i := 0; i < nDims; i++ {
		dimRaw, err := r.ReadInt32()
		if err != nil {
			return info, fmt.Errorf("read tensor dimension %d: %w", i, err)
		}
		dim, err := intFrom(dimRaw)
		if err != nil {
			return info, err
		}
		dims[i] = dim
		nElements *= dim
	}

	length, err := intFrom(nameLen)
	if err != nil {
		return info, err
	}
	name, err := r.ReadBytes(length)
	if err != nil {
		return info, fmt.Errorf("read tensor name: %w", err)
	}

	if elemType.Quantized() && dims[0]%q4DimGranularity != 0 {
		return info, invariantf("tensor %q dims[0] = %d, want multiple of %d", name, dims[0], q4DimGranularity)
	}

	offset := r.Offset()
	if aligned {
		offset = alignOffset(offset)
	}

	return TensorInfo{
		Name:        name,
		NDims:       nDims,
		Dims:        dims,
		NElements:   nElements,
		Type:        elemType,
		StartOffset: offset,
	}, nil
}

func check[T any](c Control[T]) error {
	if c.Stopped() {
		return &CancelledError[T]{Payload: c.payload}
	}
	return nil
}
