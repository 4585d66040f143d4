// Package checkpoint builds an in-memory view of a whole checkpoint on
// top of the streaming engine in pkg/ggml: one traversal collects the
// revision, hyperparameters, vocabulary and tensor descriptors, then the
// file is mapped read-only so tensor bytes can be served without
// copying.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sys/unix"

	"github.com/samcharles93/strata/pkg/ggml"
	"github.com/samcharles93/strata/pkg/llama"
)

// VocabEntry is one vocabulary table row.
type VocabEntry struct {
	Token []byte
	Score float32
}

// Checkpoint is a read-only view of an opened checkpoint file.
type Checkpoint struct {
	Path     string
	Revision ggml.ContainerRevision
	Hparams  llama.Hyperparameters
	Vocab    []VocabEntry
	Tensors  []ggml.TensorInfo

	data    []byte
	mmapped bool
}

// collector walks the container once, keeping descriptors and skipping
// every tensor body. It cancels the traversal on the first collaborator
// error, carrying it out as the payload.
type collector struct {
	ggml.BaseHandler[error]
	cp *Checkpoint
}

func (c *collector) ContainerRevision(rev ggml.ContainerRevision) ggml.Control[error] {
	c.cp.Revision = rev
	return ggml.Continue[error]()
}

func (c *collector) Hyperparameters(r *ggml.Reader) (ggml.PartialHyperparameters, ggml.Control[error]) {
	hparams, err := llama.ReadHyperparameters(r)
	if err != nil {
		return ggml.PartialHyperparameters{}, ggml.Stop(err)
	}
	c.cp.Hparams = hparams
	return hparams.Partial(), ggml.Continue[error]()
}

func (c *collector) VocabToken(_ int, token []byte, score float32) ggml.Control[error] {
	c.cp.Vocab = append(c.cp.Vocab, VocabEntry{Token: token, Score: score})
	return ggml.Continue[error]()
}

func (c *collector) TensorBuffer(info ggml.TensorInfo) ([]byte, ggml.Control[error]) {
	c.cp.Tensors = append(c.cp.Tensors, info)
	return nil, ggml.Continue[error]()
}

// Open walks the checkpoint at path and maps it read-only. If mmap is
// unavailable the whole file is read into memory instead. The returned
// checkpoint must be closed to release the mapping.
func Open(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	cp := &Checkpoint{Path: path}
	if err := ggml.Load[error](f, &collector{cp: cp}); err != nil {
		var cancelled *ggml.CancelledError[error]
		if errors.As(err, &cancelled) {
			return nil, fmt.Errorf("%s: %w", path, cancelled.Payload)
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := int(stat.Size())

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		cp.data = data
		cp.mmapped = true
		return cp, nil
	}

	// Fallback when the platform (or the underlying file) cannot be
	// mapped.
	cp.data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// Close releases the underlying mapping, if any.
func (cp *Checkpoint) Close() error {
	if !cp.mmapped {
		return nil
	}
	data := cp.data
	cp.data = nil
	cp.mmapped = false
	return unix.Munmap(data)
}

// Tensor returns the descriptor for the named tensor.
func (cp *Checkpoint) Tensor(name string) (ggml.TensorInfo, bool) {
	for _, t := range cp.Tensors {
		if string(t.Name) == name {
			return t, true
		}
	}
	return ggml.TensorInfo{}, false
}

// TensorData returns the named tensor's raw bytes as a window into the
// mapped file. Callers must not retain the slice past Close.
func (cp *Checkpoint) TensorData(name string) ([]byte, error) {
	info, ok := cp.Tensor(name)
	if !ok {
		return nil, fmt.Errorf("tensor not found: %s", name)
	}
	end := info.StartOffset + int64(info.DataSize())
	if end > int64(len(cp.data)) {
		return nil, fmt.Errorf("tensor %s: data region [%d, %d) past end of file", name, info.StartOffset, end)
	}
	return cp.data[info.StartOffset:end], nil
}

// TensorDigest returns the xxhash64 of the named tensor's bytes.
func (cp *Checkpoint) TensorDigest(name string) (uint64, error) {
	data, err := cp.TensorData(name)
	if err != nil {
		return 0, err
	}
	return xxhash.Sum64(data), nil
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
