package ggml

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Reader provides buffered little-endian primitive reads over a seekable
// stream while tracking the absolute offset. Handlers receive it to
// consume the hyperparameter region themselves.
type Reader struct {
	rs   io.ReadSeeker
	br   *bufio.Reader
	off  int64
	size int64
}

// NewReader wraps rs, which must be positioned at the start of the
// stream. The total stream size is determined up-front so end-of-stream
// can be detected without consuming look-ahead bytes.
func NewReader(rs io.ReadSeeker) (*Reader, error) {
	size, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return &Reader{
		rs:   rs,
		br:   bufio.NewReader(rs),
		size: size,
	}, nil
}

// Offset returns the absolute position of the next byte to be read.
func (r *Reader) Offset() int64 {
	return r.off
}

// Size returns the total length of the underlying stream.
func (r *Reader) Size() int64 {
	return r.size
}

// HasData reports whether any unread bytes remain.
func (r *Reader) HasData() bool {
	return r.off < r.size
}

// SeekTo repositions the reader at the given absolute offset, discarding
// any buffered bytes.
func (r *Reader) SeekTo(off int64) error {
	if _, err := r.rs.Seek(off, io.SeekStart); err != nil {
		return err
	}
	r.br.Reset(r.rs)
	r.off = off
	return nil
}

// ReadInto fills buf exactly from the stream.
func (r *Reader) ReadInto(buf []byte) error {
	if r.off+int64(len(buf)) > r.size {
		return io.ErrUnexpectedEOF
	}
	if _, err := io.ReadFull(r.br, buf); err != nil {
		return err
	}
	r.off += int64(len(buf))
	return nil
}

// ReadBytes reads exactly n bytes from the stream.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d: %w", n, ErrNumericOverflow)
	}
	buf := make([]byte, n)
	if err := r.ReadInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	var b [4]byte
	if err := r.ReadInto(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

// ReadLenBytes reads a 4-byte length prefix followed by that many bytes.
func (r *Reader) ReadLenBytes() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	length, err := intFrom(n)
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(length)
}

// intFrom converts a stream-sourced i32 to a non-negative int.
func intFrom(v int32) (int, error) {
	if v < 0 {
		return 0, fmt.Errorf("negative value %d: %w", v, ErrNumericOverflow)
	}
	return int(v), nil
}
