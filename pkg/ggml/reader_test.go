package ggml_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/pkg/ggml"
)

func TestReaderPrimitives(t *testing.T) {
	t.Parallel()

	var b streamBuilder
	b.u32(0x04030201).i32(-5).f32(1.25)
	b.i32(3).raw([]byte("abc"))

	r, err := ggml.NewReader(b.reader())
	require.NoError(t, err)

	u, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x04030201), u)
	assert.Equal(t, int64(4), r.Offset())

	i, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-5), i)

	f, err := r.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.25), f)

	tok, err := r.ReadLenBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), tok)

	assert.False(t, r.HasData())
	assert.Equal(t, r.Size(), r.Offset())
}

func TestReaderSeekDiscardsBuffer(t *testing.T) {
	t.Parallel()

	var b streamBuilder
	b.u32(1).u32(2).u32(3)

	r, err := ggml.NewReader(b.reader())
	require.NoError(t, err)

	_, err = r.ReadUint32()
	require.NoError(t, err)

	require.NoError(t, r.SeekTo(8))
	assert.Equal(t, int64(8), r.Offset())
	v, err := r.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), v)
}

func TestReaderEndOfStream(t *testing.T) {
	t.Parallel()

	r, err := ggml.NewReader(bytes.NewReader([]byte{1, 2}))
	require.NoError(t, err)

	assert.True(t, r.HasData())
	_, err = r.ReadUint32()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestReaderNegativeLength(t *testing.T) {
	t.Parallel()

	var b streamBuilder
	b.i32(-1)

	r, err := ggml.NewReader(b.reader())
	require.NoError(t, err)

	_, err = r.ReadLenBytes()
	assert.True(t, errors.Is(err, ggml.ErrNumericOverflow))
}
