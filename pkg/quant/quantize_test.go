package quant_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/strata/pkg/ggml"
	"github.com/samcharles93/strata/pkg/llama"
	"github.com/samcharles93/strata/pkg/quant"
)

type fileBuilder struct {
	buf bytes.Buffer
}

func (b *fileBuilder) u32(v uint32) *fileBuilder {
	var raw [4]byte
	binary.LittleEndian.PutUint32(raw[:], v)
	b.buf.Write(raw[:])
	return b
}

func (b *fileBuilder) i32(v int32) *fileBuilder { return b.u32(uint32(v)) }

func (b *fileBuilder) f32(v float32) *fileBuilder { return b.u32(math.Float32bits(v)) }

// ggmf writes the container header and hyperparameter record for a
// checkpoint with nVocab vocabulary entries, all non-vocab fields 1 and
// file type f32.
func (b *fileBuilder) ggmf(nVocab int32) *fileBuilder {
	b.u32(ggml.MagicGGMF).u32(ggml.FormatVersion)
	return b.i32(nVocab).i32(1).i32(1).i32(1).i32(1).i32(1).i32(int32(ggml.TypeF32))
}

func (b *fileBuilder) vocab(token string, score float32) *fileBuilder {
	b.i32(int32(len(token)))
	b.buf.WriteString(token)
	return b.f32(score)
}

func (b *fileBuilder) tensor(name string, elemType ggml.ElementType, body []byte, dims ...int32) *fileBuilder {
	b.i32(int32(len(dims))).i32(int32(len(name))).i32(int32(elemType))
	for _, d := range dims {
		b.i32(d)
	}
	b.buf.WriteString(name)
	b.buf.Write(body)
	return b
}

func f32Body(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func f16Body(bits []uint16) []byte {
	out := make([]byte, len(bits)*2)
	for i, v := range bits {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%17) - 8
	}
	return out
}

// parsed re-reads a transcoded checkpoint with the generic engine,
// collecting every tensor body.
type parsed struct {
	hparams llama.Hyperparameters
	tokens  []string
	scores  []float32
	tensors []ggml.TensorInfo
	bodies  map[string][]byte
}

type parseHandler struct {
	ggml.BaseHandler[string]
	out *parsed
}

func (h *parseHandler) Hyperparameters(r *ggml.Reader) (ggml.PartialHyperparameters, ggml.Control[string]) {
	hparams, err := llama.ReadHyperparameters(r)
	if err != nil {
		return ggml.PartialHyperparameters{}, ggml.Stop(err.Error())
	}
	h.out.hparams = hparams
	return hparams.Partial(), ggml.Continue[string]()
}

func (h *parseHandler) VocabToken(_ int, token []byte, score float32) ggml.Control[string] {
	h.out.tokens = append(h.out.tokens, string(token))
	h.out.scores = append(h.out.scores, score)
	return ggml.Continue[string]()
}

func (h *parseHandler) TensorBuffer(info ggml.TensorInfo) ([]byte, ggml.Control[string]) {
	h.out.tensors = append(h.out.tensors, info)
	buf := make([]byte, info.DataSize())
	h.out.bodies[string(info.Name)] = buf
	return buf, ggml.Continue[string]()
}

func reparse(t *testing.T, data []byte) *parsed {
	t.Helper()
	out := &parsed{bodies: map[string][]byte{}}
	require.NoError(t, ggml.Load[string](bytes.NewReader(data), &parseHandler{out: out}))
	return out
}

func TestTranscodeRejectsUnversioned(t *testing.T) {
	t.Parallel()

	var b fileBuilder
	b.u32(ggml.MagicGGML).i32(0)

	var out bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_0})
	require.ErrorIs(t, err, quant.ErrUnversionedInput)
	assert.Zero(t, out.Len())
}

func TestTranscodeRejectsUnknownMagic(t *testing.T) {
	t.Parallel()

	var b fileBuilder
	b.u32(0x12345678)

	var out bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_0})
	var magicErr *ggml.MagicError
	require.ErrorAs(t, err, &magicErr)
	assert.Equal(t, uint32(0x12345678), magicErr.Magic)
}

func TestTranscodeRejectsBadVersion(t *testing.T) {
	t.Parallel()

	var b fileBuilder
	b.u32(ggml.MagicGGMF).u32(9)

	var out bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_0})
	var verErr *ggml.FormatVersionError
	require.ErrorAs(t, err, &verErr)
	assert.Equal(t, uint32(9), verErr.Version)
}

func TestTranscodeQuantizesEligibleTensors(t *testing.T) {
	t.Parallel()

	weights := ramp(128)
	norm := f32Body([]float32{0.5, 1.5, 2.5})

	var b fileBuilder
	b.ggmf(2)
	b.vocab("hi", 0.25)
	b.vocab("lo", -1)
	b.tensor("tok.weight", ggml.TypeF32, f32Body(weights), 64, 2)
	b.tensor("norm", ggml.TypeF32, norm, 3)

	var out bytes.Buffer
	stats, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_0})
	require.NoError(t, err)

	result := reparse(t, out.Bytes())

	// The storage-type field was rewritten; everything else in the
	// record survived.
	assert.Equal(t, int32(ggml.TypeQ4_0), result.hparams.FileType)
	assert.Equal(t, int32(2), result.hparams.NVocab)
	assert.Equal(t, []string{"hi", "lo"}, result.tokens)
	assert.Equal(t, []float32{0.25, -1}, result.scores)

	require.Len(t, result.tensors, 2)
	assert.Equal(t, ggml.TypeQ4_0, result.tensors[0].Type)
	assert.Equal(t, [2]int{64, 2}, result.tensors[0].Dims)
	assert.Len(t, result.bodies["tok.weight"], 128/32*20)

	// Ineligible tensor: identical bytes, unchanged type tag.
	assert.Equal(t, ggml.TypeF32, result.tensors[1].Type)
	assert.Equal(t, norm, result.bodies["norm"])

	assert.Equal(t, 2, stats.Tensors)
	assert.Equal(t, 1, stats.Quantized)
	assert.Equal(t, int64(128*4+12), stats.BytesIn)
	assert.Equal(t, int64(128/32*20+12), stats.BytesOut)

	var histTotal int64
	for _, v := range stats.Histogram {
		histTotal += v
	}
	assert.Equal(t, int64(128), histTotal)
}

func TestTranscodePassThroughIsByteExact(t *testing.T) {
	t.Parallel()

	// 2D but no "weight" in the name, and a 1D tensor named weight:
	// neither matches the eligibility heuristic.
	matrix := f32Body(ramp(8))
	bias := f32Body([]float32{1, 2, 3, 4})

	var b fileBuilder
	b.ggmf(0)
	b.tensor("tok.matrix", ggml.TypeF32, matrix, 4, 2)
	b.tensor("out.weight", ggml.TypeF32, bias, 4)

	var out bytes.Buffer
	stats, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_1})
	require.NoError(t, err)
	assert.Zero(t, stats.Quantized)

	result := reparse(t, out.Bytes())
	assert.Equal(t, matrix, result.bodies["tok.matrix"])
	assert.Equal(t, bias, result.bodies["out.weight"])
	assert.Equal(t, ggml.TypeF32, result.tensors[0].Type)
	assert.Equal(t, ggml.TypeF32, result.tensors[1].Type)
	assert.Equal(t, stats.BytesIn, stats.BytesOut)
}

func TestTranscodeF16MatchesF32(t *testing.T) {
	t.Parallel()

	// Half-precision values chosen to convert exactly.
	f16bits := make([]uint16, 64)
	f32vals := make([]float32, 64)
	for i := range f16bits {
		f16bits[i] = uint16(0x3C00 + i) // 1.0 + small mantissa steps
		f32vals[i] = 1 + float32(i)/1024
	}

	build := func(elemType ggml.ElementType, body []byte) []byte {
		var b fileBuilder
		b.ggmf(0)
		b.tensor("emb.weight", elemType, body, 64, 1)
		return b.buf.Bytes()
	}

	var outF16, outF32 bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(build(ggml.TypeF16, f16Body(f16bits))), &outF16, quant.Options{Target: ggml.TypeQ4_1})
	require.NoError(t, err)
	_, err = quant.Transcode(context.Background(), bytes.NewReader(build(ggml.TypeF32, f32Body(f32vals))), &outF32, quant.Options{Target: ggml.TypeQ4_1})
	require.NoError(t, err)

	assert.Equal(t, outF32.Bytes(), outF16.Bytes())
}

func TestTranscodeRejectsQuantizedSource(t *testing.T) {
	t.Parallel()

	body := make([]byte, 64/32*20)

	var b fileBuilder
	b.ggmf(0)
	b.tensor("bad.weight", ggml.TypeQ4_0, body, 64, 1)

	var out bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeQ4_0})
	var srcErr *quant.SourceTypeError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "bad.weight", srcErr.Name)
	assert.Equal(t, ggml.TypeQ4_0, srcErr.Type)
}

func TestTranscodeRejectsUnsupportedTarget(t *testing.T) {
	t.Parallel()

	var b fileBuilder
	b.ggmf(0)

	var out bytes.Buffer
	_, err := quant.Transcode(context.Background(), bytes.NewReader(b.buf.Bytes()), &out, quant.Options{Target: ggml.TypeF16})
	require.Error(t, err)
}
