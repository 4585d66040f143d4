package api

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strata/internal/checkpoint"
	"github.com/samcharles93/strata/pkg/ggml"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()

	var buf bytes.Buffer
	u32 := func(v uint32) {
		var raw [4]byte
		binary.LittleEndian.PutUint32(raw[:], v)
		buf.Write(raw[:])
	}
	i32 := func(v int32) { u32(uint32(v)) }

	u32(ggml.MagicGGMF)
	u32(ggml.FormatVersion)
	i32(1)
	for i := 0; i < 6; i++ {
		i32(1)
	}
	i32(2)
	buf.WriteString("hi")
	u32(math.Float32bits(0.75))
	i32(1)
	i32(int32(len("out.weight")))
	i32(int32(ggml.TypeF32))
	i32(4)
	buf.WriteString("out.weight")
	buf.Write(make([]byte, 16))

	path := filepath.Join(t.TempDir(), "model.bin")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write checkpoint: %v", err)
	}

	cp, err := checkpoint.Open(path)
	if err != nil {
		t.Fatalf("open checkpoint: %v", err)
	}
	t.Cleanup(func() { _ = cp.Close() })

	e := echo.New()
	NewServer(cp).Register(e)
	return e
}

func doGET(t *testing.T, e *echo.Echo, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCheckpointEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)
	rec := doGET(t, e, "/v1/checkpoint")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var info CheckpointInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if info.Revision != "ggmf" {
		t.Fatalf("revision mismatch: %q", info.Revision)
	}
	if info.TensorCount != 1 || info.VocabCount != 1 {
		t.Fatalf("unexpected counts: %+v", info)
	}
	if info.ID == "" {
		t.Fatal("missing checkpoint id")
	}
}

func TestTensorEndpoints(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)

	rec := doGET(t, e, "/v1/tensors")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var list TensorList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list.Tensors) != 1 || list.Tensors[0].Name != "out.weight" {
		t.Fatalf("unexpected tensor list: %+v", list)
	}

	rec = doGET(t, e, "/v1/tensors/out.weight?digest=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var summary TensorSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if summary.Bytes != 16 {
		t.Fatalf("unexpected byte size: %d", summary.Bytes)
	}
	if summary.Digest == "" {
		t.Fatal("missing digest")
	}

	rec = doGET(t, e, "/v1/tensors/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestVocabEndpoint(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t)

	rec := doGET(t, e, "/v1/vocab?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var list VocabList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if list.Total != 1 || len(list.Entries) != 1 {
		t.Fatalf("unexpected vocab list: %+v", list)
	}
	if list.Entries[0].Token != "hi" || list.Entries[0].Score != 0.75 {
		t.Fatalf("unexpected vocab entry: %+v", list.Entries[0])
	}

	rec = doGET(t, e, "/v1/vocab?limit=bad")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
