// Package api serves read-only checkpoint metadata over HTTP. It is a
// thin view over an already-opened checkpoint: no mutation, no
// inference, just the structure the format engine collected.
package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/strata/internal/checkpoint"
	"github.com/samcharles93/strata/pkg/ggml"
)

type Server struct {
	cp *checkpoint.Checkpoint
	id string
}

// NewServer wraps an opened checkpoint. Each server instance gets a
// fresh id so clients can tell reloads apart.
func NewServer(cp *checkpoint.Checkpoint) *Server {
	return &Server{
		cp: cp,
		id: "ckpt_" + uuid.NewString(),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/checkpoint", s.handleCheckpoint)
	e.GET("/v1/tensors", s.handleTensors)
	e.GET("/v1/tensors/:name", s.handleTensor)
	e.GET("/v1/vocab", s.handleVocab)
}

func (s *Server) handleCheckpoint(c *echo.Context) error {
	return c.JSON(http.StatusOK, CheckpointInfo{
		ID:       s.id,
		Path:     s.cp.Path,
		Revision: s.cp.Revision.String(),
		Hparams: HparamsInfo{
			NVocab:   s.cp.Hparams.NVocab,
			NEmbd:    s.cp.Hparams.NEmbd,
			NMult:    s.cp.Hparams.NMult,
			NHead:    s.cp.Hparams.NHead,
			NLayer:   s.cp.Hparams.NLayer,
			NRot:     s.cp.Hparams.NRot,
			FileType: s.cp.Hparams.FileType,
		},
		TensorCount: len(s.cp.Tensors),
		VocabCount:  len(s.cp.Vocab),
	})
}

func (s *Server) handleTensors(c *echo.Context) error {
	out := make([]TensorSummary, 0, len(s.cp.Tensors))
	for _, t := range s.cp.Tensors {
		out = append(out, tensorSummary(t))
	}
	return c.JSON(http.StatusOK, TensorList{Tensors: out})
}

func (s *Server) handleTensor(c *echo.Context) error {
	name := c.Param("name")
	info, ok := s.cp.Tensor(name)
	if !ok {
		return c.JSON(http.StatusNotFound, ErrorBody{Error: "tensor not found: " + name})
	}
	summary := tensorSummary(info)
	if c.QueryParam("digest") == "true" {
		digest, err := s.cp.TensorDigest(name)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorBody{Error: err.Error()})
		}
		summary.Digest = "xxh64:" + strconv.FormatUint(digest, 16)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleVocab(c *echo.Context) error {
	limit := len(s.cp.Vocab)
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return c.JSON(http.StatusBadRequest, ErrorBody{Error: "invalid limit: " + raw})
		}
		if parsed < limit {
			limit = parsed
		}
	}
	out := make([]VocabItem, 0, limit)
	for i, entry := range s.cp.Vocab[:limit] {
		out = append(out, VocabItem{
			Index: i,
			Token: string(entry.Token),
			Score: entry.Score,
		})
	}
	return c.JSON(http.StatusOK, VocabList{Total: len(s.cp.Vocab), Entries: out})
}

func tensorSummary(t ggml.TensorInfo) TensorSummary {
	return TensorSummary{
		Name:        string(t.Name),
		Dims:        t.Dims[:t.NDims],
		Type:        t.Type.String(),
		Elements:    t.NElements,
		Bytes:       t.DataSize(),
		StartOffset: t.StartOffset,
	}
}
