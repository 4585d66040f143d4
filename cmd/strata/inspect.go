package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/checkpoint"
)

type inspectReport struct {
	Path       string             `json:"path"`
	Revision   string             `json:"revision"`
	Hparams    map[string]int32   `json:"hyperparameters"`
	VocabSize  int                `json:"vocab_size"`
	Tensors    []inspectTensor    `json:"tensors,omitempty"`
	Vocab      []inspectVocabItem `json:"vocab,omitempty"`
	TotalBytes int64              `json:"total_tensor_bytes"`
}

type inspectTensor struct {
	Name   string `json:"name"`
	Dims   []int  `json:"dims"`
	Type   string `json:"type"`
	Bytes  int    `json:"bytes"`
	Offset int64  `json:"offset"`
	Digest string `json:"digest,omitempty"`
}

type inspectVocabItem struct {
	Index int     `json:"index"`
	Token string  `json:"token"`
	Score float32 `json:"score"`
}

func inspectCmd() *cli.Command {
	var (
		showTensors  bool
		showVocab    bool
		checksums    bool
		asJSON       bool
		tensorLimit  int
		vocabLimit   int
		tensorFilter string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect the contents of a ggml checkpoint",
		Flags: []cli.Flag{
			checkpointFlag(),
			&cli.BoolFlag{Name: "tensors", Usage: "list tensor descriptors", Destination: &showTensors},
			&cli.BoolFlag{Name: "vocab", Usage: "list vocab entries", Destination: &showVocab},
			&cli.BoolFlag{Name: "checksums", Usage: "include per-tensor xxh64 digests", Destination: &checksums},
			&cli.BoolFlag{Name: "json", Usage: "emit the report as JSON", Destination: &asJSON},
			&cli.IntFlag{Name: "tensors-limit", Usage: "limit tensor listing (0 = no limit)", Value: 50, Destination: &tensorLimit},
			&cli.IntFlag{Name: "vocab-limit", Usage: "limit vocab listing (0 = no limit)", Value: 50, Destination: &vocabLimit},
			&cli.StringFlag{Name: "tensor-filter", Usage: "substring filter for tensor listing", Destination: &tensorFilter},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			cp, err := checkpoint.Open(checkpointPath)
			if err != nil {
				return err
			}
			defer func() { _ = cp.Close() }()

			report := inspectReport{
				Path:     cp.Path,
				Revision: cp.Revision.String(),
				Hparams: map[string]int32{
					"n_vocab":   cp.Hparams.NVocab,
					"n_embd":    cp.Hparams.NEmbd,
					"n_mult":    cp.Hparams.NMult,
					"n_head":    cp.Hparams.NHead,
					"n_layer":   cp.Hparams.NLayer,
					"n_rot":     cp.Hparams.NRot,
					"file_type": cp.Hparams.FileType,
				},
				VocabSize: len(cp.Vocab),
			}

			for _, t := range cp.Tensors {
				report.TotalBytes += int64(t.DataSize())
			}

			if showTensors || checksums {
				listed := 0
				for _, t := range cp.Tensors {
					name := string(t.Name)
					if tensorFilter != "" && !strings.Contains(name, tensorFilter) {
						continue
					}
					if tensorLimit > 0 && listed >= tensorLimit {
						break
					}
					entry := inspectTensor{
						Name:   name,
						Dims:   append([]int(nil), t.Dims[:t.NDims]...),
						Type:   t.Type.String(),
						Bytes:  t.DataSize(),
						Offset: t.StartOffset,
					}
					if checksums {
						digest, err := cp.TensorDigest(name)
						if err != nil {
							return err
						}
						entry.Digest = "xxh64:" + strconv.FormatUint(digest, 16)
					}
					report.Tensors = append(report.Tensors, entry)
					listed++
				}
			}

			if showVocab {
				limit := len(cp.Vocab)
				if vocabLimit > 0 && vocabLimit < limit {
					limit = vocabLimit
				}
				for i, entry := range cp.Vocab[:limit] {
					report.Vocab = append(report.Vocab, inspectVocabItem{
						Index: i,
						Token: string(entry.Token),
						Score: entry.Score,
					})
				}
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printReport(report)
			return nil
		},
	}
}

func printReport(report inspectReport) {
	fmt.Printf("checkpoint: %s\n", report.Path)
	fmt.Printf("revision:   %s\n", report.Revision)
	fmt.Printf("tensors:    %d bytes total\n", report.TotalBytes)
	fmt.Println("hyperparameters:")
	for _, key := range []string{"n_vocab", "n_embd", "n_mult", "n_head", "n_layer", "n_rot", "file_type"} {
		fmt.Printf("  %-9s = %d\n", key, report.Hparams[key])
	}
	fmt.Printf("vocab size: %d\n", report.VocabSize)

	if len(report.Tensors) > 0 {
		fmt.Println("tensors:")
		for _, t := range report.Tensors {
			line := fmt.Sprintf("  %-48s %-12v %-6s %10d bytes @ %d", t.Name, t.Dims, t.Type, t.Bytes, t.Offset)
			if t.Digest != "" {
				line += "  " + t.Digest
			}
			fmt.Println(line)
		}
	}
	if len(report.Vocab) > 0 {
		fmt.Println("vocab:")
		for _, v := range report.Vocab {
			fmt.Printf("  %6d %-24q %8.3f\n", v.Index, v.Token, v.Score)
		}
	}
}
