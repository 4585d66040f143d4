package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/logger"
	"github.com/samcharles93/strata/pkg/ggml"
	"github.com/samcharles93/strata/pkg/quant"
)

func quantizeCmd() *cli.Command {
	var (
		outPath   string
		quantType string
	)

	return &cli.Command{
		Name:  "quantize",
		Usage: "Re-encode a versioned checkpoint with 4-bit weight tensors",
		Flags: append([]cli.Flag{
			checkpointFlag(),
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output checkpoint path",
				Destination: &outPath,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "type",
				Aliases:     []string{"t"},
				Usage:       "target quantization type (q4_0, q4_1)",
				Value:       "q4_1",
				Destination: &quantType,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, LoadConfig(), &quantType, nil)
			ctx = loggingContext(ctx)
			log := logger.FromContext(ctx)

			var target ggml.ElementType
			switch quantType {
			case "q4_0":
				target = ggml.TypeQ4_0
			case "q4_1":
				target = ggml.TypeQ4_1
			default:
				return fmt.Errorf("unknown quantization type %q", quantType)
			}

			in, err := os.Open(checkpointPath)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()

			out, err := os.Create(outPath)
			if err != nil {
				return err
			}

			log.Info("quantizing checkpoint",
				"in", checkpointPath,
				"out", outPath,
				"type", quantType,
			)
			stats, err := quant.Transcode(ctx, in, out, quant.Options{Target: target})
			if cerr := out.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				// Partial output stays on disk for the caller to discard.
				return err
			}

			fmt.Printf("tensors:   %d (%d quantized)\n", stats.Tensors, stats.Quantized)
			fmt.Printf("data size: %.2f MB -> %.2f MB\n",
				float64(stats.BytesIn)/1024.0/1024.0,
				float64(stats.BytesOut)/1024.0/1024.0,
			)
			var total int64
			for _, v := range stats.Histogram {
				total += v
			}
			if total > 0 {
				fmt.Print("hist:     ")
				for _, v := range stats.Histogram {
					fmt.Printf(" %5.3f", float64(v)/float64(total))
				}
				fmt.Println()
			}
			return nil
		},
	}
}
