package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/logger"
)

var (
	checkpointPath string
	logLevel       string
	logFormat      string
	debug          bool
)

func checkpointFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "checkpoint",
		Aliases:     []string{"f"},
		Usage:       "path to a ggml/ggmf/ggjt checkpoint file",
		Destination: &checkpointPath,
		Required:    true,
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// loggingContext builds the configured logger and threads it through the
// command context.
func loggingContext(ctx context.Context) context.Context {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}

	var log logger.Logger
	switch logFormat {
	case "json":
		log = logger.JSON(os.Stderr, level)
	case "text":
		log = logger.Text(os.Stderr, level)
	default:
		log = logger.Pretty(os.Stderr, level)
	}
	return logger.WithContext(ctx, log)
}
