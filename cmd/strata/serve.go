package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/api"
	"github.com/samcharles93/strata/internal/checkpoint"
	"github.com/samcharles93/strata/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve read-only checkpoint metadata over HTTP",
		Flags: append([]cli.Flag{
			checkpointFlag(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		}, loggingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyConfig(c, LoadConfig(), nil, &addr)
			ctx = loggingContext(ctx)
			log := logger.FromContext(ctx)

			cp, err := checkpoint.Open(checkpointPath)
			if err != nil {
				return err
			}
			defer func() { _ = cp.Close() }()

			server := api.NewServer(cp)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server",
				"address", addr,
				"checkpoint", checkpointPath,
				"revision", cp.Revision.String(),
			)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
