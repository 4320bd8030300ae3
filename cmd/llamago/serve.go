package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/llamago/internal/api"
	"github.com/samcharles93/llamago/internal/engine"
	"github.com/samcharles93/llamago/internal/logger"
	"github.com/samcharles93/llamago/internal/pretrained"
)

func serveCmd() *cli.Command {
	var (
		req         = engine.DefaultRequest("")
		addr        string
		readTimeout time.Duration
		idleTTL     time.Duration
		hidden      int
	)

	flags := append(variantFlags(), samplingFlags(&req)...)
	flags = append(flags,
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read header timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.DurationFlag{
			Name:        "idle-ttl",
			Usage:       "unload a model after this long without requests (0 = never)",
			Value:       30 * time.Minute,
			Destination: &idleTTL,
		},
		&cli.IntFlag{
			Name:        "hidden",
			Usage:       "embedding width of the model backend",
			Destination: &hidden,
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation REST API",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := applyServeConfig(c, cfg, &req, &addr, &idleTTL); err != nil {
				return cli.Exit(fmt.Sprintf("error: config: %v", err), 1)
			}
			log := logger.FromContext(ctx)

			def := defaultVariant
			if variantName != "" {
				v, err := pretrained.ParseVariant(variantName)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				def = v
			}
			resolver, err := newResolver(cacheDir, log)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: cache dir: %v", err), 1)
			}

			loader := engine.Loader{Resolver: resolver, Hidden: hidden}
			provider := api.NewCachedProvider(api.ProviderConfig{
				DefaultModel: def,
				IdleTTL:      idleTTL,
				Resolver:     resolver,
				Load: func(ctx context.Context, v pretrained.Variant) (*engine.Engine, error) {
					return loader.Load(logger.WithContext(ctx, log), v)
				},
				Logger: log,
			})
			defer provider.Close()

			server := api.NewServer(provider, req)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "default_model", def.ID(), "cache", resolver.CacheRoot)
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
