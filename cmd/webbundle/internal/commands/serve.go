package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/webbundle/internal/assets"
	"github.com/wolfeidau/webbundle/internal/devserver"
	"github.com/wolfeidau/webbundle/internal/logger"
	"golang.org/x/sync/errgroup"
)

type ServeCmd struct {
	ProjectFlags `embed:""`

	Listen string `help:"Listen address, defaults to the project's dev server address" env:"WEBBUNDLE_LISTEN"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Msg("Starting dev server")

	cfg, err := c.assemble(globals, true, true, log)
	if err != nil {
		return fmt.Errorf("failed to assemble config: %w", err)
	}

	pipeline, err := assets.New(cfg, assets.WithoutWrite())
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := devserver.New(pipeline, cfg.Output.PublicPath, log)
	if err != nil {
		return err
	}

	addr := c.Listen
	if addr == "" {
		addr = cfg.DevServer.Addr
	}
	httpServer := configureHTTPServer(addr, srv.Handler())

	ctx, cancel := withSignals(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, httpServer)
	})
	g.Go(func() error {
		return pipeline.Watch(ctx, srv.Notify)
	})

	return g.Wait()
}
