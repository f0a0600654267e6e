package commands

import (
	"context"
	"fmt"

	"github.com/wolfeidau/webbundle/internal/assets"
	"github.com/wolfeidau/webbundle/internal/logger"
)

type BuildCmd struct {
	ProjectFlags `embed:""`

	Watch bool `short:"w" help:"Rebuild when sources change"`
	Hot   bool `help:"Add the hot reload bootstrap to the dev-server entry"`
}

func (c *BuildCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting build")

	cfg, err := c.assemble(globals, c.Hot, c.Watch, log)
	if err != nil {
		return fmt.Errorf("failed to assemble config: %w", err)
	}

	pipeline, err := assets.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	if !c.Watch {
		res, err := pipeline.Build()
		if err != nil {
			return fmt.Errorf("failed to build assets: %w", err)
		}
		log.Info().Int("files", len(res.Assets)).Int("warnings", res.Warnings).Msg("Build complete")
		return nil
	}

	ctx, cancel := withSignals(ctx)
	defer cancel()

	return pipeline.Watch(ctx, func(res *assets.Result, err error) {
		if err != nil {
			log.Error().Err(err).Msg("Rebuild failed")
			return
		}
		log.Info().Int("files", len(res.Assets)).Msg("Rebuild complete")
	})
}
