package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/webbundle/cmd/webbundle/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Build   commands.BuildCmd  `cmd:"" default:"withargs" help:"Build the bundles"`
		Serve   commands.ServeCmd  `cmd:"" help:"Build in hot mode and serve the bundles from memory"`
		Config  commands.ConfigCmd `cmd:"" help:"Print the resolved bundle configuration"`
		Debug   bool               `short:"d" help:"Enable debug mode, which also selects a development build when NODE_ENV is unset."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("webbundle"),
		kong.Description("Bundle front-end sources with esbuild."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
