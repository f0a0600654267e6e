package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/webbundle/internal/config"
	"github.com/wolfeidau/webbundle/internal/env"
)

type Globals struct {
	Debug   bool
	Version string
}

// ProjectFlags are shared by every command that assembles a configuration.
type ProjectFlags struct {
	Project string `help:"Path to the project file" default:"webbundle.yaml" type:"path"`
	NodeEnv string `help:"Build mode: production, development or hot" env:"NODE_ENV" name:"node-env"`
	EnvFile string `help:"Dotenv file consulted for NODE_ENV when it is not set" default:".env" type:"path"`
}

// nodeEnv returns the flag or environment value, falling back to the dotenv
// file. A missing dotenv file is not an error.
func (f ProjectFlags) nodeEnv() (string, error) {
	if f.NodeEnv != "" || f.EnvFile == "" {
		return f.NodeEnv, nil
	}

	values, err := godotenv.Read(f.EnvFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read env file: %w", err)
	}
	return values[env.Variable], nil
}

// assemble resolves the mode and builds the configuration for the project.
func (f ProjectFlags) assemble(globals *Globals, hot, watch bool, log zerolog.Logger) (*config.Config, error) {
	nodeEnv, err := f.nodeEnv()
	if err != nil {
		return nil, err
	}

	mode, err := env.Resolve(env.Inputs{NodeEnv: nodeEnv, Debug: globals.Debug, Hot: hot})
	if err != nil {
		return nil, err
	}

	project, err := config.LoadProject(f.Project)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("project", f.Project).Str("mode", mode.String()).Msg("Loaded project")

	return config.Assemble(project, mode, config.Options{Watch: watch})
}

// withSignals cancels the returned context on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	// Create HTTP server
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}
