package commands

import (
	"fmt"
	"os"

	"github.com/wolfeidau/webbundle/internal/logger"
	"gopkg.in/yaml.v3"
)

type ConfigCmd struct {
	ProjectFlags `embed:""`

	Hot bool `help:"Resolve the configuration for hot mode"`
}

type configOutput struct {
	Plugins []string `yaml:"plugins"`
	Config  any      `yaml:"config"`
}

func (c *ConfigCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)

	cfg, err := c.assemble(globals, c.Hot, false, log)
	if err != nil {
		return fmt.Errorf("failed to assemble config: %w", err)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()

	if err := enc.Encode(configOutput{Plugins: cfg.Plugins(), Config: cfg}); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}
