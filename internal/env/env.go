// Package env resolves the build mode from NODE_ENV and command-line flags.
package env

import (
	"errors"
	"fmt"
)

// Variable is the environment variable consulted for the build mode.
const Variable = "NODE_ENV"

// Env is the base build mode.
type Env string

const (
	Production  Env = "production"
	Development Env = "development"
)

// hot is accepted as a NODE_ENV value and layers hot reload over development.
const hot = "hot"

// ErrUnknownEnv is returned when NODE_ENV holds a value other than
// development, production or hot.
var ErrUnknownEnv = errors.New("unknown build environment")

// Mode is the resolved build mode. Hot layers the dev-server bootstrap on top
// of whichever base Env was selected.
type Mode struct {
	Env Env
	Hot bool
}

// IsDevelopment reports whether unminified artifacts and source maps should
// be used. Hot does not change the base mode.
func (m Mode) IsDevelopment() bool {
	return m.Env == Development
}

// IsProduction reports whether the base mode is production, hot or not.
func (m Mode) IsProduction() bool {
	return m.Env == Production
}

func (m Mode) String() string {
	if m.Hot {
		return hot + "+" + string(m.Env)
	}
	return string(m.Env)
}

// Inputs are the raw signals the mode is resolved from.
type Inputs struct {
	// NodeEnv is the value of NODE_ENV, empty when unset.
	NodeEnv string
	// Debug is set by -d or --debug.
	Debug bool
	// Hot is set by --hot or the serve command.
	Hot bool
}

// Resolve picks the mode: NODE_ENV first, then the debug flag, else production.
func Resolve(in Inputs) (Mode, error) {
	mode := Mode{Env: Production, Hot: in.Hot}

	switch in.NodeEnv {
	case "":
		if in.Debug {
			mode.Env = Development
		}
	case string(Production):
		mode.Env = Production
	case string(Development):
		mode.Env = Development
	case hot:
		mode.Env = Development
		mode.Hot = true
	default:
		return Mode{}, fmt.Errorf("%w: %s=%q", ErrUnknownEnv, Variable, in.NodeEnv)
	}

	return mode, nil
}
