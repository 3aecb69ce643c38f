package native

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/apm-agent/internal/control"
)

// Mode selects the engine implementation.
type Mode string

const (
	ModeSimulator Mode = "simulator"
	ModeDisabled  Mode = "disabled"
)

// Disabled is an engine whose notifier never runs.
type Disabled struct{}

// Start always reports disabled.
func (Disabled) Start(string) control.Status { return control.StatusDisabled }

// Stop always reports disabled.
func (Disabled) Stop() control.Status { return control.StatusDisabled }

// Status always reports disabled.
func (Disabled) Status() control.Status { return control.StatusDisabled }

// New returns the engine for mode.
func New(mode Mode, cfg SimulatorConfig, logger *zap.Logger) (control.Engine, error) {
	switch mode {
	case ModeSimulator:
		return NewSimulator(cfg, logger), nil
	case ModeDisabled:
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("native: unknown engine mode %q", mode)
	}
}
