package homing

import (
	"errors"
	"fmt"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/stepper"
)

var Log = logger.GetLogger()

var ErrLimitNotFound = errors.New("limit switch not reached within the homing travel")

type State int

const (
	Seeking State = iota
	Clearing
	Done
)

func (s State) String() string {
	switch s {
	case Seeking:
		return "Seeking"
	case Clearing:
		return "Clearing"
	case Done:
		return "Done"
	default:
		return "Undefined"
	}
}

type HealthChecker interface {
	CheckHealth() bool
}

// Procedure drives the cabin down onto the limit switch, then backs off it.
// It blocks until done and leaves position bookkeeping to the caller.
type Procedure struct {
	gen    *stepper.Generator
	limit  hal.DigitalInput
	health HealthChecker
	clock  hal.Clock
	mech   liftconfig.Mechanics

	state State
	steps int
}

func NewProcedure(gen *stepper.Generator, limit hal.DigitalInput, health HealthChecker, clock hal.Clock, mech liftconfig.Mechanics) *Procedure {
	return &Procedure{
		gen:    gen,
		limit:  limit,
		health: health,
		clock:  clock,
		mech:   mech,
		state:  Done,
	}
}

func (p *Procedure) State() State {
	return p.state
}

// SeekSteps is the number of pulses the last run needed to find the switch.
func (p *Procedure) SeekSteps() int {
	return p.steps
}

func (p *Procedure) Run() error {
	p.state = Seeking
	p.steps = 0

	if p.limit.Read() {
		Log.Info().Msg("Already at ground floor")
		p.state = Done
		return nil
	}

	Log.Info().Msg("Homing: descending to ground floor")
	if err := p.seek(); err != nil {
		return err
	}
	Log.Info().Msgf("Limit switch reached after %d steps", p.steps)

	p.state = Clearing
	if err := p.gen.Run(liftconsts.Up, p.mech.ClearingSteps, p.mech.ClearingDelay); err != nil {
		return fmt.Errorf("error clearing the limit switch: %w", err)
	}

	p.state = Done
	return nil
}

// seek accelerates downward until the switch closes. There is no
// deceleration since the end point is unknown.
func (p *Procedure) seek() error {
	if err := p.gen.SetDirection(liftconsts.Down); err != nil {
		return fmt.Errorf("error setting homing direction: %w", err)
	}

	maxSteps := p.mech.HomingLimit()
	delay := p.mech.MaxDelay

	for !p.limit.Read() {
		if p.steps >= maxSteps {
			Log.Error().Msgf("Limit switch not found after %d steps", p.steps)
			return ErrLimitNotFound
		}

		// The position is unknown anyway, a fault only needs the re-init.
		p.health.CheckHealth()

		if err := p.gen.StepOnce(); err != nil {
			return fmt.Errorf("error stepping while homing: %w", err)
		}
		p.clock.Sleep(delay)
		p.steps++

		if delay > p.mech.MinDelay {
			delay -= p.mech.HomingRampStep
			if delay < p.mech.MinDelay {
				delay = p.mech.MinDelay
			}
		}
	}
	return nil
}
