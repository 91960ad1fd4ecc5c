// Package lift runs the cabin: it owns the car state, picks the next floor
// with a directional scheduler and executes moves on the stepper motor.
package lift

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/health"
	"github.com/KarimSabra13/SysPark/internal/homing"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/requests"
	"github.com/KarimSabra13/SysPark/internal/stepper"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

var Log = logger.GetLogger()

var ErrHardwareNotReady = errors.New("lift hardware not ready")

// Hardware lists the capabilities the controller needs. Clock defaults to
// the system clock.
type Hardware struct {
	Bus    hal.Transferer
	Enable hal.DigitalOutput
	Step   hal.DigitalOutput
	Dir    hal.DigitalOutput
	Limit  hal.DigitalInput
	Clock  hal.Clock
}

func (hw Hardware) check() error {
	missing := ""
	switch {
	case hw.Bus == nil:
		missing = "driver bus"
	case hw.Enable == nil:
		missing = "enable line"
	case hw.Step == nil:
		missing = "step line"
	case hw.Dir == nil:
		missing = "direction line"
	case hw.Limit == nil:
		missing = "limit switch"
	}
	if missing != "" {
		return fmt.Errorf("%w: no %s", ErrHardwareNotReady, missing)
	}
	return nil
}

type Status struct {
	CurrentFloor int
	TargetFloor  int
	GoingUp      bool
	Homing       bool
	PositionLost bool
	// Pending stops as [floor][up, down].
	Requests [liftconsts.N_FLOORS][2]bool
}

// Controller is driven by a single goroutine (Start, or Tick in tests). Only
// RequestFloor and the query methods may be called from elsewhere.
type Controller struct {
	Requests *requests.Set

	mech   liftconfig.Mechanics
	clock  hal.Clock
	limit  hal.DigitalInput
	health homing.HealthChecker
	gen    *stepper.Generator
	homer  *homing.Procedure

	currentFloor atomic.Int32
	targetFloor  atomic.Int32
	goingUp      atomic.Bool
	positionLost atomic.Bool
	homing       atomic.Bool
	running      atomic.Bool

	lastHealth time.Time
}

// New configures the driver chip and enables the motor. The car starts with
// an unknown position, so the first tick homes it.
func New(cfg liftconfig.Config, hw Hardware) (*Controller, error) {
	if err := hw.check(); err != nil {
		return nil, err
	}
	if err := cfg.Mechanics.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lift mechanics: %w", err)
	}
	if hw.Clock == nil {
		hw.Clock = hal.SystemClock{}
	}

	for _, out := range []hal.DigitalOutput{hw.Enable, hw.Step, hw.Dir} {
		if err := out.Out(false); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrHardwareNotReady, err)
		}
	}

	chip := tmc5160.NewDriver(hw.Bus)
	if err := chip.InitMinimal(cfg.Chip, cfg.Mechanics.Microsteps); err != nil {
		Log.Error().Msgf("TMC5160 init failed: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrHardwareNotReady, err)
	}
	if err := hw.Enable.Out(true); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHardwareNotReady, err)
	}

	monitor := health.NewMonitor(chip, hw.Enable, cfg.Chip, cfg.Mechanics.Microsteps)
	gen := stepper.NewGenerator(hw.Step, hw.Dir, hw.Clock, cfg.Mechanics.PulseWidth)

	c := &Controller{
		Requests: &requests.Set{},
		mech:     cfg.Mechanics,
		clock:    hw.Clock,
		limit:    hw.Limit,
		health:   monitor,
		gen:      gen,
		homer:    homing.NewProcedure(gen, hw.Limit, monitor, hw.Clock, cfg.Mechanics),
	}
	c.currentFloor.Store(liftconsts.NoFloor)
	c.targetFloor.Store(liftconsts.NoFloor)
	c.goingUp.Store(true)
	c.positionLost.Store(true)
	return c, nil
}

func (c *Controller) Start(ctx context.Context, waitGroup *sync.WaitGroup) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("lift controller already running")
	}

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		defer c.running.Store(false)

		c.clock.Sleep(c.mech.StartupDelay)
		Log.Info().Msg("Lift controller started")

		for {
			select {
			case <-ctx.Done():
				Log.Warn().Msgf("Lift controller Go routine has been signaled to stop")
				return
			default:
				c.Tick()
			}
		}
	}()
	return nil
}

// Tick runs one iteration of the control loop: home if the position is
// unknown, otherwise serve the next request. The driver is checked here only
// when nothing is pending, since a move checks it before departing.
func (c *Controller) Tick() {
	if c.positionLost.Load() {
		Log.Warn().Msg("Position unknown, homing")
		c.home()
		return
	}

	current := int(c.currentFloor.Load())
	if c.Requests.Has(current) {
		Log.Debug().Msgf("Dropping request for current floor %d", current)
		c.Requests.Clear(current)
	}

	if c.goingUp.Load() {
		if next := c.Requests.NextAbove(current); next != liftconsts.NoFloor {
			c.serve(next)
			return
		}
		if c.Requests.NextBelow(current) != liftconsts.NoFloor {
			c.goingUp.Store(false)
			return
		}
	} else {
		if next := c.Requests.NextBelow(current); next != liftconsts.NoFloor {
			c.serve(next)
			return
		}
		if c.Requests.NextAbove(current) != liftconsts.NoFloor {
			c.goingUp.Store(true)
			return
		}
	}

	if c.health.CheckHealth() {
		Log.Warn().Msg("Driver fault while idle, position lost")
		c.positionLost.Store(true)
		return
	}
	c.clock.Sleep(c.mech.IdlePoll)
}

func (c *Controller) serve(target int) {
	c.targetFloor.Store(int32(target))
	defer c.targetFloor.Store(liftconsts.NoFloor)
	c.MoveToTarget(target)
}

func (c *Controller) home() {
	c.homing.Store(true)
	defer c.homing.Store(false)

	if err := c.homer.Run(); err != nil {
		Log.Error().Msgf("Homing failed: %v", err)
		c.clock.Sleep(c.mech.IdlePoll)
		return
	}

	c.currentFloor.Store(liftconsts.GroundFloor)
	c.positionLost.Store(false)
	c.Requests.ClearAll()
	Log.Info().Msg("Homing done, at ground floor")
}
