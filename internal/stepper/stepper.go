package stepper

import (
	"time"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

// Profile is a trapezoidal move: ramp from MaxDelay to MinDelay over
// AccelSteps, cruise at MinDelay, ramp back up over the last DecelSteps.
type Profile struct {
	TotalSteps    int
	AccelSteps    int
	DecelSteps    int
	StepsPerFloor int
	MinDelay      time.Duration
	MaxDelay      time.Duration
}

func NewProfile(floors int, m liftconfig.Mechanics) Profile {
	if floors < 0 {
		floors = -floors
	}
	return Profile{
		TotalSteps:    floors * m.StepsPerFloor(),
		AccelSteps:    m.AccelSteps(),
		DecelSteps:    m.DecelSteps(),
		StepsPerFloor: m.StepsPerFloor(),
		MinDelay:      m.MinDelay,
		MaxDelay:      m.MaxDelay,
	}
}

// Delay is the pause following step i.
func (p Profile) Delay(i int) time.Duration {
	span := p.MaxDelay - p.MinDelay

	switch {
	case i < p.AccelSteps:
		return p.MaxDelay - span*time.Duration(i)/time.Duration(p.AccelSteps)
	case p.DecelSteps > 0 && i > p.TotalSteps-p.DecelSteps:
		remaining := p.TotalSteps - i
		return p.MinDelay + span*time.Duration(p.DecelSteps-remaining)/time.Duration(p.DecelSteps)
	default:
		return p.MinDelay
	}
}

type Hooks struct {
	// ShouldStop runs before step i; returning true cancels the rest of the move.
	ShouldStop func(i int) bool
	// OnBoundary runs after each full floor of steps, with the floors covered so far.
	OnBoundary func(floors int)
}

type Result struct {
	Steps    int
	Canceled bool
}

// Generator drives the step and direction lines of the motor driver.
type Generator struct {
	step       hal.DigitalOutput
	dir        hal.DigitalOutput
	clock      hal.Clock
	pulseWidth time.Duration
}

func NewGenerator(step, dir hal.DigitalOutput, clock hal.Clock, pulseWidth time.Duration) *Generator {
	return &Generator{
		step:       step,
		dir:        dir,
		clock:      clock,
		pulseWidth: pulseWidth,
	}
}

// SetDirection drives the direction line; low is up, high is down.
func (g *Generator) SetDirection(dir liftconsts.Dirn) error {
	return g.dir.Out(dir == liftconsts.Down)
}

func (g *Generator) StepOnce() error {
	if err := g.step.Out(true); err != nil {
		return err
	}
	g.clock.Sleep(g.pulseWidth)
	return g.step.Out(false)
}

// RunProfile emits p.TotalSteps pulses in dir with the delay profile of p.
func (g *Generator) RunProfile(dir liftconsts.Dirn, p Profile, hooks Hooks) (Result, error) {
	var res Result

	if err := g.SetDirection(dir); err != nil {
		return res, err
	}

	for i := 0; i < p.TotalSteps; i++ {
		if hooks.ShouldStop != nil && hooks.ShouldStop(i) {
			res.Canceled = true
			return res, nil
		}

		if err := g.StepOnce(); err != nil {
			return res, err
		}
		g.clock.Sleep(p.Delay(i))
		res.Steps++

		if p.StepsPerFloor > 0 && res.Steps%p.StepsPerFloor == 0 && hooks.OnBoundary != nil {
			hooks.OnBoundary(res.Steps / p.StepsPerFloor)
		}
	}
	return res, nil
}

// Run emits steps pulses at a fixed delay with no ramp.
func (g *Generator) Run(dir liftconsts.Dirn, steps int, delay time.Duration) error {
	if err := g.SetDirection(dir); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := g.StepOnce(); err != nil {
			return err
		}
		g.clock.Sleep(delay)
	}
	return nil
}
