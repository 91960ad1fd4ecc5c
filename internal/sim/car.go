package sim

import (
	"sync"

	"github.com/KarimSabra13/SysPark/internal/hal"
)

// Car models the lift cabin as a step counter above the limit switch. The
// switch is closed at position 0 and below; the cabin cannot go lower than
// the mechanical stop.
type Car struct {
	mtx       sync.Mutex
	position  int
	stop      int
	dirDown   bool
	enabled   bool
	stepLevel bool
	pulses    int
	onPulse   func(pulses int)
}

const defaultOvertravel = 200

func NewCar(position int) *Car {
	return &Car{
		position: position,
		stop:     -defaultOvertravel,
	}
}

// OnPulse registers fn to run after each rising edge on the step line. It is
// called without the car lock held, so it may drive other parts of the rig.
func (c *Car) OnPulse(fn func(pulses int)) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.onPulse = fn
}

func (c *Car) Position() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.position
}

func (c *Car) SetPosition(position int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.position = position
}

func (c *Car) Pulses() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.pulses
}

func (c *Car) Enabled() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.enabled
}

func (c *Car) LimitActive() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.position <= 0
}

func (c *Car) step(level bool) {
	c.mtx.Lock()
	rising := level && !c.stepLevel
	c.stepLevel = level
	if !rising {
		c.mtx.Unlock()
		return
	}

	c.pulses++
	if c.enabled {
		if c.dirDown {
			if c.position > c.stop {
				c.position--
			}
		} else {
			c.position++
		}
	}
	pulses := c.pulses
	onPulse := c.onPulse
	c.mtx.Unlock()

	if onPulse != nil {
		onPulse(pulses)
	}
}

type stepLine struct{ car *Car }

func (s stepLine) Out(level bool) error {
	s.car.step(level)
	return nil
}

type dirLine struct{ car *Car }

func (d dirLine) Out(level bool) error {
	d.car.mtx.Lock()
	defer d.car.mtx.Unlock()
	d.car.dirDown = level
	return nil
}

type enableLine struct{ car *Car }

func (e enableLine) Out(level bool) error {
	e.car.mtx.Lock()
	defer e.car.mtx.Unlock()
	e.car.enabled = level
	return nil
}

type limitSwitch struct{ car *Car }

func (l limitSwitch) Read() bool {
	return l.car.LimitActive()
}

func (c *Car) StepPin() hal.DigitalOutput {
	return stepLine{car: c}
}

// DirPin drives the direction line: high moves the cabin down.
func (c *Car) DirPin() hal.DigitalOutput {
	return dirLine{car: c}
}

func (c *Car) EnablePin() hal.DigitalOutput {
	return enableLine{car: c}
}

func (c *Car) LimitSwitch() hal.DigitalInput {
	return limitSwitch{car: c}
}
