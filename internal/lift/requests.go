package lift

import (
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
)

// RequestFloor records a stop at floor. Out of range floors and the current
// floor are ignored. Safe to call from any goroutine.
func (c *Controller) RequestFloor(floor int) {
	if !liftconsts.ValidFloor(floor) {
		Log.Debug().Msgf("Ignoring request for invalid floor %d", floor)
		return
	}

	current := int(c.currentFloor.Load())
	if floor == current {
		Log.Debug().Msgf("Ignoring request for current floor %d", floor)
		return
	}

	up := floor > current
	c.goingUp.Store(up)
	if up {
		c.Requests.Add(floor, liftconsts.Up)
	} else {
		c.Requests.Add(floor, liftconsts.Down)
	}
	Log.Info().Msgf("Floor %d requested", floor)
}

func (c *Controller) CurrentFloor() int {
	return int(c.currentFloor.Load())
}

// TargetFloor is the floor of the move in progress, or NoFloor.
func (c *Controller) TargetFloor() int {
	return int(c.targetFloor.Load())
}

func (c *Controller) IsGoingUp() bool {
	return c.goingUp.Load()
}

func (c *Controller) IsHoming() bool {
	return c.homing.Load()
}

func (c *Controller) IsPositionLost() bool {
	return c.positionLost.Load()
}

func (c *Controller) Status() Status {
	return Status{
		CurrentFloor: c.CurrentFloor(),
		TargetFloor:  c.TargetFloor(),
		GoingUp:      c.IsGoingUp(),
		Homing:       c.IsHoming(),
		PositionLost: c.IsPositionLost(),
		Requests:     c.Requests.Snapshot(),
	}
}
