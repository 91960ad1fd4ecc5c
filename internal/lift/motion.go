package lift

import (
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/stepper"
)

// MoveToTarget drives the cabin to target, stopping on the way at floors
// that gained a request. A driver fault mid-move leaves the last floor passed
// as current and flags the position as lost.
func (c *Controller) MoveToTarget(target int) {
	if c.positionLost.Load() {
		Log.Warn().Msgf("Position lost, refusing move to %d until homed", target)
		return
	}
	if !liftconsts.ValidFloor(target) {
		Log.Error().Msgf("Refusing move to invalid floor %d", target)
		return
	}

	if c.health.CheckHealth() {
		Log.Error().Msg("Driver fault before move, position lost")
		c.positionLost.Store(true)
		return
	}

	current := int(c.currentFloor.Load())
	if target == current {
		c.Requests.Clear(target)
		return
	}

	dir := liftconsts.Down
	if target > current {
		dir = liftconsts.Up
	}

	if dir == liftconsts.Down && c.limit.Read() {
		Log.Warn().Msg("Bottom limit switch closed, cannot descend")
		c.currentFloor.Store(liftconsts.GroundFloor)
		c.Requests.Clear(target)
		return
	}

	profile := stepper.NewProfile(target-current, c.mech)
	Log.Info().Msgf("Departing %s to floor %d (%d steps)", dir.String(), target, profile.TotalSteps)

	faulted := false
	limitStop := false
	c.lastHealth = c.clock.Now()

	res, err := c.gen.RunProfile(dir, profile, stepper.Hooks{
		ShouldStop: func(i int) bool {
			now := c.clock.Now()
			if now.Sub(c.lastHealth) > c.mech.HealthInterval {
				c.lastHealth = now
				if c.health.CheckHealth() {
					faulted = true
					return true
				}
			}
			if dir == liftconsts.Down && c.limit.Read() {
				limitStop = true
				return true
			}
			return false
		},
		OnBoundary: func(floors int) {
			floor := current + int(dir)*floors
			c.currentFloor.Store(int32(floor))
			if floor == target {
				return
			}

			Log.Info().Msgf("Passing floor %d", floor)
			if c.Requests.Has(floor) {
				Log.Info().Msgf("Intermediate stop at floor %d", floor)
				c.Requests.Clear(floor)
				c.clock.Sleep(c.mech.Dwell)
			}
		},
	})

	switch {
	case err != nil:
		Log.Error().Msgf("Step output failed after %d steps: %v", res.Steps, err)
		c.positionLost.Store(true)
	case faulted:
		Log.Error().Msgf("Supply fault during move after %d steps, position lost", res.Steps)
		c.positionLost.Store(true)
	case limitStop:
		Log.Info().Msg("Stopped on limit switch, ground floor reached early")
		c.currentFloor.Store(liftconsts.GroundFloor)
		c.Requests.Clear(target)
	default:
		c.currentFloor.Store(int32(target))
		Log.Info().Msgf("Arrived at floor %d", target)
		c.Requests.Clear(target)
		c.clock.Sleep(c.mech.Dwell)
	}
}
