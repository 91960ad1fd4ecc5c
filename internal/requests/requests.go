// Package requests holds the pending floor stops shared between the request
// producers (buttons, remote commands) and the motion controller.
package requests

import (
	"sync/atomic"

	"github.com/KarimSabra13/SysPark/internal/liftconsts"
)

// Set is a fixed pair of atomic flags per floor. Producers only set flags and
// the controller only clears them, so no lock is needed.
type Set struct {
	up   [liftconsts.N_FLOORS]atomic.Bool
	down [liftconsts.N_FLOORS]atomic.Bool
}

func (s *Set) Add(floor int, dirn liftconsts.Dirn) {
	if !liftconsts.ValidFloor(floor) {
		return
	}
	if dirn == liftconsts.Down {
		s.down[floor].Store(true)
	} else {
		s.up[floor].Store(true)
	}
}

func (s *Set) Up(floor int) bool {
	return liftconsts.ValidFloor(floor) && s.up[floor].Load()
}

func (s *Set) Down(floor int) bool {
	return liftconsts.ValidFloor(floor) && s.down[floor].Load()
}

func (s *Set) Has(floor int) bool {
	return s.Up(floor) || s.Down(floor)
}

// Clear drops both flags of floor and nothing else.
func (s *Set) Clear(floor int) {
	if !liftconsts.ValidFloor(floor) {
		return
	}
	s.up[floor].Store(false)
	s.down[floor].Store(false)
}

func (s *Set) ClearAll() {
	for f := 0; f < liftconsts.N_FLOORS; f++ {
		s.Clear(f)
	}
}

func (s *Set) Empty() bool {
	for f := 0; f < liftconsts.N_FLOORS; f++ {
		if s.Has(f) {
			return false
		}
	}
	return true
}

// NextAbove is the nearest requested floor strictly above floor, or NoFloor.
func (s *Set) NextAbove(floor int) int {
	for f := floor + 1; f < liftconsts.N_FLOORS; f++ {
		if f >= 0 && s.Has(f) {
			return f
		}
	}
	return liftconsts.NoFloor
}

// NextBelow is the nearest requested floor strictly below floor, or NoFloor.
func (s *Set) NextBelow(floor int) int {
	if floor > liftconsts.N_FLOORS {
		floor = liftconsts.N_FLOORS
	}
	for f := floor - 1; f >= 0; f-- {
		if s.Has(f) {
			return f
		}
	}
	return liftconsts.NoFloor
}

// Snapshot copies the flags as plain booleans, indexed [floor][up, down].
func (s *Set) Snapshot() [liftconsts.N_FLOORS][2]bool {
	var out [liftconsts.N_FLOORS][2]bool
	for f := 0; f < liftconsts.N_FLOORS; f++ {
		out[f][0] = s.up[f].Load()
		out[f][1] = s.down[f].Load()
	}
	return out
}
