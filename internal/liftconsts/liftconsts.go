package liftconsts

import "strings"

const (
	N_FLOORS = 3

	// Ground floor, also the homing reference.
	GroundFloor = 0
	// Unknown or unset floor.
	NoFloor = -1
)

func ValidFloor(floor int) bool {
	return floor >= 0 && floor < N_FLOORS
}

type Dirn int

func (d Dirn) String() string {
	switch d {
	case Up:
		return "Up"
	case Down:
		return "Down"
	case Stop:
		return "Stop"
	default:
		return "Undefined"
	}
}

const (
	Down Dirn = -1
	Stop Dirn = 0
	Up   Dirn = 1
)

// Role selects which subsystems a terminal board runs.
type Role int

const (
	Entry Role = iota
	Exit
)

func (r Role) String() string {
	switch r {
	case Entry:
		return "entry"
	case Exit:
		return "exit"
	default:
		return "undefined"
	}
}

// HasLift reports whether the board drives the lift motor.
func (r Role) HasLift() bool {
	return r == Entry
}

func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "entry", "entree":
		return Entry, true
	case "exit", "sortie":
		return Exit, true
	default:
		return Exit, false
	}
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	role, ok := ParseRole(string(text))
	if !ok {
		return &RoleError{Value: string(text)}
	}
	*r = role
	return nil
}

type RoleError struct {
	Value string
}

func (e *RoleError) Error() string {
	return "unknown board role \"" + e.Value + "\", expected entry or exit"
}
