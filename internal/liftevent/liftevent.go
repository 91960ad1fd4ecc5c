package liftevent

type LiftEvent struct {
	//Golang doesnt support union types,
	//so we have to pass any of the below
	//structs
	Value any
}

type FloorChangedEvent struct {
	Floor    int
	Previous int
}

func (fce FloorChangedEvent) Wrap() LiftEvent {
	return LiftEvent{Value: fce}
}

type TargetChangedEvent struct {
	Floor int //NoFloor when the move ended
}

type HomingEvent struct {
	Active bool
}

type PositionLostEvent struct {
	Lost bool
}

type DirectionEvent struct {
	GoingUp bool
}

func (e *LiftEvent) EventType() string {
	switch e.Value.(type) {
	case FloorChangedEvent:
		return "FloorChangedEvent"
	case TargetChangedEvent:
		return "TargetChangedEvent"
	case HomingEvent:
		return "HomingEvent"
	case PositionLostEvent:
		return "PositionLostEvent"
	case DirectionEvent:
		return "DirectionEvent"
	default:
		return "UnknownEvent"
	}
}
