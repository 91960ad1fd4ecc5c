package liftcmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topics shared with the parking backend.
const (
	TopicCommand = "parking/ascenseur/cmd"
	TopicQuery   = "parking/ascenseur/get"
	TopicState   = "parking/ascenseur/state"
)

var floorPayloads = map[string]int{
	"RDC":    0,
	"ETAGE1": 1,
	"ETAGE2": 2,
}

var (
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrUnknownPayload = errors.New("unknown lift command payload")
)

type LiftCommand struct {
	//Golang doesnt support union types,
	//so we have to pass any of the below
	//structs
	Value any
}

// Call the cabin to a floor.
type RequestFloorCommand struct {
	Floor int
}

// Ask for an immediate state publication.
type StateQueryCommand struct {
}

func (c *LiftCommand) CommandType() string {
	switch c.Value.(type) {
	case RequestFloorCommand:
		return "RequestFloorCommand"
	case StateQueryCommand:
		return "StateQueryCommand"
	default:
		return "UnknownCommand"
	}
}

// Parse maps a topic and payload from the backend to a command.
func Parse(topic, payload string) (LiftCommand, error) {
	switch {
	case strings.HasPrefix(topic, TopicCommand):
		floor, ok := floorPayloads[strings.ToUpper(strings.TrimSpace(payload))]
		if !ok {
			return LiftCommand{}, fmt.Errorf("%w: %q", ErrUnknownPayload, payload)
		}
		return LiftCommand{Value: RequestFloorCommand{Floor: floor}}, nil
	case strings.HasPrefix(topic, TopicQuery):
		return LiftCommand{Value: StateQueryCommand{}}, nil
	default:
		return LiftCommand{}, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}

// Datagram is the JSON envelope used on the UDP command and state links.
type Datagram struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

func Decode(data []byte) (LiftCommand, error) {
	var dgram Datagram
	if err := json.Unmarshal(data, &dgram); err != nil {
		return LiftCommand{}, fmt.Errorf("error deserialising command: %w", err)
	}
	return Parse(dgram.Topic, dgram.Payload)
}
