// Package telemetry polls the lift controller, turns state changes into
// events and publishes the state message for the parking backend.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KarimSabra13/SysPark/internal/lift"
	"github.com/KarimSabra13/SysPark/internal/liftcmd"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/liftevent"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

const (
	EVENT_CHANNEL_SIZE = 10
	BUFFER_LENGTH      = 1024
)

type StatusSource interface {
	Status() lift.Status
}

type Publisher interface {
	Publish(topic string, payload []byte) error
}

// StateMessage is the payload published on liftcmd.TopicState.
type StateMessage struct {
	Current      int    `json:"current"`
	Target       int    `json:"target"`
	GoingUp      bool   `json:"going_up"`
	Homing       bool   `json:"homing"`
	PositionLost bool   `json:"position_lost"`
	Terminal     string `json:"terminal,omitempty"`
}

func NewStateMessage(status lift.Status, terminal string) StateMessage {
	return StateMessage{
		Current:      status.CurrentFloor,
		Target:       status.TargetFloor,
		GoingUp:      status.GoingUp,
		Homing:       status.Homing,
		PositionLost: status.PositionLost,
		Terminal:     terminal,
	}
}

// LogPublisher writes every message to the log instead of the network.
type LogPublisher struct{}

func (LogPublisher) Publish(topic string, payload []byte) error {
	Log.Info().Msgf("%s %s", topic, payload)
	return nil
}

// Poller samples the controller status at a fixed period. The state message
// goes out whenever the current floor changes to a known floor, and on
// demand through RequestState.
type Poller struct {
	Events chan liftevent.LiftEvent

	source     StatusSource
	publisher  Publisher
	interval   time.Duration
	identifier string
	queries    chan struct{}
	last       lift.Status
	running    atomic.Bool
}

func NewPoller(source StatusSource, publisher Publisher, interval time.Duration, identifier string) *Poller {
	return &Poller{
		Events:     make(chan liftevent.LiftEvent, EVENT_CHANNEL_SIZE),
		source:     source,
		publisher:  publisher,
		interval:   interval,
		identifier: identifier,
		queries:    make(chan struct{}, 1),
		last: lift.Status{
			CurrentFloor: liftconsts.NoFloor,
			TargetFloor:  liftconsts.NoFloor,
			GoingUp:      true,
		},
	}
}

// RequestState asks for one immediate publication. Never blocks.
func (p *Poller) RequestState() {
	select {
	case p.queries <- struct{}{}:
	default:
	}
}

func (p *Poller) Start(ctx context.Context, waitGroup *sync.WaitGroup) error {
	if p.source == nil || p.publisher == nil {
		return errors.New("telemetry poller needs a status source and a publisher")
	}
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("telemetry poller already running")
	}

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		defer p.running.Store(false)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				Log.Warn().Msgf("Telemetry poller Go routine has been signaled to stop")
				return
			case <-ticker.C:
				p.Poll()
			case <-p.queries:
				if err := p.Publish(p.source.Status()); err != nil {
					Log.Error().Msgf("Error publishing lift state: %v", err)
				}
			}
		}
	}()
	return nil
}

// Poll compares the controller status with the previous sample. Only the
// polling goroutine may call it.
func (p *Poller) Poll() {
	status := p.source.Status()
	last := p.last
	p.last = status

	if status.CurrentFloor != last.CurrentFloor {
		p.emit(liftevent.FloorChangedEvent{Floor: status.CurrentFloor, Previous: last.CurrentFloor}.Wrap())
		if status.CurrentFloor != liftconsts.NoFloor {
			if err := p.Publish(status); err != nil {
				Log.Error().Msgf("Error publishing lift state: %v", err)
			}
		}
	}
	if status.TargetFloor != last.TargetFloor {
		p.emit(liftevent.LiftEvent{Value: liftevent.TargetChangedEvent{Floor: status.TargetFloor}})
	}
	if status.GoingUp != last.GoingUp {
		p.emit(liftevent.LiftEvent{Value: liftevent.DirectionEvent{GoingUp: status.GoingUp}})
	}
	if status.Homing != last.Homing {
		p.emit(liftevent.LiftEvent{Value: liftevent.HomingEvent{Active: status.Homing}})
	}
	if status.PositionLost != last.PositionLost {
		p.emit(liftevent.LiftEvent{Value: liftevent.PositionLostEvent{Lost: status.PositionLost}})
	}
}

func (p *Poller) Publish(status lift.Status) error {
	jsonData, err := json.Marshal(NewStateMessage(status, p.identifier))
	if err != nil {
		return fmt.Errorf("error marshalling state message: %w", err)
	}
	return p.publisher.Publish(liftcmd.TopicState, jsonData)
}

func (p *Poller) emit(event liftevent.LiftEvent) {
	select {
	case p.Events <- event:
	default:
		Log.Warn().Msgf("Event channel full, dropping %s", event.EventType())
	}
}
