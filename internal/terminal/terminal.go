// Package terminal assembles the subsystems of one access terminal board and
// owns their lifecycle.
package terminal

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/xyproto/randomstring"

	"github.com/KarimSabra13/SysPark/internal/buttons"
	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/lift"
	"github.com/KarimSabra13/SysPark/internal/liftcmd"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftevent"
	"github.com/KarimSabra13/SysPark/internal/liftmetadata"
	"github.com/KarimSabra13/SysPark/internal/liftutils"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/telemetry"
)

var Logger = logger.GetLogger()

const (
	IDENTIFIER_DEFAULT_LEN = 10
)

// Peripherals are the board capabilities handed to the terminal.
type Peripherals struct {
	Hardware lift.Hardware
	Buttons  []hal.DigitalInput
}

type Terminal struct {
	MetaData *liftmetadata.TerminalMetaData

	// Nil when the role has no lift or the lift hardware is not ready.
	Lift      *lift.Controller
	Buttons   *buttons.Poller
	Telemetry *telemetry.Poller
	// Nil when no command address is configured.
	Listener  *telemetry.CommandListener

	publisher telemetry.Publisher
	closers   []io.Closer
	running   bool

	//used for graceful shutdown
	waitGroupArray []*sync.WaitGroup
	cancelArray    []context.CancelFunc
}

func New(cfg liftconfig.Config, peripherals Peripherals) (*Terminal, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	identifier := cfg.Identifier
	if identifier == "" {
		identifier = randomstring.EnglishFrequencyString(IDENTIFIER_DEFAULT_LEN)
		Logger.Warn().Msgf("No terminal identifier provided, generated random identifier \"%v\"", identifier)
	}

	t := &Terminal{
		MetaData: &liftmetadata.TerminalMetaData{
			SoftwareVersion: liftutils.GetGitHash(),
			Identifier:      identifier,
			Role:            cfg.Role,
		},
		publisher: telemetry.LogPublisher{},
	}

	if cfg.Telemetry.Address != "" {
		udp, err := telemetry.DialUDPPublisher(cfg.Telemetry.Address)
		if err != nil {
			Logger.Error().Msgf("Telemetry publisher unavailable, logging state instead: %v", err)
		} else {
			t.publisher = udp
			t.closers = append(t.closers, udp)
		}
	}

	if cfg.Role.HasLift() {
		controller, err := lift.New(cfg, peripherals.Hardware)
		if err != nil {
			Logger.Error().Msgf("Lift disabled: %v", err)
		} else {
			t.Lift = controller
			t.MetaData.LiftEnabled = true
			t.Telemetry = telemetry.NewPoller(controller, t.publisher, cfg.Telemetry.PollInterval, identifier)
			if len(peripherals.Buttons) > 0 {
				t.Buttons = buttons.NewPoller(peripherals.Buttons, controller, cfg.Telemetry.ButtonPoll)
			}
		}
	} else {
		Logger.Info().Msgf("Role %v has no lift", cfg.Role)
	}

	if cfg.Telemetry.CommandAddress != "" {
		t.Listener = telemetry.NewCommandListener(cfg.Telemetry.CommandAddress)
	}

	return t, nil
}

type starter interface {
	Start(ctx context.Context, waitGroup *sync.WaitGroup) error
}

type subsystem struct {
	name string
	starter
}

// Start launches every subsystem. One that fails to start is logged and
// skipped, the others keep running.
func (t *Terminal) Start() error {
	if t.running {
		return errors.New("terminal already running")
	}

	//Launch Threads One By One
	var subsystems []subsystem
	if t.Lift != nil {
		subsystems = append(subsystems, subsystem{"lift", t.Lift})
	}
	if t.Telemetry != nil {
		subsystems = append(subsystems, subsystem{"telemetry", t.Telemetry})
	}
	if t.Buttons != nil {
		subsystems = append(subsystems, subsystem{"buttons", t.Buttons})
	}
	if t.Listener != nil {
		subsystems = append(subsystems, subsystem{"command listener", t.Listener})
	}
	subsystems = append(subsystems, subsystem{"dispatch", startFunc(t.dispatch)})

	for _, sub := range subsystems {
		ctx, cancel := context.WithCancel(context.Background())
		wg := &sync.WaitGroup{}
		if err := sub.Start(ctx, wg); err != nil {
			cancel()
			Logger.Error().Msgf("%s not started: %v", sub.name, err)
			continue
		}
		t.waitGroupArray = append(t.waitGroupArray, wg)
		t.cancelArray = append(t.cancelArray, cancel)
	}

	t.running = true
	Logger.Info().Msgf("Terminal started: %v", t.MetaData.String())
	return nil
}

func (t *Terminal) Stop() {
	if !t.running {
		Logger.Error().Msg("Terminal not running, so cannot stop terminal")
		return
	}

	Logger.Debug().Msg("Stopping Terminal")

	//Gracefully shutdown all threads one by one
	for i := len(t.cancelArray) - 1; i >= 0; i-- {
		t.cancelArray[i]()
		t.waitGroupArray[i].Wait()
	}
	t.cancelArray = nil
	t.waitGroupArray = nil

	for _, closer := range t.closers {
		if err := closer.Close(); err != nil {
			Logger.Warn().Msgf("Error closing: %v", err)
		}
	}
	t.closers = nil

	Logger.Debug().Msg("Stopped Terminal")
	t.running = false
}

// HandleCommand applies one remote command. Safe from any goroutine.
func (t *Terminal) HandleCommand(cmd liftcmd.LiftCommand) {
	switch c := cmd.Value.(type) {
	case liftcmd.RequestFloorCommand:
		if t.Lift == nil {
			Logger.Warn().Msgf("No lift on this terminal, ignoring request for floor %d", c.Floor)
			return
		}
		t.Lift.RequestFloor(c.Floor)
	case liftcmd.StateQueryCommand:
		if t.Telemetry == nil {
			Logger.Warn().Msg("No lift on this terminal, ignoring state query")
			return
		}
		t.Telemetry.RequestState()
	default:
		Logger.Warn().Msgf("Ignoring %s", cmd.CommandType())
	}
}

type startFunc func(ctx context.Context, waitGroup *sync.WaitGroup) error

func (f startFunc) Start(ctx context.Context, waitGroup *sync.WaitGroup) error {
	return f(ctx, waitGroup)
}

func (t *Terminal) dispatch(ctx context.Context, waitGroup *sync.WaitGroup) error {
	var commands chan liftcmd.LiftCommand
	if t.Listener != nil {
		commands = t.Listener.Commands
	}
	var events chan liftevent.LiftEvent
	if t.Telemetry != nil {
		events = t.Telemetry.Events
	}

	waitGroup.Add(1)
	go func() {
		defer waitGroup.Done()
		for {
			select {
			case <-ctx.Done():
				Logger.Warn().Msgf("Terminal dispatch Go routine has been signaled to stop")
				return
			case cmd := <-commands:
				Logger.Debug().Msgf("Received %s", cmd.CommandType())
				t.HandleCommand(cmd)
			case event := <-events:
				logEvent(event)
			}
		}
	}()
	return nil
}

func logEvent(event liftevent.LiftEvent) {
	switch e := event.Value.(type) {
	case liftevent.FloorChangedEvent:
		Logger.Info().Msgf("Lift at floor %d (was %d)", e.Floor, e.Previous)
	case liftevent.PositionLostEvent:
		if e.Lost {
			Logger.Warn().Msg("Lift position lost")
		}
	case liftevent.HomingEvent:
		Logger.Info().Msgf("Homing active: %v", e.Active)
	default:
		Logger.Debug().Msgf("%s %+v", event.EventType(), event.Value)
	}
}
