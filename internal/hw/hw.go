// Package hw opens the board peripherals through periph.io: the SPI port of
// the motor driver and the GPIO lines of the lift and hall buttons.
package hw

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/lift"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

var Log = logger.GetLogger()

var ErrUnknownPin = errors.New("unknown GPIO pin")

type Board struct {
	Hardware lift.Hardware
	Buttons  []hal.DigitalInput

	closers []io.Closer
}

// Open initialises the host drivers and claims every line named in cfg.
// When cfg.Bus.Address is set the driver is reached over TCP instead of SPI.
func Open(cfg liftconfig.Config) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("error initialising periph host: %w", err)
	}

	board := &Board{}
	if err := board.openBus(cfg.Bus); err != nil {
		return nil, err
	}

	var err error
	pins := cfg.Pins
	if board.Hardware.Enable, err = output(pins.Enable, pins.EnableActiveLow); err != nil {
		board.Close()
		return nil, err
	}
	if board.Hardware.Step, err = output(pins.Step, false); err != nil {
		board.Close()
		return nil, err
	}
	if board.Hardware.Dir, err = output(pins.Dir, false); err != nil {
		board.Close()
		return nil, err
	}
	if board.Hardware.Limit, err = input(pins.Limit, pins.LimitActiveLow); err != nil {
		board.Close()
		return nil, err
	}
	for _, name := range pins.Buttons {
		button, err := input(name, pins.ButtonsActiveLow)
		if err != nil {
			board.Close()
			return nil, err
		}
		board.Buttons = append(board.Buttons, button)
	}
	board.Hardware.Clock = hal.SystemClock{}

	Log.Info().Msgf("Board opened: step=%s dir=%s enable=%s limit=%s", pins.Step, pins.Dir, pins.Enable, pins.Limit)
	return board, nil
}

func (b *Board) openBus(cfg liftconfig.Bus) error {
	if cfg.Address != "" {
		transport, err := tmc5160.DialNetTransport(cfg.Address, cfg.Timeout, cfg.DialTimeout)
		if err != nil {
			return err
		}
		b.Hardware.Bus = transport
		b.closers = append(b.closers, transport)
		Log.Info().Msgf("Driver bus over TCP %s", cfg.Address)
		return nil
	}

	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return fmt.Errorf("error opening SPI port %q: %w", cfg.Port, err)
	}
	conn, err := port.Connect(physic.Frequency(cfg.SpeedHz)*physic.Hertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return fmt.Errorf("error configuring SPI port %q: %w", cfg.Port, err)
	}
	b.Hardware.Bus = NewSPIBus(conn, cfg.Timeout)
	b.closers = append(b.closers, port)
	Log.Info().Msgf("Driver bus on SPI %s", port)
	return nil
}

func (b *Board) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func output(name string, activeLow bool) (hal.DigitalOutput, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	var out hal.DigitalOutput = OutputPin{Pin: pin}
	if activeLow {
		out = hal.Inverted{Output: out}
	}
	return out, nil
}

func input(name string, activeLow bool) (hal.DigitalInput, error) {
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPin, name)
	}
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("error configuring input %q: %w", name, err)
	}
	var in hal.DigitalInput = InputPin{Pin: pin}
	if activeLow {
		in = hal.InvertedInput{Input: in}
	}
	return in, nil
}

type OutputPin struct {
	Pin gpio.PinOut
}

func (o OutputPin) Out(level bool) error {
	return o.Pin.Out(gpio.Level(level))
}

type InputPin struct {
	Pin gpio.PinIn
}

func (i InputPin) Read() bool {
	return bool(i.Pin.Read())
}
