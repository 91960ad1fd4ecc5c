package sim

import (
	"errors"
	"io"
	"net"

	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

var Log = logger.GetLogger()

// Rig wires a chip, a car and a clock together.
type Rig struct {
	Chip  *Chip
	Car   *Car
	Clock *Clock
}

func NewRig(position int) *Rig {
	return &Rig{
		Chip:  NewChip(),
		Car:   NewCar(position),
		Clock: NewClock(),
	}
}

// FaultAfterPulses raises flags on the chip once the step line has seen n
// pulses, simulating a supply dip mid-move.
func (r *Rig) FaultAfterPulses(n int, flags uint32) {
	fired := false
	r.Car.OnPulse(func(pulses int) {
		if !fired && pulses >= n {
			fired = true
			r.Chip.InjectStatus(flags)
		}
	})
}

// ServeChip answers datagrams from every connection accepted on listener
// until the listener is closed.
func ServeChip(listener net.Listener, chip *Chip) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveConn(conn, chip)
	}
}

func serveConn(conn net.Conn, chip *Chip) {
	defer conn.Close()
	buf := make([]byte, tmc5160.DatagramLen)
	for {
		if _, err := io.ReadFull(conn, buf); err != nil {
			if !errors.Is(err, io.EOF) {
				Log.Error().Msgf("Error reading datagram from %v: %v", conn.RemoteAddr(), err)
			}
			return
		}
		rx, err := chip.Transfer(buf)
		if err != nil {
			Log.Warn().Msgf("Simulated transfer failed: %v", err)
			continue
		}
		if _, err := conn.Write(rx); err != nil {
			Log.Error().Msgf("Error writing datagram to %v: %v", conn.RemoteAddr(), err)
			return
		}
	}
}
