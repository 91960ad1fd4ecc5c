// Package tmc5160 frames register transactions for the TMC5160 stepper driver.
//
// Every datagram is five bytes: an address byte, with bit 7 set for writes,
// followed by 32 bits of data, most significant byte first. A read reply only
// arrives with the datagram that follows the read request.
package tmc5160

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

const (
	GCONF         uint8 = 0x00
	GSTAT         uint8 = 0x01
	GLOBAL_SCALER uint8 = 0x0B
	IHOLD_IRUN    uint8 = 0x10
	CHOPCONF      uint8 = 0x6C
)

// GSTAT flags. Writing a one clears the flag.
const (
	GSTAT_RESET   uint32 = 0x01
	GSTAT_DRV_ERR uint32 = 0x02
	GSTAT_UV_CP   uint32 = 0x04
)

const (
	DatagramLen = 5
	writeFlag   = 0x80
	addrMask    = 0x7F

	// TOFF=3, HSTRT=4, HEND=1, TBL=2 and interpolation to 256 microsteps.
	chopconfBase = 0x000100C3 | 1<<28
)

var (
	ErrTimeout       = errors.New("bus transaction timed out")
	ErrShortTransfer = errors.New("short bus transfer")
)

type Driver struct {
	bus hal.Transferer
}

func NewDriver(bus hal.Transferer) *Driver {
	return &Driver{bus: bus}
}

func (d *Driver) transfer(tx [DatagramLen]byte) ([DatagramLen]byte, error) {
	var out [DatagramLen]byte

	rx, err := d.bus.Transfer(tx[:])
	if err != nil {
		return out, err
	}
	if len(rx) < DatagramLen {
		return out, fmt.Errorf("%w: got %d of %d bytes", ErrShortTransfer, len(rx), DatagramLen)
	}
	copy(out[:], rx)
	return out, nil
}

func (d *Driver) Write(reg uint8, value uint32) error {
	var tx [DatagramLen]byte
	tx[0] = reg | writeFlag
	binary.BigEndian.PutUint32(tx[1:], value)

	if _, err := d.transfer(tx); err != nil {
		return fmt.Errorf("error writing register 0x%02X: %w", reg, err)
	}
	return nil
}

// Read returns the value of reg. The first datagram requests the register and
// the reply comes back with a second, dummy datagram.
func (d *Driver) Read(reg uint8) (uint32, error) {
	request := [DatagramLen]byte{reg & addrMask}
	if _, err := d.transfer(request); err != nil {
		return 0, fmt.Errorf("error requesting register 0x%02X: %w", reg, err)
	}

	reply, err := d.transfer([DatagramLen]byte{})
	if err != nil {
		return 0, fmt.Errorf("error reading register 0x%02X: %w", reg, err)
	}
	return binary.BigEndian.Uint32(reply[1:]), nil
}

// MicrostepResolution converts a microstep factor to the CHOPCONF MRES field
// (256 -> 0, 16 -> 4, 1 -> 8).
func MicrostepResolution(microsteps int) uint32 {
	if microsteps < 1 || microsteps > 256 {
		return 4
	}
	return uint32(8 - (bits.Len(uint(microsteps)) - 1))
}

func IHoldIRun(chip liftconfig.Chip) uint32 {
	return (chip.IHoldDelay&0x0F)<<16 | (chip.IRun&0x1F)<<8 | chip.IHold&0x1F
}

func Chopconf(microsteps int) uint32 {
	return chopconfBase | MicrostepResolution(microsteps)<<24
}

// InitMinimal clears the status flags and applies the current limits and the
// chopper configuration. It stops at the first failing write.
func (d *Driver) InitMinimal(chip liftconfig.Chip, microsteps int) error {
	writes := []struct {
		reg   uint8
		value uint32
	}{
		{GSTAT, GSTAT_RESET | GSTAT_DRV_ERR | GSTAT_UV_CP},
		{GCONF, 0},
		{IHOLD_IRUN, IHoldIRun(chip)},
		{GLOBAL_SCALER, chip.GlobalScaler},
		{CHOPCONF, Chopconf(microsteps)},
	}

	for _, w := range writes {
		if err := d.Write(w.reg, w.value); err != nil {
			return err
		}
	}

	Log.Info().Msgf("TMC5160 configured (irun=%d ihold=%d microsteps=%d)", chip.IRun, chip.IHold, microsteps)
	return nil
}
