// Package sim is a bench stand-in for the lift hardware: a TMC5160 register
// file, the car mechanism with its bottom limit switch, and a virtual clock.
package sim

import (
	"encoding/binary"
	"sync"

	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

// Chip emulates the SPI register interface of the motor driver.
type Chip struct {
	mtx       sync.Mutex
	regs      map[uint8]uint32
	gstat     uint32
	reply     uint32
	transfers int
	writes    map[uint8]int
	failNext  int
}

// NewChip returns a chip fresh out of power-on reset.
func NewChip() *Chip {
	return &Chip{
		regs:   map[uint8]uint32{},
		writes: map[uint8]int{},
		gstat:  tmc5160.GSTAT_RESET,
	}
}

func (c *Chip) Transfer(tx []byte) ([]byte, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	c.transfers++
	if len(tx) != tmc5160.DatagramLen {
		return make([]byte, len(tx)), tmc5160.ErrShortTransfer
	}
	if c.failNext > 0 {
		c.failNext--
		return nil, tmc5160.ErrTimeout
	}

	rx := make([]byte, tmc5160.DatagramLen)
	rx[0] = byte(c.gstat & (tmc5160.GSTAT_RESET | tmc5160.GSTAT_DRV_ERR))
	binary.BigEndian.PutUint32(rx[1:], c.reply)

	addr := tx[0] & 0x7F
	value := binary.BigEndian.Uint32(tx[1:])
	if tx[0]&0x80 != 0 {
		c.writes[addr]++
		if addr == tmc5160.GSTAT {
			c.gstat &^= value
		} else {
			c.regs[addr] = value
		}
		c.reply = value
	} else {
		c.reply = c.readLocked(addr)
	}
	return rx, nil
}

func (c *Chip) readLocked(addr uint8) uint32 {
	if addr == tmc5160.GSTAT {
		return c.gstat
	}
	return c.regs[addr]
}

// InjectStatus raises GSTAT flags, as a brown-out or driver reset would.
func (c *Chip) InjectStatus(flags uint32) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.gstat |= flags
}

// FailTransfers makes the next n transfers fail with a timeout.
func (c *Chip) FailTransfers(n int) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.failNext = n
}

func (c *Chip) Register(addr uint8) uint32 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.readLocked(addr)
}

func (c *Chip) Writes(addr uint8) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.writes[addr]
}

func (c *Chip) Transfers() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.transfers
}
