package hw

import (
	"fmt"
	"time"

	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

// Txer is the part of spi.Conn the bus needs.
type Txer interface {
	Tx(w, r []byte) error
}

// SPIBus bounds every transaction by timeout. A transaction that overruns
// keeps the port busy until it returns, and later calls wait for it within
// their own timeout.
type SPIBus struct {
	conn    Txer
	timeout time.Duration
	idle    chan struct{}
}

func NewSPIBus(conn Txer, timeout time.Duration) *SPIBus {
	idle := make(chan struct{}, 1)
	idle <- struct{}{}
	return &SPIBus{conn: conn, timeout: timeout, idle: idle}
}

func (b *SPIBus) Transfer(tx []byte) ([]byte, error) {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-b.idle:
	case <-timer.C:
		return nil, tmc5160.ErrTimeout
	}

	w := append([]byte(nil), tx...)
	r := make([]byte, len(w))
	done := make(chan error, 1)
	go func() {
		err := b.conn.Tx(w, r)
		b.idle <- struct{}{}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("spi transfer: %w", err)
		}
		return r, nil
	case <-timer.C:
		return nil, tmc5160.ErrTimeout
	}
}
