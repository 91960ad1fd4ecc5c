package tmc5160

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

var ErrDisconnected = errors.New("register bridge connection closed")

// NetTransport carries datagrams over a stream connection to a register
// bridge or a bench simulator. Every datagram sent gets exactly one datagram
// back. A failed transaction leaves the stream out of step, so the
// connection is dropped and the next Transfer dials again.
type NetTransport struct {
	mtx     sync.Mutex
	conn    net.Conn
	dial    func() (net.Conn, error)
	timeout time.Duration
}

// DialNetTransport connects to addr. timeout bounds each transaction and
// dialTimeout each connection attempt.
func DialNetTransport(addr string, timeout, dialTimeout time.Duration) (*NetTransport, error) {
	dial := func() (net.Conn, error) {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to register bridge %s: %w", addr, err)
		}
		return conn, nil
	}

	conn, err := dial()
	if err != nil {
		return nil, err
	}
	t := NewNetTransport(conn, timeout)
	t.dial = dial
	return t, nil
}

// NewNetTransport wraps an established connection. Without a dialer the
// transport stays closed after its first failure.
func NewNetTransport(conn net.Conn, timeout time.Duration) *NetTransport {
	return &NetTransport{
		conn:    conn,
		timeout: timeout,
	}
}

func (t *NetTransport) Transfer(tx []byte) ([]byte, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.conn == nil {
		if t.dial == nil {
			return nil, ErrDisconnected
		}
		conn, err := t.dial()
		if err != nil {
			return nil, err
		}
		Log.Info().Msgf("Reconnected to register bridge %v", conn.RemoteAddr())
		t.conn = conn
	}

	rx, err := t.exchange(tx)
	if err != nil {
		Log.Warn().Msgf("Dropping register bridge connection: %v", err)
		t.conn.Close()
		t.conn = nil
		return nil, err
	}
	return rx, nil
}

func (t *NetTransport) exchange(tx []byte) ([]byte, error) {
	if err := t.conn.SetDeadline(time.Now().Add(t.timeout)); err != nil {
		return nil, err
	}

	if _, err := t.conn.Write(tx); err != nil {
		return nil, mapNetError(err)
	}

	rx := make([]byte, len(tx))
	if _, err := io.ReadFull(t.conn, rx); err != nil {
		return nil, mapNetError(err)
	}
	return rx, nil
}

func (t *NetTransport) Close() error {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	t.dial = nil
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

func mapNetError(err error) error {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrShortTransfer, err)
	}
	return err
}
