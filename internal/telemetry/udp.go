package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/KarimSabra13/SysPark/internal/liftcmd"
)

// UDPPublisher sends each message as one liftcmd.Datagram.
type UDPPublisher struct {
	mtx  sync.Mutex
	conn *net.UDPConn
}

func DialUDPPublisher(address string) (*UDPPublisher, error) {
	udpAddress, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("error resolving UDP Address: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddress)
	if err != nil {
		return nil, fmt.Errorf("error creating UDP Socket: %w", err)
	}
	conn.SetWriteBuffer(BUFFER_LENGTH)

	return &UDPPublisher{conn: conn}, nil
}

func (u *UDPPublisher) Publish(topic string, payload []byte) error {
	jsonData, err := json.Marshal(liftcmd.Datagram{Topic: topic, Payload: string(payload)})
	if err != nil {
		return fmt.Errorf("error marshalling datagram: %w", err)
	}

	u.mtx.Lock()
	defer u.mtx.Unlock()
	if _, err := u.conn.Write(jsonData); err != nil {
		return fmt.Errorf("error writing to UDP Socket: %w", err)
	}
	Log.Debug().Msgf("Sent Packet: %v", string(jsonData))
	return nil
}

func (u *UDPPublisher) Close() error {
	return u.conn.Close()
}

// CommandListener receives liftcmd datagrams and forwards the decoded
// commands on Commands.
type CommandListener struct {
	Commands chan liftcmd.LiftCommand

	address string
	conn    *net.UDPConn
}

func NewCommandListener(address string) *CommandListener {
	return &CommandListener{
		Commands: make(chan liftcmd.LiftCommand, EVENT_CHANNEL_SIZE),
		address:  address,
	}
}

func (l *CommandListener) Start(ctx context.Context, waitGroup *sync.WaitGroup) error {
	if l.conn != nil {
		return errors.New("command listener already started")
	}

	udpAddress, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("error resolving UDP Address: %w", err)
	}

	l.conn, err = net.ListenUDP("udp", udpAddress)
	if err != nil {
		return fmt.Errorf("error creating UDP Socket: %w", err)
	}
	conn := l.conn

	waitGroup.Add(2)
	go func() {
		defer waitGroup.Done()
		listenBuffer := make([]byte, BUFFER_LENGTH)
		for {
			n, _, err := conn.ReadFromUDP(listenBuffer)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				Log.Error().Msgf("Error reading UDP message: %v", err)
				continue
			}

			cmd, err := liftcmd.Decode(listenBuffer[:n])
			if err != nil {
				Log.Warn().Msgf("Ignoring datagram: %v", err)
				continue
			}
			select {
			case l.Commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer waitGroup.Done()
		<-ctx.Done()
		Log.Info().Msgf("Stopping Listening task...")
		conn.Close()
	}()

	return nil
}

// Addr is the bound address, useful when listening on port 0.
func (l *CommandListener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}
