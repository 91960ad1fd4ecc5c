// Package buttons turns the hall call buttons into floor requests.
package buttons

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

type FloorRequester interface {
	RequestFloor(floor int)
}

// Poller reads one input per floor, index = floor, and requests the floor on
// each rising edge.
type Poller struct {
	inputs   []hal.DigitalInput
	target   FloorRequester
	interval time.Duration
	prev     []bool
	running  atomic.Bool
}

func NewPoller(inputs []hal.DigitalInput, target FloorRequester, interval time.Duration) *Poller {
	return &Poller{
		inputs:   inputs,
		target:   target,
		interval: interval,
		prev:     make([]bool, len(inputs)),
	}
}

// Poll samples every button once. Only the polling goroutine may call it.
func (p *Poller) Poll() {
	for floor, input := range p.inputs {
		v := input.Read()
		if v != p.prev[floor] && v {
			Log.Debug().Msgf("Button for floor %d pressed", floor)
			p.target.RequestFloor(floor)
		}
		p.prev[floor] = v
	}
}

func (p *Poller) Start(ctx context.Context, waitGroup *sync.WaitGroup) error {
	if p.target == nil {
		return errors.New("button poller has no target")
	}
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("button poller already running")
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
				Log.Warn().Msgf("Button poller Go routine has been signaled to stop")
				return
			case <-ticker.C:
				p.Poll()
			}
		}
	}()
	return nil
}
