// Package hal holds the hardware capabilities the lift core consumes.
package hal

import "time"

// Transferer performs one full-duplex bus transaction. The reply has the same
// length as tx.
type Transferer interface {
	Transfer(tx []byte) ([]byte, error)
}

type DigitalOutput interface {
	Out(level bool) error
}

type DigitalInput interface {
	Read() bool
}

// Clock is the monotonic time source used for step delays, dwell and health
// check pacing.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	time.Sleep(d)
}

// Inverted flips an active-low output so callers can think in logical levels.
type Inverted struct {
	Output DigitalOutput
}

func (i Inverted) Out(level bool) error {
	return i.Output.Out(!level)
}

type InvertedInput struct {
	Input DigitalInput
}

func (i InvertedInput) Read() bool {
	return !i.Input.Read()
}
