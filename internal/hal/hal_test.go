package hal

import (
	"testing"
	"time"
)

type recordingOutput struct {
	levels []bool
}

func (r *recordingOutput) Out(level bool) error {
	r.levels = append(r.levels, level)
	return nil
}

type fixedInput bool

func (f fixedInput) Read() bool {
	return bool(f)
}

func TestInverted(t *testing.T) {
	out := &recordingOutput{}
	inv := Inverted{Output: out}
	inv.Out(true)
	inv.Out(false)

	if len(out.levels) != 2 || out.levels[0] != false || out.levels[1] != true {
		t.Errorf("Inverted wrote %v, expected [false true]", out.levels)
	}

	if (InvertedInput{Input: fixedInput(true)}).Read() {
		t.Errorf("InvertedInput.Read() = true, expected false")
	}
}

func TestSystemClockSleep(t *testing.T) {
	clock := SystemClock{}
	start := clock.Now()
	clock.Sleep(5 * time.Millisecond)
	clock.Sleep(-time.Second)

	if elapsed := clock.Now().Sub(start); elapsed < 5*time.Millisecond {
		t.Errorf("Sleep(5ms) returned after %v", elapsed)
	}
}
