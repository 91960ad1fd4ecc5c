package homing

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/sim"
	"github.com/KarimSabra13/SysPark/internal/stepper"
)

type countingHealth struct {
	checks int
}

func (c *countingHealth) CheckHealth() bool {
	c.checks++
	return false
}

func testMechanics() liftconfig.Mechanics {
	m := liftconfig.DefaultMechanics()
	m.Microsteps = 1
	m.FullStepsPerFloor = 100
	m.AccelFullSteps = 20
	m.DecelFullSteps = 20
	m.ClearingSteps = 10
	return m
}

func newTestProcedure(position int, mech liftconfig.Mechanics) (*Procedure, *sim.Rig, *countingHealth) {
	_ = logger.GetLoggerConfigured(zerolog.Disabled)
	rig := sim.NewRig(position)
	rig.Car.EnablePin().Out(true)
	gen := stepper.NewGenerator(rig.Car.StepPin(), rig.Car.DirPin(), rig.Clock, mech.PulseWidth)
	health := &countingHealth{}
	return NewProcedure(gen, rig.Car.LimitSwitch(), health, rig.Clock, mech), rig, health
}

func TestHomingFromAbove(t *testing.T) {
	for _, start := range []int{1, 57, 150, 200} {
		proc, rig, health := newTestProcedure(start, testMechanics())

		if err := proc.Run(); err != nil {
			t.Fatalf("start %d: Run() returned %v", start, err)
		}
		if proc.State() != Done {
			t.Errorf("start %d: State() = %v, expected Done", start, proc.State())
		}
		if proc.SeekSteps() != start {
			t.Errorf("start %d: SeekSteps() = %d, expected %d", start, proc.SeekSteps(), start)
		}
		if health.checks != start {
			t.Errorf("start %d: %d health checks, expected one per seek step", start, health.checks)
		}
		if rig.Car.Position() != 10 {
			t.Errorf("start %d: car at %d after clearing, expected 10", start, rig.Car.Position())
		}
	}
}

func TestHomingAlreadyOnSwitch(t *testing.T) {
	proc, rig, health := newTestProcedure(0, testMechanics())

	if err := proc.Run(); err != nil {
		t.Fatalf("Run() returned %v", err)
	}
	if rig.Car.Pulses() != 0 {
		t.Errorf("Run() emitted %d pulses on the switch, expected 0", rig.Car.Pulses())
	}
	if health.checks != 0 || proc.State() != Done {
		t.Errorf("pre-check path ran %d checks and ended in %v", health.checks, proc.State())
	}
}

func TestHomingAccelerates(t *testing.T) {
	mech := testMechanics()
	proc, rig, _ := newTestProcedure(2000, mech)
	mech.HomingMaxSteps = 5000
	proc.mech = mech

	if err := proc.Run(); err != nil {
		t.Fatalf("Run() returned %v", err)
	}

	// 900 steps ramp 2ms down to 200us in 2us steps, the rest cruise at min.
	rampSteps := int((mech.MaxDelay - mech.MinDelay) / mech.HomingRampStep)
	var expected = mech.PulseWidth * 2000
	delay := mech.MaxDelay
	for i := 0; i < 2000; i++ {
		expected += delay
		if i < rampSteps {
			delay -= mech.HomingRampStep
		}
	}
	expected += (mech.PulseWidth + mech.ClearingDelay) * 10

	if rig.Clock.Slept() != expected {
		t.Errorf("homing took %v, expected %v", rig.Clock.Slept(), expected)
	}
}

func TestHomingGivesUp(t *testing.T) {
	mech := testMechanics()
	mech.HomingMaxSteps = 50
	proc, rig, _ := newTestProcedure(100, mech)

	if err := proc.Run(); !errors.Is(err, ErrLimitNotFound) {
		t.Errorf("Run() returned %v, expected ErrLimitNotFound", err)
	}
	if rig.Car.Pulses() != 50 {
		t.Errorf("Run() emitted %d pulses, expected the 50 step bound", rig.Car.Pulses())
	}
	if proc.State() == Done {
		t.Errorf("State() = Done after a failed homing")
	}
}
