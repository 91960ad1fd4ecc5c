package lift

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/sim"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

const STEPS_PER_FLOOR = 100

func testConfig() liftconfig.Config {
	cfg := liftconfig.Default()
	cfg.Mechanics.Microsteps = 1
	cfg.Mechanics.FullStepsPerFloor = STEPS_PER_FLOOR
	cfg.Mechanics.AccelFullSteps = 20
	cfg.Mechanics.DecelFullSteps = 20
	cfg.Mechanics.ClearingSteps = 10
	return cfg
}

func hardware(rig *sim.Rig) Hardware {
	return Hardware{
		Bus:    rig.Chip,
		Enable: rig.Car.EnablePin(),
		Step:   rig.Car.StepPin(),
		Dir:    rig.Car.DirPin(),
		Limit:  rig.Car.LimitSwitch(),
		Clock:  rig.Clock,
	}
}

func newTestController(t *testing.T, cfg liftconfig.Config, position int) (*Controller, *sim.Rig) {
	t.Helper()
	_ = logger.GetLoggerConfigured(zerolog.Disabled)

	rig := sim.NewRig(position)
	c, err := New(cfg, hardware(rig))
	if err != nil {
		t.Fatalf("New() returned %v", err)
	}
	return c, rig
}

// newHomedController returns a controller that has completed its startup homing.
func newHomedController(t *testing.T, cfg liftconfig.Config) (*Controller, *sim.Rig) {
	t.Helper()
	c, rig := newTestController(t, cfg, 0)
	c.Tick()
	if c.IsPositionLost() || c.CurrentFloor() != 0 {
		t.Fatalf("startup homing left floor=%d lost=%v", c.CurrentFloor(), c.IsPositionLost())
	}
	return c, rig
}

func TestNewRejectsMissingHardware(t *testing.T) {
	_ = logger.GetLoggerConfigured(zerolog.Disabled)
	rig := sim.NewRig(0)

	hw := hardware(rig)
	hw.Limit = nil
	if _, err := New(testConfig(), hw); !errors.Is(err, ErrHardwareNotReady) {
		t.Errorf("New() without a limit switch returned %v, expected ErrHardwareNotReady", err)
	}

	hw = hardware(rig)
	hw.Bus = nil
	if _, err := New(testConfig(), hw); !errors.Is(err, ErrHardwareNotReady) {
		t.Errorf("New() without a bus returned %v, expected ErrHardwareNotReady", err)
	}

	rig.Chip.FailTransfers(1)
	if _, err := New(testConfig(), hardware(rig)); !errors.Is(err, ErrHardwareNotReady) {
		t.Errorf("New() with a dead bus returned %v, expected ErrHardwareNotReady", err)
	}

	cfg := testConfig()
	cfg.Mechanics.Microsteps = 3
	if _, err := New(cfg, hardware(sim.NewRig(0))); err == nil {
		t.Errorf("New() with invalid mechanics returned nil")
	}
}

func TestNewConfiguresDriver(t *testing.T) {
	c, rig := newTestController(t, testConfig(), 150)

	if !rig.Car.Enabled() {
		t.Errorf("motor not enabled after New()")
	}
	if rig.Chip.Register(tmc5160.GSTAT) != 0 {
		t.Errorf("GSTAT = 0x%X after New(), expected the power-on flag cleared", rig.Chip.Register(tmc5160.GSTAT))
	}
	if rig.Chip.Register(tmc5160.CHOPCONF) != tmc5160.Chopconf(1) {
		t.Errorf("CHOPCONF = 0x%X, expected 0x%X", rig.Chip.Register(tmc5160.CHOPCONF), tmc5160.Chopconf(1))
	}
	if !c.IsPositionLost() || c.CurrentFloor() != liftconsts.NoFloor || c.TargetFloor() != liftconsts.NoFloor {
		t.Errorf("new controller status %+v, expected unknown position", c.Status())
	}
}

func TestStartupHoming(t *testing.T) {
	c, rig := newTestController(t, testConfig(), 150)

	c.RequestFloor(2)
	c.Tick()

	if c.CurrentFloor() != 0 || c.IsPositionLost() || c.IsHoming() {
		t.Errorf("after homing status = %+v, expected floor 0 with known position", c.Status())
	}
	if !c.Requests.Empty() {
		t.Errorf("requests survived homing: %v", c.Requests.Snapshot())
	}
	if rig.Car.Position() != 10 {
		t.Errorf("car at %d after homing, expected 10 steps above the switch", rig.Car.Position())
	}
}

func TestHomingDeterminism(t *testing.T) {
	for _, start := range []int{0, 5, 100, 199, 250} {
		for _, tracked := range []int{liftconsts.NoFloor, 0, 1, 2} {
			c, rig := newTestController(t, testConfig(), start)
			c.currentFloor.Store(int32(tracked))
			c.Requests.Add(1, liftconsts.Up)
			c.Requests.Add(0, liftconsts.Down)

			c.Tick()

			if c.CurrentFloor() != 0 || c.IsPositionLost() || !c.Requests.Empty() {
				t.Errorf("start %d tracked %d: status %+v, expected floor 0, known, no requests", start, tracked, c.Status())
			}
			if rig.Car.LimitActive() && start != 0 {
				t.Errorf("start %d: car left on the switch", start)
			}
		}
	}
}

func TestGroundToTop(t *testing.T) {
	c, rig := newHomedController(t, testConfig())
	pulses := rig.Car.Pulses()
	position := rig.Car.Position()
	slept := rig.Clock.Slept()

	c.RequestFloor(2)
	if !c.Requests.Up(2) || !c.IsGoingUp() {
		t.Fatalf("RequestFloor(2) did not set an up request: %+v", c.Status())
	}

	c.Tick()

	if c.CurrentFloor() != 2 {
		t.Errorf("CurrentFloor() = %d, expected 2", c.CurrentFloor())
	}
	if c.Requests.Up(2) || !c.Requests.Empty() {
		t.Errorf("requests after arrival = %v, expected none", c.Requests.Snapshot())
	}
	if got := rig.Car.Pulses() - pulses; got != 2*STEPS_PER_FLOOR {
		t.Errorf("move emitted %d pulses, expected %d", got, 2*STEPS_PER_FLOOR)
	}
	if rig.Car.Position() != position+2*STEPS_PER_FLOOR {
		t.Errorf("car at %d, expected %d", rig.Car.Position(), position+2*STEPS_PER_FLOOR)
	}
	if c.TargetFloor() != liftconsts.NoFloor {
		t.Errorf("TargetFloor() = %d after arrival, expected none", c.TargetFloor())
	}
	if elapsed := rig.Clock.Slept() - slept; elapsed < testConfig().Mechanics.Dwell {
		t.Errorf("trip took %v, expected at least the dwell time", elapsed)
	}
}

func TestLimitSwitchInterlock(t *testing.T) {
	c, rig := newHomedController(t, testConfig())
	c.currentFloor.Store(1)
	rig.Car.SetPosition(0)
	pulses := rig.Car.Pulses()

	c.RequestFloor(0)
	if !c.Requests.Down(0) || c.IsGoingUp() {
		t.Fatalf("RequestFloor(0) from floor 1 did not set a down request: %+v", c.Status())
	}

	c.Tick()

	if c.CurrentFloor() != 0 {
		t.Errorf("CurrentFloor() = %d, expected 0", c.CurrentFloor())
	}
	if c.Requests.Has(0) {
		t.Errorf("floor 0 request not cleared")
	}
	if rig.Car.Pulses() != pulses {
		t.Errorf("interlock emitted %d pulses, expected none", rig.Car.Pulses()-pulses)
	}
}

func TestLimitStopMidDescent(t *testing.T) {
	c, rig := newHomedController(t, testConfig())
	c.currentFloor.Store(2)
	rig.Car.SetPosition(60)
	pulses := rig.Car.Pulses()

	c.RequestFloor(0)
	c.Tick()

	if c.CurrentFloor() != 0 || c.IsPositionLost() {
		t.Errorf("status %+v, expected floor 0 with known position", c.Status())
	}
	if got := rig.Car.Pulses() - pulses; got != 60 {
		t.Errorf("descent emitted %d pulses, expected to stop on the switch after 60", got)
	}
	if !c.Requests.Empty() {
		t.Errorf("requests = %v, expected none", c.Requests.Snapshot())
	}
}

func TestFaultMidMove(t *testing.T) {
	cfg := testConfig()
	cfg.Mechanics.HealthInterval = time.Millisecond
	c, rig := newHomedController(t, cfg)

	rig.FaultAfterPulses(rig.Car.Pulses()+150, tmc5160.GSTAT_UV_CP)
	c.RequestFloor(2)
	c.Tick()

	if !c.IsPositionLost() {
		t.Fatalf("IsPositionLost() = false after a supply fault mid-move")
	}
	if c.CurrentFloor() != 1 {
		t.Errorf("CurrentFloor() = %d, expected the last floor passed (1)", c.CurrentFloor())
	}
	if c.TargetFloor() != liftconsts.NoFloor {
		t.Errorf("TargetFloor() = %d after abort, expected none", c.TargetFloor())
	}

	pulses := rig.Car.Pulses()
	c.MoveToTarget(2)
	if rig.Car.Pulses() != pulses {
		t.Errorf("MoveToTarget() moved with a lost position")
	}

	c.Tick()
	if c.IsPositionLost() || c.CurrentFloor() != 0 || !c.Requests.Empty() {
		t.Errorf("recovery homing left %+v, expected floor 0 with known position", c.Status())
	}
}

func TestFaultBeforeMove(t *testing.T) {
	c, rig := newHomedController(t, testConfig())
	c.Requests.Add(2, liftconsts.Up)
	rig.Chip.InjectStatus(tmc5160.GSTAT_RESET)
	pulses := rig.Car.Pulses()

	c.MoveToTarget(2)

	if !c.IsPositionLost() || c.CurrentFloor() != 0 {
		t.Errorf("status %+v, expected lost position at floor 0", c.Status())
	}
	if rig.Car.Pulses() != pulses {
		t.Errorf("MoveToTarget() stepped after a fault")
	}
}

func TestIdleFault(t *testing.T) {
	c, rig := newHomedController(t, testConfig())
	rig.Chip.FailTransfers(1)

	c.Tick()

	if !c.IsPositionLost() {
		t.Errorf("IsPositionLost() = false after a bus error while idle")
	}
}

func TestIntermediateStop(t *testing.T) {
	cfg := testConfig()
	c, rig := newHomedController(t, cfg)

	base := rig.Car.Pulses()
	rig.Car.OnPulse(func(pulses int) {
		if pulses == base+10 {
			c.RequestFloor(1)
		}
	})

	slept := rig.Clock.Slept()
	c.RequestFloor(2)
	c.Tick()

	if c.CurrentFloor() != 2 || !c.Requests.Empty() {
		t.Errorf("status %+v, expected floor 2 with no requests", c.Status())
	}
	elapsed := rig.Clock.Slept() - slept
	if elapsed < 2*cfg.Mechanics.Dwell || elapsed >= 3*cfg.Mechanics.Dwell {
		t.Errorf("trip took %v, expected two dwells of %v", elapsed, cfg.Mechanics.Dwell)
	}
}

func TestIntermediateStopDescending(t *testing.T) {
	cfg := testConfig()
	c, rig := newHomedController(t, cfg)

	c.RequestFloor(2)
	c.Tick()
	if c.CurrentFloor() != 2 {
		t.Fatalf("CurrentFloor() = %d, expected 2 before descending", c.CurrentFloor())
	}

	base := rig.Car.Pulses()
	slept := rig.Clock.Slept()
	var sleptPastFloor1 time.Duration
	rig.Car.OnPulse(func(pulses int) {
		switch pulses {
		case base + 30:
			c.RequestFloor(1)
		case base + STEPS_PER_FLOOR + 50:
			sleptPastFloor1 = rig.Clock.Slept() - slept
		}
	})

	c.RequestFloor(0)
	c.Tick()

	if c.CurrentFloor() != 0 || !c.Requests.Empty() {
		t.Errorf("status %+v, expected floor 0 with no requests", c.Status())
	}
	if pulses := rig.Car.Pulses() - base; pulses != 2*STEPS_PER_FLOOR {
		t.Errorf("descent took %d pulses, expected %d", pulses, 2*STEPS_PER_FLOOR)
	}
	if sleptPastFloor1 < cfg.Mechanics.Dwell || sleptPastFloor1 >= 2*cfg.Mechanics.Dwell {
		t.Errorf("time spent until past floor 1 = %v, expected one dwell of %v", sleptPastFloor1, cfg.Mechanics.Dwell)
	}
	elapsed := rig.Clock.Slept() - slept
	if elapsed < 2*cfg.Mechanics.Dwell || elapsed >= 3*cfg.Mechanics.Dwell {
		t.Errorf("trip took %v, expected two dwells of %v", elapsed, cfg.Mechanics.Dwell)
	}
}

func TestServedTickChecksDriverOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Mechanics.HealthInterval = time.Hour
	c, rig := newHomedController(t, cfg)

	c.RequestFloor(1)
	transfers := rig.Chip.Transfers()
	c.Tick()

	if c.CurrentFloor() != 1 {
		t.Fatalf("CurrentFloor() = %d, expected 1", c.CurrentFloor())
	}
	//one GSTAT read is two datagrams
	if got := rig.Chip.Transfers() - transfers; got != 2 {
		t.Errorf("served tick sent %d datagrams, expected a single status read", got)
	}

	transfers = rig.Chip.Transfers()
	c.Tick()
	if got := rig.Chip.Transfers() - transfers; got != 2 {
		t.Errorf("idle tick sent %d datagrams, expected a single status read", got)
	}
}

func TestArrivalClearsOnlyThatFloor(t *testing.T) {
	c, _ := newHomedController(t, testConfig())
	c.Requests.Add(0, liftconsts.Down)
	c.Requests.Add(1, liftconsts.Up)
	c.Requests.Add(1, liftconsts.Down)

	c.MoveToTarget(1)

	if c.Requests.Has(1) {
		t.Errorf("floor 1 still requested after arrival")
	}
	if !c.Requests.Down(0) {
		t.Errorf("arrival at floor 1 cleared floor 0")
	}
}

func TestDirectionalScheduling(t *testing.T) {
	c, rig := newHomedController(t, testConfig())

	c.RequestFloor(2)
	c.RequestFloor(1)

	var visited []int
	for i := 0; i < 2; i++ {
		c.Tick()
		visited = append(visited, c.CurrentFloor())
	}
	if visited[0] != 1 || visited[1] != 2 {
		t.Errorf("visited %v, expected ascending [1 2]", visited)
	}

	// At the top with demand only below: the first tick reverses in place.
	c.goingUp.Store(true)
	c.Requests.Add(0, liftconsts.Down)
	pulses := rig.Car.Pulses()

	c.Tick()
	if c.IsGoingUp() || rig.Car.Pulses() != pulses || c.CurrentFloor() != 2 {
		t.Errorf("reversal tick moved the car or kept direction: %+v", c.Status())
	}

	c.Tick()
	if c.CurrentFloor() != 0 {
		t.Errorf("CurrentFloor() = %d, expected 0 after reversing", c.CurrentFloor())
	}
}

func TestServesSameDirectionFirst(t *testing.T) {
	c, _ := newHomedController(t, testConfig())
	c.RequestFloor(1)
	c.Tick()

	c.RequestFloor(0)
	c.RequestFloor(2)
	if !c.IsGoingUp() {
		t.Fatalf("last request was above, expected going up")
	}

	c.Tick()
	if c.CurrentFloor() != 2 {
		t.Errorf("CurrentFloor() = %d, expected floor 2 served before reversing", c.CurrentFloor())
	}
	if !c.Requests.Down(0) {
		t.Errorf("floor 0 request lost before being served")
	}

	c.Tick()
	c.Tick()
	if c.CurrentFloor() != 0 || !c.Requests.Empty() {
		t.Errorf("status %+v, expected floor 0 with no requests", c.Status())
	}
}

func TestIdleSleeps(t *testing.T) {
	cfg := testConfig()
	c, rig := newHomedController(t, cfg)
	slept := rig.Clock.Slept()

	c.Tick()

	if rig.Clock.Slept()-slept != cfg.Mechanics.IdlePoll {
		t.Errorf("idle tick slept %v, expected %v", rig.Clock.Slept()-slept, cfg.Mechanics.IdlePoll)
	}
}

func TestRequestFloorIgnoresInvalid(t *testing.T) {
	c, _ := newHomedController(t, testConfig())
	c.goingUp.Store(false)

	for _, floor := range []int{-1, 3, 42, 0} {
		c.RequestFloor(floor)
	}

	if !c.Requests.Empty() {
		t.Errorf("invalid requests were recorded: %v", c.Requests.Snapshot())
	}
	if c.IsGoingUp() {
		t.Errorf("invalid request changed the direction")
	}
}

func TestStartStop(t *testing.T) {
	c, _ := newTestController(t, testConfig(), 40)

	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}

	if err := c.Start(ctx, wg); err != nil {
		t.Fatalf("Start() returned %v", err)
	}
	if err := c.Start(ctx, wg); err == nil {
		t.Errorf("second Start() returned nil, expected an error")
	}

	waitFor(t, func() bool { return !c.IsPositionLost() && c.CurrentFloor() == 0 })

	c.RequestFloor(2)
	waitFor(t, func() bool { return c.CurrentFloor() == 2 })

	cancel()
	wg.Wait()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for lift state")
		}
		time.Sleep(time.Millisecond)
	}
}
