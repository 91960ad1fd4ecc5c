package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"

	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/lift"
	"github.com/KarimSabra13/SysPark/internal/liftcmd"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/sim"
	"github.com/KarimSabra13/SysPark/internal/terminal"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

var Logger = logger.GetLoggerConfigured(zerolog.InfoLevel)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	start := flag.Int("start", 1000, "Initial car position in microsteps above the limit switch")
	overTCP := flag.Bool("tcp", false, "Reach the simulated driver through a local TCP register bridge")
	fast := flag.Bool("fast", false, "Run step delays on virtual time. Idle polls and dwells stay real time")
	flag.Parse()

	//status lines go to stdout
	logger.SetOutput(os.Stderr)

	cfg, err := liftconfig.Load(*configPath)
	if err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	cfg.Role = liftconsts.Entry
	Logger = logger.GetLoggerConfigured(logger.ParseLevel(cfg.LogLevel))

	rig := sim.NewRig(*start)
	hardware := lift.Hardware{
		Bus:    rig.Chip,
		Enable: rig.Car.EnablePin(),
		Step:   rig.Car.StepPin(),
		Dir:    rig.Car.DirPin(),
		Limit:  rig.Car.LimitSwitch(),
		Clock:  hal.SystemClock{},
	}
	if *fast {
		hardware.Clock = sim.PacedClock{Clock: rig.Clock, Threshold: cfg.Mechanics.IdlePoll}
	}

	if *overTCP {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			Logger.Fatal().Msgf("%v", err)
		}
		defer listener.Close()
		go sim.ServeChip(listener, rig.Chip)

		transport, err := tmc5160.DialNetTransport(listener.Addr().String(), cfg.Bus.Timeout, cfg.Bus.DialTimeout)
		if err != nil {
			Logger.Fatal().Msgf("%v", err)
		}
		defer transport.Close()
		hardware.Bus = transport
	}

	term, err := terminal.New(cfg, terminal.Peripherals{Hardware: hardware})
	if err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	if term.Lift == nil {
		Logger.Fatal().Msg("Simulated lift failed to start")
	}
	if err := term.Start(); err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	defer term.Stop()

	fmt.Println("Keys: 0/1/2 call a floor, s publish state, p print status, q or Ctrl-C quit")
	for {
		char, key, err := keyboard.GetSingleKey()
		if err != nil {
			Logger.Error().Msgf("Error reading keyboard: %v", err)
			os.Exit(1)
		}
		if key == keyboard.KeyCtrlC || char == 'q' {
			return
		}

		switch char {
		case '0', '1', '2':
			term.HandleCommand(liftcmd.LiftCommand{Value: liftcmd.RequestFloorCommand{Floor: int(char - '0')}})
		case 's':
			term.HandleCommand(liftcmd.LiftCommand{Value: liftcmd.StateQueryCommand{}})
		case 'p':
			status := term.Lift.Status()
			fmt.Printf("floor=%d target=%d up=%v homing=%v lost=%v position=%d\n",
				status.CurrentFloor, status.TargetFloor, status.GoingUp, status.Homing, status.PositionLost, rig.Car.Position())
		}
	}
}
