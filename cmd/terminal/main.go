package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/KarimSabra13/SysPark/internal/hw"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/liftutils"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/terminal"
)

var Logger = logger.GetLoggerConfigured(zerolog.InfoLevel)

func main() {
	opts := liftutils.ProcessCmdArgs("SysPark access terminal")

	cfg, err := liftconfig.Load(opts.ConfigPath)
	if err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	env, err := liftconfig.ReadEnv(opts.EnvPath)
	if err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	if err := cfg.ApplyEnv(env); err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	if opts.Identifier != "" {
		cfg.Identifier = opts.Identifier
	}
	if opts.Role != "" {
		if err := cfg.Role.UnmarshalText([]byte(opts.Role)); err != nil {
			Logger.Fatal().Msgf("%v", err)
		}
	}
	Logger = logger.GetLoggerConfigured(logger.ParseLevel(cfg.LogLevel))

	// Starting Programme
	Logger.Info().Msgf("Starting terminal as %v", cfg.Role)

	var peripherals terminal.Peripherals
	if cfg.Role.HasLift() {
		board, err := hw.Open(cfg)
		if err != nil {
			Logger.Error().Msgf("Board unavailable, lift disabled: %v", err)
		} else {
			defer board.Close()
			peripherals = terminal.Peripherals{Hardware: board.Hardware, Buttons: board.Buttons}
		}
	}

	term, err := terminal.New(cfg, peripherals)
	if err != nil {
		Logger.Fatal().Msgf("%v", err)
	}
	if err := term.Start(); err != nil {
		Logger.Fatal().Msgf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	Logger.Info().Msg("Shutting down")
	term.Stop()
}
