package health

import (
	"github.com/KarimSabra13/SysPark/internal/hal"
	"github.com/KarimSabra13/SysPark/internal/liftconfig"
	"github.com/KarimSabra13/SysPark/internal/logger"
	"github.com/KarimSabra13/SysPark/internal/tmc5160"
)

var Log = logger.GetLogger()

// Flags in GSTAT that mean the driver lost its configuration or supply.
const FaultFlags = tmc5160.GSTAT_RESET | tmc5160.GSTAT_UV_CP

type Monitor struct {
	chip       *tmc5160.Driver
	enable     hal.DigitalOutput
	chipConfig liftconfig.Chip
	microsteps int

	faults int
}

func NewMonitor(chip *tmc5160.Driver, enable hal.DigitalOutput, chipConfig liftconfig.Chip, microsteps int) *Monitor {
	return &Monitor{
		chip:       chip,
		enable:     enable,
		chipConfig: chipConfig,
		microsteps: microsteps,
	}
}

// CheckHealth reads GSTAT and returns true when the driver needs attention.
// A reset or undervoltage flag triggers one re-init attempt; the fault is
// reported either way, since any motion in progress can no longer be trusted.
func (m *Monitor) CheckHealth() bool {
	gstat, err := m.chip.Read(tmc5160.GSTAT)
	if err != nil {
		m.faults++
		Log.Error().Msgf("Driver status unreadable: %v", err)
		return true
	}

	if gstat&FaultFlags == 0 {
		return false
	}

	m.faults++
	Log.Warn().Msgf("Driver supply alert: GSTAT=0x%X, reinitialising", gstat)
	if err := m.chip.InitMinimal(m.chipConfig, m.microsteps); err != nil {
		Log.Error().Msgf("Driver reinit failed: %v", err)
	}
	if err := m.enable.Out(true); err != nil {
		Log.Error().Msgf("Error re-asserting motor enable: %v", err)
	}
	return true
}

// Faults is the number of faults seen since start.
func (m *Monitor) Faults() int {
	return m.faults
}
