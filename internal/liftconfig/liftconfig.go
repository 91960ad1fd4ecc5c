package liftconfig

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/KarimSabra13/SysPark/internal/liftconsts"
	"github.com/KarimSabra13/SysPark/internal/logger"
)

var Log = logger.GetLogger()

// Mechanics are the build-time constants of the lift drive train.
type Mechanics struct {
	Microsteps        int `yaml:"microsteps"`
	FullStepsPerFloor int `yaml:"full_steps_per_floor"`
	AccelFullSteps    int `yaml:"accel_full_steps"`
	DecelFullSteps    int `yaml:"decel_full_steps"`

	MinDelay       time.Duration `yaml:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	PulseWidth     time.Duration `yaml:"pulse_width"`
	Dwell          time.Duration `yaml:"dwell"`
	HealthInterval time.Duration `yaml:"health_interval"`
	IdlePoll       time.Duration `yaml:"idle_poll"`
	StartupDelay   time.Duration `yaml:"startup_delay"`

	HomingRampStep time.Duration `yaml:"homing_ramp_step"`
	ClearingSteps  int           `yaml:"clearing_steps"`
	ClearingDelay  time.Duration `yaml:"clearing_delay"`
	// Zero means twice the full shaft travel.
	HomingMaxSteps int `yaml:"homing_max_steps"`
}

func (m Mechanics) StepsPerFloor() int {
	return m.FullStepsPerFloor * m.Microsteps
}

func (m Mechanics) AccelSteps() int {
	return m.AccelFullSteps * m.Microsteps
}

func (m Mechanics) DecelSteps() int {
	return m.DecelFullSteps * m.Microsteps
}

func (m Mechanics) HomingLimit() int {
	if m.HomingMaxSteps > 0 {
		return m.HomingMaxSteps
	}
	return 2 * (liftconsts.N_FLOORS - 1) * m.StepsPerFloor()
}

// Chip holds the current and chopper settings applied on every driver (re)init.
type Chip struct {
	IHold        uint32 `yaml:"ihold"`
	IRun         uint32 `yaml:"irun"`
	IHoldDelay   uint32 `yaml:"ihold_delay"`
	GlobalScaler uint32 `yaml:"global_scaler"`
}

type Bus struct {
	// SPI port name for periph, empty picks the first one.
	Port        string        `yaml:"port"`
	SpeedHz     int64         `yaml:"speed_hz"`
	// TCP address of a register bridge. Takes precedence over Port when set.
	Address     string        `yaml:"address"`
	Timeout     time.Duration `yaml:"timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

type Pins struct {
	Enable           string   `yaml:"enable"`
	Step             string   `yaml:"step"`
	Dir              string   `yaml:"dir"`
	Limit            string   `yaml:"limit"`
	Buttons          []string `yaml:"buttons"`
	EnableActiveLow  bool     `yaml:"enable_active_low"`
	LimitActiveLow   bool     `yaml:"limit_active_low"`
	ButtonsActiveLow bool     `yaml:"buttons_active_low"`
}

type Telemetry struct {
	// UDP destination for state messages, empty disables the publisher.
	Address string `yaml:"address"`
	// UDP listen address for remote commands, empty disables the listener.
	CommandAddress string        `yaml:"command_address"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	ButtonPoll     time.Duration `yaml:"button_poll"`
}

type Config struct {
	Role       liftconsts.Role `yaml:"role"`
	LogLevel   string          `yaml:"log_level"`
	Identifier string          `yaml:"identifier"`
	Mechanics  Mechanics       `yaml:"mechanics"`
	Chip       Chip            `yaml:"chip"`
	Bus        Bus             `yaml:"bus"`
	Pins       Pins            `yaml:"pins"`
	Telemetry  Telemetry       `yaml:"telemetry"`
}

const (
	microsteps = 16
)

func DefaultMechanics() Mechanics {
	return Mechanics{
		Microsteps:        microsteps,
		FullStepsPerFloor: 3850,
		AccelFullSteps:    200,
		DecelFullSteps:    200,
		MinDelay:          200 * time.Microsecond,
		MaxDelay:          2000 * time.Microsecond,
		PulseWidth:        2 * time.Microsecond,
		Dwell:             3 * time.Second,
		HealthInterval:    50 * time.Millisecond,
		IdlePoll:          200 * time.Millisecond,
		StartupDelay:      500 * time.Millisecond,
		HomingRampStep:    2 * time.Microsecond,
		ClearingSteps:     100,
		ClearingDelay:     time.Millisecond,
	}
}

func Default() Config {
	return Config{
		Role:      liftconsts.Entry,
		LogLevel:  "info",
		Mechanics: DefaultMechanics(),
		Chip: Chip{
			IHold:        8,
			IRun:         25,
			IHoldDelay:   6,
			GlobalScaler: 128,
		},
		Bus: Bus{
			SpeedHz:     1000000,
			Timeout:     5 * time.Millisecond,
			DialTimeout: 500 * time.Millisecond,
		},
		Pins: Pins{
			Enable:           "GPIO22",
			Step:             "GPIO23",
			Dir:              "GPIO24",
			Limit:            "GPIO25",
			Buttons:          []string{"GPIO5", "GPIO6", "GPIO13"},
			EnableActiveLow:  true,
			LimitActiveLow:   false,
			ButtonsActiveLow: true,
		},
		Telemetry: Telemetry{
			PollInterval: 100 * time.Millisecond,
			ButtonPoll:   20 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path on top of Default. An empty path only
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error decoding config file %s: %w", path, err)
	}
	return cfg, nil
}

const (
	EnvRole          = "SYSPARK_ROLE"
	EnvLogLevel      = "SYSPARK_LOG_LEVEL"
	EnvIdentifier    = "SYSPARK_ID"
	EnvTelemetryAddr = "SYSPARK_TELEMETRY_ADDR"
	EnvCommandAddr   = "SYSPARK_COMMAND_ADDR"
	EnvSPIPort       = "SYSPARK_SPI_PORT"
	EnvBusAddr       = "SYSPARK_BUS_ADDR"
)

var envKeys = []string{EnvRole, EnvLogLevel, EnvIdentifier, EnvTelemetryAddr, EnvCommandAddr, EnvSPIPort, EnvBusAddr}

// ReadEnv merges the .env file at path with the process environment. Process
// variables win. A missing file is not an error.
func ReadEnv(path string) (map[string]string, error) {
	env := map[string]string{}
	if path != "" {
		fileEnv, err := godotenv.Read(path)
		switch {
		case err == nil:
			env = fileEnv
		case errors.Is(err, os.ErrNotExist):
			Log.Debug().Msgf("No env file at %s", path)
		default:
			return nil, fmt.Errorf("error reading env file %s: %w", path, err)
		}
	}

	for _, key := range envKeys {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}
	return env, nil
}

func (c *Config) ApplyEnv(env map[string]string) error {
	if value, ok := env[EnvRole]; ok && value != "" {
		if err := c.Role.UnmarshalText([]byte(value)); err != nil {
			return err
		}
	}
	if value, ok := env[EnvLogLevel]; ok && value != "" {
		c.LogLevel = value
	}
	if value, ok := env[EnvIdentifier]; ok && value != "" {
		c.Identifier = value
	}
	if value, ok := env[EnvTelemetryAddr]; ok {
		c.Telemetry.Address = value
	}
	if value, ok := env[EnvCommandAddr]; ok {
		c.Telemetry.CommandAddress = value
	}
	if value, ok := env[EnvSPIPort]; ok {
		c.Bus.Port = value
	}
	if value, ok := env[EnvBusAddr]; ok {
		c.Bus.Address = value
	}
	return nil
}

func (m Mechanics) Validate() error {
	if m.Microsteps < 1 || m.Microsteps > 256 || bits.OnesCount(uint(m.Microsteps)) != 1 {
		return fmt.Errorf("microsteps must be a power of two in [1, 256], got %d", m.Microsteps)
	}
	if m.FullStepsPerFloor <= 0 {
		return fmt.Errorf("full_steps_per_floor must be positive, got %d", m.FullStepsPerFloor)
	}
	if m.AccelFullSteps < 0 || m.DecelFullSteps < 0 {
		return errors.New("accel and decel steps must not be negative")
	}
	if 2*m.AccelSteps() > m.StepsPerFloor() || 2*m.DecelSteps() > m.StepsPerFloor() {
		return fmt.Errorf("accel/decel ramps (%d/%d) must fit in half a floor (%d steps)", m.AccelSteps(), m.DecelSteps(), m.StepsPerFloor())
	}
	if m.MinDelay <= 0 || m.MaxDelay < m.MinDelay {
		return fmt.Errorf("step delays must satisfy 0 < min (%v) <= max (%v)", m.MinDelay, m.MaxDelay)
	}
	if m.HealthInterval <= 0 || m.IdlePoll <= 0 {
		return errors.New("health_interval and idle_poll must be positive")
	}
	if m.ClearingSteps < 0 || m.HomingMaxSteps < 0 {
		return errors.New("clearing_steps and homing_max_steps must not be negative")
	}
	return nil
}

func (c Config) Validate() error {
	if err := c.Mechanics.Validate(); err != nil {
		return err
	}
	if c.Chip.IRun > 31 || c.Chip.IHold > 31 || c.Chip.IHoldDelay > 15 {
		return fmt.Errorf("chip currents out of range: ihold=%d irun=%d ihold_delay=%d", c.Chip.IHold, c.Chip.IRun, c.Chip.IHoldDelay)
	}
	if c.Chip.GlobalScaler > 255 {
		return fmt.Errorf("global_scaler must be at most 255, got %d", c.Chip.GlobalScaler)
	}
	if c.Bus.Timeout <= 0 || c.Bus.DialTimeout <= 0 {
		return errors.New("bus timeout and dial_timeout must be positive")
	}
	if len(c.Pins.Buttons) > liftconsts.N_FLOORS {
		return fmt.Errorf("at most %d floor buttons, got %d", liftconsts.N_FLOORS, len(c.Pins.Buttons))
	}
	return nil
}
