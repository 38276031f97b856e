// Package halfstep implements a unipolar stepper motor driven one coil pattern at a time
// through a ULN2003-style driver, using an 8-entry half-step sequence.
package halfstep

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/components/motor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/resource"
)

// PinConfig defines the board pins wired to the driver inputs, IN1 energizing coil A.
type PinConfig struct {
	In1 string `json:"in1"`
	In2 string `json:"in2"`
	In3 string `json:"in3"`
	In4 string `json:"in4"`
}

func (pc PinConfig) names() [coilCount]string {
	return [coilCount]string{pc.In1, pc.In2, pc.In3, pc.In4}
}

// Config describes the configuration of a motor.
type Config struct {
	Pins               PinConfig `json:"pins"`
	BoardName          string    `json:"board"`
	TicksPerRotation   int       `json:"ticks_per_rotation"` // half-steps per output shaft revolution
	MaxRPM             float64   `json:"max_rpm,omitempty"`
	MinSpeed           int       `json:"min_speed,omitempty"`
	MaxSpeed           int       `json:"max_speed,omitempty"`
	IterationsPerLevel int       `json:"iterations_per_level,omitempty"`
	DelayUnitMs        float64   `json:"delay_unit_ms,omitempty"`
	Cycle              []Segment `json:"cycle,omitempty"`
}

// Model for a half-step driven unipolar stepper.
var Model = resource.NewModel("viam", "halfstep", "uln2003")

// profile returns the ramp profile described by the config, with defaults filled in.
func (conf *Config) profile() Profile {
	return Profile{
		MinSpeed:           conf.MinSpeed,
		MaxSpeed:           conf.MaxSpeed,
		IterationsPerLevel: conf.IterationsPerLevel,
		DelayUnitMs:        conf.DelayUnitMs,
		Cycle:              conf.Cycle,
	}.WithDefaults()
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) ([]string, []string, error) {
	if conf.BoardName == "" {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "board")
	}
	for i, name := range conf.Pins.names() {
		if name == "" {
			return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "pins.in"+strconv.Itoa(i+1))
		}
	}
	if conf.TicksPerRotation <= 0 {
		return nil, nil, resource.NewConfigValidationFieldRequiredError(path, "ticks_per_rotation")
	}
	if conf.MaxRPM < 0 {
		return nil, nil, errors.New("max_rpm must not be negative")
	}
	if err := conf.profile().Validate(); err != nil {
		return nil, nil, err
	}
	return []string{conf.BoardName}, nil, nil
}

func init() {
	resource.RegisterComponent(motor.API, Model, resource.Registration[motor.Motor, *Config]{
		Constructor: newMotor,
	})
}

// A Motor is a four-coil stepper stepped through the half-step table.
type Motor struct {
	resource.Named
	resource.AlwaysRebuild
	coils       *gpioSink
	wait        Waiter
	state       *State
	profile     Profile
	stepsPerRev int
	maxRPM      float64
	logger      logging.Logger
	opMgr       *operation.SingleOperationManager
	motorName   string

	mu       sync.Mutex
	powerPct float64
}

func newMotor(ctx context.Context, deps resource.Dependencies, c resource.Config, logger logging.Logger,
) (motor.Motor, error) {
	conf, err := resource.NativeConfig[*Config](c)
	if err != nil {
		return nil, err
	}
	b, err := board.FromDependencies(deps, conf.BoardName)
	if err != nil {
		return nil, errors.Errorf("%q is not a board", conf.BoardName)
	}
	return makeMotor(ctx, b, *conf, c.ResourceName(), logger, contextWaiter{})
}

// makeMotor is separate from newMotor so tests can inject a fake board and waiter.
func makeMotor(ctx context.Context, b board.Board, c Config, name resource.Name,
	logger logging.Logger, w Waiter,
) (*Motor, error) {
	if c.TicksPerRotation <= 0 {
		return nil, errors.New("ticks_per_rotation isn't set")
	}
	if c.MaxRPM == 0 {
		logger.CWarn(ctx, "max_rpm not set, setting to 15 rpm")
		c.MaxRPM = 15
	}
	profile := c.profile()
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	coils := &gpioSink{logger: logger}
	for i, pinName := range c.Pins.names() {
		pin, err := b.GPIOPinByName(pinName)
		if err != nil {
			return nil, errors.Wrapf(err, "coil pin %q", pinName)
		}
		coils.pins[i] = pin
	}

	m := &Motor{
		Named:       name.AsNamed(),
		coils:       coils,
		wait:        w,
		state:       NewState(),
		profile:     profile,
		stepsPerRev: c.TicksPerRotation,
		maxRPM:      c.MaxRPM,
		logger:      logger,
		opMgr:       operation.NewSingleOperationManager(),
		motorName:   name.ShortName(),
	}

	// Hold the first table entry so the rotor starts aligned with the sequence.
	if err := m.coils.Emit(ctx, m.state.Phase()); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Motor) setPowerPct(pct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.powerPct = pct
}

func (m *Motor) getPowerPct() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.powerPct
}

// stepDelay converts rpm into the wait between half-steps.
func (m *Motor) stepDelay(rpm float64) time.Duration {
	rpm = math.Abs(rpm)
	if rpm > m.maxRPM {
		rpm = m.maxRPM
	}
	return time.Duration(float64(time.Minute) / (rpm * float64(m.stepsPerRev)))
}

// abort de-energizes the coils if the phase state has become invalid.
func (m *Motor) abort(ctx context.Context, err error) error {
	if errors.Is(err, ErrInvalidPhase) {
		m.logger.CError(ctx, err)
		return multierr.Combine(err, m.coils.Release(ctx))
	}
	return err
}

// stepTo walks the motor to target half-steps with a fixed delay between steps.
func (m *Motor) stepTo(ctx context.Context, target int64, delay time.Duration) error {
	for {
		pos := m.state.Position()
		if pos == target {
			return nil
		}
		dir := Forward
		if target < pos {
			dir = Reverse
		}
		p, err := m.state.Step(dir)
		if err != nil {
			return m.abort(ctx, err)
		}
		if err := m.coils.Emit(ctx, p); err != nil {
			return err
		}
		if err := m.wait.Wait(ctx, delay); err != nil {
			return err
		}
	}
}

// runCycle runs ramps as the single active operation.
func (m *Motor) runCycle(ctx context.Context, ramps []RampParameters, repeat int) error {
	ctx, done := m.opMgr.New(ctx)
	defer done()
	return m.abort(ctx, RunCycle(ctx, ramps, repeat, m.state, m.coils, m.wait))
}

// Position gives the current motor position in revolutions.
func (m *Motor) Position(ctx context.Context, extra map[string]interface{}) (float64, error) {
	return float64(m.state.Position()) / float64(m.stepsPerRev), nil
}

// Properties returns the status of optional properties on the motor.
func (m *Motor) Properties(ctx context.Context, extra map[string]interface{}) (motor.Properties, error) {
	return motor.Properties{
		PositionReporting: true,
	}, nil
}

// SetPower only supports zero, which stops the motor. Continuous rotation is done with the
// "cycle" command or repeated GoFor calls.
func (m *Motor) SetPower(ctx context.Context, powerPct float64, extra map[string]interface{}) error {
	if powerPct == 0 {
		return m.Stop(ctx, extra)
	}
	return errors.Errorf("SetPower is not supported for motor (%s), use GoFor or GoTo", m.motorName)
}

// SetRPM only supports zero, which stops the motor.
func (m *Motor) SetRPM(ctx context.Context, rpm float64, extra map[string]interface{}) error {
	if rpm == 0 {
		return m.Stop(ctx, extra)
	}
	return errors.Errorf("SetRPM is not supported for motor (%s), use GoFor or GoTo", m.motorName)
}

// GoFor turns in the given direction the given number of times at the given speed.
// Both the RPM and the revolutions can be assigned negative values to move in a backwards direction.
// Note: if both are negative the motor will spin in the forward direction.
func (m *Motor) GoFor(ctx context.Context, rpm, rotations float64, extra map[string]interface{}) error {
	warning, err := motor.CheckSpeed(rpm, m.maxRPM)
	if warning != "" {
		m.logger.CWarn(ctx, warning)
	}
	if err != nil {
		return err
	}

	curPos, err := m.Position(ctx, extra)
	if err != nil {
		return errors.Wrapf(err, "error in GoFor from motor (%s)", m.motorName)
	}

	var d int64 = 1
	if math.Signbit(rotations) != math.Signbit(rpm) {
		d *= -1
	}

	rotations = math.Abs(rotations) * float64(d)
	rpm = math.Abs(rpm)

	target := curPos + rotations
	return m.GoTo(ctx, rpm, target, extra)
}

// GoTo moves to the specified position in revolutions from home/zero at a constant speed.
// Regardless of the directionality of the RPM this function will move the motor towards the
// specified target.
func (m *Motor) GoTo(ctx context.Context, rpm, positionRevolutions float64, extra map[string]interface{}) error {
	warning, err := motor.CheckSpeed(rpm, m.maxRPM)
	if warning != "" {
		m.logger.CWarn(ctx, warning)
	}
	if err != nil {
		return err
	}

	ctx, done := m.opMgr.New(ctx)
	defer done()

	m.setPowerPct(math.Min(math.Abs(rpm)/m.maxRPM, 1))
	defer m.setPowerPct(0)

	target := int64(math.Round(positionRevolutions * float64(m.stepsPerRev)))
	if err := m.stepTo(ctx, target, m.stepDelay(rpm)); err != nil {
		return errors.Wrapf(err, "error in GoTo from motor (%s)", m.motorName)
	}
	return nil
}

// IsPowered returns true if the motor is currently moving.
func (m *Motor) IsPowered(ctx context.Context, extra map[string]interface{}) (bool, float64, error) {
	return m.opMgr.OpRunning(), m.getPowerPct(), nil
}

// IsMoving returns true if a motion is in progress.
func (m *Motor) IsMoving(ctx context.Context) (bool, error) {
	return m.opMgr.OpRunning(), nil
}

// Stop cancels any motion and de-energizes the coils.
func (m *Motor) Stop(ctx context.Context, extra map[string]interface{}) error {
	m.opMgr.CancelRunning(ctx)
	return m.coils.Release(ctx)
}

// ResetZeroPosition sets the current position of the motor specified by the request
// (adjusted by a given offset) to be its new zero position.
func (m *Motor) ResetZeroPosition(ctx context.Context, offset float64, extra map[string]interface{}) error {
	if m.opMgr.OpRunning() {
		return errors.Errorf("can't zero motor (%s) while moving", m.motorName)
	}
	m.state.SetPosition(int64(math.Round(-1 * offset * float64(m.stepsPerRev))))
	return nil
}

// Close stops the motor and leaves the coils de-energized.
func (m *Motor) Close(ctx context.Context) error {
	return m.Stop(ctx, nil)
}

// DoCommand() related constants.
const (
	Command   = "command"
	RampCmd   = "ramp"
	CycleCmd  = "cycle"
	StepCmd   = "step"
	GetPhase  = "get_phase"
	Release   = "release"
	ModeVal   = "mode"
	DirVal    = "direction"
	RepeatVal = "repeat"
	StepsVal  = "steps"
)

func stringArg(cmd map[string]interface{}, key, def string) (string, error) {
	raw, ok := cmd[key]
	if !ok {
		if def == "" {
			return "", errors.Errorf("missing %s value", key)
		}
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", errors.Errorf("%s value must be a string", key)
	}
	return s, nil
}

func countArg(cmd map[string]interface{}, key string, def int) (int, error) {
	raw, ok := cmd[key]
	if !ok {
		return def, nil
	}
	f, ok := raw.(float64)
	if !ok || f < 1 || f != math.Trunc(f) {
		return 0, errors.Errorf("%s value must be a positive whole number", key)
	}
	return int(f), nil
}

// DoCommand executes additional commands beyond the Motor{} interface.
func (m *Motor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	name, ok := cmd[Command]
	if !ok {
		return nil, errors.Errorf("missing %s value", Command)
	}
	switch name {
	case RampCmd:
		modeStr, err := stringArg(cmd, ModeVal, "")
		if err != nil {
			return nil, err
		}
		mode, err := ParseMode(modeStr)
		if err != nil {
			return nil, err
		}
		dirStr, err := stringArg(cmd, DirVal, Forward.String())
		if err != nil {
			return nil, err
		}
		dir, err := ParseDirection(dirStr)
		if err != nil {
			return nil, err
		}
		return nil, m.runCycle(ctx, []RampParameters{m.profile.Params(mode, dir)}, 1)
	case CycleCmd:
		repeat, err := countArg(cmd, RepeatVal, 1)
		if err != nil {
			return nil, err
		}
		ramps, err := m.profile.Ramps()
		if err != nil {
			return nil, err
		}
		return nil, m.runCycle(ctx, ramps, repeat)
	case StepCmd:
		dirStr, err := stringArg(cmd, DirVal, Forward.String())
		if err != nil {
			return nil, err
		}
		dir, err := ParseDirection(dirStr)
		if err != nil {
			return nil, err
		}
		steps, err := countArg(cmd, StepsVal, 1)
		if err != nil {
			return nil, err
		}
		ctx, done := m.opMgr.New(ctx)
		defer done()
		target := m.state.Position() + int64(steps)*dir.delta()
		delay := time.Duration(m.profile.MinSpeed) * m.profile.DelayUnit()
		return nil, m.stepTo(ctx, target, delay)
	case GetPhase:
		p := m.state.Phase()
		idx, err := PhaseIndex(p)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"phase":    int(p),
			"index":    idx,
			"position": m.state.Position(),
		}, nil
	case Release:
		return nil, m.Stop(ctx, nil)
	default:
		return nil, errors.Errorf("no such command: %s", name)
	}
}
