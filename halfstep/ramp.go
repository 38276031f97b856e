package halfstep

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Ramp limits and defaults. Speeds are inter-step delay levels, so a smaller value is faster.
const (
	MaxLevelSpan      = 7
	DefaultMinSpeed   = 6
	DefaultMaxSpeed   = 1
	DefaultIterations = 250
	DefaultDelayUnit  = time.Millisecond
)

// Mode selects whether a ramp speeds the motor up or slows it down.
type Mode int

// Ramp modes.
const (
	Accelerate Mode = iota
	Decelerate
)

// ParseMode converts a config or command string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "accelerate", "up":
		return Accelerate, nil
	case "decelerate", "down":
		return Decelerate, nil
	default:
		return Accelerate, errors.Errorf("mode must be accelerate or decelerate, got %q", s)
	}
}

func (m Mode) String() string {
	switch m {
	case Accelerate:
		return "accelerate"
	case Decelerate:
		return "decelerate"
	default:
		return "unknown"
	}
}

// Sink receives every coil pattern the motor should hold.
type Sink interface {
	Emit(ctx context.Context, p Phase) error
}

// Waiter blocks between steps.
type Waiter interface {
	Wait(ctx context.Context, d time.Duration) error
}

// RampParameters describes one acceleration or deceleration run.
type RampParameters struct {
	MinSpeed           int
	MaxSpeed           int
	Mode               Mode
	Direction          Direction
	IterationsPerLevel int
	DelayUnit          time.Duration
}

// Validate checks that the speed bounds describe a ramp the level table can run.
func (rp RampParameters) Validate() error {
	if rp.MaxSpeed < 1 {
		return errors.Errorf("max_speed must be at least 1, got %d", rp.MaxSpeed)
	}
	if rp.MinSpeed > MaxLevelSpan {
		return errors.Errorf("min_speed must be at most %d, got %d", MaxLevelSpan, rp.MinSpeed)
	}
	if rp.MaxSpeed > rp.MinSpeed {
		return errors.Errorf("max_speed (%d) must not be slower than min_speed (%d)", rp.MaxSpeed, rp.MinSpeed)
	}
	if rp.IterationsPerLevel < 0 {
		return errors.Errorf("iterations_per_level must not be negative, got %d", rp.IterationsPerLevel)
	}
	if rp.DelayUnit <= 0 {
		return errors.New("delay unit must be positive")
	}
	if rp.Mode != Accelerate && rp.Mode != Decelerate {
		return errors.Errorf("unknown ramp mode %d", rp.Mode)
	}
	if rp.Direction != Forward && rp.Direction != Reverse {
		return errors.Errorf("unknown direction %d", rp.Direction)
	}
	return nil
}

// StepsAtLevel is the number of steps run at one delay level. Faster levels hold for longer.
func StepsAtLevel(level, iterations int) int {
	return (MaxLevelSpan-level)*iterations + 1
}

// Ramp steps the motor from one speed bound to the other, one delay level at a time. Each
// step commits the next phase to state, emits it and then waits level delay units. The goal
// level is run before the ramp returns.
func Ramp(ctx context.Context, params RampParameters, state *State, out Sink, w Waiter) error {
	if err := params.Validate(); err != nil {
		return err
	}

	level, goal, delta := params.MinSpeed, params.MaxSpeed, -1
	if params.Mode == Decelerate {
		level, goal, delta = params.MaxSpeed, params.MinSpeed, 1
	}

	for {
		delay := time.Duration(level) * params.DelayUnit
		for i := 0; i < StepsAtLevel(level, params.IterationsPerLevel); i++ {
			p, err := state.Step(params.Direction)
			if err != nil {
				return err
			}
			if err := out.Emit(ctx, p); err != nil {
				return errors.Wrapf(err, "emitting phase at level %d", level)
			}
			if err := w.Wait(ctx, delay); err != nil {
				return err
			}
		}
		if level == goal {
			return nil
		}
		level += delta
	}
}

// RunCycle runs ramps in order, repeat times over.
func RunCycle(ctx context.Context, ramps []RampParameters, repeat int, state *State, out Sink, w Waiter) error {
	for n := 0; n < repeat; n++ {
		for _, rp := range ramps {
			if err := Ramp(ctx, rp, state, out, w); err != nil {
				return errors.Wrapf(err, "%s %s ramp", rp.Mode, rp.Direction)
			}
		}
	}
	return nil
}
