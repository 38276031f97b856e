package halfstep

import (
	"context"
	"time"

	"go.uber.org/multierr"
	"go.viam.com/rdk/components/board"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"
)

// coilCount is the number of driver inputs, one per coil.
const coilCount = 4

// gpioSink drives the four coil inputs from a phase mask, bit i onto pins[i].
type gpioSink struct {
	pins   [coilCount]board.GPIOPin
	logger logging.Logger
}

func (s *gpioSink) Emit(ctx context.Context, p Phase) error {
	s.logger.Debugf("Emit 0b%04b", uint8(p))
	var err error
	for i, pin := range s.pins {
		err = multierr.Combine(err, pin.Set(ctx, p&(1<<i) != 0, nil))
	}
	return err
}

// Release de-energizes every coil.
func (s *gpioSink) Release(ctx context.Context) error {
	return s.Emit(ctx, 0)
}

// contextWaiter sleeps for real, returning early if ctx is cancelled.
type contextWaiter struct{}

func (contextWaiter) Wait(ctx context.Context, d time.Duration) error {
	if !utils.SelectContextOrWait(ctx, d) {
		return ctx.Err()
	}
	return nil
}
