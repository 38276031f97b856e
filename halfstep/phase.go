package halfstep

import (
	"strings"

	"github.com/pkg/errors"
)

// Phase is a 4-bit coil mask. Bit 0 is coil A (IN1), bit 3 is coil D (IN4).
type Phase uint8

// Direction of rotation through the phase table.
type Direction int

// Rotation directions.
const (
	Forward Direction = iota
	Reverse
)

// ErrInvalidPhase is returned when a phase is not one of the half-step table entries. Motor
// state should never diverge from the table, so callers abort the motion when they see it.
var ErrInvalidPhase = errors.New("phase is not in the half-step table")

// phaseCount is the length of the half-step sequence.
const phaseCount = 8

// Half-step sequence: single and dual coil states alternate, each entry differs from its
// neighbours by one bit.
var phaseTable = [phaseCount]Phase{
	0b0001, // A
	0b0011, // A+B
	0b0010, // B
	0b0110, // B+C
	0b0100, // C
	0b1100, // C+D
	0b1000, // D
	0b1001, // D+A
}

// Phases returns a copy of the half-step table.
func Phases() [phaseCount]Phase {
	return phaseTable
}

// PhaseIndex returns the position of p in the half-step table.
func PhaseIndex(p Phase) (int, error) {
	for i, v := range phaseTable {
		if v == p {
			return i, nil
		}
	}
	return -1, errors.Wrapf(ErrInvalidPhase, "0b%04b", uint8(p))
}

// Advance returns the phase that follows p in the given direction, wrapping at either end
// of the table.
func Advance(p Phase, dir Direction) (Phase, error) {
	i, err := PhaseIndex(p)
	if err != nil {
		return p, err
	}
	switch dir {
	case Forward:
		return phaseTable[(i+1)%phaseCount], nil
	case Reverse:
		return phaseTable[(i+phaseCount-1)%phaseCount], nil
	default:
		return p, errors.Errorf("unknown direction %d", dir)
	}
}

// ParseDirection converts a config or command string into a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "forward", "fwd", "positive":
		return Forward, nil
	case "reverse", "rev", "negative":
		return Reverse, nil
	default:
		return Forward, errors.Errorf("direction must be forward or reverse, got %q", s)
	}
}

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Reverse:
		return "reverse"
	default:
		return "unknown"
	}
}

// delta is the step counter change for one step in this direction.
func (d Direction) delta() int64 {
	if d == Reverse {
		return -1
	}
	return 1
}
