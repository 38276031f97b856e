package halfstep

import (
	"math/bits"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestPhaseTable(t *testing.T) {
	table := Phases()

	t.Run("neighbours differ by one coil", func(t *testing.T) {
		for i := range table {
			next := table[(i+1)%len(table)]
			test.That(t, bits.OnesCount8(uint8(table[i]^next)), test.ShouldEqual, 1)
		}
	})

	t.Run("only the low four bits are used", func(t *testing.T) {
		for _, p := range table {
			test.That(t, p&^0x0F, test.ShouldEqual, Phase(0))
		}
	})

	t.Run("copies do not alias the table", func(t *testing.T) {
		cp := Phases()
		cp[0] = 0b1111
		test.That(t, Phases()[0], test.ShouldEqual, Phase(0b0001))
	})
}

func TestAdvance(t *testing.T) {
	t.Run("three forward steps from coil A", func(t *testing.T) {
		p := Phase(0b0001)
		var got []Phase
		for i := 0; i < 3; i++ {
			var err error
			p, err = Advance(p, Forward)
			test.That(t, err, test.ShouldBeNil)
			got = append(got, p)
		}
		test.That(t, got, test.ShouldResemble, []Phase{0b0011, 0b0010, 0b0110})
	})

	t.Run("forward wraps from the last entry", func(t *testing.T) {
		p, err := Advance(0b1001, Forward)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p, test.ShouldEqual, Phase(0b0001))
	})

	t.Run("reverse wraps from the first entry", func(t *testing.T) {
		p, err := Advance(0b0001, Reverse)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p, test.ShouldEqual, Phase(0b1001))
	})

	t.Run("eight forward steps return to the start", func(t *testing.T) {
		for _, start := range Phases() {
			p := start
			for i := 0; i < 8; i++ {
				var err error
				p, err = Advance(p, Forward)
				test.That(t, err, test.ShouldBeNil)
			}
			test.That(t, p, test.ShouldEqual, start)
		}
	})

	t.Run("reverse undoes forward", func(t *testing.T) {
		for _, start := range Phases() {
			p, err := Advance(start, Forward)
			test.That(t, err, test.ShouldBeNil)
			p, err = Advance(p, Reverse)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, p, test.ShouldEqual, start)
		}
	})

	t.Run("unknown phase", func(t *testing.T) {
		_, err := Advance(0b0101, Forward)
		test.That(t, errors.Is(err, ErrInvalidPhase), test.ShouldBeTrue)
		_, err = PhaseIndex(0)
		test.That(t, errors.Is(err, ErrInvalidPhase), test.ShouldBeTrue)
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, err := Advance(0b0001, Direction(7))
		test.That(t, err, test.ShouldNotBeNil)
	})
}

func TestParseDirection(t *testing.T) {
	for _, s := range []string{"forward", "FWD", " positive "} {
		d, err := ParseDirection(s)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, d, test.ShouldEqual, Forward)
	}
	for _, s := range []string{"reverse", "rev", "negative"} {
		d, err := ParseDirection(s)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, d, test.ShouldEqual, Reverse)
	}
	_, err := ParseDirection("sideways")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestState(t *testing.T) {
	s := NewState()
	test.That(t, s.Phase(), test.ShouldEqual, Phase(0b0001))
	test.That(t, s.Position(), test.ShouldEqual, 0)

	p, err := s.Step(Reverse)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p, test.ShouldEqual, Phase(0b1001))
	test.That(t, s.Position(), test.ShouldEqual, -1)

	s.SetPosition(40)
	_, err = s.Step(Forward)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Phase(), test.ShouldEqual, Phase(0b0001))
	test.That(t, s.Position(), test.ShouldEqual, 41)

	bad := &State{phase: 0b1111, position: 3}
	p, err = bad.Step(Forward)
	test.That(t, errors.Is(err, ErrInvalidPhase), test.ShouldBeTrue)
	test.That(t, p, test.ShouldEqual, Phase(0b1111))
	test.That(t, bad.Position(), test.ShouldEqual, 3)
}
