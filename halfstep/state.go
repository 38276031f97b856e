package halfstep

import "sync"

// State is the motor's current phase and its position in half-steps from zero. Step is the
// only way the phase changes.
type State struct {
	mu       sync.Mutex
	phase    Phase
	position int64
}

// NewState returns a state parked on the first table entry at position zero.
func NewState() *State {
	return &State{phase: phaseTable[0]}
}

// Step advances the phase one entry in dir and commits it. On error the state is left as it was.
func (s *State) Step(dir Direction) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := Advance(s.phase, dir)
	if err != nil {
		return s.phase, err
	}
	s.phase = next
	s.position += dir.delta()
	return next, nil
}

// Phase returns the current coil pattern.
func (s *State) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Position returns the signed half-step count from zero.
func (s *State) Position() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// SetPosition redefines the current position without moving.
func (s *State) SetPosition(pos int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = pos
}
