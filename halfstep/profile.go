package halfstep

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Segment is one ramp of a cycle.
type Segment struct {
	Mode      string `json:"mode" yaml:"mode"`
	Direction string `json:"direction" yaml:"direction"`
}

// Profile holds the speed bounds shared by every ramp and the cycle run by the "cycle" command.
type Profile struct {
	MinSpeed           int       `json:"min_speed,omitempty" yaml:"min_speed"`
	MaxSpeed           int       `json:"max_speed,omitempty" yaml:"max_speed"`
	IterationsPerLevel int       `json:"iterations_per_level,omitempty" yaml:"iterations_per_level"`
	DelayUnitMs        float64   `json:"delay_unit_ms,omitempty" yaml:"delay_unit_ms"`
	Cycle              []Segment `json:"cycle,omitempty" yaml:"cycle,flow"`
}

// DefaultProfile accelerates and decelerates forward, then in reverse, then forward again.
func DefaultProfile() Profile {
	return Profile{
		MinSpeed:           DefaultMinSpeed,
		MaxSpeed:           DefaultMaxSpeed,
		IterationsPerLevel: DefaultIterations,
		DelayUnitMs:        float64(DefaultDelayUnit) / float64(time.Millisecond),
		Cycle: []Segment{
			{Mode: "accelerate", Direction: "forward"},
			{Mode: "decelerate", Direction: "forward"},
			{Mode: "accelerate", Direction: "reverse"},
			{Mode: "decelerate", Direction: "reverse"},
			{Mode: "accelerate", Direction: "forward"},
			{Mode: "decelerate", Direction: "forward"},
		},
	}
}

// WithDefaults fills every zero field from DefaultProfile.
func (p Profile) WithDefaults() Profile {
	def := DefaultProfile()
	if p.MinSpeed == 0 {
		p.MinSpeed = def.MinSpeed
	}
	if p.MaxSpeed == 0 {
		p.MaxSpeed = def.MaxSpeed
	}
	if p.IterationsPerLevel == 0 {
		p.IterationsPerLevel = def.IterationsPerLevel
	}
	if p.DelayUnitMs == 0 {
		p.DelayUnitMs = def.DelayUnitMs
	}
	if len(p.Cycle) == 0 {
		p.Cycle = def.Cycle
	}
	return p
}

// ParseProfile reads a YAML profile. Omitted fields take their default values.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, errors.Wrap(err, "unable to unmarshal profile")
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "unable to read profile %q", path)
	}
	return ParseProfile(data)
}

// DelayUnit is the duration of one delay level.
func (p Profile) DelayUnit() time.Duration {
	return time.Duration(p.DelayUnitMs * float64(time.Millisecond))
}

// Params returns the ramp parameters for one mode and direction using the profile's bounds.
func (p Profile) Params(mode Mode, dir Direction) RampParameters {
	return RampParameters{
		MinSpeed:           p.MinSpeed,
		MaxSpeed:           p.MaxSpeed,
		Mode:               mode,
		Direction:          dir,
		IterationsPerLevel: p.IterationsPerLevel,
		DelayUnit:          p.DelayUnit(),
	}
}

// Ramps converts the cycle into ramp parameters.
func (p Profile) Ramps() ([]RampParameters, error) {
	ramps := make([]RampParameters, 0, len(p.Cycle))
	for i, seg := range p.Cycle {
		mode, err := ParseMode(seg.Mode)
		if err != nil {
			return nil, errors.Wrapf(err, "cycle[%d]", i)
		}
		dir, err := ParseDirection(seg.Direction)
		if err != nil {
			return nil, errors.Wrapf(err, "cycle[%d]", i)
		}
		ramps = append(ramps, p.Params(mode, dir))
	}
	return ramps, nil
}

// Validate checks the bounds and every cycle segment.
func (p Profile) Validate() error {
	if p.DelayUnitMs < 0 {
		return errors.Errorf("delay_unit_ms must not be negative, got %v", p.DelayUnitMs)
	}
	ramps, err := p.Ramps()
	if err != nil {
		return err
	}
	if len(ramps) == 0 {
		return p.Params(Accelerate, Forward).Validate()
	}
	for _, rp := range ramps {
		if err := rp.Validate(); err != nil {
			return err
		}
	}
	return nil
}
