package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agp-analyzer/backend/internal/astro"
	"github.com/agp-analyzer/backend/internal/models"
	"github.com/agp-analyzer/backend/internal/scheduler"
	"github.com/agp-analyzer/backend/internal/visibility"
)

// Profile is the observing setup used by the planning endpoints.
//
//	observer:
//	  latitude: 51.5
//	  longitude: -0.1
//	mount_limits:
//	  east_limit: -5
//	  west_limit: 5
//	constraints:
//	  min_altitude: 30
//	targets:
//	  - target: {id: m31, name: Andromeda, ra: 0.712, dec: 41.27}
//	    priority: 1
//	    desired_exposure_minutes: 120
//
// Fields left out keep their defaults.
type Profile struct {
	Observer    astro.Location          `json:"observer" yaml:"observer"`
	MountLimits visibility.MountLimits  `json:"mountLimits" yaml:"mount_limits"`
	Constraints scheduler.Constraints   `json:"constraints" yaml:"constraints"`
	Targets     []models.TargetPriority `json:"targets" yaml:"targets"`
}

// DefaultProfile returns a profile with default limits and constraints and
// no targets.
func DefaultProfile() *Profile {
	return &Profile{
		MountLimits: visibility.DefaultMountLimits(),
		Constraints: scheduler.DefaultConstraints(),
		Targets:     []models.TargetPriority{},
	}
}

// ParseProfile decodes a YAML profile.
func ParseProfile(r io.Reader) (*Profile, error) {
	p := DefaultProfile()
	if err := yaml.NewDecoder(r).Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProfile reads the profile at path. A missing file yields the default
// profile.
func LoadProfile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		fmt.Printf("[Config] No observing profile at %s, using defaults\n", path)
		return DefaultProfile(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open profile: %w", err)
	}
	defer f.Close()
	return ParseProfile(f)
}

// Validate checks coordinates and limits for values no site or target can
// have.
func (p *Profile) Validate() error {
	if p.Observer.Latitude < -90 || p.Observer.Latitude > 90 {
		return fmt.Errorf("observer latitude %v out of range", p.Observer.Latitude)
	}
	if p.Observer.Longitude < -180 || p.Observer.Longitude > 180 {
		return fmt.Errorf("observer longitude %v out of range", p.Observer.Longitude)
	}
	if p.MountLimits.EastLimit > p.MountLimits.WestLimit {
		return fmt.Errorf("east limit %v is past west limit %v", p.MountLimits.EastLimit, p.MountLimits.WestLimit)
	}
	for i, t := range p.Targets {
		if t.Target.RA < 0 || t.Target.RA >= 24 {
			return fmt.Errorf("target %d (%s): ra %v out of range", i, t.Target.Name, t.Target.RA)
		}
		if t.Target.Dec < -90 || t.Target.Dec > 90 {
			return fmt.Errorf("target %d (%s): dec %v out of range", i, t.Target.Name, t.Target.Dec)
		}
	}
	return nil
}
