package config

import (
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SupportedSetupVersions is the constraint a setup file version must meet.
const SupportedSetupVersions = "^1"

// SetupConfig describes the actors of a system and how their outputs are
// wired.
type SetupConfig struct {
	// Version of the setup format
	Version string `yaml:"version" json:"version"`

	// Actors to spawn, in order
	Actors []ActorSetup `yaml:"actors" json:"actors"`
}

// ActorSetup describes one actor.
type ActorSetup struct {
	// ID identifies the actor within the setup
	ID uuid.UUID `yaml:"id" json:"id"`

	// Type selects the factory building the actor
	Type string `yaml:"type" json:"type"`

	// Name is the optional lookup name
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Group is the execution group
	Group int `yaml:"group,omitempty" json:"group,omitempty"`

	// Outputs maps output names to receiver ids
	Outputs map[string][]uuid.UUID `yaml:"outputs,omitempty" json:"outputs,omitempty"`

	// Params is handed to the factory untouched
	Params map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// LoadSetupFile reads and validates a setup file.
func LoadSetupFile(filename string) (*SetupConfig, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open setup file %s: %w", filename, err)
	}
	defer f.Close()

	setup, err := LoadSetup(f)
	if err != nil {
		return nil, fmt.Errorf("setup file %s: %w", filename, err)
	}
	return setup, nil
}

// LoadSetup reads and validates a YAML setup.
func LoadSetup(reader io.Reader) (*SetupConfig, error) {
	setup := &SetupConfig{}
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(setup); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
	}
	if err := setup.Validate(); err != nil {
		return nil, err
	}
	return setup, nil
}

// Validate checks the version and that every id is unique and every
// output points at a known actor.
func (s *SetupConfig) Validate() error {
	if err := checkSetupVersion(s.Version); err != nil {
		return err
	}

	ids := make(map[uuid.UUID]struct{}, len(s.Actors))
	for i, actor := range s.Actors {
		if actor.ID == uuid.Nil {
			return fmt.Errorf("%w: actor %d has no id", ErrInvalidSetup, i)
		}
		if actor.Type == "" {
			return fmt.Errorf("%w: actor %s has no type", ErrInvalidSetup, actor.ID)
		}
		if actor.Group < 0 {
			return fmt.Errorf("%w: actor %s has negative group %d", ErrInvalidSetup, actor.ID, actor.Group)
		}
		if _, dup := ids[actor.ID]; dup {
			return fmt.Errorf("%w: duplicate actor id %s", ErrInvalidSetup, actor.ID)
		}
		ids[actor.ID] = struct{}{}
	}

	for _, actor := range s.Actors {
		for output, receivers := range actor.Outputs {
			for _, receiver := range receivers {
				if _, known := ids[receiver]; !known {
					return fmt.Errorf("%w: output %q of %s targets unknown actor %s",
						ErrInvalidSetup, output, actor.ID, receiver)
				}
			}
		}
	}
	return nil
}

func checkSetupVersion(version string) error {
	constraint, err := semver.NewConstraint(SupportedSetupVersions)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedSetupVersion, version, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedSetupVersion, v, SupportedSetupVersions)
	}
	return nil
}
