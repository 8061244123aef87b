// Package scenario loads YAML scripts of engine input messages, replays them
// through an engine and checks determinism by running them twice.
package scenario

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/marketsim/internal/config"
	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/wire"
)

// Step is one input message, optionally followed by the exact output it
// must produce. A step without an expect key is not checked; an empty
// expect list asserts that nothing is emitted.
type Step struct {
	wire.Record `yaml:",inline"`
	Expect      []wire.Record `yaml:"expect"`
}

// Script is a named sequence of steps.
type Script struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Settings    config.Engine `yaml:"settings"`
	Steps       []Step        `yaml:"steps"`
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read scenario %s", path)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "scenario %s", path)
	}
	return s, nil
}

// Parse decodes a script and checks that every step is a valid input.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := s.Settings.Validate(); err != nil {
		return nil, errors.Wrap(err, "settings")
	}
	if _, err := s.Inputs(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Inputs decodes the step records into engine messages.
func (s *Script) Inputs() ([]domain.Message, error) {
	msgs := make([]domain.Message, 0, len(s.Steps))
	for i := range s.Steps {
		msg, err := s.Steps[i].Record.Message()
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		switch msg.Type() {
		case domain.MessageTypeExecution, domain.MessageTypePositionChange:
			return nil, errors.Errorf("step %d: %s is an output message", i, msg.Type())
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
