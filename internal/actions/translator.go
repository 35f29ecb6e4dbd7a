package actions

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/hublink/internal/hub"
)

// Translator maps a high-level action name to the ordered primitive steps
// that implement it. The sequence compiler consumes the steps; the
// translator knows nothing about slots or the wire.
type Translator interface {
	Translate(action string) ([]hub.Step, error)
}

// yamlAction is one action definition in a catalog file.
type yamlAction struct {
	Description string     `yaml:"description"`
	Steps       []yamlStep `yaml:"steps"`
}

type yamlStep struct {
	Command string `yaml:"command"`
	DelayMS int    `yaml:"delay_ms"`
}

type yamlFile struct {
	Actions map[string]yamlAction `yaml:"actions"`
}

// YAMLTranslator translates actions defined in a YAML catalog file:
//
//	actions:
//	  fanfare:
//	    description: three rising beeps
//	    steps:
//	      - command: beep 523 150
//	        delay_ms: 50
//	      - command: beep 659 150
//	        delay_ms: 50
//	      - command: beep 784 300
type YAMLTranslator struct {
	actions map[string][]hub.Step
}

// LoadTranslator reads and parses a YAML action catalog.
func LoadTranslator(path string) (*YAMLTranslator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("actions: reading catalog: %w", err)
	}
	return ParseTranslator(data)
}

// ParseTranslator parses YAML catalog bytes.
func ParseTranslator(data []byte) (*YAMLTranslator, error) {
	var file yamlFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("actions: parsing catalog: %w", err)
	}

	t := &YAMLTranslator{actions: make(map[string][]hub.Step, len(file.Actions))}
	for name, def := range file.Actions {
		if len(def.Steps) == 0 {
			return nil, fmt.Errorf("actions: action %q has no steps", name)
		}
		steps := make([]hub.Step, 0, len(def.Steps))
		for i, s := range def.Steps {
			if s.Command == "" {
				return nil, fmt.Errorf("actions: action %q step %d has no command", name, i)
			}
			steps = append(steps, hub.Step{
				Command: s.Command,
				Delay:   time.Duration(s.DelayMS) * time.Millisecond,
			})
		}
		t.actions[name] = steps
	}
	return t, nil
}

// Translate returns a copy of the action's step sequence.
func (t *YAMLTranslator) Translate(action string) ([]hub.Step, error) {
	steps, ok := t.actions[action]
	if !ok {
		return nil, fmt.Errorf("%w: %q", hub.ErrUnknownAction, action)
	}
	out := make([]hub.Step, len(steps))
	copy(out, steps)
	return out, nil
}

// Actions lists the catalog's action names.
func (t *YAMLTranslator) Actions() []string {
	names := make([]string, 0, len(t.actions))
	for name := range t.actions {
		names = append(names, name)
	}
	return names
}
