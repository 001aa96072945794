package batch

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// decisionFile and actionFile are the on-disk shapes read by the CLI:
//
//	decisions:
//	  - title: Hire ops lead
//	    decision: delegate
//	    priority: 2
type decisionFile struct {
	Decisions []DecisionInput `yaml:"decisions"`
}

type actionFile struct {
	Actions []ActionInput `yaml:"actions"`
}

// LoadDecisions reads a YAML (or JSON) batch of decision inputs.
func LoadDecisions(r io.Reader) ([]DecisionInput, error) {
	var f decisionFile
	if err := decodeStrict(r, &f); err != nil {
		return nil, fmt.Errorf("load decisions: %w", err)
	}
	if f.Decisions == nil {
		return []DecisionInput{}, nil
	}
	return f.Decisions, nil
}

// LoadActions reads a YAML (or JSON) batch of action inputs.
func LoadActions(r io.Reader) ([]ActionInput, error) {
	var f actionFile
	if err := decodeStrict(r, &f); err != nil {
		return nil, fmt.Errorf("load actions: %w", err)
	}
	if f.Actions == nil {
		return []ActionInput{}, nil
	}
	return f.Actions, nil
}

func decodeStrict(r io.Reader, v any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
