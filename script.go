package tapfix

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Step operations understood by a Script.
const (
	OpAddPcap      = "add_pcap"
	OpAddFlow      = "add_flow"
	OpAddDnstap    = "add_dnstap"
	OpAddConfig    = "add_config"
	OpAddFilter    = "add_filter"
	OpAddTag       = "add_tag"
	OpRemoveTap    = "remove_tap"
	OpRemoveConfig = "remove_config"
	OpRemoveFilter = "remove_filter"
	OpRemoveTag    = "remove_tag"
)

// Step is one fixture operation in a script.
//
// Tap names the tap; tag operations may set All instead to target every tap
// registered at that point.
type Step struct {
	Op      string   `yaml:"op"`
	Tap     string   `yaml:"tap"`
	All     bool     `yaml:"all"`
	Options *Options `yaml:"options"`
	Keys    []string `yaml:"keys"`
}

// Script is an ordered list of steps, usually loaded from a YAML file:
//
//	steps:
//	  - op: add_pcap
//	    tap: t1
//	    options: {iface: eth0, bpf: tcp port 80}
//	  - op: add_tag
//	    all: true
//	    options: {env: staging}
type Script struct {
	Steps []Step `yaml:"steps"`
}

// StepError reports the step a script stopped at.
type StepError struct {
	Index int
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s %s): %s", e.Index, e.Step.Op, e.Step.target(), e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// NewScript parses a YAML script.
func NewScript(data []byte) (*Script, error) {
	s := &Script{}
	if err := yaml.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, step := range s.Steps {
		if err := step.check(); err != nil {
			return nil, &StepError{Index: i, Step: step, Err: err}
		}
	}
	return s, nil
}

// Run applies every step to d in order and returns the final document. The
// first failing step stops the run; earlier steps stay applied.
func (s *Script) Run(d Driver) (*Taps, error) {
	taps := NewTaps()
	for i, step := range s.Steps {
		out, err := step.apply(d)
		if err != nil {
			return taps, &StepError{Index: i, Step: step, Err: err}
		}
		taps = out
	}
	return taps, nil
}

func (st Step) target() Target {
	if st.All {
		return All()
	}
	return One(st.Tap)
}

func (st Step) check() error {
	switch st.Op {
	case OpAddTag, OpRemoveTag:
		if st.All && st.Tap != "" {
			return fmt.Errorf("tap and all are exclusive")
		}
		if !st.All && st.Tap == "" {
			return fmt.Errorf("tap or all is required")
		}
		if st.Op == OpAddTag {
			_, err := TagsFrom(st.Options)
			return err
		}
		return nil
	case OpAddPcap, OpAddFlow, OpAddDnstap, OpAddConfig, OpAddFilter,
		OpRemoveTap, OpRemoveConfig, OpRemoveFilter:
		if st.All {
			return fmt.Errorf("all only applies to tag operations")
		}
		if st.Tap == "" {
			return fmt.Errorf("tap is required")
		}
		return nil
	}
	return fmt.Errorf("unknown op %q", st.Op)
}

func (st Step) apply(d Driver) (*Taps, error) {
	opts := st.Options.List()
	switch st.Op {
	case OpAddPcap:
		return d.AddTap(Pcap, st.Tap, opts...)
	case OpAddFlow:
		return d.AddTap(Flow, st.Tap, opts...)
	case OpAddDnstap:
		return d.AddTap(Dnstap, st.Tap, opts...)
	case OpAddConfig:
		return d.AddConfig(st.Tap, opts...)
	case OpAddFilter:
		return d.AddFilter(st.Tap, opts...)
	case OpAddTag:
		tags, err := TagsFrom(st.Options)
		if err != nil {
			return nil, err
		}
		return d.AddTag(st.target(), tags...)
	case OpRemoveTap:
		return d.RemoveTap(st.Tap)
	case OpRemoveConfig:
		return d.RemoveConfigs(st.Tap, st.Keys...)
	case OpRemoveFilter:
		return d.RemoveFilters(st.Tap, st.Keys...)
	case OpRemoveTag:
		return d.RemoveTag(st.target(), st.Keys...)
	}
	return nil, fmt.Errorf("unknown op %q", st.Op)
}
