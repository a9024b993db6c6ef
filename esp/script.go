package esp

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/atlink/modem"
)

// Script is a command sequence declared in YAML:
//
//	name: firmware
//	steps:
//	  - send: AT+GMR
//	    expect: OK
//	    error: ERROR
//	    timeout: 2s
//	    capture:
//	      version: 'AT version:([0-9.]+)'
//
// A step without expect, error and capture is sent without waiting.
type Script struct {
	Name  string `yaml:"name" json:"name"`
	Steps []Step `yaml:"steps" json:"steps"`
}

// Step is one command of a Script.
type Step struct {
	Send    string        `yaml:"send" json:"send"`
	Expect  string        `yaml:"expect,omitempty" json:"expect,omitempty"`
	Error   string        `yaml:"error,omitempty" json:"error,omitempty"`
	Delay   time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	// Capture maps an artifact key to a regular expression. The first
	// submatch, or the whole match without groups, becomes the value.
	Capture map[string]string `yaml:"capture,omitempty" json:"capture,omitempty"`

	patterns map[string]*regexp.Regexp
}

// LoadScript decodes and validates a Script.
func LoadScript(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	s := &Script{}
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("script is empty")
		}
		return nil, fmt.Errorf("decode script: %w", err)
	}
	if s.Name == "" {
		s.Name = "script"
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("script %q has no steps", s.Name)
	}
	for i := range s.Steps {
		if err := s.Steps[i].compile(); err != nil {
			return nil, fmt.Errorf("script %q step %d: %w", s.Name, i+1, err)
		}
	}
	return s, nil
}

func (st *Step) compile() error {
	if st.Send == "" {
		return errors.New("send is required")
	}
	if st.Delay < 0 || st.Timeout < 0 {
		return errors.New("delay and timeout must not be negative")
	}
	st.patterns = make(map[string]*regexp.Regexp, len(st.Capture))
	for key, expr := range st.Capture {
		re, err := regexp.Compile(expr)
		if err != nil {
			return fmt.Errorf("capture %q: %w", key, err)
		}
		st.patterns[key] = re
	}
	return nil
}

// Command converts the step. A capture without expect completes on OK.
func (st *Step) Command() modem.Command {
	cmd := modem.Command{
		Payload: []byte(st.Send),
		Delay:   st.Delay,
		Timeout: st.Timeout,
	}
	if st.Expect != "" {
		cmd.Expect = []byte(st.Expect)
	}
	if st.Error != "" {
		cmd.Error = []byte(st.Error)
	}
	if len(st.patterns) > 0 {
		if cmd.Expect == nil {
			cmd.Expect = []byte("OK")
		}
		cmd.Transform = st.capture
	}
	return cmd
}

func (st *Step) capture(buf []byte) map[string]string {
	out := map[string]string{}
	for key, re := range st.patterns {
		m := re.FindSubmatch(buf)
		switch {
		case m == nil:
		case len(m) > 1:
			out[key] = string(m[1])
		default:
			out[key] = string(m[0])
		}
	}
	return out
}

// Commands converts every step.
func (s *Script) Commands() []modem.Command {
	cmds := make([]modem.Command, len(s.Steps))
	for i := range s.Steps {
		cmds[i] = s.Steps[i].Command()
	}
	return cmds
}

// Sequence builds a runnable sequence. cb may be nil.
func (s *Script) Sequence(cb modem.Callback) *modem.Sequence {
	return modem.NewSequence(s.Name, s.Commands(), cb)
}
