// Package config loads the YAML analysis configuration consumed by the
// command line tool. Flags override file values.
package config

import (
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/global"
	"github.com/715d/typeflow/pkg/inline"
)

// File is the analysis configuration document.
type File struct {
	// MaxGlobalIterations caps the refinement loop.
	MaxGlobalIterations int `yaml:"max_global_iterations"`

	// BigOverrideThreshold caps virtual call-site fan-out in the
	// multiple-callee graph.
	BigOverrideThreshold int `yaml:"big_override_threshold"`

	// Trace maps channel names to verbosity levels.
	Trace map[string]int `yaml:"trace,omitempty"`

	// Inline configures the inline-candidate pass.
	Inline inline.Config `yaml:"inline,omitempty"`
}

// Default returns the built-in configuration.
func Default() *File {
	return &File{
		MaxGlobalIterations:  global.DefaultMaxGlobalIterations,
		BigOverrideThreshold: 5,
	}
}

// Load reads a configuration file on top of the defaults.
func Load(path string) (*File, error) {
	f := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	for name := range f.Trace {
		if !knownChannel(name) {
			return nil, fmt.Errorf("unknown trace channel %q", name)
		}
	}
	return f, nil
}

// ApplyTrace installs the configured channel levels on a tracer.
func (f *File) ApplyTrace(t *trace.Tracer) {
	for name, level := range f.Trace {
		t.SetLevel(trace.Channel(name), level)
	}
}

func knownChannel(name string) bool {
	for _, ch := range trace.Channels {
		if string(ch) == name {
			return true
		}
	}
	return false
}
