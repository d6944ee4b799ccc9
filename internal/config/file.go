package config

import (
	"fmt"
	"time"
)

// TargetConfig holds the options that can be set per host or as file defaults.
// Zero values mean "not set".
type TargetConfig struct {
	Port      int           `yaml:"port,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	UserAgent string        `yaml:"userAgent,omitempty"`
	Probes    []string      `yaml:"probes,omitempty"`
}

// File represents the structure of the .h2smuggle configuration file.
//
//	defaults:
//	  timeout: 10s
//	targets:
//	  example.com:
//	    port: 8443
//	    probes: [h2.cl, h2.tunnel]
type File struct {
	// Defaults apply to every target unless a flag is given.
	Defaults TargetConfig `yaml:"defaults,omitempty"`

	// Targets maps normalized hostnames to their overrides.
	Targets map[string]TargetConfig `yaml:"targets,omitempty"`
}

// Validate checks every value in the file.
func (f *File) Validate() error {
	if err := f.Defaults.validate(); err != nil {
		return fmt.Errorf("defaults: %w", err)
	}
	for host, tc := range f.Targets {
		if err := tc.validate(); err != nil {
			return fmt.Errorf("target %s: %w", host, err)
		}
	}
	return nil
}

func (tc TargetConfig) validate() error {
	if tc.Port != 0 {
		if err := validatePort(tc.Port); err != nil {
			return err
		}
	}
	if tc.Timeout < 0 {
		return ErrInvalidTimeout
	}
	_, err := ParseProbes(tc.Probes)
	return err
}
