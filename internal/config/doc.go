// Package config holds the run configuration of h2smuggle: defaults, flag
// values, the optional .h2smuggle YAML file with per-host overrides, and the
// normalization that turns a user supplied host into a model.Target.
package config
