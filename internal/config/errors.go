package config

import "errors"

// Configuration validation errors returned by Config.Validate and the
// loader. Callers match them with errors.Is.
var (
	// ErrNoTarget is returned when neither arguments nor --list name a host.
	ErrNoTarget = errors.New("no target specified: provide a hostname or use --list")

	// ErrInvalidHost is returned when a target cannot be normalized to a hostname.
	ErrInvalidHost = errors.New("invalid hostname")

	// ErrInvalidPort is returned when a port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrConflictingProxyOptions is returned when both --proxy and --tor are specified.
	ErrConflictingProxyOptions = errors.New("conflicting proxy options: --proxy and --tor cannot be used together")

	// ErrUnknownProbe is returned for a probe id that names no probe.
	ErrUnknownProbe = errors.New("unknown probe")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
)
