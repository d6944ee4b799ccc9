package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/h2smuggle/internal/model"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "h2smuggle"

	// DefaultPort is the HTTPS port.
	DefaultPort = 443

	// DefaultTimeout bounds every connect, handshake and read. Probe verdicts
	// are timing based, so it must stay well above the target's normal
	// response time.
	DefaultTimeout = 5 * time.Second

	// DefaultUserAgent is the user-agent header of every request.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/95.0.4638.69 Safari/537.36"

	// DefaultBatchSize of 1 probes targets one after the other.
	DefaultBatchSize = 1

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Config holds all options of a scan. It is populated from CLI flags and
// the configuration file, validated once, and passed down explicitly.
type Config struct {
	// Targets are the hosts to probe as given by the user. Each entry may be
	// a hostname, an IP literal, host:port, or an https:// URL.
	Targets []string

	// Port is used for targets that carry no port of their own.
	Port int

	// Timeout bounds each connect, TLS handshake and read.
	Timeout time.Duration

	// UserAgent is sent with every request.
	UserAgent string

	// Probes selects probes by id. Empty runs all of them.
	Probes []string

	// BatchSize is the number of targets probed concurrently.
	BatchSize int

	// Verbose lowers the log level to Debug.
	Verbose bool

	// ProxyAddress is an optional SOCKS5 proxy in host:port form.
	ProxyAddress string

	// UseTor routes connections through an embedded Tor daemon.
	UseTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// ConfigFilePath is an explicit configuration file. When empty the
	// default locations are searched.
	ConfigFilePath string

	// File holds the loaded configuration file, if any.
	File *File

	// JSONReport selects the JSON report. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown report.
	MarkdownReport bool

	// ReportFile writes the report to a file instead of stdout.
	ReportFile string

	// DBDir is the directory of the history database.
	DBDir string

	// SaveToDB stores every scan report in the history database.
	SaveToDB bool

	// NoColor disables ANSI colors in progress output.
	NoColor bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Port:              DefaultPort,
		Timeout:           DefaultTimeout,
		UserAgent:         DefaultUserAgent,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		SaveToDB:          true,
	}
}

// XDGDataDir returns the data directory, ~/.local/share/h2smuggle on Linux.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory, ~/.config/h2smuggle on Linux.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	for _, t := range c.Targets {
		if _, _, err := NormalizeHost(t); err != nil {
			return err
		}
	}
	if err := validatePort(c.Port); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	if c.ProxyAddress != "" && c.UseTor {
		return ErrConflictingProxyOptions
	}
	if _, err := ParseProbes(c.Probes); err != nil {
		return err
	}
	if c.File != nil {
		return c.File.Validate()
	}
	return nil
}

func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}

// ParseProbes converts probe ids to model.ProbeID. Duplicates are kept;
// the detection engine collapses them.
func ParseProbes(ids []string) ([]model.ProbeID, error) {
	out := make([]model.ProbeID, 0, len(ids))
	for _, s := range ids {
		id, err := model.ParseProbeID(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownProbe, s)
		}
		out = append(out, id)
	}
	return out, nil
}

// ApplyFileDefaults copies the file's defaults into c for every option the
// user did not set explicitly. explicit reports whether a flag was given.
func (c *Config) ApplyFileDefaults(explicit func(flag string) bool) {
	if c.File == nil {
		return
	}
	d := c.File.Defaults
	if d.Port != 0 && !explicit("port") {
		c.Port = d.Port
	}
	if d.Timeout != 0 && !explicit("timeout") {
		c.Timeout = d.Timeout
	}
	if d.UserAgent != "" && !explicit("user-agent") {
		c.UserAgent = d.UserAgent
	}
	if len(d.Probes) > 0 && !explicit("probe") {
		c.Probes = d.Probes
	}
}

// TargetFor builds the target for a user supplied host. Values are taken
// from c, then from the file's per-host override, and a port written in the
// host itself wins over both.
func (c *Config) TargetFor(raw string) (model.Target, error) {
	host, port, err := NormalizeHost(raw)
	if err != nil {
		return model.Target{}, err
	}

	site := c.site(host)
	if port == 0 {
		port = c.Port
		if site.Port != 0 {
			port = site.Port
		}
	}
	timeout := c.Timeout
	if site.Timeout != 0 {
		timeout = site.Timeout
	}
	ua := c.UserAgent
	if site.UserAgent != "" {
		ua = site.UserAgent
	}
	return model.NewTarget(host, port, timeout, ua), nil
}

// ProbesFor returns the probes to run against raw. A per-host override in
// the file replaces the global selection.
func (c *Config) ProbesFor(raw string) ([]model.ProbeID, error) {
	host, _, err := NormalizeHost(raw)
	if err != nil {
		return nil, err
	}
	if site := c.site(host); len(site.Probes) > 0 {
		return ParseProbes(site.Probes)
	}
	return ParseProbes(c.Probes)
}

func (c *Config) site(host string) TargetConfig {
	if c.File == nil {
		return TargetConfig{}
	}
	return c.File.Targets[host]
}
