package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nao1215/h2smuggle/internal/config"
	"github.com/nao1215/h2smuggle/internal/database"
	"github.com/nao1215/h2smuggle/internal/detect"
	h2log "github.com/nao1215/h2smuggle/internal/log"
	"github.com/nao1215/h2smuggle/internal/model"
	"github.com/nao1215/h2smuggle/internal/pipeline"
	"github.com/nao1215/h2smuggle/internal/report"
	"github.com/nao1215/h2smuggle/internal/session"
	"github.com/nao1215/h2smuggle/internal/tor"
	"github.com/spf13/cobra"
)

const banner = ` _   ___                       _
| |_|_  |___ _____ _ _ ___ ___| |___
|   |  _|_ -|     | | | . | . | | -_|
|_|_|___|___|_|_|_|___|_  |_  |_|___|
                      |___|___|
`

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [host]...",
		Short: "Probe hosts for HTTP/2 request smuggling",
		Long: `Scan sends a plain HTTP/2 GET to every host and, when it answers,
runs the smuggling probes against it:

  h2.cl       content-length disagreeing with the DATA frames
  h2.cl-crlf  content-length injected through CRLF in a header value
  h2.te       transfer-encoding: chunked forwarded to the back-end
  h2.te-crlf  transfer-encoding injected through CRLF in a header value
  h2.tunnel   a full HTTP/1.1 request hidden in a header name or :path

Hosts may be given as a hostname, an IP address, host:port or an https URL.
Reports are saved to the history database unless --no-save is given.
The command exits with status 1 when a host does not answer the GET.

Examples:
  # Probe one host
  h2smuggle scan example.com

  # Probe a non-default port with a longer timeout
  h2smuggle scan -p 8443 -t 10s example.com

  # Only run the tunnelling probe
  h2smuggle scan -P h2.tunnel example.com

  # Probe hosts from a file, three at a time
  h2smuggle scan -l hosts.txt -b 3

  # Route connections through a SOCKS5 proxy
  h2smuggle scan --proxy 127.0.0.1:9050 example.com

  # Write a Markdown report
  h2smuggle scan -m -o report.md example.com`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}

	// Target flags
	cmd.Flags().IntP("port", "p", config.DefaultPort,
		"TLS port for hosts given without a port")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each connect, TLS handshake and read")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"user-agent header sent with every request")
	cmd.Flags().StringP("list", "l", "",
		"File with one host per line ('#' starts a comment)")
	cmd.Flags().StringSliceP("probe", "P", nil,
		"Probes to run (h2.cl,h2.cl-crlf,h2.te,h2.te-crlf,h2.tunnel; default all)")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of hosts scanned concurrently")

	// Connection flags
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy (host:port or socks5://[user:pass@]host:port)")
	cmd.Flags().Bool("tor", false,
		"Route connections through an embedded Tor daemon")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .h2smuggle in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-save", false,
		"Do not save reports to the history database")
	cmd.Flags().Bool("no-color", false,
		"Disable colored progress output")

	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := h2log.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runScan(ctx, cmd, cfg, logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from flags, the target list and the
// configuration file. Flags given on the command line win over file defaults.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if cfg.Port, err = flags.GetInt("port"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.Probes, err = flags.GetStringSlice("probe"); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = flags.GetInt("batch"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave
	if cfg.NoColor, err = flags.GetBool("no-color"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	cfg.Targets = append(cfg.Targets, args...)
	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	if listPath != "" {
		listed, err := config.LoadTargetList(listPath)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, listed...)
	}

	// An explicit --config must exist; otherwise a missing file is fine.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		cfg.ApplyFileDefaults(flags.Changed)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	return cfg, nil
}

// scanTargets resolves every configured host into a target and its probes.
func scanTargets(cfg *config.Config) ([]model.Target, map[string][]detect.Probe, error) {
	targets := make([]model.Target, 0, len(cfg.Targets))
	probes := make(map[string][]detect.Probe, len(cfg.Targets))
	for _, raw := range cfg.Targets {
		target, err := cfg.TargetFor(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid host %q: %w", raw, err)
		}
		ids, err := cfg.ProbesFor(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("host %q: %w", raw, err)
		}
		selected, err := detect.Select(ids)
		if err != nil {
			return nil, nil, fmt.Errorf("host %q: %w", raw, err)
		}
		targets = append(targets, target)
		probes[target.Addr()] = selected
	}
	return targets, probes, nil
}

func runScan(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	targets, probes, err := scanTargets(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	reportToStdout := cfg.ReportFile == ""
	machineReport := cfg.JSONReport || cfg.MarkdownReport

	// Progress goes to stderr when stdout carries a JSON or Markdown report.
	progressOut := cmd.OutOrStdout()
	if reportToStdout && machineReport {
		progressOut = cmd.ErrOrStderr()
	}
	if !(reportToStdout && machineReport) {
		fmt.Fprint(progressOut, banner)
		fmt.Fprintf(progressOut, "h2smuggle version %s\n\n", getVersion())
	}

	dialer, cleanup, err := buildDialer(ctx, cfg, logger, progressOut)
	if err != nil {
		return err
	}
	defer cleanup()

	var db *database.HistoryDB
	if cfg.SaveToDB {
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
	}

	progress := report.NewProgressWriter(progressOut,
		report.WithColor(report.ColorEnabled(progressOut, cfg.NoColor)),
		report.WithTargetPrefix(len(targets) > 1 && cfg.BatchSize > 1),
	)
	sess := session.New(session.WithDialer(dialer), session.WithLogger(logger))
	engine := detect.NewEngine(sess, detect.WithLogger(logger), detect.WithProgress(progress))

	logger.Info("starting scan",
		"targets", len(targets),
		"batch_size", cfg.BatchSize,
		"save_to_db", cfg.SaveToDB,
	)

	bp := pipeline.NewBatchProcessor(
		func(target model.Target) *pipeline.Pipeline {
			return pipeline.NewScanPipeline(engine, probes[target.Addr()], pipeline.WithLogger(logger))
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)
	results, scanErr := bp.ProcessBatch(ctx, targets)
	reports := completedReports(results)

	if err := outputReports(cfg, cmd.OutOrStdout(), reports); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	saveScanReports(ctx, db, reports, logger)

	if scanErr != nil {
		return scanErr
	}
	if n := countNoResponse(reports); n > 0 {
		return fmt.Errorf("%w: %d of %d host(s)", detect.ErrNoResponse, n, len(reports))
	}
	return nil
}

// completedReports drops the reports of targets that never started.
func completedReports(results []*model.ScanReport) []*model.ScanReport {
	out := make([]*model.ScanReport, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func countNoResponse(reports []*model.ScanReport) int {
	n := 0
	for _, r := range reports {
		if r.Check != nil && !r.Check.Responded {
			n++
		}
	}
	return n
}

// buildDialer returns the dialer for the session and a cleanup function.
func buildDialer(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (session.Dialer, func(), error) {
	noop := func() {}

	switch {
	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, logger, out)

	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, tor.WithLogger(logger))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create proxy client: %w", err)
		}
		checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		if status := client.CheckConnection(checkCtx); status != tor.ProxyStatusOK {
			return nil, noop, fmt.Errorf("proxy check failed: %w (make sure a SOCKS5 proxy is running at %s)",
				status.Error(), client.ProxyAddress())
		}
		logger.Info("SOCKS5 proxy connection verified", "address", client.ProxyAddress())
		return client, noop, nil

	default:
		return &net.Dialer{}, noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon and returns a dialer that
// goes through it. The cleanup function stops the daemon.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (session.Dialer, func(), error) {
	fmt.Fprintln(out, "Starting embedded Tor daemon...")
	fmt.Fprintf(out, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

	embeddedTor := tor.NewEmbeddedTor(
		tor.WithStartupTimeout(cfg.TorStartupTimeout),
		tor.WithTorLogger(logger),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, func() {}, fmt.Errorf("failed to start embedded Tor: %w", err)
	}
	stop := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	client, err := embeddedTor.NewClient(tor.WithLogger(logger))
	if err != nil {
		stop()
		return nil, func() {}, fmt.Errorf("failed to create Tor client: %w", err)
	}
	if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
		stop()
		return nil, func() {}, fmt.Errorf("embedded Tor proxy check failed: %w", status.Error())
	}

	fmt.Fprintf(out, "SOCKS proxy: %s\n\n", embeddedTor.SocksAddr())
	return client, stop, nil
}

// newReportWriter picks the writer for the requested format.
func newReportWriter(cfg *config.Config, output io.Writer) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}
}

// outputReports writes the reports to the report file or to stdout.
func outputReports(cfg *config.Config, stdout io.Writer, reports []*model.ScanReport) error {
	output := stdout
	if cfg.ReportFile != "" {
		if dir := filepath.Dir(cfg.ReportFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	}

	w := newReportWriter(cfg, output)
	var err error
	if len(reports) == 1 {
		_, err = w.Write(reports[0])
	} else {
		_, err = w.WriteBatch(reports)
	}
	return err
}

// saveScanReports stores the reports of targets whose sanity check ran.
// A nil db is a no-op.
func saveScanReports(ctx context.Context, db *database.HistoryDB, reports []*model.ScanReport, logger *slog.Logger) {
	if db == nil {
		return
	}
	// Saving must survive a cancelled scan.
	ctx = context.WithoutCancel(ctx)
	for _, r := range reports {
		if r.Check == nil {
			continue
		}
		id, err := db.SaveScanReport(ctx, r)
		if err != nil {
			logger.Error("failed to save scan report", "target", r.Target.Hostname, "error", err)
			continue
		}
		logger.Info("scan report saved to database", "target", r.Target.Hostname, "id", id)
	}
}
