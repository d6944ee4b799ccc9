package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/h2smuggle/internal/config"
	"github.com/nao1215/h2smuggle/internal/database"
	"github.com/nao1215/h2smuggle/internal/model"
	"github.com/nao1215/h2smuggle/internal/report"
	"github.com/spf13/cobra"
)

var (
	errHostRequired     = errors.New("host is required (use --list-targets to see scanned hosts)")
	errNotEnoughHistory = errors.New("at least 2 scans are required for comparison")
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [host]",
		Short: "Show and compare saved scan results",
		Long: `History reads the scan reports saved by 'h2smuggle scan'.

Without flags it lists the saved scans of a host. With --diff it compares
the latest scan with the previous one (or with --with-scan-id) and shows
which probe verdicts changed.

Examples:
  # List saved scans of a host
  h2smuggle history example.com

  # Show verdict changes between the latest two scans
  h2smuggle history --diff example.com

  # Compare the latest scan with scan 3
  h2smuggle history --diff --with-scan-id 3 example.com

  # List every scanned host
  h2smuggle history --list-targets`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list-targets", "L", false,
		"List all hosts in the history database")
	cmd.Flags().BoolP("diff", "d", false,
		"Compare the latest scan with the previous one")
	cmd.Flags().Int64P("with-scan-id", "i", 0,
		"Compare the latest scan with this scan instead of the previous one")
	cmd.Flags().Bool("delete", false,
		"Delete the saved scans of the host")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(),
		"Directory of the history database")
	_ = cmd.Flags().MarkHidden("db-dir")

	return cmd
}

type historyOptions struct {
	listTargets bool
	diff        bool
	withScanID  int64
	delete      bool
	json        bool
	dbDir       string
}

func historyOptionsFromFlags(cmd *cobra.Command) (historyOptions, error) {
	var (
		o   historyOptions
		err error
	)
	flags := cmd.Flags()
	if o.listTargets, err = flags.GetBool("list-targets"); err != nil {
		return o, err
	}
	if o.diff, err = flags.GetBool("diff"); err != nil {
		return o, err
	}
	if o.withScanID, err = flags.GetInt64("with-scan-id"); err != nil {
		return o, err
	}
	if o.delete, err = flags.GetBool("delete"); err != nil {
		return o, err
	}
	if o.json, err = flags.GetBool("json"); err != nil {
		return o, err
	}
	if o.dbDir, err = flags.GetString("db-dir"); err != nil {
		return o, err
	}
	return o, nil
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	opts, err := historyOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	// Validate arguments before opening the database.
	var host string
	if !opts.listTargets {
		if len(args) == 0 {
			return errHostRequired
		}
		host, _, err = config.NormalizeHost(args[0])
		if err != nil {
			return fmt.Errorf("invalid host: %w", err)
		}
	}

	db, err := database.Open(opts.dbDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	switch {
	case opts.listTargets:
		return listScannedTargets(ctx, out, db, opts.json)
	case opts.delete:
		n, err := db.DeleteScanHistory(ctx, host)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d scan(s) of %s\n", n, host)
		return nil
	case opts.diff || opts.withScanID > 0:
		return runDiff(ctx, out, db, host, opts.withScanID, opts.json)
	default:
		return listScanHistory(ctx, out, db, host, opts.json)
	}
}

func listScannedTargets(ctx context.Context, out io.Writer, db *database.HistoryDB, asJSON bool) error {
	targets, err := db.ListScannedTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}
	if asJSON {
		return writeJSON(out, targets)
	}

	if len(targets) == 0 {
		fmt.Fprintln(out, "No scanned hosts found in the database.")
		fmt.Fprintln(out, "\nUse 'h2smuggle scan <host>' to scan a host.")
		return nil
	}

	fmt.Fprintf(out, "Scanned hosts (%d):\n\n", len(targets))
	fmt.Fprintf(out, "  %-40s  %-6s  %-20s  %s\n", "Host", "Scans", "Last Scan", "Vulnerable")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 82))
	for _, t := range targets {
		fmt.Fprintf(out, "  %-40s  %-6d  %-20s  %d\n",
			t.Target, t.ScanCount, t.LastScan.Local().Format("2006-01-02 15:04:05"), t.Vulnerable)
	}
	fmt.Fprintln(out, "\nUse 'h2smuggle history <host>' to see the scans of a host.")
	return nil
}

func listScanHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, host string, asJSON bool) error {
	history, err := db.GetScanHistoryWithMetadata(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}
	if asJSON {
		return writeJSON(out, history)
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No scan history found for %s\n", host)
		fmt.Fprintln(out, "\nUse 'h2smuggle scan' to scan this host.")
		return nil
	}

	fmt.Fprintf(out, "Scan history for %s (%d scans):\n\n", host, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-6s  %s\n", "ID", "Date", "Port", "Vulnerable To")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 60))
	for _, meta := range history {
		fmt.Fprintf(out, "  %-6d  %-20s  %-6d  %s\n",
			meta.ID, meta.Timestamp.Local().Format("2006-01-02 15:04:05"), meta.Port, formatVerdicts(meta.Verdicts))
	}
	fmt.Fprintln(out, "\nUse 'h2smuggle history --diff <host>' to compare the latest two scans.")
	return nil
}

// formatVerdicts lists the probes that fired in execution order.
func formatVerdicts(verdicts map[model.ProbeID]bool) string {
	if len(verdicts) == 0 {
		return "-"
	}
	var fired []string
	for _, id := range model.AllProbes() {
		if verdicts[id] {
			fired = append(fired, string(id))
		}
	}
	if len(fired) == 0 {
		return "none"
	}
	return strings.Join(fired, ", ")
}

func runDiff(ctx context.Context, out io.Writer, db *database.HistoryDB, host string, withScanID int64, asJSON bool) error {
	history, err := db.GetScanHistory(ctx, host)
	if err != nil {
		return fmt.Errorf("failed to get scan history: %w", err)
	}
	if len(history) == 0 {
		return fmt.Errorf("no scan history found for %s", host)
	}

	current := history[0]
	var previous *model.ScanReport
	if withScanID > 0 {
		previous, err = db.GetScanReportByID(ctx, withScanID)
		if err != nil {
			return fmt.Errorf("failed to get scan with ID %d: %w", withScanID, err)
		}
		if previous == nil {
			return fmt.Errorf("scan with ID %d not found", withScanID)
		}
		if previous.Target.Hostname != host {
			return fmt.Errorf("scan ID %d belongs to %s, not %s", withScanID, previous.Target.Hostname, host)
		}
	} else {
		if len(history) < 2 {
			return fmt.Errorf("%w (found %d)", errNotEnoughHistory, len(history))
		}
		previous = history[1]
	}

	comparison := report.Compare(previous, current)
	if asJSON {
		return writeJSON(out, comparison)
	}
	return comparison.WriteText(out)
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
