package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for h2smuggle.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "h2smuggle",
		Short: "Detect HTTP/2 downgrade request smuggling",
		Long: `h2smuggle checks whether an HTTPS front-end that speaks HTTP/2 and
forwards requests to an HTTP/1.1 back-end can be made to disagree with the
back-end about where a request ends.

Five probes are available: H2.CL, H2.CL (CRLF), H2.TE, H2.TE (CRLF) and
HTTP/2 request tunnelling. Verdicts are based on response timing and on
protocol errors, so a positive result means "potentially vulnerable" and
should be confirmed manually.

Only scan hosts you are authorized to test.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
