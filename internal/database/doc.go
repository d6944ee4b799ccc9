// Package database stores scan reports in a SQLite file for the history
// command.
//
// Each report is kept as JSON next to a few columns that can be listed
// without decoding it: the target, the scan time, the number of probes that
// reported vulnerable and the per-probe verdicts. modernc.org/sqlite is
// CGO-free, so the binary cross-compiles without a C toolchain.
package database
