// Package report renders scan reports.
//
// Writers implement the Writer interface and can be combined with
// MultiWriter:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter and FullJSONWriter: JSON for tool integration
//   - MarkdownWriter: Markdown with tables, alerts and a mermaid pie chart
//
// ProgressWriter prints the live progress lines of a scan and Compare
// computes verdict changes between two reports of the same host.
package report
