// Package model defines the core data structures used throughout h2smuggle.
//
// This package contains the following main types:
//   - Target: The immutable description of the host being probed
//   - RequestSpec: One crafted HTTP/2 request (ordered raw header fields + body)
//   - ResponseOutcome: The normalized observation of one request/response exchange
//   - DetectionResult: The verdict of a single smuggling probe
//   - ScanReport: Everything collected for one target during a scan
//
// Models live in their own package so that the session, detection, pipeline,
// report and database packages can share them without import cycles.
//
// The models are serializable to JSON for report output and database storage.
package model
