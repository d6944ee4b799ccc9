// Package pipeline runs the scan of one target as a sequence of steps and
// runs many targets concurrently.
//
// A target's pipeline is the sanity check followed by one step per selected
// probe. Steps share the target's ScanReport and run strictly one after the
// other, so at most one connection per target is open at any time. The
// BatchProcessor runs one pipeline per target with a concurrency limit.
package pipeline
