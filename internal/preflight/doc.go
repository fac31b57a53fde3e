// Package preflight checks that an index run can succeed before it starts.
//
// The package validates:
//   - Disk space under the data directory (minimum 100MB)
//   - Write permissions in the data directory
//   - File descriptor limits (minimum 1024)
//   - The record source is readable
//   - The image directory exists, when one is configured
//   - No other process holds the store's writer lock
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{DataDir: dir, StorePath: path})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
