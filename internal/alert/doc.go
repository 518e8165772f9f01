// Package alert decides whether the results of a release test should fail
// the run.
//
// Handlers are looked up by the name in a test's alert.handler field. The
// "default" handler never alerts. The "threshold" handler compares numeric
// result values with the min/max bounds in alert.thresholds and reports
// every bound that was violated.
package alert
