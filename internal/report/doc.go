// Package report publishes the outcome of release test runs.
//
// ConsoleReporter prints a summary with go-pretty tables and a coloured
// PASSED/FAILED line. FileReporter writes the full result record as JSON,
// replacing the target file atomically. WriteTests renders test listings
// for the list command.
package report
