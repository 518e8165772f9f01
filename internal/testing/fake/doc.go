// Package fake provides in-memory implementations of the cluster, command,
// file transfer and executor interfaces for tests.
package fake
