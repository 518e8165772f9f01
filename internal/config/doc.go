// Package config loads everything releasetest reads from disk.
//
// # Application configuration
//
// LoadConfig reads config.yaml from a configuration directory (default
// ~/.config/releasetest, overridable with --config-path) over the values of
// GetDefaultConfig. A missing file is not an error. Secrets can be supplied
// through RELEASETEST_CONTROL_PLANE_TOKEN, RELEASETEST_MINIO_ACCESS_KEY and
// RELEASETEST_MINIO_SECRET_KEY, which take precedence over the file.
//
//	controlPlane:
//	  url: https://console.example.com
//	timeouts:
//	  pollInterval: 15s
//	  buildTimeout: 30m
//	  startupTimeout: 30m
//	ssh:
//	  user: ray
//	  keyPath: ~/.ssh/release.pem
//	objectStore:
//	  endpoint: minio.internal:9000
//	  bucket: release-test
//
// # Test collections
//
// LoadTestCollection reads a YAML list of Test definitions. Relative
// working_dir values are resolved against the collection file's directory.
// ValidateTests checks every definition against the registered run types.
//
// # Cluster files
//
// ClusterLoader resolves a test's cluster_env and cluster_compute files
// relative to its working directory, renders them with internal/template and
// parses the result as YAML. Each step fails with a ConfigurationError whose
// ErrorType names the step (path_not_found, template, parse), wrapped in a
// result.Error of kind ConfigError so the whole family maps to a single exit
// code.
//
// # Smoke tests
//
// Test.AsSmokeTest merges the smoke_test block over the base definition with
// mergo override semantics.
package config
