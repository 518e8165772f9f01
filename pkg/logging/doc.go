// Package logging provides the structured logging facade used across
// releasetest.
//
// It is a thin layer over the standard library's log/slog package. Every
// log line carries a subsystem attribute so that the output of a pipeline
// run can be filtered by component:
//
//   - **Bootstrap**: Application initialization
//   - **Config**: Test collection and cluster config loading
//   - **Pipeline**: Stage transitions and outcome classification
//   - **ClusterManager**: Compute, environment, build and cluster lifecycle
//   - **ControlPlane**: HTTP calls against the provisioning backend
//   - **CommandRunner**: Remote command execution and result retrieval
//   - **SSH**: Connection handling for the SSH executor
//   - **FileManager**: File staging to and from the cluster
//   - **Alert** and **Report**: Post-run hooks
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Pipeline", "Starting release test %s", test.Name)
//	logging.Debug("ClusterManager", "Polling build %s", buildID)
//	logging.Warn("CommandRunner", "Could not fetch last logs")
//	logging.Error("Pipeline", err, "Stage %s failed", stage)
//
// JSON output is available through Init with FormatJSON, which is what CI
// systems consuming the logs usually want.
//
// The package is safe for concurrent use; several release tests may run in
// parallel and log through the same handler.
package logging
