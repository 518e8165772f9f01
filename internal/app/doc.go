// Package app provides application bootstrap and run management for
// releasetest.
//
// # Architecture Overview
//
// The app package is the bootstrap layer between the command line and the
// pipeline. It has four parts:
//
//  1. **Configuration (`config.go`)**: runtime options of one invocation
//  2. **Bootstrap (`bootstrap.go`)**: logging, config and collection loading
//  3. **Services (`services.go`)**: control-plane client, object store,
//     run-type registry and orchestrator
//  4. **Run (`run.go`)**: test selection and bounded parallel execution
//
// ## Bootstrap
//
// NewApplication performs the initialization sequence:
//
//   - **Logging**: debug or info level, discarded in silent mode
//   - **Application config**: config.yaml from the config directory, or the
//     defaults when the file is absent
//   - **Test collection**: loaded and validated against the registered run
//     types, so an unknown run.type fails before any cluster is created
//   - **Services**: created once and shared by every test run
//
// ## Run Types
//
// Two run types are registered:
//
//   - **sdk_command**: the working directory is shipped to the cluster head
//     node and the workload runs there over SSH. Files move through the
//     object store when one is configured, or over the SSH session
//     otherwise.
//   - **client**: the cluster is provisioned the same way, but the workload
//     runs on the local machine inside a temporary directory.
//
// ## Parallel Runs
//
// Several tests may run at once, bounded by Config.Parallelism. Every run
// gets its own Result and its own collaborators; nothing mutable is shared
// between runs. The error returned by Run belongs to the first failed test
// in selection order so that the process exit code is deterministic.
//
// # Usage Example
//
//	cfg := app.NewConfig(false, "", "release/release_tests.yaml")
//	cfg.TestNames = []string{"many_tasks"}
//	cfg.ProjectID = "prj_123"
//
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return err
//	}
//	results, err := application.Run(ctx)
package app
