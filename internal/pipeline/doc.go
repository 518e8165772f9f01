// Package pipeline runs a release test through its stages and classifies
// the outcome into an exit code.
//
// The stages of a run are, in order:
//
//	Setup, LoadConfig, PrepareLocalEnv, CreateClusterCompute,
//	CreateClusterEnv, BuildClusterEnv, StartCluster, PrepareRemoteEnv,
//	WaitForNodes, RunPrepareCommand, RunCommand, FetchResult, FetchLogs,
//	Alert, Teardown, Report, Done
//
// The first failing stage ends the run. Its error is given the stage's
// result kind if the collaborator returned an untyped error, recorded on
// the Result and returned. Teardown, Report and Done run on every path;
// a failing teardown never changes the classification, and a failing
// report only does so when every earlier stage succeeded.
//
// Collaborators are built per run from a Registry keyed by the test's
// run.type, so concurrent runs share no mutable state.
package pipeline
