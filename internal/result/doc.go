// Package result defines the outcome record of a release test run and the
// error taxonomy that classifies every failure into a stable process exit
// code.
//
// Stages and their collaborators return *Error values carrying a Kind. The
// pipeline classifies the terminal error once with Classify and records it
// on the Result through Finish:
//
//	err := result.NewError(result.KindClusterEnvBuildTimeout, "build %s did not finish within %s", id, timeout)
//	errors.Is(err, result.ErrClusterEnvBuildTimeout) // true
//	result.Classify(err)                             // result.ClusterEnvBuildTimeout (31)
//
// The mapping from Kind to ExitCode is total: every Kind has exactly one code,
// and several kinds may share a code (the three cluster resource creation
// kinds all map to CLUSTER_RESOURCE_ERROR).
package result
