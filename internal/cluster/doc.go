// Package cluster manages the backend resources of one release test run:
// a cluster compute template, a cluster environment, a build of that
// environment and the cluster itself.
//
// FullManager creates each resource at most once and in order. A resource is
// reused instead of created when its id is supplied up front (UseExisting),
// when a resource with the same deterministic name already exists, or, for
// builds, when the environment already has a successful build. Names embed
// the sha256 of the rendered configuration, so an unchanged file maps to the
// same template across runs.
//
// Build and startup are polled until a terminal state or a deadline. A
// terminal failure and an expired deadline are reported with distinct
// result kinds.
package cluster
