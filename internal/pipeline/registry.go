package pipeline

import (
	"sort"

	"releasetest/internal/cluster"
	"releasetest/internal/command"
	"releasetest/internal/config"
	"releasetest/internal/filemanager"
	"releasetest/internal/remote"
	"releasetest/internal/result"
)

// Env identifies the run the collaborators are built for.
type Env struct {
	Test      config.Test
	ProjectID string
	RunID     string
}

// Collaborators are the per-run dependencies of a pipeline run.
type Collaborators struct {
	Manager  cluster.Manager
	Executor remote.Executor
	Files    filemanager.FileManager
	Runner   command.Runner
}

// RunType builds the collaborators for one run type.
type RunType struct {
	NewClusterManager func(env Env) (cluster.Manager, error)
	NewExecutor       func(env Env) (remote.Executor, error)
	NewFileManager    func(env Env, executor remote.Executor) (filemanager.FileManager, error)
	NewCommandRunner  func(env Env, manager cluster.Manager, files filemanager.FileManager, executor remote.Executor) (command.Runner, error)
}

// Registry maps run.type values to their RunType. It is built once at
// startup and not modified afterwards.
type Registry struct {
	types map[string]RunType
}

// NewRegistry creates a registry from a fixed table.
func NewRegistry(types map[string]RunType) *Registry {
	r := &Registry{types: make(map[string]RunType, len(types))}
	for name, rt := range types {
		r.types[name] = rt
	}
	return r
}

// Names returns the registered run types, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the RunType for name.
func (r *Registry) Lookup(name string) (RunType, error) {
	rt, ok := r.types[name]
	if !ok {
		return RunType{}, result.NewError(result.KindSetup, "unknown run type %q (known: %v)", name, r.Names())
	}
	return rt, nil
}

// Build constructs the collaborators for env. Every failure is a setup
// error; collaborators built before the failure are returned so they can be
// released.
func (r *Registry) Build(env Env) (Collaborators, error) {
	var c Collaborators
	rt, err := r.Lookup(env.Test.Run.Type)
	if err != nil {
		return c, err
	}
	if rt.NewClusterManager == nil || rt.NewExecutor == nil || rt.NewFileManager == nil || rt.NewCommandRunner == nil {
		return c, result.NewError(result.KindSetup, "run type %q is incomplete", env.Test.Run.Type)
	}

	if c.Manager, err = rt.NewClusterManager(env); err != nil {
		return c, result.Wrap(result.KindSetup, err, "could not create cluster manager")
	}
	if c.Executor, err = rt.NewExecutor(env); err != nil {
		return c, result.Wrap(result.KindSetup, err, "could not create executor")
	}
	if c.Files, err = rt.NewFileManager(env, c.Executor); err != nil {
		return c, result.Wrap(result.KindSetup, err, "could not create file manager")
	}
	if c.Runner, err = rt.NewCommandRunner(env, c.Manager, c.Files, c.Executor); err != nil {
		return c, result.Wrap(result.KindSetup, err, "could not create command runner")
	}
	return c, nil
}
