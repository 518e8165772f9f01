package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"runtime/debug"
	"time"

	"releasetest/internal/alert"
	"releasetest/internal/clock"
	"releasetest/internal/cluster"
	"releasetest/internal/config"
	"releasetest/internal/report"
	"releasetest/internal/result"
	"releasetest/pkg/logging"
)

// Defaults for the cluster deadlines and teardown grace period.
const (
	DefaultBuildTimeout    = 30 * time.Minute
	DefaultStartupTimeout  = 30 * time.Minute
	DefaultTeardownTimeout = 5 * time.Minute
)

// ConfigLoader resolves the cluster files of a test.
type ConfigLoader interface {
	LoadClusterEnv(test config.Test, data config.RenderData) (config.ClusterEnvConfig, error)
	LoadClusterCompute(test config.Test, data config.RenderData) (config.ClusterComputeConfig, error)
}

var _ ConfigLoader = (*config.ClusterLoader)(nil)

// Orchestrator runs release tests through the pipeline stages. It holds no
// per-run state and may run several tests concurrently.
type Orchestrator struct {
	loader   ConfigLoader
	registry *Registry
	alerts   *alert.Registry
	reporter report.Reporter
	clock    clock.Clock
	observer Observer

	buildTimeout    time.Duration
	startupTimeout  time.Duration
	teardownTimeout time.Duration
	artifactDir     string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithAlerts sets the alert handler registry.
func WithAlerts(r *alert.Registry) Option {
	return func(o *Orchestrator) { o.alerts = r }
}

// WithReporter sets the reporter invoked at the end of every run.
func WithReporter(r report.Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// WithClock sets the clock used for stage timings.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithObserver sets the stage observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithTimeouts sets the cluster env build and cluster startup deadlines.
func WithTimeouts(build, startup time.Duration) Option {
	return func(o *Orchestrator) {
		if build > 0 {
			o.buildTimeout = build
		}
		if startup > 0 {
			o.startupTimeout = startup
		}
	}
}

// WithTeardownTimeout bounds the time spent releasing the cluster.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.teardownTimeout = d
		}
	}
}

// WithArtifactDir sets where run.artifact_path files are downloaded to.
func WithArtifactDir(dir string) Option {
	return func(o *Orchestrator) { o.artifactDir = dir }
}

// New creates an Orchestrator.
func New(loader ConfigLoader, registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		loader:          loader,
		registry:        registry,
		alerts:          alert.NewRegistry(),
		clock:           clock.Real{},
		observer:        NoOpObserver{},
		buildTimeout:    DefaultBuildTimeout,
		startupTimeout:  DefaultStartupTimeout,
		teardownTimeout: DefaultTeardownTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state of a single pipeline run.
type run struct {
	o         *Orchestrator
	test      config.Test
	projectID string
	wheelsURL string
	res       *result.Result
	collab    Collaborators

	commandStarted bool
	logsFetched    bool
	terminated     bool
}

// Run executes every stage for test and populates res. It returns nil on
// success and the classified stage error otherwise; in both cases res
// carries the final classification. Teardown is attempted on every path.
func (o *Orchestrator) Run(ctx context.Context, test config.Test, projectID, wheelsURL string, res *result.Result) (err error) {
	r := &run{o: o, test: test, projectID: projectID, wheelsURL: wheelsURL, res: res}
	res.TestName = test.Name
	res.SmokeTest = test.SmokeTest
	res.WheelsURL = wheelsURL
	res.Runtime.StartedAt = o.clock.Now()

	logging.Info("Pipeline", "Starting release test %s (run %s, smoke test: %t)", test.Name, res.RunID, test.SmokeTest)

	defer func() {
		if p := recover(); p != nil {
			err = &result.PanicError{Value: p, Stack: debug.Stack()}
			logging.Error("Pipeline", err, "Release test %s panicked", test.Name)
		}
		err = r.finish(ctx, err)
	}()

	return r.execute(ctx)
}

func (r *run) execute(ctx context.Context) error {
	steps := []struct {
		stage Stage
		fn    func(context.Context) (skipped bool, err error)
	}{
		{StageSetup, r.setup},
		{StageLoadConfig, r.loadConfig},
		{StagePrepareLocalEnv, r.prepareLocalEnv},
		{StageCreateClusterCompute, r.createClusterCompute},
		{StageCreateClusterEnv, r.createClusterEnv},
		{StageBuildClusterEnv, r.buildClusterEnv},
		{StageStartCluster, r.startCluster},
		{StagePrepareRemoteEnv, r.prepareRemoteEnv},
		{StageWaitForNodes, r.waitForNodes},
		{StageRunPrepareCommand, r.runPrepareCommand},
		{StageRunCommand, r.runCommand},
		{StageFetchResult, r.fetchResult},
		{StageFetchLogs, r.fetchLogs},
		{StageAlert, r.alert},
	}
	for _, step := range steps {
		if err := r.stage(ctx, step.stage, step.fn); err != nil {
			return err
		}
	}
	return nil
}

// stage runs fn as stage, records its timing and gives untyped errors the
// stage's default kind.
func (r *run) stage(ctx context.Context, stage Stage, fn func(context.Context) (bool, error)) error {
	r.o.observer.StageStarted(r.test.Name, stage)
	start := r.o.clock.Now()
	logging.Debug("Pipeline", "%s: entering %s", r.test.Name, stage)

	skipped, err := fn(ctx)
	if err != nil {
		if _, typed := result.KindOf(err); !typed {
			if kind, ok := defaultKind[stage]; ok {
				err = result.Wrap(kind, err, "%s failed", stage)
			}
		}
	}

	record := result.StageRecord{
		Stage:     string(stage),
		StartedAt: start,
		Duration:  r.o.clock.Now().Sub(start),
		Skipped:   skipped,
	}
	if err != nil {
		record.Error = err.Error()
		logging.Warn("Pipeline", "%s: %s failed: %v", r.test.Name, stage, err)
	}
	r.res.Runtime.Stages = append(r.res.Runtime.Stages, record)
	r.o.observer.StageFinished(r.test.Name, stage, err)
	return err
}

func (r *run) setup(context.Context) (bool, error) {
	collab, err := r.o.registry.Build(Env{Test: r.test, ProjectID: r.projectID, RunID: r.res.RunID})
	r.collab = collab
	return false, err
}

func (r *run) loadConfig(context.Context) (bool, error) {
	data := config.RenderData{ProjectID: r.projectID, WheelsURL: r.wheelsURL}

	env, err := r.o.loader.LoadClusterEnv(r.test, data)
	if err != nil {
		return false, err
	}
	compute, err := r.o.loader.LoadClusterCompute(r.test, data)
	if err != nil {
		return false, err
	}

	manager := r.collab.Manager
	manager.SetClusterEnv(env)
	manager.SetClusterCompute(compute)
	manager.UseExisting(cluster.State{
		ClusterComputeID:  r.test.Cluster.ClusterComputeID,
		ClusterEnvID:      r.test.Cluster.ClusterEnvID,
		ClusterEnvBuildID: r.test.Cluster.ClusterEnvBuildID,
	})
	return false, nil
}

func (r *run) prepareLocalEnv(ctx context.Context) (bool, error) {
	return false, r.collab.Runner.PrepareLocalEnv(ctx)
}

func (r *run) createClusterCompute(ctx context.Context) (bool, error) {
	reused := r.collab.Manager.State().ClusterComputeID != ""
	err := r.collab.Manager.CreateClusterCompute(ctx)
	r.syncBuildtime()
	return reused, err
}

func (r *run) createClusterEnv(ctx context.Context) (bool, error) {
	reused := r.collab.Manager.State().ClusterEnvID != ""
	err := r.collab.Manager.CreateClusterEnv(ctx)
	r.syncBuildtime()
	return reused, err
}

func (r *run) buildClusterEnv(ctx context.Context) (bool, error) {
	reused := r.collab.Manager.State().ClusterEnvBuildID != ""
	err := r.collab.Manager.BuildClusterEnv(ctx, r.o.buildTimeout)
	r.syncBuildtime()
	return reused, err
}

func (r *run) startCluster(ctx context.Context) (bool, error) {
	err := r.collab.Manager.StartCluster(ctx, r.o.startupTimeout)
	r.syncBuildtime()
	r.res.ClusterURL = r.collab.Manager.ClusterURL()
	return false, err
}

func (r *run) prepareRemoteEnv(ctx context.Context) (bool, error) {
	return false, r.collab.Runner.PrepareRemoteEnv(ctx)
}

func (r *run) waitForNodes(ctx context.Context) (bool, error) {
	wait := r.test.Run.WaitForNodes
	if wait.NumNodes <= 0 {
		return true, nil
	}
	return false, r.collab.Runner.WaitForNodes(ctx, wait.NumNodes, wait.WaitTimeout())
}

func (r *run) runPrepareCommand(ctx context.Context) (bool, error) {
	if r.test.Run.Prepare == "" {
		return true, nil
	}
	r.commandStarted = true
	return false, r.collab.Runner.RunPrepareCommand(ctx, r.test.Run.Prepare, r.test.Run.PrepareCommandTimeout())
}

func (r *run) runCommand(ctx context.Context) (bool, error) {
	r.commandStarted = true
	runtime, err := r.collab.Runner.RunCommand(ctx, r.test.Run.Script, r.commandEnv(), r.test.Run.CommandTimeout())
	r.res.Runtime.CommandRuntime = runtime
	return false, err
}

// commandEnv is the environment of the workload command.
func (r *run) commandEnv() map[string]string {
	env := maps.Clone(r.test.Env)
	if env == nil {
		env = map[string]string{}
	}
	smoke := "0"
	if r.test.SmokeTest {
		smoke = "1"
	}
	env["IS_SMOKE_TEST"] = smoke
	env["RELEASE_TEST_NAME"] = r.test.Name
	env["RELEASETEST_RUN_ID"] = r.res.RunID
	if r.wheelsURL != "" {
		env["RELEASETEST_WHEELS_URL"] = r.wheelsURL
	}
	return env
}

func (r *run) fetchResult(ctx context.Context) (bool, error) {
	results, err := r.collab.Runner.FetchResults(ctx)
	if err != nil {
		return false, err
	}
	r.res.Results = results

	if path := r.test.Run.ArtifactPath; path != "" && r.o.artifactDir != "" {
		local := filepath.Join(r.o.artifactDir, r.test.Name, filepath.Base(path))
		if err := r.collab.Runner.FetchArtifact(ctx, path, local); err != nil {
			logging.Warn("Pipeline", "%s: could not fetch artifact: %v", r.test.Name, err)
		} else {
			logging.Info("Pipeline", "%s: artifact saved to %s", r.test.Name, local)
		}
	}
	return false, nil
}

// fetchLogs never fails the run; a LogsError only annotates the result.
func (r *run) fetchLogs(ctx context.Context) (bool, error) {
	r.logsFetched = true
	logs, err := r.collab.Runner.GetLastLogs(ctx)
	if err != nil {
		if _, typed := result.KindOf(err); !typed {
			err = result.Wrap(result.KindLogs, err, "could not fetch logs")
		}
		r.res.LogsError = err.Error()
		logging.Warn("Pipeline", "%s: %v", r.test.Name, err)
		return false, nil
	}
	r.res.LastLogs = logs
	return false, nil
}

func (r *run) alert(context.Context) (bool, error) {
	handler, ok := r.o.alerts.Get(r.test.Alert.Handler)
	if !ok {
		return false, result.NewError(result.KindResultsAlert, "unknown alert handler %q (known: %v)", r.test.Alert.Handler, r.o.alerts.Names())
	}
	msg, err := handler.Check(r.test, r.res.Results)
	if err != nil {
		return false, result.Wrap(result.KindResultsAlert, err, "alert handler %q failed", r.test.Alert.Handler)
	}
	if msg != "" {
		r.res.Alert = msg
		return false, result.NewError(result.KindResultsAlert, "results alert: %s", msg)
	}
	return false, nil
}

func (r *run) syncBuildtime() {
	s := r.collab.Manager.State()
	r.res.Buildtime = result.Buildtime{
		ClusterComputeID:  s.ClusterComputeID,
		ClusterEnvID:      s.ClusterEnvID,
		ClusterEnvBuildID: s.ClusterEnvBuildID,
		ClusterID:         s.ClusterID,
		ComputeCreated:    s.ComputeCreated,
		EnvCreated:        s.EnvCreated,
		BuildCreated:      s.BuildCreated,
	}
}

// finish runs the exit path: logs of a failed command, teardown, report and
// classification. None of these steps replaces an earlier stage error.
func (r *run) finish(ctx context.Context, err error) error {
	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.o.teardownTimeout)
	defer cancel()

	if err != nil && r.commandStarted && !r.logsFetched && r.collab.Runner != nil {
		_ = r.stage(exitCtx, StageFetchLogs, r.fetchLogs)
	}

	// Teardown errors stay on the stage record.
	_ = r.stage(exitCtx, StageTeardown, r.teardown)
	if n := len(r.res.Runtime.Stages); n > 0 {
		r.res.Runtime.Stages[n-1].Terminated = r.terminated
	}

	if r.o.reporter != nil {
		provisional := r.res.Clone()
		provisional.Finish(err, r.o.clock.Now())
		reportErr := r.stage(exitCtx, StageReport, func(ctx context.Context) (bool, error) {
			return false, r.o.reporter.Report(ctx, provisional)
		})
		if reportErr != nil && err == nil {
			err = reportErr
		}
	}

	r.o.observer.StageStarted(r.test.Name, StageDone)
	r.res.Finish(err, r.o.clock.Now())
	r.o.observer.StageFinished(r.test.Name, StageDone, err)

	if err != nil {
		logging.Error("Pipeline", err, "Release test %s failed with %s", r.test.Name, r.res.ReturnCode)
	} else {
		logging.Info("Pipeline", "Release test %s finished successfully in %s", r.test.Name, r.res.Duration().Round(time.Second))
	}
	return err
}

// teardown terminates the cluster and releases the runner.
func (r *run) teardown(ctx context.Context) (bool, error) {
	var errs []error
	if r.collab.Manager != nil {
		if err := r.collab.Manager.TerminateCluster(ctx); err != nil {
			errs = append(errs, err)
		} else {
			r.terminated = r.collab.Manager.State().ClusterID != ""
		}
	}
	switch {
	case r.collab.Runner != nil:
		if err := r.collab.Runner.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close command runner: %w", err))
		}
	case r.collab.Executor != nil:
		if err := r.collab.Executor.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close executor: %w", err))
		}
	}
	return r.collab.Manager == nil, errors.Join(errs...)
}
