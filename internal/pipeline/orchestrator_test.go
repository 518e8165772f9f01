package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"releasetest/internal/alert"
	"releasetest/internal/cluster"
	"releasetest/internal/command"
	"releasetest/internal/config"
	"releasetest/internal/filemanager"
	"releasetest/internal/pipeline"
	"releasetest/internal/remote"
	"releasetest/internal/result"
	"releasetest/internal/testing/fake"
	"releasetest/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	clusterEnvFile     = "cluster_env.yaml"
	clusterComputeFile = "cluster_compute.yaml"
)

// harness wires an orchestrator to fakes. By default the cluster manager is
// fake.ClusterManager; useProvisioner swaps in a real FullManager backed by
// fake.Provisioner.
type harness struct {
	t        *testing.T
	dir      string
	log      *fake.CallLog
	manager  cluster.Manager
	fakeMgr  *fake.ClusterManager
	prov     *fake.Provisioner
	runner   *fake.Runner
	executor *fake.Executor
	clock    *mock.MockClock
	trace    *pipeline.Trace
	reporter *recordingReporter
	opts     []pipeline.Option
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, clusterEnvFile, "base_image: anyscale/ray:nightly\npost_build_cmds:\n  - pip install {{ .WheelsURL }}\n")
	writeFile(t, dir, clusterComputeFile, "region: us-west-2\nhead_node_type:\n  instance_type: m5.xlarge\n")

	log := &fake.CallLog{}
	h := &harness{
		t:        t,
		dir:      dir,
		log:      log,
		fakeMgr:  fake.NewClusterManager(log),
		runner:   fake.NewRunner(log),
		executor: &fake.Executor{},
		clock:    mock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		trace:    &pipeline.Trace{},
		reporter: &recordingReporter{},
	}
	h.manager = h.fakeMgr
	return h
}

func (h *harness) useProvisioner() {
	h.prov = fake.NewProvisioner()
	h.manager = cluster.NewFullManager(h.prov, "prj_1", "many_tasks",
		cluster.WithClock(h.clock), cluster.WithPollInterval(10*time.Second))
	h.fakeMgr = nil
}

func (h *harness) registry() *pipeline.Registry {
	return pipeline.NewRegistry(map[string]pipeline.RunType{
		"sdk_command": {
			NewClusterManager: func(pipeline.Env) (cluster.Manager, error) { return h.manager, nil },
			NewExecutor:       func(pipeline.Env) (remote.Executor, error) { return h.executor, nil },
			NewFileManager: func(pipeline.Env, remote.Executor) (filemanager.FileManager, error) {
				return fake.NewFileManager(), nil
			},
			NewCommandRunner: func(pipeline.Env, cluster.Manager, filemanager.FileManager, remote.Executor) (command.Runner, error) {
				return h.runner, nil
			},
		},
	})
}

func (h *harness) orchestrator() *pipeline.Orchestrator {
	opts := append([]pipeline.Option{
		pipeline.WithClock(h.clock),
		pipeline.WithObserver(h.trace),
		pipeline.WithReporter(h.reporter),
		pipeline.WithTimeouts(time.Minute, time.Minute),
	}, h.opts...)
	return pipeline.New(config.NewClusterLoader(), h.registry(), opts...)
}

func (h *harness) test() config.Test {
	return config.Test{
		Name:       "many_tasks",
		WorkingDir: h.dir,
		Env:        map[string]string{"REGION": "us-west-2"},
		Cluster: config.ClusterConfig{
			ClusterEnv:     clusterEnvFile,
			ClusterCompute: clusterComputeFile,
		},
		Run: config.RunConfig{
			Type:    "sdk_command",
			Script:  "python workload.py",
			Timeout: 600,
		},
	}
}

func (h *harness) run(test config.Test) (*result.Result, error) {
	res := result.New()
	err := h.orchestrator().Run(context.Background(), test, "prj_1", "https://wheels/ray.whl", res)
	return res, err
}

// assertTornDown checks the exit path ran after a failure.
func (h *harness) assertTornDown(res *result.Result) {
	h.t.Helper()
	if h.fakeMgr != nil {
		assert.Equal(h.t, 1, h.log.Count("TerminateCluster"), "cluster terminated once")
	}
	assert.True(h.t, h.runner.Closed, "runner closed")
	assert.True(h.t, h.trace.Balanced(), "every stage entered was exited")
	assert.Len(h.t, h.reporter.results, 1, "result reported")
	assert.True(h.t, res.Finished())
	assert.Equal(h.t, result.StatusFor(res.ReturnCode), res.Status)
}

type recordingReporter struct {
	results []*result.Result
	err     error
}

func (r *recordingReporter) Name() string { return "recording" }

func (r *recordingReporter) Report(_ context.Context, res *result.Result) error {
	r.results = append(r.results, res)
	return r.err
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRun_Success(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(h.test())

	require.NoError(t, err)
	assert.Equal(t, result.Success, res.ReturnCode)
	assert.Equal(t, result.StatusFinished, res.Status)
	assert.Equal(t, "many_tasks", res.TestName)
	assert.Equal(t, "https://wheels/ray.whl", res.WheelsURL)
	assert.Equal(t, map[string]interface{}{"time_taken": 12.5}, res.Results)
	assert.Equal(t, "workload done", res.LastLogs)
	assert.Equal(t, 2*time.Second, res.Runtime.CommandRuntime)
	assert.NotEmpty(t, res.ClusterURL)
	assert.NotEmpty(t, res.Buildtime.ClusterEnvBuildID)
	assert.NotEmpty(t, res.Buildtime.ClusterID)

	assert.Equal(t, pipeline.Stages(), h.trace.Entered())
	h.assertTornDown(res)
	assert.Equal(t, result.Success, h.reporter.results[0].ReturnCode)

	require.NotNil(t, h.fakeMgr.Env)
	assert.Equal(t, []interface{}{"pip install https://wheels/ray.whl"}, h.fakeMgr.Env.Spec["post_build_cmds"])
	assert.Equal(t, "us-west-2", h.fakeMgr.Compute.Spec["region"])
}

func TestRun_CollaboratorCallOrder(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(h.test())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"PrepareLocalEnv",
		"CreateClusterCompute",
		"CreateClusterEnv",
		"BuildClusterEnv",
		"StartCluster",
		"PrepareRemoteEnv",
		"RunCommand",
		"FetchResults",
		"GetLastLogs",
		"TerminateCluster",
		"Close",
	}, h.log.Calls())
}

func TestRun_CommandEnvironment(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(h.test())
	require.NoError(t, err)

	require.Len(t, h.runner.Envs, 1)
	env := h.runner.Envs[0]
	assert.Equal(t, "0", env["IS_SMOKE_TEST"])
	assert.Equal(t, "many_tasks", env["RELEASE_TEST_NAME"])
	assert.Equal(t, res.RunID, env["RELEASETEST_RUN_ID"])
	assert.Equal(t, "us-west-2", env["REGION"])
	assert.Equal(t, []string{"python workload.py"}, h.runner.Commands)
	assert.Equal(t, 600*time.Second, h.runner.Timeouts["RunCommand"])
}

// Scenario A.
func TestRun_MissingClusterEnvFile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.Remove(filepath.Join(h.dir, clusterEnvFile)))

	res, err := h.run(h.test())

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrConfig)
	assert.Contains(t, err.Error(), "not found")
	assert.Equal(t, result.ConfigError, res.ReturnCode)
	h.assertTornDown(res)
	assert.Zero(t, h.log.Count("CreateClusterCompute"))
}

// Scenario B.
func TestRun_InvalidTemplate(t *testing.T) {
	h := newHarness(t)
	writeFile(t, h.dir, clusterEnvFile, "base_image: {{ INVALID\n")

	res, err := h.run(h.test())

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrConfig)
	assert.Contains(t, err.Error(), "template")
	assert.Equal(t, result.ConfigError, res.ReturnCode)
}

func TestRun_ConfigErrorsFromEitherFile(t *testing.T) {
	tests := []struct {
		name  string
		file  string
		write *string
	}{
		{name: "missing env file", file: clusterEnvFile},
		{name: "missing compute file", file: clusterComputeFile},
		{name: "bad env template", file: clusterEnvFile, write: ptr("a: {{ .Nope.Nope }}")},
		{name: "bad compute template", file: clusterComputeFile, write: ptr("a: {{ if }}")},
		{name: "malformed env document", file: clusterEnvFile, write: ptr("a: [1, 2\n")},
		{name: "malformed compute document", file: clusterComputeFile, write: ptr("a: b: c\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.write == nil {
				require.NoError(t, os.Remove(filepath.Join(h.dir, tt.file)))
			} else {
				writeFile(t, h.dir, tt.file, *tt.write)
			}

			res, err := h.run(h.test())

			assert.ErrorIs(t, err, result.ErrConfig)
			assert.Equal(t, result.ConfigError, res.ReturnCode)
			assert.Contains(t, err.Error(), tt.file)
		})
	}
}

// Scenario C.
func TestRun_CommandFailure(t *testing.T) {
	h := newHarness(t)
	h.runner.Errors["RunCommand"] = result.NewError(result.KindCommand, "command exited with code 1")
	h.runner.Logs = "Traceback: boom"

	res, err := h.run(h.test())

	require.Error(t, err)
	assert.Equal(t, result.CommandError, res.ReturnCode)
	assert.Equal(t, result.StatusError, res.Status)
	assert.Equal(t, result.KindCommand, res.ErrorKind)
	assert.Equal(t, "Traceback: boom", res.LastLogs, "logs are fetched on the failure path")
	assert.Zero(t, h.log.Count("FetchResults"))
	h.assertTornDown(res)
	assert.Equal(t, result.CommandError, h.reporter.results[0].ReturnCode)
}

// Scenario D.
func TestRun_FreshResources(t *testing.T) {
	h := newHarness(t)
	h.useProvisioner()

	res, err := h.run(h.test())

	require.NoError(t, err)
	assert.Equal(t, result.Success, res.ReturnCode)
	bt := res.Buildtime
	assert.NotEmpty(t, bt.ClusterComputeID)
	assert.NotEmpty(t, bt.ClusterEnvID)
	assert.NotEmpty(t, bt.ClusterEnvBuildID)
	assert.NotEmpty(t, bt.ClusterID)
	assert.True(t, bt.ComputeCreated)
	assert.True(t, bt.EnvCreated)
	assert.True(t, bt.BuildCreated)
	assert.Equal(t, 3, h.prov.CreateCalls())
	assert.Equal(t, 1, h.prov.Count("CreateCluster"))
	assert.Equal(t, 1, h.prov.Count("TerminateCluster"))
}

// Scenario E.
func TestRun_ExistingResources(t *testing.T) {
	h := newHarness(t)
	h.useProvisioner()
	test := h.test()
	test.Cluster.ClusterComputeID = "cpt_existing"
	test.Cluster.ClusterEnvID = "apt_existing"
	test.Cluster.ClusterEnvBuildID = "bld_existing"

	res, err := h.run(test)

	require.NoError(t, err)
	assert.Equal(t, result.Success, res.ReturnCode)
	assert.Zero(t, h.prov.CreateCalls())
	assert.Zero(t, h.prov.Count("FindComputeTemplate"))
	assert.Zero(t, h.prov.Count("FindClusterEnv"))
	assert.Equal(t, 1, h.prov.Count("CreateCluster"))
	assert.Equal(t, "cpt_existing", res.Buildtime.ClusterComputeID)
	assert.Equal(t, "apt_existing", res.Buildtime.ClusterEnvID)
	assert.Equal(t, "bld_existing", res.Buildtime.ClusterEnvBuildID)
	assert.False(t, res.Buildtime.ComputeCreated)

	// The creation states are still entered and exited.
	entered := h.trace.Entered()
	assert.Contains(t, entered, pipeline.StageCreateClusterCompute)
	assert.Contains(t, entered, pipeline.StageCreateClusterEnv)
	assert.Contains(t, entered, pipeline.StageBuildClusterEnv)
	for _, s := range res.Runtime.Stages {
		switch pipeline.Stage(s.Stage) {
		case pipeline.StageCreateClusterCompute, pipeline.StageCreateClusterEnv, pipeline.StageBuildClusterEnv:
			assert.True(t, s.Skipped, s.Stage)
		}
	}
}

func TestRun_BuildErrorAndTimeoutAreDistinct(t *testing.T) {
	tests := []struct {
		name     string
		statuses []cluster.BuildStatus
		want     result.ExitCode
	}{
		{
			name:     "build fails",
			statuses: []cluster.BuildStatus{cluster.BuildInProgress, cluster.BuildFailed},
			want:     result.ClusterEnvBuildError,
		},
		{
			name:     "build never finishes",
			statuses: []cluster.BuildStatus{cluster.BuildInProgress},
			want:     result.ClusterEnvBuildTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.useProvisioner()
			h.prov.BuildStatuses = tt.statuses

			res, err := h.run(h.test())

			require.Error(t, err)
			assert.Equal(t, tt.want, res.ReturnCode)
			assert.Zero(t, h.prov.Count("CreateCluster"), "cluster never started without a build")
			assert.True(t, h.runner.Closed)
		})
	}
}

func TestRun_StartupErrorAndTimeoutAreDistinct(t *testing.T) {
	tests := []struct {
		name   string
		states []cluster.ClusterState
		want   result.ExitCode
	}{
		{
			name:   "startup fails",
			states: []cluster.ClusterState{cluster.ClusterStarting, cluster.ClusterFailed},
			want:   result.ClusterStartupError,
		},
		{
			name:   "startup never finishes",
			states: []cluster.ClusterState{cluster.ClusterStarting},
			want:   result.ClusterStartupTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.useProvisioner()
			h.prov.ClusterStates = tt.states

			res, err := h.run(h.test())

			require.Error(t, err)
			assert.Equal(t, tt.want, res.ReturnCode)
			assert.NotEmpty(t, res.Buildtime.ClusterID)
			assert.Equal(t, 1, h.prov.Count("TerminateCluster"), "started cluster is terminated")
		})
	}
}

func TestRun_UnexpectedCreateResponse(t *testing.T) {
	for _, method := range []string{"CreateComputeTemplate", "CreateClusterEnv", "CreateCluster"} {
		t.Run(method, func(t *testing.T) {
			h := newHarness(t)
			h.useProvisioner()
			h.prov.EmptyID[method] = true

			res, err := h.run(h.test())

			require.Error(t, err)
			assert.Equal(t, result.ClusterResourceError, res.ReturnCode)
		})
	}
}

func TestRun_StageFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(h *harness)
		want      result.ExitCode
		lastStage pipeline.Stage
	}{
		{
			name: "local env",
			configure: func(h *harness) {
				h.runner.Errors["PrepareLocalEnv"] = result.NewError(result.KindLocalEnvSetup, "no dir")
			},
			want:      result.LocalEnvSetupError,
			lastStage: pipeline.StagePrepareLocalEnv,
		},
		{
			name:      "compute create",
			configure: func(h *harness) { h.fakeMgr.Errors["CreateClusterCompute"] = errors.New("rejected") },
			want:      result.ClusterResourceError,
			lastStage: pipeline.StageCreateClusterCompute,
		},
		{
			name:      "env create",
			configure: func(h *harness) { h.fakeMgr.Errors["CreateClusterEnv"] = errors.New("rejected") },
			want:      result.ClusterResourceError,
			lastStage: pipeline.StageCreateClusterEnv,
		},
		{
			name: "build timeout",
			configure: func(h *harness) {
				h.fakeMgr.Errors["BuildClusterEnv"] = result.NewError(result.KindClusterEnvBuildTimeout, "timed out")
			},
			want:      result.ClusterEnvBuildTimeout,
			lastStage: pipeline.StageBuildClusterEnv,
		},
		{
			name:      "start rejected",
			configure: func(h *harness) { h.fakeMgr.Errors["StartCluster"] = errors.New("quota exceeded") },
			want:      result.ClusterResourceError,
			lastStage: pipeline.StageStartCluster,
		},
		{
			name:      "remote env",
			configure: func(h *harness) { h.runner.Errors["PrepareRemoteEnv"] = errors.New("ssh refused") },
			want:      result.RemoteEnvSetupError,
			lastStage: pipeline.StagePrepareRemoteEnv,
		},
		{
			name: "wait for nodes",
			configure: func(h *harness) {
				h.runner.Errors["WaitForNodes"] = result.NewError(result.KindClusterNodesWait, "only 1 of 4")
			},
			want:      result.ClusterWaitTimeout,
			lastStage: pipeline.StageWaitForNodes,
		},
		{
			name:      "prepare command",
			configure: func(h *harness) { h.runner.Errors["RunPrepareCommand"] = errors.New("exit 1") },
			want:      result.PrepareError,
			lastStage: pipeline.StageRunPrepareCommand,
		},
		{
			name: "prepare timeout",
			configure: func(h *harness) {
				h.runner.Errors["RunPrepareCommand"] = result.NewError(result.KindPrepareCommandTimeout, "timed out")
			},
			want:      result.PrepareTimeout,
			lastStage: pipeline.StageRunPrepareCommand,
		},
		{
			name: "command timeout",
			configure: func(h *harness) {
				h.runner.Errors["RunCommand"] = result.NewError(result.KindCommandTimeout, "timed out")
			},
			want:      result.CommandTimeout,
			lastStage: pipeline.StageRunCommand,
		},
		{
			name:      "fetch result",
			configure: func(h *harness) { h.runner.Errors["FetchResults"] = errors.New("no such file") },
			want:      result.FetchResultError,
			lastStage: pipeline.StageFetchResult,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.configure(h)
			test := h.test()
			test.Run.Prepare = "./prepare.sh"
			test.Run.WaitForNodes = config.WaitForNodesConfig{NumNodes: 4, Timeout: 60}

			res, err := h.run(test)

			require.Error(t, err)
			assert.Equal(t, tt.want, res.ReturnCode)
			assert.Equal(t, tt.want, result.Classify(err))
			h.assertTornDown(res)

			entered := h.trace.Entered()
			require.GreaterOrEqual(t, len(entered), 3)
			tail := entered[len(entered)-3:]
			assert.Equal(t, []pipeline.Stage{pipeline.StageTeardown, pipeline.StageReport, pipeline.StageDone}, tail)
			assert.Contains(t, entered, tt.lastStage)
			assert.NotContains(t, entered, pipeline.StageAlert)
		})
	}
}

func TestRun_StartClusterNeverBeforeBuild(t *testing.T) {
	h := newHarness(t)
	h.fakeMgr.Errors["BuildClusterEnv"] = result.NewError(result.KindClusterEnvBuild, "failed")

	_, err := h.run(h.test())

	require.Error(t, err)
	assert.Zero(t, h.log.Count("StartCluster"))
	assert.Zero(t, h.log.Count("PrepareRemoteEnv"))
}

func TestRun_SkipsOptionalStages(t *testing.T) {
	h := newHarness(t)

	res, err := h.run(h.test())
	require.NoError(t, err)

	assert.Zero(t, h.log.Count("WaitForNodes"))
	assert.Zero(t, h.log.Count("RunPrepareCommand"))
	skipped := map[string]bool{}
	for _, s := range res.Runtime.Stages {
		skipped[s.Stage] = s.Skipped
	}
	assert.True(t, skipped[string(pipeline.StageWaitForNodes)])
	assert.True(t, skipped[string(pipeline.StageRunPrepareCommand)])
}

func TestRun_WaitForNodesAndPrepare(t *testing.T) {
	h := newHarness(t)
	test := h.test()
	test.Run.Prepare = "./prepare.sh"
	test.Run.PrepareTimeout = 120
	test.Run.WaitForNodes = config.WaitForNodesConfig{NumNodes: 4, Timeout: 300}

	_, err := h.run(test)
	require.NoError(t, err)

	assert.Equal(t, 4, h.runner.Nodes)
	assert.Equal(t, 300*time.Second, h.runner.Timeouts["WaitForNodes"])
	assert.Equal(t, 120*time.Second, h.runner.Timeouts["RunPrepareCommand"])
	assert.Equal(t, []string{"./prepare.sh", "python workload.py"}, h.runner.Commands)
}

func TestRun_SmokeTest(t *testing.T) {
	h := newHarness(t)
	test := h.test()
	test.SmokeTestOverrides = &config.SmokeTestConfig{Run: config.RunConfig{Timeout: 60}}
	smoke, err := test.AsSmokeTest()
	require.NoError(t, err)

	res, err := h.run(smoke)

	require.NoError(t, err)
	assert.True(t, res.SmokeTest)
	assert.Equal(t, "1", h.runner.Envs[0]["IS_SMOKE_TEST"])
	assert.Equal(t, 60*time.Second, h.runner.Timeouts["RunCommand"])
	assert.Equal(t, pipeline.Stages(), h.trace.Entered())
}

func TestRun_TeardownFailureDoesNotOverride(t *testing.T) {
	t.Run("success stays success", func(t *testing.T) {
		h := newHarness(t)
		h.fakeMgr.Errors["TerminateCluster"] = errors.New("api down")

		res, err := h.run(h.test())

		require.NoError(t, err)
		assert.Equal(t, result.Success, res.ReturnCode)
		var teardown result.StageRecord
		for _, s := range res.Runtime.Stages {
			if s.Stage == string(pipeline.StageTeardown) {
				teardown = s
			}
		}
		assert.Contains(t, teardown.Error, "api down")
		assert.False(t, teardown.Terminated)
	})

	t.Run("failure keeps its code", func(t *testing.T) {
		h := newHarness(t)
		h.fakeMgr.Errors["TerminateCluster"] = errors.New("api down")
		h.runner.Errors["RunCommand"] = result.NewError(result.KindCommandTimeout, "timed out")

		res, err := h.run(h.test())

		require.Error(t, err)
		assert.Equal(t, result.CommandTimeout, res.ReturnCode)
	})
}

func TestRun_LogsErrorNeverOverrides(t *testing.T) {
	h := newHarness(t)
	h.runner.Errors["GetLastLogs"] = errors.New("log file rotated")

	res, err := h.run(h.test())

	require.NoError(t, err)
	assert.Equal(t, result.Success, res.ReturnCode)
	assert.Contains(t, res.LogsError, "log file rotated")
}

func TestRun_Alert(t *testing.T) {
	limit := 10.0
	h := newHarness(t)
	test := h.test()
	test.Alert = config.AlertConfig{
		Handler:    alert.ThresholdHandler,
		Thresholds: map[string]config.Threshold{"time_taken": {Max: &limit}},
	}

	res, err := h.run(test)

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrResultsAlert)
	assert.Equal(t, result.CommandAlert, res.ReturnCode)
	assert.Equal(t, "time_taken=12.5 is above maximum 10", res.Alert)
	assert.Equal(t, map[string]interface{}{"time_taken": 12.5}, res.Results)
	h.assertTornDown(res)
}

func TestRun_UnknownAlertHandler(t *testing.T) {
	h := newHarness(t)
	test := h.test()
	test.Alert.Handler = "pagerduty"

	res, err := h.run(test)

	require.Error(t, err)
	assert.Equal(t, result.CommandAlert, res.ReturnCode)
}

func TestRun_ReportFailure(t *testing.T) {
	t.Run("fails a successful run", func(t *testing.T) {
		h := newHarness(t)
		h.reporter.err = errors.New("disk full")

		res, err := h.run(h.test())

		require.Error(t, err)
		assert.Equal(t, result.ReportError, res.ReturnCode)
		assert.Equal(t, result.Success, h.reporter.results[0].ReturnCode, "reporter saw the run outcome")
	})

	t.Run("does not mask an earlier failure", func(t *testing.T) {
		h := newHarness(t)
		h.reporter.err = errors.New("disk full")
		h.runner.Errors["FetchResults"] = errors.New("missing")

		res, err := h.run(h.test())

		require.Error(t, err)
		assert.Equal(t, result.FetchResultError, res.ReturnCode)
	})
}

func TestRun_UnknownRunType(t *testing.T) {
	h := newHarness(t)
	test := h.test()
	test.Run.Type = "job"

	res, err := h.run(test)

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrSetup)
	assert.Equal(t, result.SetupError, res.ReturnCode)
	assert.Empty(t, h.log.Calls(), "no collaborator was used")
	assert.Equal(t, []pipeline.Stage{
		pipeline.StageSetup, pipeline.StageTeardown, pipeline.StageReport, pipeline.StageDone,
	}, h.trace.Entered())
}

func TestRun_CollaboratorConstructionFails(t *testing.T) {
	h := newHarness(t)
	registry := pipeline.NewRegistry(map[string]pipeline.RunType{
		"sdk_command": {
			NewClusterManager: func(pipeline.Env) (cluster.Manager, error) { return h.fakeMgr, nil },
			NewExecutor:       func(pipeline.Env) (remote.Executor, error) { return h.executor, nil },
			NewFileManager: func(pipeline.Env, remote.Executor) (filemanager.FileManager, error) {
				return nil, errors.New("bucket not configured")
			},
			NewCommandRunner: func(pipeline.Env, cluster.Manager, filemanager.FileManager, remote.Executor) (command.Runner, error) {
				return h.runner, nil
			},
		},
	})
	o := pipeline.New(config.NewClusterLoader(), registry, pipeline.WithClock(h.clock))
	res := result.New()

	err := o.Run(context.Background(), h.test(), "prj_1", "", res)

	require.Error(t, err)
	assert.Equal(t, result.SetupError, res.ReturnCode)
	assert.True(t, h.executor.Closed, "partially built collaborators are released")
}

func TestRun_Panic(t *testing.T) {
	h := newHarness(t)
	registry := pipeline.NewRegistry(map[string]pipeline.RunType{
		"sdk_command": {
			NewClusterManager: func(pipeline.Env) (cluster.Manager, error) { return h.fakeMgr, nil },
			NewExecutor:       func(pipeline.Env) (remote.Executor, error) { return h.executor, nil },
			NewFileManager: func(pipeline.Env, remote.Executor) (filemanager.FileManager, error) {
				return fake.NewFileManager(), nil
			},
			NewCommandRunner: func(pipeline.Env, cluster.Manager, filemanager.FileManager, remote.Executor) (command.Runner, error) {
				return panickingRunner{h.runner}, nil
			},
		},
	})
	o := pipeline.New(config.NewClusterLoader(), registry, pipeline.WithClock(h.clock))
	res := result.New()

	err := o.Run(context.Background(), h.test(), "prj_1", "", res)

	require.Error(t, err)
	assert.Equal(t, result.Uncaught, res.ReturnCode)
	assert.Equal(t, 1, h.log.Count("TerminateCluster"))
	assert.True(t, h.runner.Closed)
}

type panickingRunner struct {
	*fake.Runner
}

func (panickingRunner) RunCommand(context.Context, string, map[string]string, time.Duration) (time.Duration, error) {
	panic("nil map")
}

func TestRun_Artifact(t *testing.T) {
	h := newHarness(t)
	artifacts := t.TempDir()
	h.opts = append(h.opts, pipeline.WithArtifactDir(artifacts))
	test := h.test()
	test.Run.ArtifactPath = "out/metrics.csv"

	_, err := h.run(test)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(artifacts, "many_tasks", "metrics.csv"), h.runner.Fetched["out/metrics.csv"])
}

func TestRun_ArtifactFailureIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.opts = append(h.opts, pipeline.WithArtifactDir(t.TempDir()))
	h.runner.Errors["FetchArtifact"] = errors.New("missing")
	test := h.test()
	test.Run.ArtifactPath = "out/metrics.csv"

	res, err := h.run(test)

	require.NoError(t, err)
	assert.Equal(t, result.Success, res.ReturnCode)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	type outcome struct {
		res *result.Result
		err error
	}
	done := make(chan outcome, 2)

	for _, fail := range []bool{false, true} {
		h := newHarness(t)
		if fail {
			h.runner.Errors["RunCommand"] = result.NewError(result.KindCommand, "exit 1")
		}
		o := h.orchestrator()
		test := h.test()
		go func() {
			res := result.New()
			err := o.Run(context.Background(), test, "prj_1", "", res)
			done <- outcome{res, err}
		}()
	}

	codes := map[result.ExitCode]int{}
	for i := 0; i < 2; i++ {
		out := <-done
		codes[out.res.ReturnCode]++
	}
	assert.Equal(t, map[result.ExitCode]int{result.Success: 1, result.CommandError: 1}, codes)
}

func ptr(s string) *string { return &s }
