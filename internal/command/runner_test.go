package command_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"releasetest/internal/command"
	"releasetest/internal/remote"
	"releasetest/internal/result"
	"releasetest/internal/testing/fake"
	"releasetest/internal/testing/mock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	manager  *fake.ClusterManager
	files    *fake.FileManager
	executor *fake.Executor
	clock    *mock.MockClock
	runner   *command.RemoteRunner
}

func newFixture(t *testing.T, workingDir string) *fixture {
	t.Helper()
	f := &fixture{
		manager:  fake.NewClusterManager(nil),
		files:    fake.NewFileManager(),
		executor: &fake.Executor{},
		clock:    mock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
	f.runner = command.NewRemoteRunner(f.manager, f.files, f.executor, workingDir, "/tmp/release_test", "run-1",
		command.WithClock(f.clock), command.WithPollInterval(10*time.Second))
	t.Cleanup(func() { f.runner.Close() })
	return f
}

func workingDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workload.py"), []byte("print('hi')\n"), 0644))
	return dir
}

func TestPrepareLocalEnv_MissingDir(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "missing"))

	err := f.runner.PrepareLocalEnv(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrLocalEnvSetup)
}

func TestPrepareLocalEnv_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	f := newFixture(t, file)

	err := f.runner.PrepareLocalEnv(context.Background())

	assert.ErrorIs(t, err, result.ErrLocalEnvSetup)
}

func TestPrepareRemoteEnv(t *testing.T) {
	f := newFixture(t, workingDir(t))
	ctx := context.Background()

	require.NoError(t, f.runner.PrepareLocalEnv(ctx))
	require.NoError(t, f.runner.PrepareRemoteEnv(ctx))

	assert.True(t, f.executor.Connected)
	assert.Equal(t, "10.0.0.1", f.executor.Target.Host)
	assert.Equal(t, []string{"/tmp/release_test/run-1/workdir.tar.gz"}, f.files.Uploads)
	cmds := f.executor.Commands()
	require.Len(t, cmds, 1)
	assert.Contains(t, cmds[0], "tar -xzf '/tmp/release_test/run-1/workdir.tar.gz' -C '/tmp/release_test/run-1/workdir'")
	assert.Equal(t, "/tmp/release_test/run-1/workdir", f.runner.RemoteDir())
}

func TestPrepareRemoteEnv_Failures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name:  "describe fails",
			setup: func(f *fixture) { f.manager.Errors["Describe"] = errors.New("api down") },
		},
		{
			name:  "connect fails",
			setup: func(f *fixture) { f.executor.ConnectErr = errors.New("connection refused") },
		},
		{
			name:  "upload fails",
			setup: func(f *fixture) { f.files.UploadErr = errors.New("disk full") },
		},
		{
			name: "unpack exits non-zero",
			setup: func(f *fixture) {
				f.executor.Handler = func(context.Context, remote.Request) (remote.Response, error) {
					return remote.Response{ExitCode: 2}, nil
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, workingDir(t))
			ctx := context.Background()
			require.NoError(t, f.runner.PrepareLocalEnv(ctx))
			tt.setup(f)

			err := f.runner.PrepareRemoteEnv(ctx)

			require.Error(t, err)
			assert.ErrorIs(t, err, result.ErrRemoteEnvSetup)
		})
	}
}

func TestPrepareRemoteEnv_WithoutLocalEnv(t *testing.T) {
	f := newFixture(t, workingDir(t))

	err := f.runner.PrepareRemoteEnv(context.Background())

	assert.ErrorIs(t, err, result.ErrRemoteEnvSetup)
}

func TestWaitForNodes(t *testing.T) {
	t.Run("zero nodes returns immediately", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		require.NoError(t, f.runner.WaitForNodes(context.Background(), 0, time.Minute))
		assert.Zero(t, f.manager.Log.Count("Describe"))
	})

	t.Run("nodes come up", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.manager.NodeCounts = []int{1, 2, 4}

		require.NoError(t, f.runner.WaitForNodes(context.Background(), 4, time.Minute))
		assert.Equal(t, 3, f.manager.Log.Count("Describe"))
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second}, f.clock.Sleeps())
	})

	t.Run("describe errors are retried", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.manager.Errors["Describe"] = errors.New("transient")
		f.clock.OnSleep(func(time.Duration) { delete(f.manager.Errors, "Describe") })

		require.NoError(t, f.runner.WaitForNodes(context.Background(), 1, time.Minute))
	})

	t.Run("deadline", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.manager.NodeCounts = []int{1}

		err := f.runner.WaitForNodes(context.Background(), 3, 25*time.Second)

		require.Error(t, err)
		assert.ErrorIs(t, err, result.ErrClusterNodesWait)
		assert.Contains(t, err.Error(), "only 1 of 3 nodes")
		assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 5 * time.Second}, f.clock.Sleeps())
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.manager.NodeCounts = []int{0}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := f.runner.WaitForNodes(ctx, 2, time.Minute)

		assert.ErrorIs(t, err, result.ErrClusterStartup)
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, result.Classify(err).IsTimeout())
	})

	t.Run("parent deadline", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.manager.NodeCounts = []int{0}
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := f.runner.WaitForNodes(ctx, 2, time.Minute)

		assert.ErrorIs(t, err, result.ErrClusterNodesWait)
		assert.Equal(t, result.ClusterWaitTimeout, result.Classify(err))
	})
}

func TestRunCommand(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.executor.Handler = func(_ context.Context, req remote.Request) (remote.Response, error) {
		fmt.Fprintln(req.Stdout, "step 1")
		fmt.Fprintln(req.Stderr, "step 2")
		return remote.Response{}, nil
	}

	_, err := f.runner.RunCommand(context.Background(), "python workload.py", map[string]string{"IS_SMOKE_TEST": "1"}, time.Minute)
	require.NoError(t, err)

	require.Len(t, f.executor.Requests, 1)
	req := f.executor.Requests[0]
	assert.Equal(t, "python workload.py", req.Command)
	assert.Equal(t, "/tmp/release_test/run-1/workdir", req.WorkDir)
	assert.Equal(t, "/tmp/release_test/run-1/result.json", req.Env[command.ResultEnvVar])
	assert.Equal(t, "1", req.Env["IS_SMOKE_TEST"])

	logs, err := f.runner.GetLastLogs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "step 1\nstep 2", logs)
}

func TestRunCommand_NonZeroExit(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.executor.Handler = func(context.Context, remote.Request) (remote.Response, error) {
		return remote.Response{ExitCode: 1}, nil
	}

	_, err := f.runner.RunCommand(context.Background(), "false", nil, time.Minute)

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrCommand)
	assert.Equal(t, result.CommandError, result.Classify(err))
}

func TestRunCommand_Timeout(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.executor.Handler = func(ctx context.Context, _ remote.Request) (remote.Response, error) {
		<-ctx.Done()
		return remote.Response{}, fmt.Errorf("command interrupted: %w", ctx.Err())
	}

	_, err := f.runner.RunCommand(context.Background(), "sleep 100", nil, 20*time.Millisecond)

	require.Error(t, err)
	assert.ErrorIs(t, err, result.ErrCommandTimeout)
	assert.Equal(t, result.CommandTimeout, result.Classify(err))
}

func TestRunCommand_ExecutorError(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.executor.Handler = func(context.Context, remote.Request) (remote.Response, error) {
		return remote.Response{}, errors.New("session lost")
	}

	_, err := f.runner.RunCommand(context.Background(), "true", nil, time.Minute)

	assert.ErrorIs(t, err, result.ErrCommand)
}

func TestRunPrepareCommand(t *testing.T) {
	t.Run("empty command is skipped", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		require.NoError(t, f.runner.RunPrepareCommand(context.Background(), "", time.Minute))
		assert.Empty(t, f.executor.Requests)
	})

	t.Run("failure", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.executor.Handler = func(context.Context, remote.Request) (remote.Response, error) {
			return remote.Response{ExitCode: 3}, nil
		}
		err := f.runner.RunPrepareCommand(context.Background(), "./prepare.sh", time.Minute)
		assert.ErrorIs(t, err, result.ErrPrepareCommand)
	})

	t.Run("timeout", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.executor.Handler = func(ctx context.Context, _ remote.Request) (remote.Response, error) {
			<-ctx.Done()
			return remote.Response{}, ctx.Err()
		}
		err := f.runner.RunPrepareCommand(context.Background(), "./prepare.sh", 10*time.Millisecond)
		assert.ErrorIs(t, err, result.ErrPrepareCommandTimeout)
	})
}

func TestFetchResults(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.files.Files[f.runner.ResultPath()] = []byte(`{"time_taken": 42.5, "success": 1}`)

	results, err := f.runner.FetchResults(context.Background())

	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"time_taken": 42.5, "success": float64(1)}, results)
}

func TestFetchResults_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content *string
	}{
		{name: "missing file"},
		{name: "malformed json", content: ptr("{not json")},
		{name: "not an object", content: ptr(`[1, 2]`)},
		{name: "null", content: ptr(`null`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, workingDir(t))
			if tt.content != nil {
				f.files.Files[f.runner.ResultPath()] = []byte(*tt.content)
			}

			_, err := f.runner.FetchResults(context.Background())

			require.Error(t, err)
			assert.ErrorIs(t, err, result.ErrFetchResult)
		})
	}
}

func TestFetchArtifact(t *testing.T) {
	f := newFixture(t, workingDir(t))
	f.files.Files["/tmp/release_test/run-1/workdir/out/metrics.csv"] = []byte("a,b\n")
	local := filepath.Join(t.TempDir(), "artifacts", "metrics.csv")

	require.NoError(t, f.runner.FetchArtifact(context.Background(), "out/metrics.csv", local))

	data, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

func TestGetLastLogs(t *testing.T) {
	t.Run("nothing captured", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		_, err := f.runner.GetLastLogs(context.Background())
		assert.ErrorIs(t, err, result.ErrLogs)
	})

	t.Run("keeps the tail", func(t *testing.T) {
		f := newFixture(t, workingDir(t))
		f.executor.Handler = func(_ context.Context, req remote.Request) (remote.Response, error) {
			for i := 0; i < command.DefaultLogLines+50; i++ {
				fmt.Fprintf(req.Stdout, "line %d\n", i)
			}
			fmt.Fprint(req.Stdout, "partial")
			return remote.Response{}, nil
		}
		_, err := f.runner.RunCommand(context.Background(), "python workload.py", nil, time.Minute)
		require.NoError(t, err)

		logs, err := f.runner.GetLastLogs(context.Background())
		require.NoError(t, err)
		lines := strings.Split(logs, "\n")
		assert.Len(t, lines, command.DefaultLogLines)
		assert.Equal(t, "partial", lines[len(lines)-1])
		assert.Equal(t, fmt.Sprintf("line %d", command.DefaultLogLines+50-1), lines[len(lines)-2])
	})
}

func TestClose(t *testing.T) {
	f := newFixture(t, workingDir(t))
	require.NoError(t, f.runner.PrepareLocalEnv(context.Background()))

	require.NoError(t, f.runner.Close())

	assert.True(t, f.executor.Closed)
}

func ptr(s string) *string { return &s }
