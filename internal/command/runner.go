package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"
	"time"

	"releasetest/internal/clock"
	"releasetest/internal/cluster"
	"releasetest/internal/filemanager"
	"releasetest/internal/remote"
	"releasetest/internal/result"
	"releasetest/pkg/logging"
)

const (
	// DefaultLogLines is how many trailing output lines GetLastLogs returns.
	DefaultLogLines = 100

	// ResultEnvVar names the file the workload writes its results to.
	ResultEnvVar = "TEST_OUTPUT_JSON"
)

// Runner prepares the environments of a release test and runs its commands.
// Every method fails with a single result kind.
type Runner interface {
	PrepareLocalEnv(ctx context.Context) error
	PrepareRemoteEnv(ctx context.Context) error
	WaitForNodes(ctx context.Context, numNodes int, timeout time.Duration) error
	RunPrepareCommand(ctx context.Context, command string, timeout time.Duration) error
	RunCommand(ctx context.Context, command string, env map[string]string, timeout time.Duration) (time.Duration, error)
	FetchResults(ctx context.Context) (map[string]interface{}, error)
	FetchArtifact(ctx context.Context, remotePath, localPath string) error
	GetLastLogs(ctx context.Context) (string, error)
	Close() error
}

// RemoteRunner implements Runner on top of a cluster manager, a file manager
// and an executor.
type RemoteRunner struct {
	manager  cluster.Manager
	files    filemanager.FileManager
	executor remote.Executor

	workingDir   string
	remoteDir    string
	resultPath   string
	archivePath  string
	clock        clock.Clock
	pollInterval time.Duration
	output       io.Writer
	logs         *tailBuffer
}

var _ Runner = (*RemoteRunner)(nil)

// Option configures a RemoteRunner.
type Option func(*RemoteRunner)

// WithClock sets the clock used by WaitForNodes.
func WithClock(c clock.Clock) Option {
	return func(r *RemoteRunner) { r.clock = c }
}

// WithPollInterval sets the delay between node count polls.
func WithPollInterval(d time.Duration) Option {
	return func(r *RemoteRunner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithOutput mirrors command output to w.
func WithOutput(w io.Writer) Option {
	return func(r *RemoteRunner) { r.output = w }
}

// NewRemoteRunner creates a runner that uploads workingDir to a directory
// under remoteBaseDir named after runID.
func NewRemoteRunner(manager cluster.Manager, files filemanager.FileManager, executor remote.Executor,
	workingDir, remoteBaseDir, runID string, opts ...Option) *RemoteRunner {
	r := &RemoteRunner{
		manager:      manager,
		files:        files,
		executor:     executor,
		workingDir:   workingDir,
		remoteDir:    path.Join(remoteBaseDir, runID, "workdir"),
		resultPath:   path.Join(remoteBaseDir, runID, "result.json"),
		clock:        clock.Real{},
		pollInterval: 10 * time.Second,
		logs:         newTailBuffer(DefaultLogLines),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RemoteDir is the directory commands run in.
func (r *RemoteRunner) RemoteDir() string {
	return r.remoteDir
}

// ResultPath is the value of TEST_OUTPUT_JSON.
func (r *RemoteRunner) ResultPath() string {
	return r.resultPath
}

// PrepareLocalEnv checks the working directory and packs it for upload.
func (r *RemoteRunner) PrepareLocalEnv(_ context.Context) error {
	info, err := os.Stat(r.workingDir)
	if err != nil {
		return result.Wrap(result.KindLocalEnvSetup, err, "working directory %s is not accessible", r.workingDir)
	}
	if !info.IsDir() {
		return result.NewError(result.KindLocalEnvSetup, "working directory %s is not a directory", r.workingDir)
	}

	archive, err := os.CreateTemp("", "releasetest-workdir-*.tar.gz")
	if err != nil {
		return result.Wrap(result.KindLocalEnvSetup, err, "could not create archive for %s", r.workingDir)
	}
	defer archive.Close()

	if err := filemanager.ArchiveDir(r.workingDir, archive); err != nil {
		os.Remove(archive.Name())
		return result.Wrap(result.KindLocalEnvSetup, err, "could not pack working directory")
	}
	r.archivePath = archive.Name()
	logging.Debug("CommandRunner", "Packed %s into %s", r.workingDir, r.archivePath)
	return nil
}

// PrepareRemoteEnv connects to the cluster and unpacks the working directory
// on it.
func (r *RemoteRunner) PrepareRemoteEnv(ctx context.Context) error {
	if r.archivePath == "" {
		return result.NewError(result.KindRemoteEnvSetup, "local environment was not prepared")
	}

	info, err := r.manager.Describe(ctx)
	if err != nil {
		return result.Wrap(result.KindRemoteEnvSetup, err, "could not describe cluster")
	}
	if err := r.executor.Connect(ctx, remote.Target{Host: info.HeadNodeAddress}); err != nil {
		return result.Wrap(result.KindRemoteEnvSetup, err, "could not connect to cluster %s", info.ID)
	}

	remoteArchive := path.Join(path.Dir(r.remoteDir), "workdir.tar.gz")
	if err := r.files.UploadFile(ctx, r.archivePath, remoteArchive); err != nil {
		return result.Wrap(result.KindRemoteEnvSetup, err, "could not upload working directory to cluster %s", info.ID)
	}

	unpack := fmt.Sprintf("mkdir -p %[1]s && tar -xzf %[2]s -C %[1]s && rm -f %[2]s",
		remote.ShellQuote(r.remoteDir), remote.ShellQuote(remoteArchive))
	resp, err := r.executor.Run(ctx, remote.Request{Command: unpack, Stdout: r.logs, Stderr: r.logs})
	if err != nil {
		return result.Wrap(result.KindRemoteEnvSetup, err, "could not unpack working directory on cluster %s", info.ID)
	}
	if resp.ExitCode != 0 {
		return result.NewError(result.KindRemoteEnvSetup, "unpacking working directory on cluster %s exited with code %d", info.ID, resp.ExitCode)
	}

	logging.Info("CommandRunner", "Working directory available at %s on cluster %s", r.remoteDir, info.ID)
	return nil
}

// WaitForNodes polls the cluster until at least numNodes nodes are alive.
func (r *RemoteRunner) WaitForNodes(ctx context.Context, numNodes int, timeout time.Duration) error {
	if numNodes <= 0 {
		return nil
	}

	logging.Info("CommandRunner", "Waiting for %d nodes (timeout %s)", numNodes, timeout)
	deadline := r.clock.Now().Add(timeout)
	alive := 0
	for {
		info, err := r.manager.Describe(ctx)
		if err != nil {
			logging.Warn("CommandRunner", "Could not get node count: %v", err)
		} else {
			alive = info.AliveNodes
			if alive >= numNodes {
				logging.Info("CommandRunner", "%d/%d nodes alive", alive, numNodes)
				return nil
			}
		}

		if !r.clock.Now().Before(deadline) {
			return result.NewError(result.KindClusterNodesWait, "only %d of %d nodes came up within %s", alive, numNodes, timeout)
		}
		wait := r.pollInterval
		if remaining := deadline.Sub(r.clock.Now()); remaining < wait {
			wait = remaining
		}
		if err := r.clock.Sleep(ctx, wait); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return result.Wrap(result.KindClusterNodesWait, err, "interrupted while waiting for nodes")
			}
			return result.Wrap(result.KindClusterStartup, err, "cancelled while waiting for nodes")
		}
	}
}

// RunPrepareCommand runs the optional prepare command.
func (r *RemoteRunner) RunPrepareCommand(ctx context.Context, command string, timeout time.Duration) error {
	if command == "" {
		return nil
	}
	_, err := r.run(ctx, command, nil, timeout, result.KindPrepareCommand, result.KindPrepareCommandTimeout)
	return err
}

// RunCommand runs the workload command and returns its runtime.
func (r *RemoteRunner) RunCommand(ctx context.Context, command string, env map[string]string, timeout time.Duration) (time.Duration, error) {
	return r.run(ctx, command, env, timeout, result.KindCommand, result.KindCommandTimeout)
}

func (r *RemoteRunner) run(ctx context.Context, command string, env map[string]string, timeout time.Duration, errKind, timeoutKind result.Kind) (time.Duration, error) {
	fullEnv := map[string]string{ResultEnvVar: r.resultPath}
	maps.Copy(fullEnv, env)

	var out io.Writer = r.logs
	if r.output != nil {
		out = io.MultiWriter(r.logs, r.output)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logging.Info("CommandRunner", "Running %q (timeout %s)", command, timeout)
	start := time.Now()
	resp, err := r.executor.Run(runCtx, remote.Request{
		Command: command,
		WorkDir: r.remoteDir,
		Env:     fullEnv,
		Stdout:  out,
		Stderr:  out,
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded):
		return elapsed, result.NewError(timeoutKind, "command %q timed out after %s", command, timeout)
	case err != nil:
		return elapsed, result.Wrap(errKind, err, "command %q could not be run", command)
	case resp.ExitCode != 0:
		return elapsed, result.NewError(errKind, "command %q exited with code %d", command, resp.ExitCode)
	}
	logging.Info("CommandRunner", "Command %q finished in %s", command, elapsed.Round(time.Millisecond))
	return elapsed, nil
}

// FetchResults downloads and decodes the JSON the workload wrote to
// TEST_OUTPUT_JSON.
func (r *RemoteRunner) FetchResults(ctx context.Context) (map[string]interface{}, error) {
	tmp, err := os.MkdirTemp("", "releasetest-result-*")
	if err != nil {
		return nil, result.Wrap(result.KindFetchResult, err, "could not create temporary directory")
	}
	defer os.RemoveAll(tmp)

	local := filepath.Join(tmp, "result.json")
	if err := r.files.DownloadFile(ctx, r.resultPath, local); err != nil {
		if errors.Is(err, filemanager.ErrRemoteFileNotFound) {
			return nil, result.Wrap(result.KindFetchResult, err, "workload did not write results to %s", r.resultPath)
		}
		return nil, result.Wrap(result.KindFetchResult, err, "could not download results")
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return nil, result.Wrap(result.KindFetchResult, err, "could not read downloaded results")
	}
	var results map[string]interface{}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, result.Wrap(result.KindFetchResult, err, "results in %s are not a JSON object", r.resultPath)
	}
	if results == nil {
		return nil, result.NewError(result.KindFetchResult, "results in %s are empty", r.resultPath)
	}
	return results, nil
}

// FetchArtifact downloads a file the workload produced. A relative
// remotePath is resolved against the remote working directory.
func (r *RemoteRunner) FetchArtifact(ctx context.Context, remotePath, localPath string) error {
	if !path.IsAbs(remotePath) {
		remotePath = path.Join(r.remoteDir, remotePath)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if err := r.files.DownloadFile(ctx, remotePath, localPath); err != nil {
		return fmt.Errorf("failed to fetch artifact %s: %w", remotePath, err)
	}
	return nil
}

// GetLastLogs returns the tail of the output of the commands run so far.
func (r *RemoteRunner) GetLastLogs(_ context.Context) (string, error) {
	if !r.logs.Written() {
		return "", result.NewError(result.KindLogs, "no command output was captured")
	}
	return r.logs.String(), nil
}

// Close releases the executor and the local archive.
func (r *RemoteRunner) Close() error {
	if r.archivePath != "" {
		os.Remove(r.archivePath)
		r.archivePath = ""
	}
	return r.executor.Close()
}
