package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"releasetest/pkg/logging"
)

// execCommandContext is a variable to allow mocking in tests
var execCommandContext = exec.CommandContext

// LocalExecutor runs commands on the invoking machine. Client-mode tests
// use it to drive a remote cluster from a local script.
type LocalExecutor struct {
	target Target
	// WaitDelay bounds how long Run waits for output pipes after the
	// process was killed.
	WaitDelay time.Duration
}

var _ Executor = (*LocalExecutor)(nil)

// NewLocalExecutor creates a local executor.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{WaitDelay: 5 * time.Second}
}

// Connect records the cluster target; the command runs locally.
func (e *LocalExecutor) Connect(_ context.Context, target Target) error {
	e.target = target
	return nil
}

// Run executes req through sh -c. The whole process group is killed when
// ctx ends.
func (e *LocalExecutor) Run(ctx context.Context, req Request) (Response, error) {
	cmd := execCommandContext(ctx, "sh", "-c", BuildScript(Request{Command: req.Command, Env: req.Env}))
	cmd.Dir = req.WorkDir
	cmd.Stdin = req.Stdin
	cmd.Stdout = req.Stdout
	cmd.Stderr = req.Stderr
	cmd.Env = os.Environ()
	if e.target.Host != "" {
		cmd.Env = append(cmd.Env, "RELEASETEST_CLUSTER_ADDRESS="+e.target.Host)
	}
	cmd.WaitDelay = e.WaitDelay
	configureProcAttr(cmd)

	err := cmd.Run()
	if ctx.Err() != nil {
		logging.Warn("CommandRunner", "Local command killed: %v", ctx.Err())
		return Response{ExitCode: -1}, fmt.Errorf("local command terminated: %w", ctx.Err())
	}
	if err == nil {
		return Response{ExitCode: 0}, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Response{ExitCode: exitErr.ExitCode()}, nil
	}
	return Response{ExitCode: -1}, fmt.Errorf("failed to run local command: %w", err)
}

// Close is a no-op.
func (e *LocalExecutor) Close() error {
	return nil
}
