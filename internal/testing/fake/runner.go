package fake

import (
	"context"
	"sync"
	"time"

	"releasetest/internal/command"
)

// Runner is a command.Runner that records its calls in Log and fails the
// methods named in Errors.
type Runner struct {
	mu sync.Mutex

	Log    *CallLog
	Errors map[string]error
	// Block makes the named methods wait for their context to be done.
	Block map[string]bool

	Results        map[string]interface{}
	Logs           string
	CommandRuntime time.Duration

	Commands []string
	Envs     []map[string]string
	Timeouts map[string]time.Duration
	Nodes    int
	Closed   bool
	Fetched  map[string]string
}

var _ command.Runner = (*Runner)(nil)

// NewRunner returns a Runner where every call succeeds.
func NewRunner(log *CallLog) *Runner {
	if log == nil {
		log = &CallLog{}
	}
	return &Runner{
		Log:            log,
		Errors:         map[string]error{},
		Block:          map[string]bool{},
		Results:        map[string]interface{}{"time_taken": 12.5},
		Logs:           "workload done",
		CommandRuntime: 2 * time.Second,
		Timeouts:       map[string]time.Duration{},
		Fetched:        map[string]string{},
	}
}

func (r *Runner) call(ctx context.Context, method string) error {
	r.Log.Add(method)
	r.mu.Lock()
	err, block := r.Errors[method], r.Block[method]
	r.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (r *Runner) PrepareLocalEnv(ctx context.Context) error {
	return r.call(ctx, "PrepareLocalEnv")
}

func (r *Runner) PrepareRemoteEnv(ctx context.Context) error {
	return r.call(ctx, "PrepareRemoteEnv")
}

func (r *Runner) WaitForNodes(ctx context.Context, numNodes int, timeout time.Duration) error {
	r.mu.Lock()
	r.Nodes = numNodes
	r.Timeouts["WaitForNodes"] = timeout
	r.mu.Unlock()
	return r.call(ctx, "WaitForNodes")
}

func (r *Runner) RunPrepareCommand(ctx context.Context, cmd string, timeout time.Duration) error {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	r.Timeouts["RunPrepareCommand"] = timeout
	r.mu.Unlock()
	return r.call(ctx, "RunPrepareCommand")
}

func (r *Runner) RunCommand(ctx context.Context, cmd string, env map[string]string, timeout time.Duration) (time.Duration, error) {
	r.mu.Lock()
	r.Commands = append(r.Commands, cmd)
	r.Envs = append(r.Envs, env)
	r.Timeouts["RunCommand"] = timeout
	runtime := r.CommandRuntime
	r.mu.Unlock()
	if err := r.call(ctx, "RunCommand"); err != nil {
		return runtime, err
	}
	return runtime, nil
}

func (r *Runner) FetchResults(ctx context.Context) (map[string]interface{}, error) {
	if err := r.call(ctx, "FetchResults"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Results, nil
}

func (r *Runner) FetchArtifact(ctx context.Context, remotePath, localPath string) error {
	if err := r.call(ctx, "FetchArtifact"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fetched[remotePath] = localPath
	return nil
}

func (r *Runner) GetLastLogs(ctx context.Context) (string, error) {
	if err := r.call(ctx, "GetLastLogs"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Logs, nil
}

func (r *Runner) Close() error {
	r.Log.Add("Close")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = true
	return nil
}
