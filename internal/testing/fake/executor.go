package fake

import (
	"context"
	"io"
	"sync"

	"releasetest/internal/remote"
)

// Executor is a remote.Executor that records requests and answers them with
// Handler. Without a Handler every command exits 0.
type Executor struct {
	mu sync.Mutex

	Handler    func(ctx context.Context, req remote.Request) (remote.Response, error)
	ConnectErr error

	Target    remote.Target
	Connected bool
	Closed    bool
	Requests  []remote.Request
	Stdins    []string
}

var _ remote.Executor = (*Executor)(nil)

func (e *Executor) Connect(_ context.Context, target remote.Target) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ConnectErr != nil {
		return e.ConnectErr
	}
	e.Target = target
	e.Connected = true
	return nil
}

func (e *Executor) Run(ctx context.Context, req remote.Request) (remote.Response, error) {
	stdin := ""
	if req.Stdin != nil {
		data, _ := io.ReadAll(req.Stdin)
		stdin = string(data)
	}

	e.mu.Lock()
	e.Requests = append(e.Requests, req)
	e.Stdins = append(e.Stdins, stdin)
	handler := e.Handler
	e.mu.Unlock()

	if handler == nil {
		return remote.Response{ExitCode: 0}, nil
	}
	return handler(ctx, req)
}

func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// Commands returns the command lines run so far.
func (e *Executor) Commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmds := make([]string, 0, len(e.Requests))
	for _, req := range e.Requests {
		cmds = append(cmds, req.Command)
	}
	return cmds
}
