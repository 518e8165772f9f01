package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ErrNotConnected is returned by Run before Connect succeeded.
var ErrNotConnected = errors.New("executor is not connected")

// Target is the host commands are executed on.
type Target struct {
	Host string
	Port int
	User string
}

func (t Target) String() string {
	if t.User == "" {
		return fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return fmt.Sprintf("%s@%s:%d", t.User, t.Host, t.Port)
}

// Request is a shell command to run on the target.
type Request struct {
	Command string
	WorkDir string
	Env     map[string]string
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
}

// Response carries the exit status of a finished command.
type Response struct {
	ExitCode int
}

// Executor runs shell commands on a cluster.
//
// Run returns a nil error when the command ran to completion, whatever its
// exit code. It returns an error wrapping ctx.Err() when the context ended
// first, after asking the remote process to terminate, and any other error
// when the command could not be started or its status was lost.
type Executor interface {
	Connect(ctx context.Context, target Target) error
	Run(ctx context.Context, req Request) (Response, error)
	Close() error
}

// BuildScript renders req as a POSIX shell script.
func BuildScript(req Request) string {
	var b strings.Builder
	if req.WorkDir != "" {
		fmt.Fprintf(&b, "cd %s && ", ShellQuote(req.WorkDir))
	}
	keys := make([]string, 0, len(req.Env))
	for key := range req.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "export %s=%s && ", key, ShellQuote(req.Env[key]))
	}
	b.WriteString(req.Command)
	return b.String()
}

// ShellQuote quotes s for use as a single POSIX shell word.
func ShellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
