package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"releasetest/pkg/logging"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHOptions configures an SSHExecutor.
type SSHOptions struct {
	User           string
	Port           int
	KeyPath        string
	KnownHostsPath string
	DialTimeout    time.Duration
	DialRetries    uint
	// KillGrace bounds how long Run waits for the remote kill once its
	// context has ended.
	KillGrace time.Duration
}

// SSHExecutor runs commands on the cluster head node over SSH.
type SSHExecutor struct {
	opts   SSHOptions
	dialer func(network, addr string, config *ssh.ClientConfig) (*ssh.Client, error)

	mu     sync.Mutex
	client *ssh.Client
	target Target
}

var _ Executor = (*SSHExecutor)(nil)

// NewSSHExecutor creates an executor. No connection is made until Connect.
func NewSSHExecutor(opts SSHOptions) *SSHExecutor {
	if opts.Port == 0 {
		opts.Port = 22
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}
	if opts.DialRetries == 0 {
		opts.DialRetries = 5
	}
	if opts.KillGrace == 0 {
		opts.KillGrace = 5 * time.Second
	}
	return &SSHExecutor{opts: opts, dialer: ssh.Dial}
}

func (e *SSHExecutor) clientConfig(user string) (*ssh.ClientConfig, error) {
	keyData, err := os.ReadFile(e.opts.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if e.opts.KnownHostsPath != "" {
		hostKeyCallback, err = knownhosts.New(e.opts.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.opts.DialTimeout,
	}, nil
}

// Connect dials the target, retrying with exponential backoff while the
// head node's SSH daemon comes up.
func (e *SSHExecutor) Connect(ctx context.Context, target Target) error {
	if target.User == "" {
		target.User = e.opts.User
	}
	if target.Port == 0 {
		target.Port = e.opts.Port
	}

	config, err := e.clientConfig(target.User)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	attempt := 0
	client, err := backoff.Retry(ctx, func() (*ssh.Client, error) {
		attempt++
		client, err := e.dialer("tcp", addr, config)
		if err != nil {
			logging.Debug("SSH", "Dial %s attempt %d failed: %v", target, attempt, err)
			return nil, err
		}
		return client, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(e.opts.DialRetries))
	if err != nil {
		return fmt.Errorf("failed to connect to %s after %d attempts: %w", target, attempt, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		_ = e.client.Close()
	}
	e.client = client
	e.target = target
	logging.Info("SSH", "Connected to %s", target)
	return nil
}

func (e *SSHExecutor) currentClient() (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil, ErrNotConnected
	}
	return e.client, nil
}

// Run executes req in a new session. When ctx ends first, the session is
// signalled, the process tree recorded in the pid file is killed from a
// second session, and Run returns after at most KillGrace without waiting
// for the remote side.
func (e *SSHExecutor) Run(ctx context.Context, req Request) (Response, error) {
	client, err := e.currentClient()
	if err != nil {
		return Response{}, err
	}

	session, err := client.NewSession()
	if err != nil {
		return Response{}, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	session.Stdin = req.Stdin
	session.Stdout = req.Stdout
	session.Stderr = req.Stderr

	pidFile := "/tmp/releasetest-" + uuid.New().String() + ".pid"
	script := fmt.Sprintf("echo $$ > %s; exec sh -c %s", pidFile, ShellQuote(BuildScript(req)))

	if err := session.Start(script); err != nil {
		return Response{}, fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	select {
	case err := <-done:
		e.cleanupPIDFile(client, pidFile)
		return exitResponse(err)
	case <-ctx.Done():
		logging.Warn("SSH", "Context ended, killing remote command on %s", e.target)
		_ = session.Signal(ssh.SIGKILL)
		killed := make(chan struct{})
		go func() {
			defer close(killed)
			e.killRemote(client, pidFile)
		}()
		select {
		case <-killed:
		case <-time.After(e.opts.KillGrace):
			logging.Warn("SSH", "Remote kill on %s did not finish within %s", e.target, e.opts.KillGrace)
		}
		_ = session.Close()
		return Response{ExitCode: -1}, fmt.Errorf("remote command terminated: %w", ctx.Err())
	}
}

func exitResponse(err error) (Response, error) {
	if err == nil {
		return Response{ExitCode: 0}, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return Response{ExitCode: exitErr.ExitStatus()}, nil
	}
	return Response{ExitCode: -1}, fmt.Errorf("remote command did not report an exit status: %w", err)
}

// killRemote kills the process recorded in pidFile and its children.
func (e *SSHExecutor) killRemote(client *ssh.Client, pidFile string) {
	session, err := client.NewSession()
	if err != nil {
		logging.Warn("SSH", "Could not open session to kill remote command: %v", err)
		return
	}
	defer session.Close()

	quoted := ShellQuote(pidFile)
	cmd := fmt.Sprintf("if [ -f %[1]s ]; then pid=$(cat %[1]s); pkill -KILL -P \"$pid\"; kill -KILL \"$pid\"; rm -f %[1]s; fi", quoted)
	if err := session.Run(cmd); err != nil {
		logging.Debug("SSH", "Kill command returned: %v", err)
	}
}

func (e *SSHExecutor) cleanupPIDFile(client *ssh.Client, pidFile string) {
	session, err := client.NewSession()
	if err != nil {
		return
	}
	defer session.Close()
	_ = session.Run("rm -f " + ShellQuote(pidFile))
}

// Close closes the SSH connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
