package filemanager

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"releasetest/internal/remote"
	"releasetest/pkg/logging"
)

// ExecFileManager streams files through shell commands run by an executor.
// It needs nothing on the cluster beyond a POSIX shell and cat.
type ExecFileManager struct {
	executor remote.Executor
}

var _ FileManager = (*ExecFileManager)(nil)

// NewExecFileManager creates a file manager on top of executor. The executor
// must be connected before files are transferred.
func NewExecFileManager(executor remote.Executor) *ExecFileManager {
	return &ExecFileManager{executor: executor}
}

func (m *ExecFileManager) UploadFile(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	var stderr bytes.Buffer
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s", remote.ShellQuote(path.Dir(remotePath)), remote.ShellQuote(remotePath))
	resp, err := m.executor.Run(ctx, remote.Request{Command: cmd, Stdin: f, Stderr: &stderr})
	if err != nil {
		return fmt.Errorf("failed to upload %s to %s: %w", localPath, remotePath, err)
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("failed to upload %s to %s: exit code %d: %s", localPath, remotePath, resp.ExitCode, strings.TrimSpace(stderr.String()))
	}
	logging.Debug("FileManager", "Uploaded %s to %s", localPath, remotePath)
	return nil
}

func (m *ExecFileManager) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	var stdout, stderr bytes.Buffer
	cmd := fmt.Sprintf("test -f %[1]s || exit 44; cat %[1]s", remote.ShellQuote(remotePath))
	resp, err := m.executor.Run(ctx, remote.Request{Command: cmd, Stdout: &stdout, Stderr: &stderr})
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	switch resp.ExitCode {
	case 0:
	case 44:
		return fmt.Errorf("%w: %s", ErrRemoteFileNotFound, remotePath)
	default:
		return fmt.Errorf("failed to download %s: exit code %d: %s", remotePath, resp.ExitCode, strings.TrimSpace(stderr.String()))
	}

	if err := os.WriteFile(localPath, stdout.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	logging.Debug("FileManager", "Downloaded %s to %s", remotePath, localPath)
	return nil
}
