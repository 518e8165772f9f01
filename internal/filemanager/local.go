package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFileManager copies files on the invoking machine. Client-mode tests
// run their workload locally, so the "remote" side is a local directory.
type LocalFileManager struct{}

var _ FileManager = LocalFileManager{}

func (LocalFileManager) UploadFile(_ context.Context, localPath, remotePath string) error {
	return copyFile(localPath, remotePath)
}

func (LocalFileManager) DownloadFile(_ context.Context, remotePath, localPath string) error {
	if _, err := os.Stat(remotePath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrRemoteFileNotFound, remotePath)
	}
	return copyFile(remotePath, localPath)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}
