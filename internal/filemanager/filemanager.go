package filemanager

import (
	"context"
	"errors"
)

// ErrRemoteFileNotFound is returned by DownloadFile when the remote file
// does not exist.
var ErrRemoteFileNotFound = errors.New("remote file not found")

// FileManager moves files between the invoking machine and the cluster.
type FileManager interface {
	UploadFile(ctx context.Context, localPath, remotePath string) error
	DownloadFile(ctx context.Context, remotePath, localPath string) error
}
