package fake

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"releasetest/internal/filemanager"
)

// FileManager keeps "remote" files in memory.
type FileManager struct {
	mu sync.Mutex

	Files     map[string][]byte
	UploadErr error
	Uploads   []string
}

var _ filemanager.FileManager = (*FileManager)(nil)

// NewFileManager returns an empty FileManager.
func NewFileManager() *FileManager {
	return &FileManager{Files: map[string][]byte{}}
}

func (f *FileManager) UploadFile(_ context.Context, localPath, remotePath string) error {
	if f.UploadErr != nil {
		return f.UploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[remotePath] = data
	f.Uploads = append(f.Uploads, remotePath)
	return nil
}

func (f *FileManager) DownloadFile(_ context.Context, remotePath, localPath string) error {
	f.mu.Lock()
	data, ok := f.Files[remotePath]
	f.mu.Unlock()
	if !ok {
		return filemanager.ErrRemoteFileNotFound
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0644)
}
