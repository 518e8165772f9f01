package filemanager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"releasetest/internal/config"
	"releasetest/internal/remote"
	"releasetest/pkg/logging"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Store is the subset of an S3-compatible object store the object store
// file manager needs.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MinioStore implements Store on a single bucket with minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a store for the bucket named in cfg.
func NewMinioStore(cfg config.ObjectStoreConfig) (*MinioStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func (s *MinioStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: "application/octet-stream"})
	return err
}

func (s *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return nil, err
	}
	return s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
}

func (s *MinioStore) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) PresignPut(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

func (s *MinioStore) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, nil)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// ObjectStoreFileManager moves files through an object store. The cluster
// side transfers with curl against presigned URLs, so no store credentials
// ever reach the cluster.
type ObjectStoreFileManager struct {
	store     Store
	executor  remote.Executor
	keyPrefix string
	urlExpiry time.Duration
}

var _ FileManager = (*ObjectStoreFileManager)(nil)

// NewObjectStoreFileManager creates a file manager whose objects live under
// keyPrefix/runID.
func NewObjectStoreFileManager(store Store, executor remote.Executor, keyPrefix, runID string, urlExpiry time.Duration) *ObjectStoreFileManager {
	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}
	return &ObjectStoreFileManager{
		store:     store,
		executor:  executor,
		keyPrefix: path.Join(strings.Trim(keyPrefix, "/"), runID),
		urlExpiry: urlExpiry,
	}
}

func (m *ObjectStoreFileManager) newKey(name string) string {
	return path.Join(m.keyPrefix, uuid.New().String()+"_"+path.Base(name))
}

func (m *ObjectStoreFileManager) UploadFile(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	key := m.newKey(localPath)
	if err := m.store.Put(ctx, key, f, info.Size()); err != nil {
		return fmt.Errorf("failed to put %s to object store: %w", localPath, err)
	}
	defer m.remove(key)

	url, err := m.store.PresignGet(ctx, key, m.urlExpiry)
	if err != nil {
		return fmt.Errorf("failed to presign download of %s: %w", key, err)
	}

	cmd := fmt.Sprintf("mkdir -p %s && curl -fsSL -o %s %s",
		remote.ShellQuote(path.Dir(remotePath)), remote.ShellQuote(remotePath), remote.ShellQuote(url))
	if err := m.run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to fetch %s on cluster: %w", remotePath, err)
	}
	logging.Debug("FileManager", "Uploaded %s to %s via object store", localPath, remotePath)
	return nil
}

func (m *ObjectStoreFileManager) DownloadFile(ctx context.Context, remotePath, localPath string) error {
	key := m.newKey(remotePath)
	url, err := m.store.PresignPut(ctx, key, m.urlExpiry)
	if err != nil {
		return fmt.Errorf("failed to presign upload of %s: %w", key, err)
	}
	defer m.remove(key)

	cmd := fmt.Sprintf("test -f %[1]s || exit 44; curl -fsSL -X PUT --upload-file %[1]s %[2]s",
		remote.ShellQuote(remotePath), remote.ShellQuote(url))
	if err := m.run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to push %s from cluster: %w", remotePath, err)
	}

	body, err := m.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get %s from object store: %w", key, err)
	}
	defer body.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	if _, err := io.Copy(out, body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	logging.Debug("FileManager", "Downloaded %s to %s via object store", remotePath, localPath)
	return out.Close()
}

func (m *ObjectStoreFileManager) run(ctx context.Context, cmd string) error {
	var stderr bytes.Buffer
	resp, err := m.executor.Run(ctx, remote.Request{Command: cmd, Stderr: &stderr})
	if err != nil {
		return err
	}
	switch resp.ExitCode {
	case 0:
		return nil
	case 44:
		return ErrRemoteFileNotFound
	default:
		return fmt.Errorf("exit code %d: %s", resp.ExitCode, strings.TrimSpace(stderr.String()))
	}
}

// remove deletes a transfer object. Failures only leave garbage behind.
func (m *ObjectStoreFileManager) remove(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := m.store.Delete(ctx, key); err != nil {
		logging.Debug("FileManager", "Could not delete transfer object %s: %v", key, err)
	}
}
