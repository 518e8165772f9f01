// Package filemanager transfers files between the invoking machine and a
// cluster.
//
// ExecFileManager pipes file contents through a remote.Executor with cat.
// ObjectStoreFileManager stages files in an S3-compatible bucket through
// minio-go and has the cluster fetch or push them with curl against
// presigned URLs. LocalFileManager copies files for client-mode tests whose
// workload runs locally.
//
// ArchiveDir packs a working directory into a gzip tarball so it can be
// uploaded as a single file.
package filemanager
