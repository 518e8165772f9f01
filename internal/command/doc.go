// Package command prepares the local and remote environments of a release
// test and runs its prepare and workload commands on the cluster.
//
// RemoteRunner packs the test's working directory, uploads it through a
// filemanager.FileManager and runs commands through a remote.Executor inside
// the unpacked directory. Commands see TEST_OUTPUT_JSON, the path where the
// workload writes its results as a JSON object; FetchResults downloads and
// decodes that file.
//
// Each command runs under its own deadline. A command that exits non-zero
// and a command that is killed at its deadline fail with different result
// kinds. The last lines of command output are kept for GetLastLogs.
package command
