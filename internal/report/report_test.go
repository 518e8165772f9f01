package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"releasetest/internal/config"
	"releasetest/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finishedResult(err error) *result.Result {
	res := result.New()
	res.TestName = "long_running_tune"
	res.ClusterURL = "https://console.example.com/sessions/ses_1"
	res.Buildtime = result.Buildtime{
		ClusterComputeID:  "cpt_1",
		ClusterEnvID:      "apt_1",
		ClusterEnvBuildID: "bld_1",
		ClusterID:         "ses_1",
		ComputeCreated:    true,
	}
	res.Results = map[string]interface{}{"time_taken": 12.5}
	res.LastLogs = "line a\nline b"
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	res.Runtime.StartedAt = start
	res.Runtime.Stages = []result.StageRecord{{Stage: "RunCommand", Duration: time.Second}}
	res.Finish(err, start.Add(time.Minute))
	return res
}

func TestConsoleReporter_Success(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false)

	require.NoError(t, r.Report(context.Background(), finishedResult(nil)))

	s := out.String()
	assert.Contains(t, s, "PASSED long_running_tune")
	assert.Contains(t, s, "cpt_1 (created)")
	assert.Contains(t, s, "apt_1 (reused)")
	assert.Contains(t, s, "time_taken")
	assert.Contains(t, s, "RunCommand")
	assert.NotContains(t, s, "line b")
	assert.NotContains(t, s, "\x1b[")
}

func TestConsoleReporter_Failure(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false)
	err := result.NewError(result.KindCommand, "command %q exited with code 1", "python workload.py")

	require.NoError(t, r.Report(context.Background(), finishedResult(err)))

	s := out.String()
	assert.Contains(t, s, "FAILED long_running_tune")
	assert.Contains(t, s, "exit code 40")
	assert.Contains(t, s, "Last 2 log lines")
	assert.Contains(t, s, "line b")
}

func TestFileReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	r := NewFileReporter(path)
	res := finishedResult(result.NewError(result.KindClusterEnvBuildTimeout, "build timed out"))

	require.NoError(t, r.Report(context.Background(), res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, float64(31), decoded[0]["return_code"])
	assert.Equal(t, "infra_timeout", decoded[0]["status"])
	assert.Equal(t, "ClusterEnvBuildTimeout", decoded[0]["error_kind"])
	assert.Equal(t, res.RunID, decoded[0]["run_id"])
}

func readResultFile(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	return decoded
}

func TestFileReporter_KeepsEveryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	r := NewFileReporter(path)

	tasks := finishedResult(nil)
	tasks.TestName = "many_tasks"
	actors := finishedResult(result.NewError(result.KindCommandTimeout, "timed out"))
	actors.TestName = "many_actors"

	require.NoError(t, r.Report(context.Background(), tasks))
	require.NoError(t, r.Report(context.Background(), actors))

	decoded := readResultFile(t, path)
	require.Len(t, decoded, 2)
	assert.Equal(t, "many_actors", decoded[0]["test_name"])
	assert.Equal(t, actors.RunID, decoded[0]["run_id"])
	assert.Equal(t, "many_tasks", decoded[1]["test_name"])
	assert.Equal(t, tasks.RunID, decoded[1]["run_id"])
}

func TestFileReporter_ReportAgainReplacesRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	r := NewFileReporter(path)
	res := finishedResult(nil)

	require.NoError(t, r.Report(context.Background(), res))
	res.LastLogs = "updated"
	require.NoError(t, r.Report(context.Background(), res))

	decoded := readResultFile(t, path)
	require.Len(t, decoded, 1)
	assert.Equal(t, "updated", decoded[0]["last_logs"])
}

func TestFileReporter_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	r := NewFileReporter(path)

	const runs = 8
	var wg sync.WaitGroup
	errs := make([]error, runs)
	for i := 0; i < runs; i++ {
		res := finishedResult(nil)
		res.TestName = fmt.Sprintf("test_%d", i)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.Report(context.Background(), res)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	decoded := readResultFile(t, path)
	require.Len(t, decoded, runs)
	for i, d := range decoded {
		assert.Equal(t, fmt.Sprintf("test_%d", i), d["test_name"])
	}
}

func TestConsoleReporter_ConcurrentReportsDoNotInterleave(t *testing.T) {
	var out bytes.Buffer
	r := NewConsoleReporter(&out, false)

	const runs = 6
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		res := finishedResult(nil)
		res.TestName = fmt.Sprintf("test_%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Report(context.Background(), res))
		}()
	}
	wg.Wait()

	blocks := strings.Split(out.String(), "\nPASSED ")
	require.Len(t, blocks, runs+1)
	for _, block := range blocks[1:] {
		name := strings.Fields(block)[0]
		assert.Contains(t, block, "time_taken")
		for i := 0; i < runs; i++ {
			other := fmt.Sprintf("test_%d", i)
			if other != name {
				assert.NotContains(t, block, other)
			}
		}
	}
}

func TestFileReporter_UnwritablePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	r := NewFileReporter(filepath.Join(blocker, "result.json"))

	assert.Error(t, r.Report(context.Background(), finishedResult(nil)))
}

type failingReporter struct{}

func (failingReporter) Name() string { return "failing" }
func (failingReporter) Report(context.Context, *result.Result) error {
	return errors.New("sink unavailable")
}

func TestMulti(t *testing.T) {
	var out bytes.Buffer
	m := Multi{failingReporter{}, NewConsoleReporter(&out, false)}

	err := m.Report(context.Background(), finishedResult(nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing reporter: sink unavailable")
	assert.Contains(t, out.String(), "PASSED")
}

func TestWriteTests(t *testing.T) {
	tests := []config.Test{
		{Name: "a", Group: "core", Run: config.RunConfig{Type: "sdk_command"}, SmokeTestOverrides: &config.SmokeTestConfig{}},
		{Name: "b", Group: "tune", Run: config.RunConfig{Type: "client"}},
	}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteTests(&out, tests, FormatTable))
		assert.Contains(t, out.String(), "sdk_command")
		assert.Contains(t, out.String(), "TOTAL")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteTests(&out, tests, FormatJSON))
		var decoded []map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, true, decoded[0]["has_smoke_test"])
		assert.Equal(t, "client", decoded[1]["run_type"])
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteTests(&out, tests, FormatYAML))
		assert.True(t, strings.HasPrefix(out.String(), "- name: a"))
	})
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}
