package config

import (
	"errors"
	"testing"

	"releasetest/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runTypes = []string{"client", "sdk_command"}

func validTest() Test {
	return Test{
		Name:       "many_tasks",
		WorkingDir: "/tmp/benchmarks",
		Cluster: ClusterConfig{
			ClusterEnv:     "app_config.yaml",
			ClusterCompute: "compute.yaml",
		},
		Run: RunConfig{Type: "sdk_command", Script: "python run.py"},
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestValidateTest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Test)
		wantErr string
	}{
		{name: "valid", mutate: func(*Test) {}},
		{name: "missing name", mutate: func(t *Test) { t.Name = "" }, wantErr: "name"},
		{name: "name with spaces", mutate: func(t *Test) { t.Name = "many tasks" }, wantErr: "whitespace"},
		{name: "unknown run type", mutate: func(t *Test) { t.Run.Type = "job" }, wantErr: "must be one of"},
		{name: "missing script", mutate: func(t *Test) { t.Run.Script = "" }, wantErr: "run.script"},
		{name: "missing cluster env", mutate: func(t *Test) { t.Cluster.ClusterEnv = "" }, wantErr: "cluster.cluster_env"},
		{name: "negative timeout", mutate: func(t *Test) { t.Run.Timeout = -1 }, wantErr: "must not be negative"},
		{
			name:    "build id without env id",
			mutate:  func(t *Test) { t.Cluster.ClusterEnvBuildID = "bld_1" },
			wantErr: "requires cluster.cluster_env_id",
		},
		{
			name: "inverted threshold",
			mutate: func(t *Test) {
				t.Alert.Thresholds = map[string]Threshold{"time": {Min: floatPtr(10), Max: floatPtr(1)}}
			},
			wantErr: "min must not exceed max",
		},
		{
			name: "invalid smoke run type",
			mutate: func(t *Test) {
				t.SmokeTestOverrides = &SmokeTestConfig{Run: RunConfig{Type: "job"}}
			},
			wantErr: "smoke_test.run.type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			test := validTest()
			tt.mutate(&test)
			err := ValidateTest(test, runTypes)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTests_DuplicateNames(t *testing.T) {
	err := ValidateTests("release_tests.yaml", []Test{validTest(), validTest()}, runTypes)
	require.Error(t, err)
	assert.Equal(t, result.ConfigError, result.Classify(err))

	var collection ConfigurationErrorCollection
	require.True(t, errors.As(err, &collection))
	assert.Equal(t, 1, collection.Count())
	assert.Contains(t, collection.GetDetailedReport(), "duplicate test name")
}

func TestValidateTests_Valid(t *testing.T) {
	other := validTest()
	other.Name = "shuffle"
	assert.NoError(t, ValidateTests("release_tests.yaml", []Test{validTest(), other}, runTypes))
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("name", "is required")
	assert.Equal(t, "field 'name': is required", errs.Error())

	errs.Add("", "second")
	assert.Equal(t, "validation failed: field 'name': is required; second", errs.Error())
}
