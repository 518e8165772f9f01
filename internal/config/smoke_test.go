package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsSmokeTest(t *testing.T) {
	base := validTest()
	base.Env = map[string]string{"A": "1"}
	base.Frequency = "nightly"
	base.Run.Timeout = 3600
	base.Run.WaitForNodes = WaitForNodesConfig{NumNodes: 8, Timeout: 600}
	base.SmokeTestOverrides = &SmokeTestConfig{
		Frequency: "manual",
		Cluster:   ClusterConfig{ClusterCompute: "compute_smoke.yaml"},
		Run: RunConfig{
			Timeout:      300,
			WaitForNodes: WaitForNodesConfig{NumNodes: 2},
		},
	}

	smoke, err := base.AsSmokeTest()
	require.NoError(t, err)

	assert.True(t, smoke.SmokeTest)
	assert.Nil(t, smoke.SmokeTestOverrides)
	assert.Equal(t, "manual", smoke.Frequency)
	assert.Equal(t, "compute_smoke.yaml", smoke.Cluster.ClusterCompute)
	assert.Equal(t, "app_config.yaml", smoke.Cluster.ClusterEnv)
	assert.Equal(t, 300, smoke.Run.Timeout)
	assert.Equal(t, "python run.py", smoke.Run.Script)
	assert.Equal(t, 2, smoke.Run.WaitForNodes.NumNodes)
	assert.Equal(t, 600, smoke.Run.WaitForNodes.Timeout)

	// The base definition is untouched
	assert.False(t, base.SmokeTest)
	assert.Equal(t, "compute.yaml", base.Cluster.ClusterCompute)
	assert.Equal(t, 3600, base.Run.Timeout)

	smoke.Env["A"] = "2"
	assert.Equal(t, "1", base.Env["A"])

	again, err := smoke.AsSmokeTest()
	require.NoError(t, err)
	assert.Equal(t, smoke.Run, again.Run)
	assert.Equal(t, smoke.Cluster, again.Cluster)
}

func TestAsSmokeTest_NoOverrides(t *testing.T) {
	smoke, err := validTest().AsSmokeTest()
	require.NoError(t, err)
	assert.True(t, smoke.SmokeTest)
	assert.Equal(t, validTest().Run, smoke.Run)
}
