package config

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	// DefaultCommandTimeout applies when a test does not set run.timeout.
	DefaultCommandTimeout = 3600 * time.Second
	// DefaultPrepareTimeout applies when a test does not set run.prepare_timeout.
	DefaultPrepareTimeout = 900 * time.Second
	// DefaultWaitForNodesTimeout applies when run.wait_for_nodes.timeout is unset.
	DefaultWaitForNodesTimeout = 600 * time.Second
)

// Test is the immutable description of one release test as declared in the
// test collection file.
type Test struct {
	Name       string            `yaml:"name"`
	Group      string            `yaml:"group,omitempty"`
	WorkingDir string            `yaml:"working_dir"`
	Team       string            `yaml:"team,omitempty"`
	Frequency  string            `yaml:"frequency,omitempty"`
	Python     string            `yaml:"python,omitempty"`
	Env        map[string]string `yaml:"env,omitempty"`
	Cluster    ClusterConfig     `yaml:"cluster"`
	Run        RunConfig         `yaml:"run"`
	Alert      AlertConfig       `yaml:"alert,omitempty"`

	// SmokeTestOverrides are merged over Cluster and Run by AsSmokeTest.
	SmokeTestOverrides *SmokeTestConfig `yaml:"smoke_test,omitempty"`

	// SmokeTest is set per invocation, never read from the collection file.
	SmokeTest bool `yaml:"-"`
}

// ClusterConfig names the cluster environment and compute files of a test,
// resolved relative to its working directory, and optionally pins existing
// backend resources to reuse.
type ClusterConfig struct {
	ClusterEnv        string `yaml:"cluster_env,omitempty"`
	ClusterCompute    string `yaml:"cluster_compute,omitempty"`
	ClusterEnvID      string `yaml:"cluster_env_id,omitempty"`
	ClusterComputeID  string `yaml:"cluster_compute_id,omitempty"`
	ClusterEnvBuildID string `yaml:"cluster_env_build_id,omitempty"`
	AutosuspendMins   int    `yaml:"autosuspend_mins,omitempty"`
}

// RunConfig describes the workload command. Timeouts are in seconds.
type RunConfig struct {
	Type           string             `yaml:"type,omitempty"`
	Script         string             `yaml:"script,omitempty"`
	Prepare        string             `yaml:"prepare,omitempty"`
	Timeout        int                `yaml:"timeout,omitempty"`
	PrepareTimeout int                `yaml:"prepare_timeout,omitempty"`
	WaitForNodes   WaitForNodesConfig `yaml:"wait_for_nodes,omitempty"`
	ArtifactPath   string             `yaml:"artifact_path,omitempty"`
}

// WaitForNodesConfig asks the runner to wait until NumNodes nodes are alive
// before running the prepare and workload commands.
type WaitForNodesConfig struct {
	NumNodes int `yaml:"num_nodes,omitempty"`
	Timeout  int `yaml:"timeout,omitempty"`
}

// SmokeTestConfig holds the fields overridden for a smoke test run.
type SmokeTestConfig struct {
	Frequency string        `yaml:"frequency,omitempty"`
	Cluster   ClusterConfig `yaml:"cluster,omitempty"`
	Run       RunConfig     `yaml:"run,omitempty"`
}

// AlertConfig selects the alert handler that inspects the workload results.
type AlertConfig struct {
	Handler    string               `yaml:"handler,omitempty"`
	Thresholds map[string]Threshold `yaml:"thresholds,omitempty"`
}

// Threshold bounds a numeric result value. Either bound may be omitted.
type Threshold struct {
	Min *float64 `yaml:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty"`
}

// CommandTimeout returns the workload budget.
func (r RunConfig) CommandTimeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultCommandTimeout
	}
	return time.Duration(r.Timeout) * time.Second
}

// PrepareCommandTimeout returns the prepare command budget.
func (r RunConfig) PrepareCommandTimeout() time.Duration {
	if r.PrepareTimeout <= 0 {
		return DefaultPrepareTimeout
	}
	return time.Duration(r.PrepareTimeout) * time.Second
}

// WaitTimeout returns the node wait budget.
func (w WaitForNodesConfig) WaitTimeout() time.Duration {
	if w.Timeout <= 0 {
		return DefaultWaitForNodesTimeout
	}
	return time.Duration(w.Timeout) * time.Second
}

// Document is a rendered and parsed cluster configuration file.
type Document struct {
	FilePath string
	Rendered string
	Spec     map[string]interface{}
}

// Hash returns the hex sha256 of the rendered file. Identical renders map to
// the same backend resource name.
func (d Document) Hash() string {
	sum := sha256.Sum256([]byte(d.Rendered))
	return hex.EncodeToString(sum[:])
}

// ClusterEnvConfig is the resolved runtime environment definition of a test.
type ClusterEnvConfig struct {
	Document
}

// ClusterComputeConfig is the resolved compute template definition of a test.
type ClusterComputeConfig struct {
	Document
}
