package cluster

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Provisioner lookups when no resource matches.
var ErrNotFound = errors.New("not found")

// BuildStatus is the state of a cluster environment build.
type BuildStatus string

const (
	BuildPending    BuildStatus = "pending"
	BuildInProgress BuildStatus = "in_progress"
	BuildSucceeded  BuildStatus = "succeeded"
	BuildFailed     BuildStatus = "failed"
	BuildCanceled   BuildStatus = "canceled"
)

// Terminal reports whether the build will not change state any more.
func (s BuildStatus) Terminal() bool {
	return s == BuildSucceeded || s == BuildFailed || s == BuildCanceled
}

// Build is a cluster environment build as reported by the backend.
type Build struct {
	ID           string      `json:"id"`
	ClusterEnvID string      `json:"application_template_id"`
	Revision     int         `json:"revision"`
	Status       BuildStatus `json:"status"`
	Message      string      `json:"error_message,omitempty"`
}

// ClusterState is the lifecycle state of a cluster.
type ClusterState string

const (
	ClusterPending     ClusterState = "Pending"
	ClusterStarting    ClusterState = "Starting"
	ClusterRunning     ClusterState = "Running"
	ClusterUpdating    ClusterState = "Updating"
	ClusterTerminating ClusterState = "Terminating"
	ClusterTerminated  ClusterState = "Terminated"
	ClusterFailed      ClusterState = "StartupErrored"
)

// Info describes a cluster as reported by the backend.
type Info struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	State           ClusterState `json:"state"`
	HeadNodeAddress string       `json:"head_node_ip,omitempty"`
	URL             string       `json:"url,omitempty"`
	AliveNodes      int          `json:"alive_nodes"`
	Message         string       `json:"state_message,omitempty"`
}

// CreateClusterRequest asks the backend to start a cluster from a build and
// a compute template.
type CreateClusterRequest struct {
	ProjectID         string `json:"project_id"`
	Name              string `json:"name"`
	ClusterEnvBuildID string `json:"cluster_environment_build_id"`
	ClusterComputeID  string `json:"cluster_compute_id"`
	IdleTimeoutMins   int    `json:"idle_timeout_minutes,omitempty"`
}

// ComputeTemplates registers and looks up cluster compute templates.
type ComputeTemplates interface {
	FindComputeTemplate(ctx context.Context, projectID, name string) (string, error)
	CreateComputeTemplate(ctx context.Context, projectID, name string, spec map[string]interface{}) (string, error)
}

// ClusterEnvs registers and looks up cluster environments.
type ClusterEnvs interface {
	FindClusterEnv(ctx context.Context, projectID, name string) (string, error)
	CreateClusterEnv(ctx context.Context, projectID, name string, spec map[string]interface{}) (string, error)
}

// Builds triggers and inspects cluster environment builds.
type Builds interface {
	LatestSuccessfulBuild(ctx context.Context, clusterEnvID string) (string, error)
	CreateBuild(ctx context.Context, clusterEnvID string) (string, error)
	GetBuild(ctx context.Context, buildID string) (Build, error)
}

// Clusters starts, inspects and terminates clusters.
type Clusters interface {
	CreateCluster(ctx context.Context, req CreateClusterRequest) (string, error)
	GetCluster(ctx context.Context, clusterID string) (Info, error)
	TerminateCluster(ctx context.Context, clusterID string) error
}

// Provisioner is the provisioning backend a FullManager drives.
type Provisioner interface {
	ComputeTemplates
	ClusterEnvs
	Builds
	Clusters
}

// State is the set of backend resources one run uses. A non-empty id means
// the resource exists; the Created flags record whether this run created it.
type State struct {
	ClusterComputeID  string
	ClusterEnvID      string
	ClusterEnvBuildID string
	ClusterID         string

	ComputeCreated bool
	EnvCreated     bool
	BuildCreated   bool
	ClusterCreated bool
}
