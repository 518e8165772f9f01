package fake

import (
	"context"
	"sync"
	"time"

	"releasetest/internal/cluster"
	"releasetest/internal/config"
)

// ClusterManager is a cluster.Manager that records its calls in Log and
// fails the methods named in Errors.
type ClusterManager struct {
	mu sync.Mutex

	Log    *CallLog
	Errors map[string]error
	// Block makes the named methods wait for their context to be done.
	Block map[string]bool

	// Info is returned by Describe. NodeCounts, when set, overrides
	// Info.AliveNodes for successive Describe calls; the last entry repeats.
	Info       cluster.Info
	NodeCounts []int
	URL        string

	Env     *config.ClusterEnvConfig
	Compute *config.ClusterComputeConfig
	Current cluster.State

	describes int
}

var _ cluster.Manager = (*ClusterManager)(nil)

// NewClusterManager returns a ClusterManager where every call succeeds.
func NewClusterManager(log *CallLog) *ClusterManager {
	if log == nil {
		log = &CallLog{}
	}
	return &ClusterManager{
		Log:    log,
		Errors: map[string]error{},
		Block:  map[string]bool{},
		Info:   cluster.Info{ID: "ses_fake", HeadNodeAddress: "10.0.0.1", State: cluster.ClusterRunning, AliveNodes: 1},
		URL:    "https://console.example.com/sessions/ses_fake",
	}
}

func (m *ClusterManager) call(ctx context.Context, method string) error {
	m.Log.Add(method)
	m.mu.Lock()
	err, block := m.Errors[method], m.Block[method]
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (m *ClusterManager) SetClusterEnv(cfg config.ClusterEnvConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Env = &cfg
}

func (m *ClusterManager) SetClusterCompute(cfg config.ClusterComputeConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Compute = &cfg
}

func (m *ClusterManager) UseExisting(state cluster.State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state.ClusterComputeID != "" {
		m.Current.ClusterComputeID = state.ClusterComputeID
	}
	if state.ClusterEnvID != "" {
		m.Current.ClusterEnvID = state.ClusterEnvID
	}
	if state.ClusterEnvBuildID != "" {
		m.Current.ClusterEnvBuildID = state.ClusterEnvBuildID
	}
}

func (m *ClusterManager) CreateClusterCompute(ctx context.Context) error {
	if err := m.call(ctx, "CreateClusterCompute"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Current.ClusterComputeID == "" {
		m.Current.ClusterComputeID = "cpt_fake"
		m.Current.ComputeCreated = true
	}
	return nil
}

func (m *ClusterManager) CreateClusterEnv(ctx context.Context) error {
	if err := m.call(ctx, "CreateClusterEnv"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Current.ClusterEnvID == "" {
		m.Current.ClusterEnvID = "apt_fake"
		m.Current.EnvCreated = true
	}
	return nil
}

func (m *ClusterManager) BuildClusterEnv(ctx context.Context, _ time.Duration) error {
	if err := m.call(ctx, "BuildClusterEnv"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Current.ClusterEnvBuildID == "" {
		m.Current.ClusterEnvBuildID = "bld_fake"
		m.Current.BuildCreated = true
	}
	return nil
}

func (m *ClusterManager) StartCluster(ctx context.Context, _ time.Duration) error {
	m.mu.Lock()
	m.Current.ClusterID = m.Info.ID
	m.mu.Unlock()
	if err := m.call(ctx, "StartCluster"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Current.ClusterCreated = true
	return nil
}

func (m *ClusterManager) TerminateCluster(ctx context.Context) error {
	return m.call(ctx, "TerminateCluster")
}

func (m *ClusterManager) State() cluster.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Current
}

func (m *ClusterManager) Describe(ctx context.Context) (cluster.Info, error) {
	if err := m.call(ctx, "Describe"); err != nil {
		return cluster.Info{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.Info
	if n := len(m.NodeCounts); n > 0 {
		info.AliveNodes = m.NodeCounts[min(m.describes, n-1)]
	}
	m.describes++
	return info, nil
}

func (m *ClusterManager) ClusterURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Current.ClusterID == "" {
		return ""
	}
	return m.URL
}
