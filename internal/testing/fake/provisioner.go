package fake

import (
	"context"
	"fmt"
	"sync"

	"releasetest/internal/cluster"
)

// Provisioner is an in-memory cluster.Provisioner. Every call is recorded by
// method name. Errors and EmptyID let tests make a given method fail or
// return a malformed (empty id) response.
type Provisioner struct {
	mu sync.Mutex

	ComputeTemplates map[string]string // name -> id
	ClusterEnvs      map[string]string // name -> id
	SuccessfulBuilds map[string]string // cluster env id -> build id

	// BuildStatuses is returned by successive GetBuild calls; the last
	// entry repeats. Empty means succeeded.
	BuildStatuses []cluster.BuildStatus
	// ClusterStates is returned by successive GetCluster calls; the last
	// entry repeats. Empty means running.
	ClusterStates []cluster.ClusterState
	// AliveNodes is returned by successive GetCluster calls; the last entry
	// repeats.
	AliveNodes []int

	Errors  map[string]error
	EmptyID map[string]bool

	Calls       []string
	Requests    []cluster.CreateClusterRequest
	Specs       map[string]map[string]interface{}
	nextID      int
	buildPolls  int
	clusterPoll int
}

// NewProvisioner returns a Provisioner where every operation succeeds.
func NewProvisioner() *Provisioner {
	return &Provisioner{
		ComputeTemplates: map[string]string{},
		ClusterEnvs:      map[string]string{},
		SuccessfulBuilds: map[string]string{},
		Errors:           map[string]error{},
		EmptyID:          map[string]bool{},
		Specs:            map[string]map[string]interface{}{},
	}
}

var _ cluster.Provisioner = (*Provisioner)(nil)

// Count returns how many times method was called.
func (p *Provisioner) Count(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, call := range p.Calls {
		if call == method {
			n++
		}
	}
	return n
}

// CreateCalls returns the number of calls that create a resource.
func (p *Provisioner) CreateCalls() int {
	return p.Count("CreateComputeTemplate") + p.Count("CreateClusterEnv") + p.Count("CreateBuild")
}

func (p *Provisioner) record(method string) error {
	p.Calls = append(p.Calls, method)
	return p.Errors[method]
}

func (p *Provisioner) newID(method, prefix string) string {
	if p.EmptyID[method] {
		return ""
	}
	p.nextID++
	return fmt.Sprintf("%s_%d", prefix, p.nextID)
}

func (p *Provisioner) FindComputeTemplate(_ context.Context, _, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("FindComputeTemplate"); err != nil {
		return "", err
	}
	if id, ok := p.ComputeTemplates[name]; ok {
		return id, nil
	}
	return "", cluster.ErrNotFound
}

func (p *Provisioner) CreateComputeTemplate(_ context.Context, _, name string, spec map[string]interface{}) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("CreateComputeTemplate"); err != nil {
		return "", err
	}
	id := p.newID("CreateComputeTemplate", "cpt")
	if id != "" {
		p.ComputeTemplates[name] = id
		p.Specs[id] = spec
	}
	return id, nil
}

func (p *Provisioner) FindClusterEnv(_ context.Context, _, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("FindClusterEnv"); err != nil {
		return "", err
	}
	if id, ok := p.ClusterEnvs[name]; ok {
		return id, nil
	}
	return "", cluster.ErrNotFound
}

func (p *Provisioner) CreateClusterEnv(_ context.Context, _, name string, spec map[string]interface{}) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("CreateClusterEnv"); err != nil {
		return "", err
	}
	id := p.newID("CreateClusterEnv", "apt")
	if id != "" {
		p.ClusterEnvs[name] = id
		p.Specs[id] = spec
	}
	return id, nil
}

func (p *Provisioner) LatestSuccessfulBuild(_ context.Context, clusterEnvID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("LatestSuccessfulBuild"); err != nil {
		return "", err
	}
	if id, ok := p.SuccessfulBuilds[clusterEnvID]; ok {
		return id, nil
	}
	return "", cluster.ErrNotFound
}

func (p *Provisioner) CreateBuild(_ context.Context, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("CreateBuild"); err != nil {
		return "", err
	}
	return p.newID("CreateBuild", "bld"), nil
}

func (p *Provisioner) GetBuild(_ context.Context, buildID string) (cluster.Build, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("GetBuild"); err != nil {
		return cluster.Build{}, err
	}
	status := cluster.BuildSucceeded
	if n := len(p.BuildStatuses); n > 0 {
		status = p.BuildStatuses[min(p.buildPolls, n-1)]
	}
	p.buildPolls++
	build := cluster.Build{ID: buildID, Status: status}
	if status == cluster.BuildFailed {
		build.Message = "pip install failed"
	}
	return build, nil
}

func (p *Provisioner) CreateCluster(_ context.Context, req cluster.CreateClusterRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("CreateCluster"); err != nil {
		return "", err
	}
	p.Requests = append(p.Requests, req)
	return p.newID("CreateCluster", "ses"), nil
}

func (p *Provisioner) GetCluster(_ context.Context, clusterID string) (cluster.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.record("GetCluster"); err != nil {
		return cluster.Info{}, err
	}
	state := cluster.ClusterRunning
	if n := len(p.ClusterStates); n > 0 {
		state = p.ClusterStates[min(p.clusterPoll, n-1)]
	}
	alive := 1
	if n := len(p.AliveNodes); n > 0 {
		alive = p.AliveNodes[min(p.clusterPoll, n-1)]
	}
	p.clusterPoll++
	return cluster.Info{
		ID:              clusterID,
		State:           state,
		HeadNodeAddress: "10.0.0.1",
		URL:             "https://console.example.com/clusters/" + clusterID,
		AliveNodes:      alive,
	}, nil
}

func (p *Provisioner) TerminateCluster(_ context.Context, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.record("TerminateCluster")
}
