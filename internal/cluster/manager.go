package cluster

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"releasetest/internal/clock"
	"releasetest/internal/config"
	"releasetest/internal/result"
	"releasetest/pkg/logging"

	"github.com/google/uuid"
)

// DefaultPollInterval is used when no poll interval is configured.
const DefaultPollInterval = 15 * time.Second

// Manager drives the lifecycle of the cluster used by one release test run.
// Each resource is created at most once; a resource whose id is already set
// is reused without a remote create call.
type Manager interface {
	SetClusterEnv(cfg config.ClusterEnvConfig)
	SetClusterCompute(cfg config.ClusterComputeConfig)
	// UseExisting pins resource ids supplied by the test definition.
	UseExisting(state State)

	CreateClusterCompute(ctx context.Context) error
	CreateClusterEnv(ctx context.Context) error
	BuildClusterEnv(ctx context.Context, timeout time.Duration) error
	StartCluster(ctx context.Context, timeout time.Duration) error
	TerminateCluster(ctx context.Context) error

	State() State
	Describe(ctx context.Context) (Info, error)
	ClusterURL() string
}

// FullManager implements Manager against a Provisioner.
type FullManager struct {
	provisioner     Provisioner
	projectID       string
	testName        string
	clock           clock.Clock
	pollInterval    time.Duration
	autosuspendMins int

	envConfig     *config.ClusterEnvConfig
	computeConfig *config.ClusterComputeConfig

	state      State
	clusterURL string
	terminated bool
}

// Option configures a FullManager.
type Option func(*FullManager)

// WithClock sets the clock used for poll deadlines.
func WithClock(c clock.Clock) Option {
	return func(m *FullManager) { m.clock = c }
}

// WithPollInterval sets the delay between build and startup polls.
func WithPollInterval(d time.Duration) Option {
	return func(m *FullManager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithAutosuspend sets the idle timeout requested for started clusters.
func WithAutosuspend(mins int) Option {
	return func(m *FullManager) { m.autosuspendMins = mins }
}

// NewFullManager creates a manager for one run of testName in projectID.
func NewFullManager(provisioner Provisioner, projectID, testName string, opts ...Option) *FullManager {
	m := &FullManager{
		provisioner:  provisioner,
		projectID:    projectID,
		testName:     testName,
		clock:        clock.Real{},
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_\-]+`)

func sanitize(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// ComputeTemplateName returns the deterministic name under which a compute
// configuration is registered.
func ComputeTemplateName(projectID, testName string, cfg config.ClusterComputeConfig) string {
	return fmt.Sprintf("%s__compute__%s__%s", sanitize(projectID), sanitize(testName), cfg.Hash())
}

// ClusterEnvName returns the deterministic name under which an environment
// configuration is registered.
func ClusterEnvName(projectID, testName string, cfg config.ClusterEnvConfig) string {
	return fmt.Sprintf("%s__env__%s__%s", sanitize(projectID), sanitize(testName), cfg.Hash())
}

func (m *FullManager) SetClusterEnv(cfg config.ClusterEnvConfig) {
	m.envConfig = &cfg
}

func (m *FullManager) SetClusterCompute(cfg config.ClusterComputeConfig) {
	m.computeConfig = &cfg
}

func (m *FullManager) UseExisting(state State) {
	if state.ClusterComputeID != "" {
		m.state.ClusterComputeID = state.ClusterComputeID
	}
	if state.ClusterEnvID != "" {
		m.state.ClusterEnvID = state.ClusterEnvID
	}
	if state.ClusterEnvBuildID != "" {
		m.state.ClusterEnvBuildID = state.ClusterEnvBuildID
	}
}

func (m *FullManager) State() State {
	return m.state
}

func (m *FullManager) ClusterURL() string {
	return m.clusterURL
}

// CreateClusterCompute registers the compute template unless its id is
// already known or a template with the same name exists.
func (m *FullManager) CreateClusterCompute(ctx context.Context) error {
	if m.state.ClusterComputeID != "" {
		logging.Info("ClusterManager", "Using existing cluster compute %s", m.state.ClusterComputeID)
		return nil
	}
	if m.computeConfig == nil {
		return result.NewError(result.KindClusterComputeCreate, "no cluster compute configuration set for test %s", m.testName)
	}

	name := ComputeTemplateName(m.projectID, m.testName, *m.computeConfig)

	id, err := m.provisioner.FindComputeTemplate(ctx, m.projectID, name)
	switch {
	case err == nil && id != "":
		logging.Info("ClusterManager", "Reusing cluster compute %s (%s)", name, id)
		m.state.ClusterComputeID = id
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return result.Wrap(result.KindClusterComputeCreate, err, "could not look up cluster compute %s", name)
	}

	logging.Info("ClusterManager", "Creating cluster compute %s from %s", name, m.computeConfig.FilePath)
	id, err = m.provisioner.CreateComputeTemplate(ctx, m.projectID, name, m.computeConfig.Spec)
	if err != nil {
		return result.Wrap(result.KindClusterComputeCreate, err, "could not create cluster compute %s", name)
	}
	if id == "" {
		return result.NewError(result.KindClusterComputeCreate, "unexpected response creating cluster compute %s: no id returned", name)
	}

	m.state.ClusterComputeID = id
	m.state.ComputeCreated = true
	logging.Info("ClusterManager", "Created cluster compute %s", id)
	return nil
}

// CreateClusterEnv registers the cluster environment unless its id is
// already known or an environment with the same name exists.
func (m *FullManager) CreateClusterEnv(ctx context.Context) error {
	if m.state.ClusterEnvID != "" {
		logging.Info("ClusterManager", "Using existing cluster env %s", m.state.ClusterEnvID)
		return nil
	}
	if m.envConfig == nil {
		return result.NewError(result.KindClusterEnvCreate, "no cluster env configuration set for test %s", m.testName)
	}

	name := ClusterEnvName(m.projectID, m.testName, *m.envConfig)

	id, err := m.provisioner.FindClusterEnv(ctx, m.projectID, name)
	switch {
	case err == nil && id != "":
		logging.Info("ClusterManager", "Reusing cluster env %s (%s)", name, id)
		m.state.ClusterEnvID = id
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return result.Wrap(result.KindClusterEnvCreate, err, "could not look up cluster env %s", name)
	}

	logging.Info("ClusterManager", "Creating cluster env %s from %s", name, m.envConfig.FilePath)
	id, err = m.provisioner.CreateClusterEnv(ctx, m.projectID, name, m.envConfig.Spec)
	if err != nil {
		return result.Wrap(result.KindClusterEnvCreate, err, "could not create cluster env %s", name)
	}
	if id == "" {
		return result.NewError(result.KindClusterEnvCreate, "unexpected response creating cluster env %s: no id returned", name)
	}

	m.state.ClusterEnvID = id
	m.state.EnvCreated = true
	logging.Info("ClusterManager", "Created cluster env %s", id)
	return nil
}

// BuildClusterEnv makes sure a successful build of the cluster environment
// exists, triggering one and polling it until timeout if needed.
func (m *FullManager) BuildClusterEnv(ctx context.Context, timeout time.Duration) error {
	if m.state.ClusterEnvBuildID != "" {
		logging.Info("ClusterManager", "Using existing cluster env build %s", m.state.ClusterEnvBuildID)
		return nil
	}
	if m.state.ClusterEnvID == "" {
		return result.NewError(result.KindClusterEnvBuild, "cannot build cluster env: no cluster env id")
	}

	buildID, err := m.provisioner.LatestSuccessfulBuild(ctx, m.state.ClusterEnvID)
	switch {
	case err == nil && buildID != "":
		logging.Info("ClusterManager", "Reusing build %s of cluster env %s", buildID, m.state.ClusterEnvID)
		m.state.ClusterEnvBuildID = buildID
		return nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return result.Wrap(result.KindClusterEnvBuild, err, "could not list builds of cluster env %s", m.state.ClusterEnvID)
	}

	buildID, err = m.provisioner.CreateBuild(ctx, m.state.ClusterEnvID)
	if err != nil {
		return result.Wrap(result.KindClusterEnvBuild, err, "could not trigger build of cluster env %s", m.state.ClusterEnvID)
	}
	if buildID == "" {
		return result.NewError(result.KindClusterEnvBuild, "unexpected response triggering build of cluster env %s: no id returned", m.state.ClusterEnvID)
	}
	logging.Info("ClusterManager", "Waiting for build %s of cluster env %s (timeout %s)", buildID, m.state.ClusterEnvID, timeout)

	deadline := m.clock.Now().Add(timeout)
	for {
		build, err := m.provisioner.GetBuild(ctx, buildID)
		if err != nil {
			return result.Wrap(result.KindClusterEnvBuild, err, "could not get status of build %s", buildID)
		}

		switch build.Status {
		case BuildSucceeded:
			m.state.ClusterEnvBuildID = buildID
			m.state.BuildCreated = true
			logging.Info("ClusterManager", "Build %s succeeded", buildID)
			return nil
		case BuildFailed, BuildCanceled:
			return result.NewError(result.KindClusterEnvBuild, "build %s of cluster env %s ended with status %s: %s",
				buildID, m.state.ClusterEnvID, build.Status, build.Message)
		}

		if !m.clock.Now().Before(deadline) {
			return result.NewError(result.KindClusterEnvBuildTimeout, "build %s of cluster env %s did not finish within %s (last status %s)",
				buildID, m.state.ClusterEnvID, timeout, build.Status)
		}
		if err := m.sleep(ctx, deadline); err != nil {
			return result.Wrap(waitKind(err, result.KindClusterEnvBuild, result.KindClusterEnvBuildTimeout), err,
				"interrupted while waiting for build %s", buildID)
		}
	}
}

// StartCluster starts a cluster from the build and compute template and
// waits until it is running.
func (m *FullManager) StartCluster(ctx context.Context, timeout time.Duration) error {
	if m.state.ClusterEnvBuildID == "" || m.state.ClusterComputeID == "" {
		return result.NewError(result.KindClusterCreation, "cannot start cluster: build id %q and compute id %q are both required",
			m.state.ClusterEnvBuildID, m.state.ClusterComputeID)
	}

	name := fmt.Sprintf("%s_%s", sanitize(m.testName), strings.Split(uuid.New().String(), "-")[0])
	req := CreateClusterRequest{
		ProjectID:         m.projectID,
		Name:              name,
		ClusterEnvBuildID: m.state.ClusterEnvBuildID,
		ClusterComputeID:  m.state.ClusterComputeID,
		IdleTimeoutMins:   m.autosuspendMins,
	}

	logging.Info("ClusterManager", "Starting cluster %s (build %s, compute %s)", name, req.ClusterEnvBuildID, req.ClusterComputeID)
	clusterID, err := m.provisioner.CreateCluster(ctx, req)
	if err != nil {
		return result.Wrap(result.KindClusterCreation, err, "could not create cluster %s", name)
	}
	if clusterID == "" {
		return result.NewError(result.KindClusterCreation, "unexpected response creating cluster %s: no id returned", name)
	}
	m.state.ClusterID = clusterID
	m.state.ClusterCreated = true

	deadline := m.clock.Now().Add(timeout)
	for {
		info, err := m.provisioner.GetCluster(ctx, clusterID)
		if err != nil {
			return result.Wrap(result.KindClusterStartup, err, "could not get state of cluster %s", clusterID)
		}
		if info.URL != "" {
			m.clusterURL = info.URL
		}

		switch info.State {
		case ClusterRunning:
			logging.Info("ClusterManager", "Cluster %s is running", clusterID)
			return nil
		case ClusterFailed, ClusterTerminated, ClusterTerminating:
			return result.NewError(result.KindClusterStartup, "cluster %s entered state %s while starting: %s",
				clusterID, info.State, info.Message)
		}

		if !m.clock.Now().Before(deadline) {
			return result.NewError(result.KindClusterStartupTimeout, "cluster %s did not start within %s (last state %s)",
				clusterID, timeout, info.State)
		}
		if err := m.sleep(ctx, deadline); err != nil {
			return result.Wrap(waitKind(err, result.KindClusterStartup, result.KindClusterStartupTimeout), err,
				"interrupted while waiting for cluster %s", clusterID)
		}
	}
}

// TerminateCluster terminates the cluster if this run started one. It is
// safe to call more than once.
func (m *FullManager) TerminateCluster(ctx context.Context) error {
	if m.state.ClusterID == "" || m.terminated {
		return nil
	}
	logging.Info("ClusterManager", "Terminating cluster %s", m.state.ClusterID)
	if err := m.provisioner.TerminateCluster(ctx, m.state.ClusterID); err != nil {
		logging.Warn("ClusterManager", "Could not terminate cluster %s: %v", m.state.ClusterID, err)
		return fmt.Errorf("failed to terminate cluster %s: %w", m.state.ClusterID, err)
	}
	m.terminated = true
	return nil
}

// Describe returns the current backend view of the cluster.
func (m *FullManager) Describe(ctx context.Context) (Info, error) {
	if m.state.ClusterID == "" {
		return Info{}, errors.New("no cluster has been started")
	}
	info, err := m.provisioner.GetCluster(ctx, m.state.ClusterID)
	if err != nil {
		return Info{}, fmt.Errorf("failed to describe cluster %s: %w", m.state.ClusterID, err)
	}
	if info.URL != "" {
		m.clusterURL = info.URL
	}
	return info, nil
}

// sleep waits one poll interval, or less if the deadline is closer.
// waitKind classifies an interrupted wait. Only an expired deadline counts
// as a timeout; cancellation is a plain failure of the stage.
func waitKind(err error, errKind, timeoutKind result.Kind) result.Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return timeoutKind
	}
	return errKind
}

func (m *FullManager) sleep(ctx context.Context, deadline time.Time) error {
	wait := m.pollInterval
	if remaining := deadline.Sub(m.clock.Now()); remaining < wait {
		wait = remaining
	}
	return m.clock.Sleep(ctx, wait)
}
