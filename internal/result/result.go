package result

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Status is the coarse outcome reported alongside the exit code.
type Status string

const (
	StatusUnknown      Status = "unknown"
	StatusFinished     Status = "finished"
	StatusError        Status = "error"
	StatusTimeout      Status = "timeout"
	StatusInfraError   Status = "infra_error"
	StatusInfraTimeout Status = "infra_timeout"
)

// StatusFor derives the status from an exit code.
func StatusFor(code ExitCode) Status {
	switch {
	case code == Success:
		return StatusFinished
	case code == Unknown:
		return StatusUnknown
	case code.IsInfra() && code.IsTimeout():
		return StatusInfraTimeout
	case code.IsInfra():
		return StatusInfraError
	case code.IsTimeout():
		return StatusTimeout
	default:
		return StatusError
	}
}

// Buildtime records the cluster resources the run used and whether this run
// created them or reused existing ones.
type Buildtime struct {
	ClusterComputeID  string `json:"cluster_compute_id,omitempty"`
	ClusterEnvID      string `json:"cluster_env_id,omitempty"`
	ClusterEnvBuildID string `json:"cluster_env_build_id,omitempty"`
	ClusterID         string `json:"cluster_id,omitempty"`
	ComputeCreated    bool   `json:"compute_created"`
	EnvCreated        bool   `json:"env_created"`
	BuildCreated      bool   `json:"build_created"`
}

// StageRecord is the timing of one pipeline stage.
type StageRecord struct {
	Stage      string        `json:"stage"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	Terminated bool          `json:"terminated,omitempty"`
}

// Runtime records when the run happened and how long the workload took.
type Runtime struct {
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	CommandRuntime time.Duration `json:"command_runtime_ns"`
	Stages         []StageRecord `json:"stages,omitempty"`
}

// Result is the outcome record of a single release test run. The pipeline
// owns it for the duration of the run; callers read it after Run returns.
type Result struct {
	RunID      string                 `json:"run_id"`
	TestName   string                 `json:"test_name"`
	ReturnCode ExitCode               `json:"return_code"`
	Status     Status                 `json:"status"`
	SmokeTest  bool                   `json:"smoke_test"`
	WheelsURL  string                 `json:"wheels_url,omitempty"`
	ClusterURL string                 `json:"cluster_url,omitempty"`
	Buildtime  Buildtime              `json:"buildtime"`
	Runtime    Runtime                `json:"runtime"`
	Results    map[string]interface{} `json:"results,omitempty"`
	Alert      string                 `json:"alert,omitempty"`
	LastLogs   string                 `json:"last_logs,omitempty"`
	LogsError  string                 `json:"logs_error,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorKind  Kind                   `json:"error_kind,omitempty"`

	finished bool
}

// New creates an unclassified result with a fresh run id.
func New() *Result {
	return &Result{
		RunID:      uuid.New().String(),
		ReturnCode: Unknown,
		Status:     StatusUnknown,
	}
}

// Finish classifies the run from its terminal error. It only has an effect
// the first time it is called.
func (r *Result) Finish(err error, at time.Time) {
	if r.finished {
		return
	}
	r.finished = true
	r.ReturnCode = Classify(err)
	r.Status = StatusFor(r.ReturnCode)
	r.Runtime.FinishedAt = at
	if err != nil {
		r.Error = err.Error()
		if kind, ok := KindOf(err); ok {
			r.ErrorKind = kind
		}
	}
}

// Finished reports whether Finish has been called.
func (r *Result) Finished() bool {
	return r.finished
}

// Clone returns a deep enough copy for reporters to mutate freely.
func (r *Result) Clone() *Result {
	c := *r
	c.Results = maps.Clone(r.Results)
	c.Runtime.Stages = append([]StageRecord(nil), r.Runtime.Stages...)
	return &c
}

// Duration is the wall-clock time of the whole run.
func (r *Result) Duration() time.Duration {
	if r.Runtime.FinishedAt.IsZero() || r.Runtime.StartedAt.IsZero() {
		return 0
	}
	return r.Runtime.FinishedAt.Sub(r.Runtime.StartedAt)
}
