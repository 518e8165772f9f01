package pipeline

import (
	"sync"

	"releasetest/internal/result"
)

// Stage is a state of the pipeline.
type Stage string

const (
	StageSetup                Stage = "Setup"
	StageLoadConfig           Stage = "LoadConfig"
	StagePrepareLocalEnv      Stage = "PrepareLocalEnv"
	StageCreateClusterCompute Stage = "CreateClusterCompute"
	StageCreateClusterEnv     Stage = "CreateClusterEnv"
	StageBuildClusterEnv      Stage = "BuildClusterEnv"
	StageStartCluster         Stage = "StartCluster"
	StagePrepareRemoteEnv     Stage = "PrepareRemoteEnv"
	StageWaitForNodes         Stage = "WaitForNodes"
	StageRunPrepareCommand    Stage = "RunPrepareCommand"
	StageRunCommand           Stage = "RunCommand"
	StageFetchResult          Stage = "FetchResult"
	StageFetchLogs            Stage = "FetchLogs"
	StageAlert                Stage = "Alert"
	StageTeardown             Stage = "Teardown"
	StageReport               Stage = "Report"
	StageDone                 Stage = "Done"
)

// Stages returns the stages of a successful run in order.
func Stages() []Stage {
	return []Stage{
		StageSetup,
		StageLoadConfig,
		StagePrepareLocalEnv,
		StageCreateClusterCompute,
		StageCreateClusterEnv,
		StageBuildClusterEnv,
		StageStartCluster,
		StagePrepareRemoteEnv,
		StageWaitForNodes,
		StageRunPrepareCommand,
		StageRunCommand,
		StageFetchResult,
		StageFetchLogs,
		StageAlert,
		StageTeardown,
		StageReport,
		StageDone,
	}
}

// defaultKind is the kind given to untyped errors raised by a stage.
var defaultKind = map[Stage]result.Kind{
	StageSetup:                result.KindSetup,
	StageLoadConfig:           result.KindConfig,
	StagePrepareLocalEnv:      result.KindLocalEnvSetup,
	StageCreateClusterCompute: result.KindClusterComputeCreate,
	StageCreateClusterEnv:     result.KindClusterEnvCreate,
	StageBuildClusterEnv:      result.KindClusterEnvBuild,
	StageStartCluster:         result.KindClusterCreation,
	StagePrepareRemoteEnv:     result.KindRemoteEnvSetup,
	StageWaitForNodes:         result.KindClusterNodesWait,
	StageRunPrepareCommand:    result.KindPrepareCommand,
	StageRunCommand:           result.KindCommand,
	StageFetchResult:          result.KindFetchResult,
	StageFetchLogs:            result.KindLogs,
	StageAlert:                result.KindResultsAlert,
	StageReport:               result.KindReport,
}

// Observer is notified when a run enters and leaves a stage.
type Observer interface {
	StageStarted(test string, stage Stage)
	StageFinished(test string, stage Stage, err error)
}

// NoOpObserver ignores every event.
type NoOpObserver struct{}

func (NoOpObserver) StageStarted(string, Stage)         {}
func (NoOpObserver) StageFinished(string, Stage, error) {}

// Event is one entry of a Trace.
type Event struct {
	Test    string
	Stage   Stage
	Entered bool
	Err     error
}

// Trace is an Observer that records every event.
type Trace struct {
	mu     sync.Mutex
	events []Event
}

func (t *Trace) StageStarted(test string, stage Stage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Test: test, Stage: stage, Entered: true})
}

func (t *Trace) StageFinished(test string, stage Stage, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Test: test, Stage: stage, Err: err})
}

// Events returns the recorded events.
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

// Entered returns the stages that were entered, in order.
func (t *Trace) Entered() []Stage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var stages []Stage
	for _, e := range t.events {
		if e.Entered {
			stages = append(stages, e.Stage)
		}
	}
	return stages
}

// Balanced reports whether every entered stage was also exited.
func (t *Trace) Balanced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	open := map[Stage]int{}
	for _, e := range t.events {
		if e.Entered {
			open[e.Stage]++
		} else {
			open[e.Stage]--
		}
	}
	for _, n := range open {
		if n != 0 {
			return false
		}
	}
	return true
}
