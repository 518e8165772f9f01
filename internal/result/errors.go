package result

import (
	"errors"
	"fmt"
)

// Kind identifies the stage-scoped failure category of an error. Every Kind
// maps to exactly one ExitCode.
type Kind string

const (
	KindConfig                 Kind = "ConfigError"
	KindSetup                  Kind = "SetupError"
	KindLocalEnvSetup          Kind = "LocalEnvSetupError"
	KindClusterComputeCreate   Kind = "ClusterComputeCreateError"
	KindClusterEnvCreate       Kind = "ClusterEnvCreateError"
	KindClusterCreation        Kind = "ClusterCreationError"
	KindClusterEnvBuild        Kind = "ClusterEnvBuildError"
	KindClusterEnvBuildTimeout Kind = "ClusterEnvBuildTimeout"
	KindClusterStartup         Kind = "ClusterStartupError"
	KindClusterStartupTimeout  Kind = "ClusterStartupTimeout"
	KindClusterNodesWait       Kind = "ClusterNodesWaitTimeout"
	KindRemoteEnvSetup         Kind = "RemoteEnvSetupError"
	KindPrepareCommand         Kind = "PrepareCommandError"
	KindPrepareCommandTimeout  Kind = "PrepareCommandTimeout"
	KindCommand                Kind = "CommandError"
	KindCommandTimeout         Kind = "CommandTimeout"
	KindFetchResult            Kind = "FetchResultError"
	KindLogs                   Kind = "LogsError"
	KindResultsAlert           Kind = "ResultsAlert"
	KindReport                 Kind = "ReportError"
)

var kindExitCodes = map[Kind]ExitCode{
	KindConfig:                 ConfigError,
	KindSetup:                  SetupError,
	KindLocalEnvSetup:          LocalEnvSetupError,
	KindClusterComputeCreate:   ClusterResourceError,
	KindClusterEnvCreate:       ClusterResourceError,
	KindClusterCreation:        ClusterResourceError,
	KindClusterEnvBuild:        ClusterEnvBuildError,
	KindClusterEnvBuildTimeout: ClusterEnvBuildTimeout,
	KindClusterStartup:         ClusterStartupError,
	KindClusterStartupTimeout:  ClusterStartupTimeout,
	KindClusterNodesWait:       ClusterWaitTimeout,
	KindRemoteEnvSetup:         RemoteEnvSetupError,
	KindPrepareCommand:         PrepareError,
	KindPrepareCommandTimeout:  PrepareTimeout,
	KindCommand:                CommandError,
	KindCommandTimeout:         CommandTimeout,
	KindFetchResult:            FetchResultError,
	KindLogs:                   LogsError,
	KindResultsAlert:           CommandAlert,
	KindReport:                 ReportError,
}

// Kinds returns every failure kind the pipeline can produce.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(kindExitCodes))
	for kind := range kindExitCodes {
		kinds = append(kinds, kind)
	}
	return kinds
}

// ExitCode returns the exit code for the kind. Unregistered kinds map to
// Unspecified.
func (k Kind) ExitCode() ExitCode {
	if code, ok := kindExitCodes[k]; ok {
		return code
	}
	return Unspecified
}

// Error is the typed failure returned by pipeline stages and their
// collaborators. Message carries diagnostic context only; callers branch on
// Kind (via errors.Is against the sentinels below, or KindOf).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target carries no message, so
// the package-level sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// ExitCode returns the exit code for the error's kind.
func (e *Error) ExitCode() ExitCode {
	return e.Kind.ExitCode()
}

// NewError creates a typed error with a formatted message.
func NewError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrConfig                 = &Error{Kind: KindConfig}
	ErrSetup                  = &Error{Kind: KindSetup}
	ErrLocalEnvSetup          = &Error{Kind: KindLocalEnvSetup}
	ErrClusterComputeCreate   = &Error{Kind: KindClusterComputeCreate}
	ErrClusterEnvCreate       = &Error{Kind: KindClusterEnvCreate}
	ErrClusterCreation        = &Error{Kind: KindClusterCreation}
	ErrClusterEnvBuild        = &Error{Kind: KindClusterEnvBuild}
	ErrClusterEnvBuildTimeout = &Error{Kind: KindClusterEnvBuildTimeout}
	ErrClusterStartup         = &Error{Kind: KindClusterStartup}
	ErrClusterStartupTimeout  = &Error{Kind: KindClusterStartupTimeout}
	ErrClusterNodesWait       = &Error{Kind: KindClusterNodesWait}
	ErrRemoteEnvSetup         = &Error{Kind: KindRemoteEnvSetup}
	ErrPrepareCommand         = &Error{Kind: KindPrepareCommand}
	ErrPrepareCommandTimeout  = &Error{Kind: KindPrepareCommandTimeout}
	ErrCommand                = &Error{Kind: KindCommand}
	ErrCommandTimeout         = &Error{Kind: KindCommandTimeout}
	ErrFetchResult            = &Error{Kind: KindFetchResult}
	ErrLogs                   = &Error{Kind: KindLogs}
	ErrResultsAlert           = &Error{Kind: KindResultsAlert}
	ErrReport                 = &Error{Kind: KindReport}
)

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Kind, true
	}
	return "", false
}

// Classify maps an error returned by a pipeline run to its exit code. A nil
// error is Success; an untyped error is Unspecified.
func Classify(err error) ExitCode {
	if err == nil {
		return Success
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		return Uncaught
	}
	if kind, ok := KindOf(err); ok {
		return kind.ExitCode()
	}
	return Unspecified
}

// PanicError carries a panic recovered during a run.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
