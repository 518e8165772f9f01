package result

// ExitCode is the process-visible classification of a release test run.
// The integer values are a stable contract consumed by CI retry rules and
// must not be renumbered.
type ExitCode int

const (
	// Success must never be assigned manually; it is derived from a nil error.
	Success     ExitCode = 0
	Uncaught    ExitCode = 1
	Unspecified ExitCode = 2
	Unknown     ExitCode = 3

	// Hard infrastructure errors, not retried.
	CLIError             ExitCode = 10
	ConfigError          ExitCode = 11
	SetupError           ExitCode = 12
	ClusterResourceError ExitCode = 13
	ClusterEnvBuildError ExitCode = 14
	ClusterStartupError  ExitCode = 15
	LocalEnvSetupError   ExitCode = 16
	RemoteEnvSetupError  ExitCode = 17
	FetchResultError     ExitCode = 18
	ReportError          ExitCode = 20
	LogsError            ExitCode = 21

	// Infrastructure timeouts, retryable.
	ClusterEnvBuildTimeout ExitCode = 31
	ClusterStartupTimeout  ExitCode = 32
	ClusterWaitTimeout     ExitCode = 33

	// Workload outcomes.
	CommandError   ExitCode = 40
	CommandAlert   ExitCode = 41
	CommandTimeout ExitCode = 42
	PrepareError   ExitCode = 43
	PrepareTimeout ExitCode = 44
)

var exitCodeNames = map[ExitCode]string{
	Success:                "SUCCESS",
	Uncaught:               "UNCAUGHT",
	Unspecified:            "UNSPECIFIED",
	Unknown:                "UNKNOWN",
	CLIError:               "CLI_ERROR",
	ConfigError:            "CONFIG_ERROR",
	SetupError:             "SETUP_ERROR",
	ClusterResourceError:   "CLUSTER_RESOURCE_ERROR",
	ClusterEnvBuildError:   "CLUSTER_ENV_BUILD_ERROR",
	ClusterStartupError:    "CLUSTER_STARTUP_ERROR",
	LocalEnvSetupError:     "LOCAL_ENV_SETUP_ERROR",
	RemoteEnvSetupError:    "REMOTE_ENV_SETUP_ERROR",
	FetchResultError:       "FETCH_RESULT_ERROR",
	ReportError:            "REPORT_ERROR",
	LogsError:              "LOGS_ERROR",
	ClusterEnvBuildTimeout: "CLUSTER_ENV_BUILD_TIMEOUT",
	ClusterStartupTimeout:  "CLUSTER_STARTUP_TIMEOUT",
	ClusterWaitTimeout:     "CLUSTER_WAIT_TIMEOUT",
	CommandError:           "COMMAND_ERROR",
	CommandAlert:           "COMMAND_ALERT",
	CommandTimeout:         "COMMAND_TIMEOUT",
	PrepareError:           "PREPARE_ERROR",
	PrepareTimeout:         "PREPARE_TIMEOUT",
}

// String returns the symbolic name of the exit code.
func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// Int returns the integer passed to os.Exit.
func (c ExitCode) Int() int {
	return int(c)
}

// IsTimeout reports whether the code represents a deadline expiry rather than
// a remote-reported failure.
func (c ExitCode) IsTimeout() bool {
	switch c {
	case ClusterEnvBuildTimeout, ClusterStartupTimeout, ClusterWaitTimeout, CommandTimeout, PrepareTimeout:
		return true
	default:
		return false
	}
}

// IsInfra reports whether the code was caused by the test infrastructure
// rather than by the workload under test.
func (c ExitCode) IsInfra() bool {
	return c >= CLIError && c < CommandError
}
