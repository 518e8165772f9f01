package app

import (
	"io"

	"releasetest/internal/config"
	"releasetest/internal/pipeline"
)

// Config holds the runtime options of one releasetest invocation.
type Config struct {
	// Debug settings
	Debug  bool
	Silent bool

	// Custom configuration directory (optional). When empty the default
	// user configuration directory is used.
	ConfigPath string

	// TestCollectionFile lists the release tests.
	TestCollectionFile string
	// TestNames selects the tests to run.
	TestNames []string
	SmokeTest bool

	ProjectID string
	WheelsURL string

	// Parallelism bounds how many tests run at once.
	Parallelism int

	// ResultFile overrides report.resultFile from the application config.
	ResultFile  string
	ArtifactDir string
	NoConsole   bool
	Color       bool

	// Output receives console reports and command output. Defaults to
	// stdout.
	Output io.Writer
	// Observer is notified of stage transitions, e.g. by a progress spinner.
	Observer pipeline.Observer

	AppConfig *config.AppConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath, testCollectionFile string) *Config {
	return &Config{
		Debug:              debug,
		ConfigPath:         configPath,
		TestCollectionFile: testCollectionFile,
		Parallelism:        1,
	}
}
