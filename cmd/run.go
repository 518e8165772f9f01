package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"releasetest/internal/app"

	"github.com/spf13/cobra"
)

var (
	runProjectID   string
	runWheelsURL   string
	runSmokeTest   bool
	runParallel    int
	runResultFile  string
	runArtifactDir string
	runNoConsole   bool
	runNoColor     bool
	runNoProgress  bool
)

// runCmd runs one or more release tests by name.
var runCmd = &cobra.Command{
	Use:   "run TEST_NAME [TEST_NAME...]",
	Short: "Run release tests",
	Long: `Run the named release tests from the test collection.

Each test provisions its own cluster, runs its workload and tears the cluster
down again, whatever the outcome. The process exits with the exit code of the
first failed test in the order given on the command line.

Example usage:
  releasetest run many_tasks --project-id prj_123
  releasetest run many_tasks --smoke-test
  releasetest run many_tasks many_actors --parallel 2 --result-file out.json`,
	Args:              validArgs(cobra.MinimumNArgs(1)),
	ValidArgsFunction: completeTestNames,
	RunE:              runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runProjectID, "project-id", os.Getenv("RELEASETEST_PROJECT_ID"), "Control-plane project to create clusters in")
	runCmd.Flags().StringVar(&runWheelsURL, "wheels-url", "", "URL of the wheels under test, passed to templates and the workload")
	runCmd.Flags().BoolVar(&runSmokeTest, "smoke-test", false, "Apply the smoke_test overrides of each test")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Number of tests to run at once (1-20)")
	runCmd.Flags().StringVar(&runResultFile, "result-file", "", "Write the JSON result to this file")
	runCmd.Flags().StringVar(&runArtifactDir, "artifact-dir", "", "Download test artifacts into this directory")
	runCmd.Flags().BoolVar(&runNoConsole, "no-console", false, "Do not print the result summary")
	runCmd.Flags().BoolVar(&runNoColor, "no-color", false, "Disable colored output")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "Disable the progress spinner")

	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if runParallel < 1 || runParallel > 20 {
			return &usageError{err: fmt.Errorf("parallel must be between 1 and 20, got %d", runParallel)}
		}
		return nil
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.NewConfig(rootDebug, rootConfigPath, rootCollectionFile)
	cfg.Silent = rootSilent
	cfg.TestNames = args
	cfg.SmokeTest = runSmokeTest
	cfg.ProjectID = runProjectID
	cfg.WheelsURL = runWheelsURL
	cfg.Parallelism = runParallel
	cfg.ResultFile = runResultFile
	cfg.ArtifactDir = runArtifactDir
	cfg.NoConsole = runNoConsole
	cfg.Output = cmd.OutOrStdout()
	cfg.Color = !runNoColor && isTerminal(cmd.OutOrStdout())

	// One spinner line cannot follow several runs, and it would garble
	// debug output.
	if !runNoProgress && !rootDebug && !rootSilent && runParallel == 1 && isTerminal(cmd.ErrOrStderr()) {
		progress := newProgressObserver(cmd.ErrOrStderr())
		defer progress.Stop()
		cfg.Observer = progress
	}

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	_, err = application.Run(ctx)
	return err
}

// completeTestNames offers the test names of the collection file.
func completeTestNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	tests, err := loadCollection()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	names := make([]string, 0, len(tests))
	for _, test := range tests {
		names = append(names, test.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
