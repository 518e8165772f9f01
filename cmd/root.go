package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	"releasetest/internal/result"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Flags shared by every subcommand.
var (
	rootDebug          bool
	rootSilent         bool
	rootConfigPath     string
	rootCollectionFile string
)

// rootCmd represents the base command for the releasetest application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "releasetest",
	Short: "Run release tests on freshly provisioned clusters",
	Long: `releasetest provisions a compute cluster through the control plane, builds
its runtime environment, runs a release test workload on it and reports the
outcome.

Every failure is mapped to a stable process exit code so that CI can decide
whether a run is worth retrying:

   0  SUCCESS                    1  UNCAUGHT
   2  UNSPECIFIED                3  UNKNOWN
  10  CLI_ERROR                 11  CONFIG_ERROR
  12  SETUP_ERROR               13  CLUSTER_RESOURCE_ERROR
  14  CLUSTER_ENV_BUILD_ERROR   15  CLUSTER_STARTUP_ERROR
  16  LOCAL_ENV_SETUP_ERROR     17  REMOTE_ENV_SETUP_ERROR
  18  FETCH_RESULT_ERROR        20  REPORT_ERROR
  21  LOGS_ERROR                31  CLUSTER_ENV_BUILD_TIMEOUT
  32  CLUSTER_STARTUP_TIMEOUT   33  CLUSTER_WAIT_TIMEOUT
  40  COMMAND_ERROR             41  COMMAND_ALERT
  42  COMMAND_TIMEOUT           43  PREPARE_ERROR
  44  PREPARE_TIMEOUT`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// usageError marks errors caused by invalid command line input.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application. It runs the root
// command and exits the process with the exit code of the outcome.
func Execute() {
	os.Exit(execute(os.Args[1:], os.Stderr))
}

func execute(args []string, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "releasetest: panic: %v\n%s", r, debug.Stack())
			code = result.Uncaught.Int()
		}
	}()

	rootCmd.SetVersionTemplate(`{{printf "releasetest version %s\n" .Version}}`)
	rootCmd.SetArgs(args)

	err := rootCmd.Execute()
	code = getExitCode(err)
	if code != 0 {
		fmt.Fprintf(stderr, "releasetest: exiting with code %d (%s)\n", code, result.ExitCode(code))
	}
	return code
}

// getExitCode maps the outcome of a command to the process exit code.
func getExitCode(err error) int {
	if err == nil {
		return result.Success.Int()
	}

	var usage *usageError
	if errors.As(err, &usage) {
		return result.CLIError.Int()
	}
	// Cobra reports unknown subcommands as plain errors.
	if strings.HasPrefix(err.Error(), "unknown command") {
		return result.CLIError.Int()
	}

	return result.Classify(err).Int()
}

// validArgs wraps cobra's argument validators so violations map to CLI_ERROR.
func validArgs(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validate(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&rootSilent, "silent", false, "Disable all logging output")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Configuration directory (default: ~/.config/releasetest)")
	rootCmd.PersistentFlags().StringVarP(&rootCollectionFile, "test-collection-file", "f", "release_tests.yaml", "Release test collection file")
	rootCmd.MarkFlagsMutuallyExclusive("debug", "silent")

	rootCmd.AddCommand(newVersionCmd())
}
