package cmd

import (
	"fmt"

	"releasetest/internal/app"

	"github.com/spf13/cobra"
)

// validateCmd checks the application config and the test collection without
// creating any cluster.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the test collection",
	Long: `Validate config.yaml and every test of the collection file.

Validation covers required fields, unique test names, known run types,
non-negative timeouts and smoke_test overrides. Cluster environment and
compute files are rendered only when a test runs.`,
	Args: validArgs(cobra.NoArgs),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(rootDebug, rootConfigPath, rootCollectionFile)
	cfg.Silent = rootSilent

	application, err := app.NewApplication(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d release tests in %s are valid\n", len(application.Tests()), rootCollectionFile)
	return nil
}
