package cmd

import (
	"releasetest/internal/config"
	"releasetest/internal/report"

	"github.com/spf13/cobra"
)

var (
	listOutput string
	listGroup  string
)

// listCmd prints the tests of the collection file.
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the release tests of the collection",
	Long: `List the release tests declared in the test collection file.

Example usage:
  releasetest list
  releasetest list --group core -o json`,
	Args: validArgs(cobra.NoArgs),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOutput, "output", "o", string(report.FormatTable), "Output format (table, json, yaml)")
	listCmd.Flags().StringVar(&listGroup, "group", "", "Only list tests of this group")

	_ = listCmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{string(report.FormatTable), string(report.FormatJSON), string(report.FormatYAML)}, cobra.ShellCompDirectiveNoFileComp
	})
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := report.ParseFormat(listOutput)
	if err != nil {
		return &usageError{err: err}
	}

	tests, err := loadCollection()
	if err != nil {
		return err
	}

	if listGroup != "" {
		filtered := tests[:0]
		for _, test := range tests {
			if test.Group == listGroup {
				filtered = append(filtered, test)
			}
		}
		tests = filtered
	}

	return report.WriteTests(cmd.OutOrStdout(), tests, format)
}

func loadCollection() ([]config.Test, error) {
	return config.LoadTestCollection(rootCollectionFile)
}
