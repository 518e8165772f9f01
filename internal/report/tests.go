package report

import (
	"encoding/json"
	"fmt"
	"io"

	"releasetest/internal/config"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// OutputFormat selects how test listings are printed.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
}

type testSummary struct {
	Name           string `json:"name" yaml:"name"`
	Group          string `json:"group,omitempty" yaml:"group,omitempty"`
	Team           string `json:"team,omitempty" yaml:"team,omitempty"`
	Frequency      string `json:"frequency,omitempty" yaml:"frequency,omitempty"`
	RunType        string `json:"run_type" yaml:"run_type"`
	ClusterEnv     string `json:"cluster_env,omitempty" yaml:"cluster_env,omitempty"`
	ClusterCompute string `json:"cluster_compute,omitempty" yaml:"cluster_compute,omitempty"`
	Smoke          bool   `json:"has_smoke_test" yaml:"has_smoke_test"`
}

// WriteTests prints a listing of tests.
func WriteTests(w io.Writer, tests []config.Test, format OutputFormat) error {
	summaries := make([]testSummary, 0, len(tests))
	for _, t := range tests {
		summaries = append(summaries, testSummary{
			Name:           t.Name,
			Group:          t.Group,
			Team:           t.Team,
			Frequency:      t.Frequency,
			RunType:        t.Run.Type,
			ClusterEnv:     t.Cluster.ClusterEnv,
			ClusterCompute: t.Cluster.ClusterCompute,
			Smoke:          t.SmokeTestOverrides != nil,
		})
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return err
		}
		return enc.Close()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"NAME", "GROUP", "TEAM", "FREQUENCY", "RUN TYPE", "SMOKE TEST"})
	for _, s := range summaries {
		smoke := "-"
		if s.Smoke {
			smoke = "yes"
		}
		t.AppendRow(table.Row{s.Name, s.Group, s.Team, s.Frequency, s.RunType, smoke})
	}
	t.AppendFooter(table.Row{"", "", "", "", "TOTAL", len(summaries)})
	t.Render()
	return nil
}
