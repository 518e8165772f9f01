package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"releasetest/internal/result"
	strutil "releasetest/pkg/strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// maxLogLines bounds the log excerpt printed by the console reporter.
const maxLogLines = 20

// ConsoleReporter prints a summary table of the run. Reports of concurrent
// runs are written whole, one after the other.
type ConsoleReporter struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewConsoleReporter writes to out, coloured when useColor is set.
func NewConsoleReporter(out io.Writer, useColor bool) *ConsoleReporter {
	return &ConsoleReporter{out: out, color: useColor}
}

func (r *ConsoleReporter) Name() string { return "console" }

func (r *ConsoleReporter) Report(_ context.Context, res *result.Result) error {
	var buf bytes.Buffer
	r.render(&buf, res)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.out.Write(buf.Bytes())
	return err
}

func (r *ConsoleReporter) render(w io.Writer, res *result.Result) {
	status := r.statusColor(res.ReturnCode)
	label := "PASSED"
	if res.ReturnCode != result.Success {
		label = "FAILED"
	}
	fmt.Fprintf(w, "\n%s %s (%s, exit code %d)\n\n",
		status.Sprint(label), res.TestName, res.ReturnCode, res.ReturnCode.Int())

	t := r.newTable(w)
	t.AppendHeader(table.Row{"FIELD", "VALUE"})
	t.AppendRow(table.Row{"Run ID", res.RunID})
	t.AppendRow(table.Row{"Status", res.Status})
	t.AppendRow(table.Row{"Smoke test", res.SmokeTest})
	appendIfSet(t, "Wheels URL", res.WheelsURL)
	appendIfSet(t, "Cluster URL", res.ClusterURL)
	appendIfSet(t, "Cluster compute", created(res.Buildtime.ClusterComputeID, res.Buildtime.ComputeCreated))
	appendIfSet(t, "Cluster env", created(res.Buildtime.ClusterEnvID, res.Buildtime.EnvCreated))
	appendIfSet(t, "Cluster env build", created(res.Buildtime.ClusterEnvBuildID, res.Buildtime.BuildCreated))
	appendIfSet(t, "Cluster", res.Buildtime.ClusterID)
	if res.Runtime.CommandRuntime > 0 {
		t.AppendRow(table.Row{"Command runtime", res.Runtime.CommandRuntime.Round(time.Millisecond)})
	}
	if d := res.Duration(); d > 0 {
		t.AppendRow(table.Row{"Total runtime", d.Round(time.Millisecond)})
	}
	appendIfSet(t, "Alert", res.Alert)
	appendIfSet(t, "Error", res.Error)
	appendIfSet(t, "Logs error", res.LogsError)
	t.Render()

	if len(res.Runtime.Stages) > 0 {
		stages := r.newTable(w)
		stages.AppendHeader(table.Row{"STAGE", "DURATION", "OUTCOME"})
		for _, s := range res.Runtime.Stages {
			stages.AppendRow(table.Row{s.Stage, s.Duration.Round(time.Millisecond), stageOutcome(s)})
		}
		stages.Render()
	}

	if len(res.Results) > 0 {
		keys := make([]string, 0, len(res.Results))
		for k := range res.Results {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		results := r.newTable(w)
		results.AppendHeader(table.Row{"RESULT", "VALUE"})
		for _, k := range keys {
			results.AppendRow(table.Row{k, strutil.TruncateCell(fmt.Sprintf("%v", res.Results[k]), 100)})
		}
		results.Render()
	}

	if res.ReturnCode != result.Success && res.LastLogs != "" {
		lines := strings.Split(res.LastLogs, "\n")
		if len(lines) > maxLogLines {
			lines = lines[len(lines)-maxLogLines:]
		}
		fmt.Fprintf(w, "\nLast %d log lines:\n%s\n", len(lines), strings.Join(lines, "\n"))
	}
}

func (r *ConsoleReporter) newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if r.color {
		t.Style().Color.Header = text.Colors{text.FgHiCyan}
	}
	return t
}

func (r *ConsoleReporter) statusColor(code result.ExitCode) *color.Color {
	var c *color.Color
	switch {
	case code == result.Success:
		c = color.New(color.FgGreen, color.Bold)
	case code.IsTimeout():
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgRed, color.Bold)
	}
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func appendIfSet(t table.Writer, field, value string) {
	if value != "" {
		t.AppendRow(table.Row{field, value})
	}
}

func created(id string, isNew bool) string {
	switch {
	case id == "":
		return ""
	case isNew:
		return id + " (created)"
	default:
		return id + " (reused)"
	}
}

func stageOutcome(s result.StageRecord) string {
	switch {
	case s.Error != "":
		return "failed: " + strutil.TruncateCell(s.Error, strutil.DefaultCellMaxLen)
	case s.Skipped:
		return "skipped"
	default:
		return "ok"
	}
}
