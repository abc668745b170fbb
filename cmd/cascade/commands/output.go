package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/openfroyo/cascade/pkg/app"
	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/telemetry"
)

var (
	styleFresh   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	styleStale   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	stylePending = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	styleHeader  = lipgloss.NewStyle().Bold(true).Underline(true)
)

// statusStyle picks the label style for a workflow or run status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case engine.VerdictFresh, string(engine.RunStatusSucceeded):
		return styleFresh
	case engine.VerdictStale, string(engine.NodeStatePlanned):
		return styleStale
	case engine.VerdictPending, string(engine.NodeStateExecuting), string(engine.RunStatusRunning):
		return stylePending
	case app.StatusError, string(engine.NodeStateFailed), string(engine.RunStatusCancelled):
		return styleError
	default:
		return styleMuted
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printEvent renders progress events as one line each.
func printEvent(w io.Writer) telemetry.EventSubscriber {
	return func(e telemetry.Event) {
		switch e.Type {
		case telemetry.EventTypeRunStarted, telemetry.EventTypeRunCompleted, telemetry.EventTypeRunFailed:
			return
		case telemetry.EventTypeConfigWarning:
			fmt.Fprintln(w, styleStale.Render("warning:")+" "+e.Message)
		case telemetry.EventTypeWorkflowFailed, telemetry.EventTypePolicyViolation:
			fmt.Fprintln(w, styleError.Render("error:")+" "+e.Message)
		default:
			fmt.Fprintln(w, e.Message)
		}
	}
}

func printRunResult(w io.Writer, result *engine.RunResult) {
	fmt.Fprintln(w)
	for _, n := range result.Nodes {
		line := fmt.Sprintf("  %-24s %s", n.Workflow, statusStyle(string(n.State)).Render(string(n.State)))
		if n.Executed {
			line += styleMuted.Render(fmt.Sprintf("  executed in %s", n.Duration.Round(time.Millisecond)))
		} else if n.Reason != "" {
			line += styleMuted.Render("  " + n.Reason)
		}
		fmt.Fprintln(w, line)
	}
	s := result.Summary
	fmt.Fprintf(w, "\nRun %s %s: %d executed, %d fresh, %d failed",
		result.RunID, statusStyle(string(result.Status)).Render(string(result.Status)),
		s.Executed, s.Fresh, s.Failed)
	if s.Planned > 0 {
		fmt.Fprintf(w, ", %d would execute", s.Planned)
	}
	fmt.Fprintf(w, " (%s)\n", result.Duration.Round(time.Millisecond))
}

func printStatus(w io.Writer, entries []app.StatusEntry) {
	width := len("WORKFLOW")
	for _, e := range entries {
		if len(e.Workflow) > width {
			width = len(e.Workflow)
		}
	}
	fmt.Fprintf(w, "%s  %s\n", styleHeader.Render(pad("WORKFLOW", width)), styleHeader.Render("STATUS"))
	for _, e := range entries {
		line := fmt.Sprintf("%s  %s", pad(e.Workflow, width), statusStyle(e.Status).Render(e.Label()))
		if e.LastExecuted != nil {
			line += styleMuted.Render("  last executed " + e.LastExecuted.Local().Format(time.RFC3339))
		}
		fmt.Fprintln(w, line)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
