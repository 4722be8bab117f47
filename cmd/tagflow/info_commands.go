package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tagflow/internal/daemon"
	"tagflow/internal/daemonctl"
	"tagflow/internal/preflight"
	"tagflow/internal/queue"
	"tagflow/internal/session"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemon.Status
			err := ctx.client().do(cmd.Context(), http.MethodGet, "/api/status", nil, &status)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if err != nil {
				cfg, _ := ctx.ensureConfig()
				if cfg != nil {
					if pid, ok := daemonctl.ReadPID(cfg); ok {
						fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn,
							fmt.Sprintf("pid %d recorded but API unreachable", pid), colorize))
						return err
					}
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "Not running", colorize))
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			for _, line := range renderStatus(status, colorize) {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print status as JSON")
	return cmd
}

func renderStatus(status daemon.Status, colorize bool) []string {
	lines := renderSectionHeader("Daemon", colorize)
	if status.Running {
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusWarn, "Stopped", colorize))
	}
	if status.APIAddress != "" {
		lines = append(lines, renderStatusLine("API", statusInfo, status.APIAddress, colorize))
	}
	lines = append(lines, renderStatusLine("Queue database", statusInfo, status.QueueDBPath, colorize))

	wf := status.Workflow
	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Lanes", colorize)...)
	for _, lane := range wf.Lanes {
		lines = append(lines, renderStatusLine(titleCaser.String(string(lane)), statusInfo,
			fmt.Sprintf("%d waiting", wf.LaneDepth[lane]), colorize))
	}
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusError, wf.LastError, colorize))
	}
	if wf.LastJob != nil {
		lines = append(lines, renderStatusLine("Last job", statusInfo,
			fmt.Sprintf("%s %s (%s)", shortID(wf.LastJob.ID), kindLabel(wf.LastJob.Meta.Kind), wf.LastJob.Status), colorize))
	}

	if len(wf.QueueStats) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Queue", colorize)...)
		for _, s := range queue.AllStatuses() {
			if n := wf.QueueStats[s]; n > 0 {
				lines = append(lines, renderStatusLine(titleCaser.String(string(s)), statusInfo, strconv.Itoa(n), colorize))
			}
		}
	}

	if len(status.Dependencies) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
		for _, dep := range status.Dependencies {
			lines = append(lines, dependencyLine(dep.Name, dep.Available, dep.Optional, dep.Detail, colorize))
		}
	}
	return lines
}

func dependencyLine(name string, available, optional bool, detail string, colorize bool) string {
	switch {
	case available:
		return renderStatusLine(name, statusOK, detail, colorize)
	case optional:
		return renderStatusLine(name, statusWarn, detail, colorize)
	default:
		return renderStatusLine(name, statusError, detail, colorize)
	}
}

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external binaries and directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := preflight.CheckSystemDeps(cfg)
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				state := "available"
				if !s.Available {
					state = "missing"
				}
				rows = append(rows, []string{s.Name, s.Command, state, yesNo(s.Optional), s.Detail})
			}
			printTable(cmd, []string{"Dependency", "Command", "Status", "Optional", "Detail"}, rows, nil, "No dependencies configured")

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			checks := preflight.RunAll(context.WithoutCancel(cmd.Context()), cfg)
			for _, check := range checks {
				kind := statusOK
				if !check.Passed {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}
			return nil
		},
	}
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions <folder-hash>",
		Short: "List the stored session revisions of a folder hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash := strings.TrimSpace(args[0])
			return ctx.withSessions(func(store *session.Store) error {
				records, err := store.ListRevisions(cmd.Context(), hash)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					return fmt.Errorf("no session stored for hash %s", hash)
				}
				sort.Slice(records, func(i, j int) bool { return records[i].FolderRevision < records[j].FolderRevision })
				if asJSON {
					return writeJSON(cmd, records)
				}
				rows := make([][]string, 0, len(records))
				for _, rec := range records {
					updated := rec.UpdatedAt
					rows = append(rows, []string{
						strconv.Itoa(rec.FolderRevision),
						shortID(rec.ID),
						rec.FolderPath,
						strconv.Itoa(countTasks(rec.Tasks)),
						formatTimestamp(&updated),
					})
				}
				printTable(cmd, []string{"Revision", "Session", "Path", "Tasks", "Updated"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft}, "")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func countTasks(raw []byte) int {
	var tasks []json.RawMessage
	if err := json.Unmarshal(raw, &tasks); err != nil {
		return 0
	}
	return len(tasks)
}
