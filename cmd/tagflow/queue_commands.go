package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tagflow/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses []string
		lanes    []string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued and finished jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := buildListFilter(statuses, lanes, limit)
			if err != nil {
				return err
			}
			return ctx.withQueue(func(store *queue.Store) error {
				jobs, err := store.List(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if jobs == nil {
						jobs = []*queue.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						shortID(job.ID),
						string(job.Lane),
						kindLabel(job.Meta.Kind),
						jobStatusLabel(job.Status, colorize),
						folderLabel(job.Meta),
						formatTimestamp(&job.CreatedAt),
					})
				}
				printTable(cmd,
					[]string{"ID", "Lane", "Kind", "Status", "Folder", "Created"},
					rows, nil, "Queue is empty")
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (queued, deferred, started, finished, failed, canceled)")
	cmd.Flags().StringSliceVar(&lanes, "lane", nil, "Filter by lane (preview, import)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of jobs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(store *queue.Store) error {
				job, err := store.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				return writeJSON(cmd, job)
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var all, failed bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished and canceled jobs (or failed, or everything not running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && failed {
				return fmt.Errorf("--all and --failed are mutually exclusive")
			}
			return ctx.withQueue(func(store *queue.Store) error {
				var (
					removed int64
					err     error
					what    = "finished"
				)
				switch {
				case all:
					removed, err = store.Clear(cmd.Context())
					what = "all"
				case failed:
					removed, err = store.ClearFailed(cmd.Context())
					what = "failed"
				default:
					removed, err = store.ClearFinished(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d job(s) (%s)\n", removed, what)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every job that is not running")
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove failed jobs only")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id...]",
		Short: "Requeue failed jobs (all of them when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(store *queue.Store) error {
				retried, err := store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", retried)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <job-id>...",
		Short: "Remove specific jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(store *queue.Store) error {
				removed, err := store.Remove(cmd.Context(), args...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", removed)
				return nil
			})
		},
	}
}

func buildListFilter(statuses, lanes []string, limit int) (queue.ListFilter, error) {
	filter := queue.ListFilter{Limit: limit}
	for _, raw := range statuses {
		status, ok := queue.ParseStatus(strings.ToLower(strings.TrimSpace(raw)))
		if !ok {
			return filter, fmt.Errorf("unknown status %q", raw)
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range lanes {
		lane := queue.Lane(strings.ToLower(strings.TrimSpace(raw)))
		if !lane.Valid() {
			return filter, fmt.Errorf("unknown lane %q", raw)
		}
		filter.Lanes = append(filter.Lanes, lane)
	}
	return filter, nil
}

func folderLabel(meta queue.Meta) string {
	if meta.FolderPath != "" {
		return meta.FolderPath
	}
	if ids, ok := meta.Extra["task_ids"]; ok {
		return fmt.Sprintf("tasks %v", ids)
	}
	return "-"
}
