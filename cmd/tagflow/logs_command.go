package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tagflow/internal/logging"
	"tagflow/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines  int
		follow bool
		jobID  string
		match  string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the latest daemon run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path, err := logs.Latest(cfg.Paths.LogDir, logging.RunLogPattern)
			if err != nil {
				return err
			}
			var terms []string
			if jobID != "" {
				terms = append(terms, jobID)
			}
			terms = append(terms, match)
			matcher := logs.Contains(terms...)

			chunk, err := logs.Last(path, lines, matcher)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range chunk.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			followCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return logs.Follow(followCtx, path, chunk.Offset, 250*time.Millisecond, matcher, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show lines mentioning this job id")
	cmd.Flags().StringVar(&match, "grep", "", "Only show lines containing this text")
	return cmd
}
