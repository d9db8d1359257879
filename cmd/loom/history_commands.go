package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"loom/internal/journal"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the journal of finished runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(ctx, cmd, 20)
		},
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent finished runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(ctx, cmd, limit)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum entries to show")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recorded runs by outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(ctx, func(j *journal.Journal) error {
				stats, err := j.Stats(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total:     %d\n", stats.Total())
				fmt.Fprintf(out, "Completed: %d\n", stats.Completed)
				fmt.Fprintf(out, "Errored:   %d\n", stats.Errored)
				fmt.Fprintf(out, "Cancelled: %d\n", stats.Cancelled)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(ctx, func(j *journal.Journal) error {
				removed, err := j.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
				return nil
			})
		},
	}

	historyCmd.AddCommand(listCmd)
	historyCmd.AddCommand(statsCmd)
	historyCmd.AddCommand(clearCmd)
	return historyCmd
}

func runHistoryList(ctx *commandContext, cmd *cobra.Command, limit int) error {
	return withJournal(ctx, func(j *journal.Journal) error {
		entries, err := j.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No finished runs recorded")
			return nil
		}
		rows := make([][]string, 0, len(entries))
		for _, entry := range entries {
			outcome := entry.Result
			if entry.Failure != "" {
				outcome = entry.Failure
			}
			rows = append(rows, []string{
				shortID(entry.WorkerID),
				entry.Task,
				string(entry.Status),
				entry.RecordedAt.Local().Format(time.DateTime),
				outcome,
			})
		}
		fmt.Fprintln(out, renderTable(out,
			[]string{"WORKER", "TASK", "STATUS", "RECORDED", "OUTCOME"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
		))
		return nil
	})
}

func withJournal(ctx *commandContext, fn func(*journal.Journal) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	j, err := journal.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()
	return fn(j)
}
