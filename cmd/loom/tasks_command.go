package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/worker"
)

func newTasksCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "tasks",
		Short:       "List registered tasks",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			names := worker.DefaultRegistry().Names()
			out := cmd.OutOrStdout()
			if len(names) == 0 {
				fmt.Fprintln(out, "No tasks registered")
				return nil
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}
