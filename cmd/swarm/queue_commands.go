package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swarm/internal/store"
	"swarm/internal/swarm"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the pending task queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueClearCommand(ctx))
	cmd.AddCommand(newQueueClearFailedCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))

	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending tasks in dispatch order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				tasks, err := st.PendingTasks(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeQueueJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty.")
					return nil
				}

				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					deadline := "-"
					if task.Deadline != nil {
						deadline = task.Deadline.Local().Format("2006-01-02 15:04:05")
					}
					rows = append(rows, []string{
						task.ID,
						kindLabel(task.Kind),
						fmt.Sprintf("%d", task.Priority),
						task.CreatedAt.Local().Format("2006-01-02 15:04:05"),
						deadline,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Task", "Kind", "Priority", "Created", "Deadline"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove pending tasks from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearTasksByStatus(cmd, ctx, swarm.TaskPending)
		},
	}
}

func newQueueClearFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-failed",
		Short: "Remove failed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearTasksByStatus(cmd, ctx, swarm.TaskFailed)
		},
	}
}

func clearTasksByStatus(cmd *cobra.Command, ctx *commandContext, status swarm.TaskStatus) error {
	return ctx.withStore(func(st *store.Store) error {
		removed, err := st.ClearTasks(cmd.Context(), status)
		if err != nil {
			return err
		}
		if ctx.jsonOutput() {
			return writeJSON(cmd, map[string]any{"removed": removed})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d task(s)\n", removed)
		return nil
	})
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [task-id...]",
		Short: "Requeue failed tasks as pending",
		Long: "Move failed tasks back to the pending queue with their retry count\n" +
			"incremented. Without arguments every failed task is requeued.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				requeued, err := st.RequeueFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"requeued": requeued})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d task(s)\n", requeued)
				return nil
			})
		},
	}
}

func writeQueueJSON(cmd *cobra.Command, tasks []*swarm.Task) error {
	type taskJSON struct {
		ID        string         `json:"id"`
		Kind      string         `json:"kind"`
		Priority  int            `json:"priority"`
		Payload   map[string]any `json:"payload,omitempty"`
		CreatedAt string         `json:"created_at"`
		Deadline  string         `json:"deadline,omitempty"`
	}
	out := make([]taskJSON, 0, len(tasks))
	for _, task := range tasks {
		entry := taskJSON{
			ID:        task.ID,
			Kind:      string(task.Kind),
			Priority:  task.Priority,
			Payload:   task.Payload,
			CreatedAt: task.CreatedAt.UTC().Format(time.RFC3339),
		}
		if task.Deadline != nil {
			entry.Deadline = task.Deadline.UTC().Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return writeJSON(cmd, out)
}
