package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"swarm/internal/store"
	"swarm/internal/swarm"
)

// payloadKeyForKind maps the --type flag onto the payload key each drone
// kind reads.
func payloadKeyForKind(kind swarm.Kind) string {
	switch kind {
	case swarm.KindDataCollection:
		return "collection_type"
	case swarm.KindSelfHealing:
		return "healing_type"
	case swarm.KindOptimization:
		return "optimization_type"
	default:
		return ""
	}
}

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var priority int
	var taskType string
	var taskID string

	cmd := &cobra.Command{
		Use:   "submit <kind>",
		Short: "Submit a task to the swarm queue",
		Long: "Submit a task for the given drone kind (verification, data_collection,\n" +
			"self_healing, optimization). A running daemon picks it up on its next tick.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok := swarm.ParseKind(strings.TrimSpace(args[0]))
			if !ok {
				return fmt.Errorf("unknown drone kind %q", args[0])
			}

			var payload map[string]any
			if taskType != "" {
				key := payloadKeyForKind(kind)
				if key == "" {
					return fmt.Errorf("--type is not supported for %s tasks", kind)
				}
				payload = map[string]any{key: taskType}
			}

			var opts []swarm.TaskOption
			if taskID != "" {
				opts = append(opts, swarm.WithTaskID(taskID))
			}
			task, err := swarm.NewTask(kind, priority, payload, opts...)
			if err != nil {
				return err
			}

			return ctx.withStore(func(st *store.Store) error {
				if err := st.EnqueueTask(cmd.Context(), task); err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"id":       task.ID,
						"kind":     string(task.Kind),
						"priority": task.Priority,
					})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s task %s (priority %d)\n", kindLabel(kind), task.ID, task.Priority)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&priority, "priority", "p", 5, "Task priority (1-10, higher runs first)")
	cmd.Flags().StringVarP(&taskType, "type", "t", "", "Task subtype (collection, healing, or optimization type)")
	cmd.Flags().StringVar(&taskID, "id", "", "Explicit task ID (defaults to a generated UUID)")

	return cmd
}
