package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"swarm/internal/store"
	"swarm/internal/swarm"
)

func newResultsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Show recent task results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}
			return ctx.withStore(func(st *store.Store) error {
				results, err := st.RecentResults(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeResultsJSON(cmd, results)
				}
				if len(results) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No results recorded yet.")
					return nil
				}

				rows := make([][]string, 0, len(results))
				for _, res := range results {
					outcome := "ok"
					if !res.Success {
						outcome = "failed"
					}
					detail := res.ErrorMessage()
					if res.Success {
						detail = ""
					}
					rows = append(rows, []string{
						res.TaskID,
						res.DroneID,
						outcome,
						res.ExecutionTime.Round(time.Millisecond).String(),
						res.CompletedAt.Local().Format("2006-01-02 15:04:05"),
						detail,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Task", "Drone", "Outcome", "Duration", "Completed", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results to show")

	return cmd
}

func writeResultsJSON(cmd *cobra.Command, results []*swarm.Result) error {
	type resultJSON struct {
		TaskID       string         `json:"task_id"`
		DroneID      string         `json:"drone_id"`
		Success      bool           `json:"success"`
		ExecutionMS  int64          `json:"execution_ms"`
		CompletedAt  string         `json:"completed_at"`
		Data         map[string]any `json:"data,omitempty"`
		Suggestions  []string       `json:"recommendations,omitempty"`
		ErrorMessage string         `json:"error,omitempty"`
	}
	out := make([]resultJSON, 0, len(results))
	for _, res := range results {
		entry := resultJSON{
			TaskID:      res.TaskID,
			DroneID:     res.DroneID,
			Success:     res.Success,
			ExecutionMS: res.ExecutionTime.Milliseconds(),
			CompletedAt: res.CompletedAt.UTC().Format(time.RFC3339),
			Data:        res.Data,
			Suggestions: res.Recommendations,
		}
		if !res.Success {
			entry.ErrorMessage = res.ErrorMessage()
		}
		out = append(out, entry)
	}
	return writeJSON(cmd, out)
}
