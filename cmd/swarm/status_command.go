package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"swarm/internal/config"
	"swarm/internal/store"
	"swarm/internal/swarm"
)

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show swarm daemon and drone status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				reqCtx := cmd.Context()

				drones, err := st.ListDrones(reqCtx)
				if err != nil {
					return err
				}
				pending, err := st.PendingCount(reqCtx)
				if err != nil {
					return err
				}
				completed, err := st.CompletedCount(reqCtx)
				if err != nil {
					return err
				}
				cfg, _ := ctx.ensureConfig()
				running := daemonRunning(cfg)

				if ctx.jsonOutput() {
					return writeStatusJSON(cmd, running, drones, pending, completed)
				}

				state := "STOPPED"
				if running {
					state = "RUNNING"
				}
				if isTerminal(cmd.OutOrStdout()) {
					color := ansiRed
					if running {
						color = ansiGreen
					}
					state = color + state + ansiReset
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Daemon: %s\n", state)
				fmt.Fprintf(cmd.OutOrStdout(), "Pending tasks: %d\n", pending)
				fmt.Fprintf(cmd.OutOrStdout(), "Completed tasks: %d\n\n", completed)

				if len(drones) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No live drones.")
					return nil
				}

				rows := make([][]string, 0, len(drones))
				for _, d := range drones {
					rows = append(rows, []string{
						d.ID,
						kindLabel(d.Kind),
						string(d.Status),
						fmt.Sprintf("%d", d.TasksCompleted),
						fmt.Sprintf("%d", d.TasksFailed),
						d.TotalExecution.Round(time.Millisecond).String(),
						d.LastActivity.Local().Format("15:04:05"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Drone", "Kind", "Status", "Done", "Failed", "Exec Time", "Last Activity"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func writeStatusJSON(cmd *cobra.Command, running bool, drones []*swarm.DroneRecord, pending, completed int) error {
	type droneJSON struct {
		ID             string `json:"id"`
		Kind           string `json:"kind"`
		Status         string `json:"status"`
		TasksCompleted int    `json:"tasks_completed"`
		TasksFailed    int    `json:"tasks_failed"`
		TotalExecMS    int64  `json:"total_execution_ms"`
		LastActivity   string `json:"last_activity"`
	}
	out := struct {
		Running        bool        `json:"running"`
		PendingTasks   int         `json:"pending_tasks"`
		CompletedTasks int         `json:"completed_tasks"`
		Drones         []droneJSON `json:"drones"`
	}{
		Running:        running,
		PendingTasks:   pending,
		CompletedTasks: completed,
		Drones:         make([]droneJSON, 0, len(drones)),
	}
	for _, d := range drones {
		out.Drones = append(out.Drones, droneJSON{
			ID:             d.ID,
			Kind:           string(d.Kind),
			Status:         string(d.Status),
			TasksCompleted: d.TasksCompleted,
			TasksFailed:    d.TasksFailed,
			TotalExecMS:    d.TotalExecution.Milliseconds(),
			LastActivity:   d.LastActivity.UTC().Format(time.RFC3339),
		})
	}
	return writeJSON(cmd, out)
}

// daemonRunning probes the daemon lock file: if the lock can be acquired,
// no daemon holds it.
func daemonRunning(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}
	lock := flock.New(filepath.Join(cfg.Paths.DataDir, "swarmd.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
