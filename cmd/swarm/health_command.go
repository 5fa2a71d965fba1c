package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"swarm/internal/store"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check swarm database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				report, err := st.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{
						"db_path":           report.DBPath,
						"database_exists":   report.DatabaseExists,
						"database_readable": report.DatabaseReadable,
						"integrity_check":   report.IntegrityCheck,
						"tables_present":    report.TablesPresent,
						"missing_tables":    report.MissingTables,
						"total_tasks":       report.TotalTasks,
						"total_results":     report.TotalResults,
						"size_bytes":        report.SizeBytes,
						"error":             report.Error,
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database: %s\n", report.DBPath)
				fmt.Fprintf(out, "Exists: %s\n", yesNo(report.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(report.DatabaseReadable))
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(report.IntegrityCheck))
				fmt.Fprintf(out, "Size: %.1f MiB\n", float64(report.SizeBytes)/(1024*1024))
				fmt.Fprintf(out, "Tasks: %d\n", report.TotalTasks)
				fmt.Fprintf(out, "Results: %d\n", report.TotalResults)
				if len(report.MissingTables) > 0 {
					fmt.Fprintf(out, "Missing tables: %s\n", strings.Join(report.MissingTables, ", "))
				}
				if report.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", report.Error)
				}
				return nil
			})
		},
	}
}
