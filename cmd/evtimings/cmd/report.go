package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/eventtimings/pkg/report"
	"github.com/psantana5/eventtimings/pkg/store"
)

var reportRunID string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List stored runs or show one of them",
	Long: `Without --run, lists every run in the configured store, newest first.
With --run, renders that run as a table or as json or yaml (--format).`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVar(&reportRunID, "run", "", "run id to show")
	reportCmd.Flags().String("format", "table", "output format: table, json or yaml")
	reportCmd.Flags().String("store", "none", "store type: sqlite or postgres")
	reportCmd.Flags().String("store-path", "evtimings.db", "SQLite database path")
	reportCmd.Flags().String("store-dsn", "", "PostgreSQL connection string")

	bindFlags(reportCmd, map[string]string{
		"report.format": "format",
		"store.type":    "store",
		"store.path":    "store-path",
		"store.dsn":     "store-dsn",
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	if !cfg.StoreEnabled() {
		return fmt.Errorf("no store configured, set --store or store.type")
	}
	st, err := store.NewStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if reportRunID == "" {
		runs, err := st.ListRuns()
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		if cfg.Report.Format != "table" {
			return report.Encode(os.Stdout, runs, cfg.Report.Format)
		}
		return report.WriteRunList(os.Stdout, runs)
	}

	run, err := st.GetRun(reportRunID)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", reportRunID, err)
	}
	if cfg.Report.Format != "table" {
		return report.Encode(os.Stdout, run, cfg.Report.Format)
	}
	return report.WriteRunTable(os.Stdout, run)
}
