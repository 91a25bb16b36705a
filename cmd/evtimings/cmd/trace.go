package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/eventtimings/pkg/report"
)

var (
	traceRun             string
	traceNoGlobal        bool
	traceRanks           []int
	traceCategories      string
	traceDefaultCategory string
	tracePretty          bool
	traceOutput          string
)

var traceCmd = &cobra.Command{
	Use:   "trace PARTICIPANT=LOGFILE...",
	Short: "Convert event logs into a Chrome trace",
	Long: `Reads one or more event log files and writes them as a Chrome trace event
JSON array, loadable in chrome://tracing or Perfetto. Every participant becomes
a process and every rank a thread.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTrace,
}

func init() {
	rootCmd.AddCommand(traceCmd)

	traceCmd.Flags().StringVar(&traceRun, "run", "", "only include this run name")
	traceCmd.Flags().BoolVar(&traceNoGlobal, "no-global", false, "skip the run-wide _GLOBAL event")
	traceCmd.Flags().IntSliceVar(&traceRanks, "ranks", nil, "only include these ranks")
	traceCmd.Flags().StringVar(&traceCategories, "categories", "", "JSON file mapping event names to categories")
	traceCmd.Flags().StringVar(&traceDefaultCategory, "default-category", report.DefaultCategory, "category of unmapped events")
	traceCmd.Flags().BoolVar(&tracePretty, "pretty", false, "indent the output")
	traceCmd.Flags().StringVarP(&traceOutput, "output", "o", "", "output file (default stdout)")
}

func runTrace(cmd *cobra.Command, args []string) error {
	logs, err := report.ParseTraceLogs(args)
	if err != nil {
		return err
	}

	opts := report.TraceOptions{
		Run:             traceRun,
		NoGlobal:        traceNoGlobal,
		Ranks:           traceRanks,
		DefaultCategory: traceDefaultCategory,
		Pretty:          tracePretty,
	}
	if traceCategories != "" {
		opts.Categories, err = report.LoadCategoryMapping(traceCategories)
		if err != nil {
			return err
		}
	}

	var w io.Writer = os.Stdout
	if traceOutput != "" {
		f, err := os.Create(traceOutput)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", traceOutput, err)
		}
		defer f.Close()
		w = f
	}
	return report.WriteChromeTrace(w, logs, opts)
}
