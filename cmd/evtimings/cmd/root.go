package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/eventtimings/internal/config"
	"github.com/psantana5/eventtimings/pkg/logging"
)

var (
	cfgFile string
	v       = config.NewViper()

	// Set by the root pre-run for every subcommand
	cfg    *config.Config
	logger *logging.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "evtimings",
	Short: "Event timing collection for multi-rank runs",
	Long: `evtimings measures named time intervals on every rank of a parallel run,
collects the per-rank statistics at a coordinating rank and reports them as
tables, CSV files, event logs, Chrome traces and Prometheus metrics.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	if logger != nil {
		logger.Sync()
	}
	return err
}

func init() {
	rootCmd.SilenceErrors = true

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml), settings also come from EVTIMINGS_* variables")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-json", false, "log as JSON")
	rootCmd.PersistentFlags().String("app", "evtimings", "application name, prefixes the output files")

	bindFlags(rootCmd, map[string]string{
		"log.level": "log-level",
		"log.json":  "log-json",
		"app_name":  "app",
	})
}

// flagKeys maps config keys to flag names per command. Several commands
// share keys, so the flags are bound only for the command that runs.
var flagKeys = map[*cobra.Command]map[string]string{}

func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flagKeys[cmd] = keys
}

func loadConfig(cmd *cobra.Command, args []string) error {
	for c := cmd; c != nil; c = c.Parent() {
		for key, name := range flagKeys[c] {
			flag := cmd.Flags().Lookup(name)
			if flag == nil {
				return fmt.Errorf("flag --%s of %s not found", name, key)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	loaded, err := config.Decode(v, cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded
	l := logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	l.SetOutput(os.Stderr)
	logger = l.WithField("app", cfg.AppName)
	return nil
}
