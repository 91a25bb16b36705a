package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/eventtimings/internal/workload"
	"github.com/psantana5/eventtimings/pkg/auth"
	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/hostinfo"
	"github.com/psantana5/eventtimings/pkg/report"
	"github.com/psantana5/eventtimings/pkg/shutdown"
	"github.com/psantana5/eventtimings/pkg/store"
	tlsutil "github.com/psantana5/eventtimings/pkg/tls"
	"github.com/psantana5/eventtimings/pkg/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo workload and report its event timings",
	Long: `Runs the demo workload on every rank, finalizes the registry and emits the
reports at the coordinator. With the local transport all ranks run in this
process. With the hub transport this process is one rank of a world hosted by
"evtimings hub", start one process per rank.

An interrupt finalizes the run early and still emits the reports.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.Int("ranks", 2, "number of ranks")
	f.Int("rank", 0, "rank of this process (hub transport)")
	f.Int("coordinator", 0, "rank collecting the statistics")
	f.String("transport", "local", "transport: local or hub")
	f.String("hub-url", "http://localhost:7070", "hub URL (hub transport)")
	f.String("hub-token", "", "bearer token of the hub (or EVTIMINGS_HUB_TOKEN)")
	f.String("hub-ca", "", "CA certificate to trust for an https hub")
	f.String("run-name", "", "run name recorded in the reports")
	f.String("output-dir", ".", "directory of the report files")
	f.String("format", "table", "console output: table, json or yaml")
	f.String("prometheus-file", "", "write Prometheus textfile collector output to this path")
	f.Bool("trace", false, "convert the event log into a Chrome trace")
	f.String("store", "none", "store the run: none, memory, sqlite or postgres")
	f.Float64("scale", 1.0, "multiplier of every workload sleep")

	bindFlags(runCmd, map[string]string{
		"ranks":             "ranks",
		"rank":              "rank",
		"coordinator":       "coordinator",
		"transport":         "transport",
		"hub_url":           "hub-url",
		"hub.token":         "hub-token",
		"hub.ca":            "hub-ca",
		"run_name":          "run-name",
		"output_dir":        "output-dir",
		"report.format":     "format",
		"report.prometheus": "prometheus-file",
		"report.trace":      "trace",
		"store.type":        "store",
		"workload.scale":    "scale",
	})
}

// runner holds what every rank of one run shares
type runner struct {
	host   *hostinfo.Info
	store  store.Store
	tracer *tracing.Provider
}

func runRun(cmd *cobra.Command, args []string) error {
	mgr := shutdown.New(10*time.Second, logger)
	ctx, cancel := mgr.Context(cmd.Context())
	defer cancel()

	r := &runner{host: hostinfo.Detect()}

	if cfg.StoreEnabled() {
		st, err := store.NewStore(cfg.StoreConfig())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		r.store = st
		mgr.Register(shutdown.CloseResource(st, "store"))
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:  "evtimings",
			Environment:  cfg.AppName,
			OTLPEndpoint: cfg.Tracing.Endpoint,
			Enabled:      true,
		}, logger)
		if err != nil {
			return err
		}
		r.tracer = tp
		mgr.Register(tp.Shutdown)
	}

	var err error
	switch cfg.Transport {
	case "hub":
		var httpClient *http.Client
		httpClient, err = hubHTTPClient()
		if err != nil {
			break
		}
		var client *comm.HubClient
		client, err = comm.Dial(ctx, cfg.HubURL, cfg.Rank, cfg.Ranks, comm.WithHTTPClient(httpClient))
		if err != nil {
			break
		}
		logger.Info("Joined hub", map[string]interface{}{"url": cfg.HubURL, "rank": cfg.Rank, "ranks": cfg.Ranks})
		err = r.rank(ctx, client)
	default:
		var world *comm.World
		world, err = comm.NewWorld(cfg.Ranks)
		if err != nil {
			break
		}
		err = world.Run(func(c comm.Communicator) error {
			return r.rank(ctx, c)
		})
	}

	if shutdownErr := mgr.Shutdown(); shutdownErr != nil {
		logger.Warn("Shutdown incomplete", map[string]interface{}{"error": shutdownErr.Error()})
	}
	return err
}

// hubHTTPClient trusts the configured CA and sends the hub token. It has no
// timeout, hub requests long-poll.
func hubHTTPClient() (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Hub.CA != "" {
		tlsConfig, err := tlsutil.LoadClientConfig(cfg.Hub.CA, "", "")
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	var rt http.RoundTripper = transport
	if cfg.Hub.Token != "" {
		rt = &auth.Transport{Token: cfg.Hub.Token, Base: transport}
	}
	return &http.Client{Transport: rt}, nil
}

// rank drives one rank from initialize to emitted reports
func (r *runner) rank(ctx context.Context, c comm.Communicator) error {
	reg := events.NewRegistry(c,
		events.WithLogger(logger),
		events.WithCoordinator(cfg.Coordinator),
	)
	if err := reg.Initialize(cfg.AppName, cfg.RunName); err != nil {
		return err
	}

	finish := shutdown.OnInterrupt(reg, r.emit)
	work := workload.New(cfg.Workload.Scale, workload.WithLogger(logger.WithField("rank", c.Rank())))

	err := work.Run(ctx, reg)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Warn("Run interrupted, finalizing early", map[string]interface{}{"rank": c.Rank()})
	default:
		return err
	}
	return finish(context.Background())
}

func (r *runner) emit(reg *events.Registry) error {
	if !reg.IsCoordinator() {
		return nil
	}

	err := report.EmitAll(reg, report.EmitConfig{
		OutputDir:      cfg.OutputDir,
		Stdout:         os.Stdout,
		Host:           r.host,
		SkipTable:      cfg.Report.Format != "table",
		SkipCSV:        !cfg.Report.CSV,
		SkipEventLog:   !cfg.Report.EventLog,
		ChromeTrace:    cfg.Report.Trace,
		PrometheusFile: cfg.Report.Prometheus,
	})
	if err != nil {
		return err
	}
	if cfg.Report.Format != "table" {
		if err := report.WriteSummary(os.Stdout, reg, cfg.Report.Format); err != nil {
			return err
		}
	}

	if r.store != nil {
		run, err := store.FromRegistry(reg)
		if err != nil {
			return err
		}
		if err := r.store.SaveRun(run); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
		logger.Info("Run stored", map[string]interface{}{"run_id": run.ID})
	}

	if r.tracer != nil {
		n := tracing.ExportEvents(context.Background(), r.tracer.Tracer(), reg.RunName(), reg.Global())
		logger.Info("Exported event spans", map[string]interface{}{"spans": n})
	}
	return nil
}
