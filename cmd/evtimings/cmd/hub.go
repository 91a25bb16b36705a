package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/psantana5/eventtimings/pkg/auth"
	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/shutdown"
	tlsutil "github.com/psantana5/eventtimings/pkg/tls"
	"github.com/psantana5/eventtimings/pkg/tracing"
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Serve the message hub of a multi-process world",
	Long: `Hosts the mailboxes and barriers of a world of --ranks processes. Every
"evtimings run --transport hub" process joins it as one rank. Metrics of the
hub are served on /metrics.`,
	RunE: runHub,
}

func init() {
	rootCmd.AddCommand(hubCmd)

	hubCmd.Flags().Int("ranks", 2, "number of ranks of the world")
	hubCmd.Flags().String("listen", ":7070", "listen address")
	hubCmd.Flags().Bool("tracing", false, "trace hub requests with OpenTelemetry")
	hubCmd.Flags().String("tracing-endpoint", "localhost:4318", "OTLP HTTP collector endpoint")
	hubCmd.Flags().String("token", "", "require this bearer token from every rank (or EVTIMINGS_HUB_TOKEN)")
	hubCmd.Flags().Bool("tls", false, "serve HTTPS, a self-signed certificate is generated when --cert is missing")
	hubCmd.Flags().String("cert", "certs/hub.crt", "TLS certificate file")
	hubCmd.Flags().String("key", "certs/hub.key", "TLS key file")
	hubCmd.Flags().String("ca", "", "require client certificates signed by this CA (mTLS)")

	bindFlags(hubCmd, map[string]string{
		"ranks":            "ranks",
		"hub.listen":       "listen",
		"hub.token":        "token",
		"hub.tls":          "tls",
		"hub.cert":         "cert",
		"hub.key":          "key",
		"hub.ca":           "ca",
		"tracing.enabled":  "tracing",
		"tracing.endpoint": "tracing-endpoint",
	})
}

func runHub(cmd *cobra.Command, args []string) error {
	mgr := shutdown.New(10*time.Second, logger)
	ctx, cancel := mgr.Context(cmd.Context())
	defer cancel()

	hub, err := comm.NewHub(cfg.Ranks, logger)
	if err != nil {
		return err
	}

	tp, err := tracing.InitTracer(tracing.Config{
		ServiceName:  "evtimings-hub",
		OTLPEndpoint: cfg.Tracing.Endpoint,
		Enabled:      cfg.Tracing.Enabled,
	}, logger)
	if err != nil {
		return err
	}
	mgr.Register(tp.Shutdown)

	router := mux.NewRouter()
	if cfg.Tracing.Enabled {
		router.Use(tracing.HTTPMiddleware(tp))
	}
	if cfg.Hub.Token != "" {
		logger.Info("Hub authentication enabled")
		router.Use(auth.Middleware(cfg.Hub.Token, "/health"))
	} else {
		logger.Warn("Hub authentication disabled, any client can join")
	}
	hub.RegisterRoutes(router)

	server := &http.Server{
		Addr:              cfg.Hub.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Hub.TLS {
		tlsConfig, err := hubTLSConfig()
		if err != nil {
			return err
		}
		server.TLSConfig = tlsConfig
	}
	// Runs first: the hub releases its long-polls before the server drains
	mgr.Register(shutdown.StopHTTPServer(server, "hub"))
	mgr.Register(func(_ context.Context) error {
		hub.Close()
		return nil
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Hub listening", map[string]interface{}{"addr": cfg.Hub.Listen, "ranks": cfg.Ranks})
		if server.TLSConfig != nil {
			errCh <- server.ListenAndServeTLS("", "")
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			mgr.Shutdown()
			return err
		}
	}
	return mgr.Shutdown()
}

// hubTLSConfig loads the hub certificate, generating a self-signed one when
// the certificate file does not exist
func hubTLSConfig() (*tls.Config, error) {
	if _, err := os.Stat(cfg.Hub.Cert); errors.Is(err, os.ErrNotExist) {
		logger.Info("Generating self-signed hub certificate", map[string]interface{}{"cert": cfg.Hub.Cert})
		if err := os.MkdirAll(filepath.Dir(cfg.Hub.Cert), 0755); err != nil {
			return nil, fmt.Errorf("failed to create certificate directory: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Hub.Key), 0755); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
		if err := tlsutil.GenerateSelfSignedCert(cfg.Hub.Cert, cfg.Hub.Key, "evtimings-hub"); err != nil {
			return nil, err
		}
	}
	if cfg.Hub.CA != "" {
		logger.Info("Hub requires client certificates", map[string]interface{}{"ca": cfg.Hub.CA})
	}
	return tlsutil.LoadServerConfig(cfg.Hub.Cert, cfg.Hub.Key, cfg.Hub.CA)
}
