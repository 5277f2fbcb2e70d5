package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	transport "classquiz/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the exam server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	e, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer e.Close()
	logger := e.logger

	finalPort := portFlag
	if finalPort == "" {
		finalPort = e.cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	wsHandler := transport.NewWSHandler(e.service, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.Handle("/report", transport.NewReportHandler(e.service, logger))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: websocket connections outlive any single write window
	}

	go func() {
		logger.WithField("port", finalPort).Info("starting classquiz server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server...")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
