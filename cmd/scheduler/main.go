package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatter-agent/internal/bootstrap"
	"github.com/chatter-agent/pkg/logger"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "chatter-scheduler",
		Short: "Background ingestion daemon for market chatter",
		Long: `Runs periodic market chatter ingestion in the background.
This daemon should be run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := bootstrap.Bootstrap(ctx, bootstrap.Options{
		ConfigPath:     cfgFile,
		StartScheduler: true,
	})
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer app.Repo.Close()

	log := app.Log
	log.Info().Msg("Starting chatter scheduler daemon")
	if !app.SchedulerStarted {
		log.Warn().Msg("Running in degraded mode: background ingestion disabled")
	}

	go startHealthServer(app, log)

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler daemon")
	app.Scheduler.Stop()

	return nil
}

// startHealthServer serves liveness plus a scheduler status snapshot
func startHealthServer(app *bootstrap.Result, log *logger.Logger) {
	port := os.Getenv("PORT")
	if port == "" {
		port = "10000"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(app.Scheduler.Status())
	})

	log.Info().Str("port", port).Msg("Health check server starting")
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Error().Err(err).Msg("Health server failed")
	}
}
