package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/journal"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/di"
	"github.com/mikey/agenda-relay/internal/ports"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Refuse to start on an incomplete configuration
	if err := container.Invoke(func(cfg *config.Config) error { return cfg.Validate() }); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	services []ports.Service,
	eventJournal journal.Journal,
) error {
	defer logger.Sync()
	defer eventJournal.Stop()

	// Start services in order, unwinding on failure
	started := make([]ports.Service, 0, len(services))
	defer func() {
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(); err != nil {
				logger.Error("Failed to stop service", zap.Error(err))
			}
		}
	}()
	for _, svc := range services {
		if err := svc.Start(); err != nil {
			logger.Error("Failed to start service", zap.Error(err))
			return err
		}
		started = append(started, svc)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Shutting down...", zap.String("signal", sig.String()))
	return nil
}
