package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/adapters/cli"
	"github.com/mikey/agenda-relay/internal/config"
	"github.com/mikey/agenda-relay/internal/di"
	"github.com/mikey/agenda-relay/internal/logging"
)

type globalFlags struct {
	configFile string
	verbose    bool
	jsonLog    bool
	endpoint   string
	domains    []string
}

// app holds what every subcommand needs once flags are parsed
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	container *dig.Container
	reporter  *cli.Reporter
}

func main() {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "agenda-cli",
		Short:         "Inspect, forward and poll agenda mail by hand",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&flags.jsonLog, "json-log", false, "Log in JSON format")
	rootCmd.PersistentFlags().StringVar(&flags.endpoint, "endpoint", "", "Override the forwarding endpoint")
	rootCmd.PersistentFlags().StringSliceVar(&flags.domains, "domains", nil, "Override the authorized sender domains")

	rootCmd.AddCommand(
		newParseCmd(flags),
		newForwardCmd(flags),
		newCheckCmd(flags),
		newPollCmd(flags),
		newCredentialCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.configFile)
	if err != nil {
		return nil, err
	}
	if flags.endpoint != "" {
		cfg.Set("forwarder.endpoint", flags.endpoint)
	}
	if len(flags.domains) > 0 {
		cfg.Set("filter.authorized_domains", flags.domains)
	}

	logger, err := logging.InitConsoleLogger(flags.verbose, flags.jsonLog)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	container, err := di.BuildCLIContainer(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to build dependency container: %w", err)
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		container: container,
		reporter:  cli.NewReporter(os.Stdout, flags.verbose),
	}, nil
}

func (a *app) close() {
	a.logger.Sync()
}
