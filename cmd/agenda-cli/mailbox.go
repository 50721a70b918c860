package main

import (
	"github.com/spf13/cobra"

	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/ports"
)

func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the IMAP login and inbox selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.close()

			return a.container.Invoke(func(mailbox core.Mailbox) error {
				err := mailbox.Probe(cmd.Context())
				a.reporter.PrintCheck(err)
				return err
			})
		},
	}
}

func newPollCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run a single polling cycle and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.cfg.Validate(); err != nil {
				return err
			}

			return a.container.Invoke(func(runner ports.CycleRunner) error {
				report, err := runner.RunCycle(cmd.Context(), core.SessionCounters{})
				if report != nil {
					a.reporter.PrintReport(report)
				}
				return err
			})
		},
	}
}
