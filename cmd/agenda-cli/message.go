package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mikey/agenda-relay/internal/core"
)

func newParseCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <file|->",
		Short: "Decode a raw message and show what would be forwarded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := readMessage(args[0])
			if err != nil {
				return err
			}

			return a.container.Invoke(func(parser core.MessageParser, filter core.DomainFilter) error {
				msg, err := parser.Parse(raw)
				if err != nil {
					return err
				}
				a.reporter.PrintMessage(msg, filter.IsAuthorized(msg.SenderAddress))
				return nil
			})
		},
	}
}

func newForwardCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forward <file|->",
		Short: "Decode a raw message and submit it to the scheduling service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(flags)
			if err != nil {
				return err
			}
			defer a.close()

			raw, err := readMessage(args[0])
			if err != nil {
				return err
			}

			return a.container.Invoke(func(parser core.MessageParser, filter core.DomainFilter, fwd core.Forwarder) error {
				msg, err := parser.Parse(raw)
				if err != nil {
					return err
				}
				if !filter.IsAuthorized(msg.SenderAddress) {
					return fmt.Errorf("sender %q is not from an authorized domain", msg.SenderAddress)
				}
				a.reporter.PrintForwardResult(msg, fwd.Forward(cmd.Context(), msg))
				return nil
			})
		},
	}
}

// readMessage reads a message from a file, or from stdin when path is "-"
func readMessage(path string) ([]byte, error) {
	if path == "-" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return raw, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return raw, nil
}
