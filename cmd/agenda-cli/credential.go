package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey/agenda-relay/internal/credential"
)

func newCredentialCmd() *cobra.Command {
	var service string

	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage the IMAP password in the system keyring",
	}
	cmd.PersistentFlags().StringVar(&service, "service", credential.DefaultService, "Keyring service name")

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key>",
		Short: "Store a password read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credential.Open(service)
			if err != nil {
				return err
			}

			fmt.Fprint(os.Stderr, "Password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password := strings.TrimRight(line, "\r\n")
			if password == "" {
				return errors.New("password must not be empty")
			}

			if err := store.Set(args[0], password); err != nil {
				return err
			}
			fmt.Printf("Stored %q in keyring service %q\n", args[0], service)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a stored password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := credential.Open(service)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed %q from keyring service %q\n", args[0], service)
			return nil
		},
	})

	return cmd
}
