package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"phasewatch/config"
)

func newEncryptCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "encrypt-config <config.yaml>",
		Short: "Encrypt a config file with the key in CONFIG_KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := config.KeyFromEnv()
			if err != nil {
				return err
			}

			src := args[0]
			if output == "" {
				output = strings.TrimSuffix(src, ".yaml") + ".enc"
			}
			if err := config.EncryptFile(src, output, key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "encrypted %s -> %s\n", src, output)
			fmt.Fprintf(cmd.OutOrStdout(), "ship only %s; keep %s out of version control\n", output, src)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default: <input>.enc)")
	return cmd
}

func newKeygenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a new config encryption key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := config.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "export %s=%q\n", config.KeyEnv, key)
			fmt.Fprintln(cmd.OutOrStdout(), "store this key securely; encrypted configs cannot be read without it")
			return nil
		},
	}
}
