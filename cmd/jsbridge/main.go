// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// jsbridge evaluates JavaScript through the script bridge. It loads the
// configured bundle, then evaluates expressions, runs files, offers an
// interactive shell or follows a bundle directory for newer releases.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aplane-algo/scriptbridge/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Cobra's own error printing is silenced so the message can be styled.
		fmt.Fprintln(os.Stderr, newStyles(os.Stderr).Error("Error: "+err.Error()))
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "jsbridge",
		Short:         "Evaluate JavaScript through an embedded script bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "",
		"config file (default: $SCRIPTBRIDGE_CONFIG or ./scriptbridge.yaml)")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newEvalCmd(flags),
		newRunCmd(flags),
		newReplCmd(flags),
		newWatchCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "jsbridge %s\n", version.String())
			return nil
		},
	}
}
