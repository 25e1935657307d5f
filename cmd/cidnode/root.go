package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigFile = "cidnode.toml"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cidnode",
		Short: "Confidential identities node",
		Long: `cidnode maps confidential keys to the well-known parties that own them.

Keys are only mapped after their owner signed a claim for them,
through the key request protocol or a nested request during a sync.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newInitCommand(), newServeCommand(), newSimulateCommand())
	return cmd
}
