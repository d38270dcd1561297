package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "adminctl",
		Short:        "Admin account tooling for the wellness CMS API",
		Long:         `adminctl applies database migrations and manages privileged admin accounts.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newMigrateCommand(),
		newHashPasswordCommand(),
		newCreateAdminCommand(),
		newSetActiveCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
