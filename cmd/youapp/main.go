package main

import (
	"os"

	"github.com/spf13/cobra"
)

func NewYouappCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "youapp",
		Short:        "youapp social backend",
		Example:      "youapp serve --port 5000",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().String("env-file", ".env", "Optional .env file loaded before the environment")

	cmd.AddCommand(
		NewServeCommand(),
		NewProxyCommand(),
	)

	return cmd
}

func main() {
	cmd := NewYouappCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
