package main

import (
	"fmt"
	"os"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"github.com/systmms/credstore/cmd/credstore/commands"
	"github.com/systmms/credstore/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	defer memguard.Purge()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		memguard.Purge()
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	app := &commands.App{}

	rootCmd := &cobra.Command{
		Use:   "credstore",
		Short: "Secret retrieval across providers with caching and rotation",
		Long: `credstore resolves secrets from prioritized backends (Vault, AWS, GCP,
Azure, OS keyring) through a read-through cache with proactive refresh.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			app.ConfigPath = configFile
			app.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "credstore.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewGetCommand(app),
		commands.NewProvidersCommand(app),
		commands.NewDoctorCommand(app),
		commands.NewWarmCommand(app),
	)

	return rootCmd.Execute()
}
