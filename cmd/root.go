package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yz4230/bluegreen/cmd/gate"
	"github.com/yz4230/bluegreen/cmd/shared"
	"github.com/yz4230/bluegreen/internal/config"
)

var rootFlags struct {
	verbose  bool
	stateDir string
	catalog  string
}

var rootCmd = &cobra.Command{
	Use:           "bluegreen",
	Short:         "Blue-green release coordinator",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("state-dir") {
			cfg.StateDir = rootFlags.stateDir
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = rootFlags.catalog
		}

		level := cfg.Level()
		if rootFlags.verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)

		shared.Config = cfg
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Error().Err(err).Send()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.stateDir, "state-dir", "s", "./state", "Directory holding slot state and release history")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.catalog, "catalog", "c", "", "Environment catalog (YAML)")

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gate.GateCmd)
}
