package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"roombook/internal/config"
)

var RootCmd = &cobra.Command{
	Use:   "roombook",
	Short: "Meeting room booking service",
	Long: `Meeting room booking service

Serves the room booking API, mirrors reservations to the organization
calendar and exports reservations to spreadsheets.

environment:
    ROOMBOOK_CONFIG_PATH  config file (default configs/config.yaml)
`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

var (
	configPath string
	debug      bool

	cfg    *config.Config
	logger zerolog.Logger
)

func loadConfig(cmd *cobra.Command, args []string) error {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	logger = zerolog.New(output).Level(level).With().Timestamp().Logger()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Server.Debug && !debug {
		logger = logger.Level(zerolog.DebugLevel)
	}
	return nil
}

func main() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", config.Path(), "config file")
	RootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")

	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
