package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/mascot/config"
	"github.com/mohammad-safakhou/mascot/internal/logging"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "mascot",
		Short:         "Chat widget proxy for the assistant thread/run API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default ./config/mascot.json)")

	load := func() (*config.Config, zerolog.Logger, error) {
		cfg, err := config.LoadConfig(cfgPath)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
		return cfg, logging.Setup(cfg.General.LogLevel, cfg.General.LogPretty), nil
	}

	root.AddCommand(serveCMD(load), linksCMD(load))
	if err := root.Execute(); err != nil {
		logger := logging.Setup("error", true)
		logger.Error().Err(err).Msg("mascot")
		os.Exit(1)
	}
}

type loadFunc func() (*config.Config, zerolog.Logger, error)
