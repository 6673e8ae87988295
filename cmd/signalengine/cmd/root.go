// Package cmd holds the signalengine command tree.
package cmd

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"trading-signalsv1/config"
	"trading-signalsv1/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "signalengine",
	Short: "Multi-timeframe trading signal engine",
	Long: `Signalengine polls a market-data provider on a fixed cadence, scores
indicator confluence across timeframes, places stop-loss and take-profit
levels and runs a Monte Carlo risk assessment for every tracked pair.

Configuration is read from --config (YAML), then .env, then the environment.

Example:
  signalengine serve --config signals.yaml
  signalengine levels --entry 50000 --direction LONG --timeframe 1h
  signalengine simulate --symbol BTC/USDT --timeframe 4h --direction SHORT`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
}

// loadConfig loads the configuration and initialises the default logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	level, err := logger.ParseLevel(cfg.Service.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Init("signalengine", level), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
