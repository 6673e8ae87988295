package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"trading-signalsv1/internal/app"
	"trading-signalsv1/internal/engine"
	"trading-signalsv1/internal/model"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one cycle for a pair and assess a position on it",
	Long: `Simulate fetches history for one pair through the configured provider,
computes its signal and runs a Monte Carlo assessment of the given position.
Without --entry the signal's own entry price is used.

Example:
  signalengine simulate --symbol AAPL --timeframe 1d --direction LONG --paths 5000`,
	RunE: runSimulate,
}

var (
	smSymbol    string
	smTimeframe string
	smDirection string
	smEntry     string
	smRR        string
	smPaths     int
	smSeed      int64
)

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&smSymbol, "symbol", "s", "BTC/USDT", "symbol to assess")
	simulateCmd.Flags().StringVarP(&smTimeframe, "timeframe", "t", "1h", "timeframe to assess")
	simulateCmd.Flags().StringVarP(&smDirection, "direction", "d", "", "LONG or SHORT (default: the signal's direction)")
	simulateCmd.Flags().StringVarP(&smEntry, "entry", "e", "", "entry price (default: the signal's entry)")
	simulateCmd.Flags().StringVar(&smRR, "rr", "", "custom risk/reward ratio")
	simulateCmd.Flags().IntVarP(&smPaths, "paths", "n", 0, "simulation paths (default: config)")
	simulateCmd.Flags().Int64Var(&smSeed, "seed", 0, "random seed (default: config)")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	tf, err := model.ParseTimeframe(smTimeframe)
	if err != nil {
		return err
	}
	cfg.Scheduler.Symbols = []string{smSymbol}
	if !slices.Contains(cfg.Scheduler.Timeframes, tf) {
		cfg.Scheduler.Timeframes = append(cfg.Scheduler.Timeframes, tf)
	}
	cfg.Redis.Enabled = false
	if smPaths > 0 {
		cfg.MonteCarlo.Paths = smPaths
	}
	if smSeed != 0 {
		cfg.MonteCarlo.Seed = smSeed
	}

	svc, err := app.New(cfg, log)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if svc.RunCycle(ctx) == nil {
		return ctx.Err()
	}

	sig, err := svc.Query().GetSignal(smSymbol, tf)
	if err != nil {
		return fmt.Errorf("signal %s %s: %w", smSymbol, tf, err)
	}
	req := engine.AssessRequest{Symbol: smSymbol, Timeframe: tf, Direction: sig.Direction, Entry: sig.EntryPrice}
	if smDirection != "" {
		if req.Direction, err = model.ParseDirection(smDirection); err != nil {
			return err
		}
	}
	if req.Direction == model.Neutral {
		return fmt.Errorf("%w: signal is NEUTRAL, pass --direction", model.ErrInvalidDirection)
	}
	if smEntry != "" {
		if req.Entry, err = optionalDecimal("entry", smEntry); err != nil {
			return err
		}
	}
	if req.CustomRiskReward, err = optionalDecimal("rr", smRR); err != nil {
		return err
	}

	res, err := svc.Query().Assess(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), struct {
		Signal model.Signal        `json:"signal"`
		Assess engine.AssessResult `json:"assessment"`
	}{sig, res})
}
