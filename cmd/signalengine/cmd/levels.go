package cmd

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trading-signalsv1/internal/model"
	"trading-signalsv1/internal/risklevel"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Compute stop-loss and take-profit levels for an entry",
	Long: `Levels applies the per-timeframe risk table to an entry price.

Example:
  signalengine levels --entry 1.0850 --direction SHORT --timeframe 15m --rr 3`,
	RunE: runLevels,
}

var (
	lvEntry     string
	lvDirection string
	lvTimeframe string
	lvRR        string
	lvBalance   string
)

func init() {
	rootCmd.AddCommand(levelsCmd)

	levelsCmd.Flags().StringVarP(&lvEntry, "entry", "e", "", "entry price (required)")
	levelsCmd.Flags().StringVarP(&lvDirection, "direction", "d", "LONG", "LONG or SHORT")
	levelsCmd.Flags().StringVarP(&lvTimeframe, "timeframe", "t", "1h", "timeframe, e.g. 15m, 4h, 1d")
	levelsCmd.Flags().StringVar(&lvRR, "rr", "", "custom risk/reward ratio (default: table value)")
	levelsCmd.Flags().StringVar(&lvBalance, "balance", "", "account balance for position sizing")

	levelsCmd.MarkFlagRequired("entry")
}

func runLevels(cmd *cobra.Command, args []string) error {
	req, err := levelsRequest(lvEntry, lvDirection, lvTimeframe, lvRR, lvBalance)
	if err != nil {
		return err
	}
	lv, err := risklevel.Calculate(req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), lv)
}

func levelsRequest(entry, direction, timeframe, rr, balance string) (risklevel.Request, error) {
	var req risklevel.Request
	var err error
	if req.Entry, err = decimal.NewFromString(entry); err != nil {
		return req, fmt.Errorf("%w: entry %q", model.ErrInvalidEntryPrice, entry)
	}
	if req.Direction, err = model.ParseDirection(direction); err != nil {
		return req, err
	}
	if req.Timeframe, err = model.ParseTimeframe(timeframe); err != nil {
		return req, err
	}
	if req.CustomRiskReward, err = optionalDecimal("rr", rr); err != nil {
		return req, err
	}
	if req.AccountBalance, err = optionalDecimal("balance", balance); err != nil {
		return req, err
	}
	return req, nil
}

func optionalDecimal(name, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q", model.ErrInvalidParameters, name, s)
	}
	return d, nil
}
