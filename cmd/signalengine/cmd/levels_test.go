package cmd

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-signalsv1/internal/model"
)

func TestLevelsRequest(t *testing.T) {
	req, err := levelsRequest("50000", "buy", "4H", "3", "")
	require.NoError(t, err)
	assert.True(t, req.Entry.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, model.Long, req.Direction)
	assert.Equal(t, model.TF4h, req.Timeframe)
	assert.True(t, req.CustomRiskReward.Equal(decimal.NewFromInt(3)))
	assert.True(t, req.AccountBalance.IsZero())
}

func TestLevelsRequest_Invalid(t *testing.T) {
	tests := []struct {
		name                        string
		entry, dir, tf, rr, balance string
		want                        error
	}{
		{"entry", "abc", "LONG", "1h", "", "", model.ErrInvalidEntryPrice},
		{"direction", "100", "UP", "1h", "", "", model.ErrInvalidDirection},
		{"timeframe", "100", "LONG", "2h", "", "", model.ErrInvalidParameters},
		{"rr", "100", "LONG", "1h", "x", "", model.ErrInvalidParameters},
		{"balance", "100", "LONG", "1h", "", "lots", model.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := levelsRequest(tt.entry, tt.dir, tt.tf, tt.rr, tt.balance)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLevelsCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"levels", "--entry", "100", "--direction", "SHORT", "--timeframe", "1d"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, Execute())

	var lv struct {
		StopLoss   decimal.Decimal `json:"stop_loss"`
		TakeProfit decimal.Decimal `json:"take_profit"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &lv))
	assert.True(t, lv.StopLoss.GreaterThan(decimal.NewFromInt(100)))
	assert.True(t, lv.TakeProfit.LessThan(decimal.NewFromInt(100)))
}
