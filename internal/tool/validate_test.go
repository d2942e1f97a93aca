package tool

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTrade_ValidBuyPassesCleanly(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000, MinTradeAmount: 10_000, MaxPositionWeight: 0.2, DailyTradeLimit: 5})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "buy", "quantity": 1000, "price": 100,
		"portfolio_value": 1_000_000, "daily_trade_count": 0,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.True(t, v.Valid)
	assert.Empty(t, v.Errors)
}

func TestValidateTrade_BelowMinTradeAmountIsWarningNotError(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000, MinTradeAmount: 50_000})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "buy", "quantity": 1000, "price": 10,
		"portfolio_value": 1_000_000,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.True(t, v.Valid)
	assert.Contains(t, v.Warnings, "notional below minimum trade amount")
}

func TestValidateTrade_PositionWeightCeilingRejectsOversizedBuy(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000, MaxPositionWeight: 0.1})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "buy", "quantity": 1000, "price": 200,
		"portfolio_value": 1_000_000,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "position weight exceeds configured ceiling")
}

func TestValidateTrade_SellRejectedWhenHeldQuantityInsufficient(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "sell", "quantity": 1000, "price": 100,
		"portfolio_value": 1_000_000, "held_quantity": 500,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "held quantity insufficient to cover sell")
}

func TestValidateTrade_DailyTradeLimitReached(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000, DailyTradeLimit: 3})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "buy", "quantity": 1000, "price": 100,
		"portfolio_value": 1_000_000, "daily_trade_count": 3,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "daily trade limit reached")
}

func TestValidateTrade_QuantityNotMultipleOfLotSize(t *testing.T) {
	tr := NewValidateTradeTool(ValidateConfig{LotSize: 1000})

	raw, _ := json.Marshal(map[string]interface{}{
		"symbol": "2330", "side": "buy", "quantity": 500, "price": 100,
		"portfolio_value": 1_000_000,
	})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	v := res.Data.(validation)
	assert.False(t, v.Valid)
	assert.Contains(t, v.Errors, "quantity must be a multiple of the lot size")
}
