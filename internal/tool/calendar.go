package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/calendar"
)

type tradingDayInput struct {
	Date string `json:"date" jsonschema:"required,description=YYYY-MM-DD"`
}

// CheckTradingDayTool answers is_trading_day/is_weekend/is_holiday for a
// given date against the Taiwan Stock Exchange calendar.
type CheckTradingDayTool struct {
	cal *calendar.Calendar
}

func NewCheckTradingDayTool(cal *calendar.Calendar) *CheckTradingDayTool {
	return &CheckTradingDayTool{cal: cal}
}

func (t *CheckTradingDayTool) Name() string          { return "check_trading_day" }
func (t *CheckTradingDayTool) Description() string   { return "Reports trading-day/holiday/market-open status for a date." }
func (t *CheckTradingDayTool) SideEffect() SideEffect { return ReadMarket }
func (t *CheckTradingDayTool) InputSchema() *jsonschema.Schema { return SchemaFor(tradingDayInput{}) }

func (t *CheckTradingDayTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in tradingDayInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	date, err := time.ParseInLocation("2006-01-02", in.Date, t.cal.Timezone)
	if err != nil {
		return Err(apperr.Validation("date", "date must be YYYY-MM-DD"))
	}
	return Ok(t.cal.StatusAt(date))
}
