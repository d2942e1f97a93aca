package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/markcheno/go-talib"

	"github.com/sacahan/casualtrader-go/internal/apperr"
)

type indicatorSeriesInput struct {
	Symbol     string    `json:"symbol" jsonschema:"required,minLength=4"`
	Closes     []float64 `json:"closes" jsonschema:"required,description=Ordered closing prices, oldest first"`
	Indicators []string  `json:"indicators" jsonschema:"required,description=Subset of rsi14; sma20; sma50; ema12; macd"`
}

// IndicatorTool computes the requested set of technical indicators over a
// caller-supplied closing-price series. Pure: no gateway, no repository.
type IndicatorTool struct{}

func NewIndicatorTool() *IndicatorTool { return &IndicatorTool{} }

func (t *IndicatorTool) Name() string        { return "calculate_technical_indicators" }
func (t *IndicatorTool) Description() string { return "Computes technical indicators over a closing-price series." }
func (t *IndicatorTool) SideEffect() SideEffect { return Pure }
func (t *IndicatorTool) InputSchema() *jsonschema.Schema { return SchemaFor(indicatorSeriesInput{}) }

func (t *IndicatorTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in indicatorSeriesInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if len(in.Closes) < 2 {
		return Err(apperr.Validation("closes", "need at least 2 closing prices"))
	}

	out := make(map[string]interface{}, len(in.Indicators))
	for _, name := range in.Indicators {
		switch name {
		case "rsi14":
			if len(in.Closes) >= 15 {
				rsi := talib.Rsi(in.Closes, 14)
				out["rsi14"] = lastValid(rsi)
			}
		case "sma20":
			if len(in.Closes) >= 20 {
				sma := talib.Sma(in.Closes, 20)
				out["sma20"] = lastValid(sma)
			}
		case "sma50":
			if len(in.Closes) >= 50 {
				sma := talib.Sma(in.Closes, 50)
				out["sma50"] = lastValid(sma)
			}
		case "ema12":
			if len(in.Closes) >= 12 {
				ema := talib.Ema(in.Closes, 12)
				out["ema12"] = lastValid(ema)
			}
		case "macd":
			if len(in.Closes) >= 35 {
				macd, signal, hist := talib.Macd(in.Closes, 12, 26, 9)
				out["macd"] = map[string]interface{}{
					"macd":      lastValid(macd),
					"signal":    lastValid(signal),
					"histogram": lastValid(hist),
				}
			}
		}
	}
	return Ok(map[string]interface{}{"symbol": in.Symbol, "indicators": out})
}

func lastValid(series []float64) interface{} {
	if len(series) == 0 {
		return nil
	}
	v := series[len(series)-1]
	if v != v { // NaN
		return nil
	}
	return v
}
