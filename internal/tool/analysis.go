package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/pkg/formulas"
)

// --- analyze_fundamentals ---

type fundamentalsInput struct {
	Symbol    string             `json:"symbol" jsonschema:"required,minLength=4"`
	LineItems map[string]float64 `json:"line_items" jsonschema:"required,description=Income statement and balance sheet figures"`
}

type FundamentalsTool struct{}

func NewFundamentalsTool() *FundamentalsTool { return &FundamentalsTool{} }

func (t *FundamentalsTool) Name() string          { return "analyze_fundamentals" }
func (t *FundamentalsTool) Description() string   { return "Derives profitability and leverage ratios from financial statement line items." }
func (t *FundamentalsTool) SideEffect() SideEffect { return Pure }
func (t *FundamentalsTool) InputSchema() *jsonschema.Schema { return SchemaFor(fundamentalsInput{}) }

func (t *FundamentalsTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in fundamentalsInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	items := in.LineItems
	out := map[string]interface{}{"symbol": in.Symbol}
	if revenue, ok := items["revenue"]; ok && revenue != 0 {
		if netIncome, ok := items["net_income"]; ok {
			out["profit_margin"] = netIncome / revenue
		}
	}
	if equity, ok := items["total_equity"]; ok && equity != 0 {
		if netIncome, ok := items["net_income"]; ok {
			out["roe"] = netIncome / equity
		}
		if liabilities, ok := items["total_liabilities"]; ok {
			out["debt_to_equity"] = liabilities / equity
		}
	}
	return Ok(out)
}

// --- analyze_technicals ---

type technicalsInput struct {
	Symbol string    `json:"symbol" jsonschema:"required,minLength=4"`
	Closes []float64 `json:"closes" jsonschema:"required"`
}

type TechnicalsTool struct{}

func NewTechnicalsTool() *TechnicalsTool { return &TechnicalsTool{} }

func (t *TechnicalsTool) Name() string          { return "analyze_technicals" }
func (t *TechnicalsTool) Description() string   { return "Summarizes momentum, volatility, and drawdown posture from a price series." }
func (t *TechnicalsTool) SideEffect() SideEffect { return Pure }
func (t *TechnicalsTool) InputSchema() *jsonschema.Schema { return SchemaFor(technicalsInput{}) }

func (t *TechnicalsTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in technicalsInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if len(in.Closes) < 2 {
		return Err(apperr.Validation("closes", "need at least 2 closing prices"))
	}

	out := map[string]interface{}{"symbol": in.Symbol}
	if momentum := formulas.CalculateMomentum(in.Closes, min(20, len(in.Closes)-1)); momentum != nil {
		out["momentum_20d"] = *momentum
	}
	if vol := formulas.CalculateVolatility(in.Closes); vol != nil {
		out["volatility"] = *vol
	}
	if dd := formulas.CalculateMaxDrawdown(in.Closes); dd != nil {
		out["max_drawdown"] = *dd
	}
	return Ok(out)
}

// --- assess_risk ---

type riskInput struct {
	Symbol         string    `json:"symbol" jsonschema:"required,minLength=4"`
	PortfolioValues []float64 `json:"portfolio_values" jsonschema:"required,description=Ordered historical portfolio values"`
	RiskFreeRate   float64   `json:"risk_free_rate,omitempty"`
}

type RiskTool struct{}

func NewRiskTool() *RiskTool { return &RiskTool{} }

func (t *RiskTool) Name() string          { return "assess_risk" }
func (t *RiskTool) Description() string   { return "Computes Sharpe/Sortino ratios and drawdown metrics for a portfolio value series." }
func (t *RiskTool) SideEffect() SideEffect { return Pure }
func (t *RiskTool) InputSchema() *jsonschema.Schema { return SchemaFor(riskInput{}) }

func (t *RiskTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in riskInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if len(in.PortfolioValues) < 2 {
		return Err(apperr.Validation("portfolio_values", "need at least 2 values"))
	}

	out := map[string]interface{}{"symbol": in.Symbol}
	if sharpe := formulas.CalculateSharpeFromPrices(in.PortfolioValues, in.RiskFreeRate); sharpe != nil {
		out["sharpe_ratio"] = *sharpe
	}
	returns := formulas.CalculateReturns(in.PortfolioValues)
	if sortino := formulas.CalculateSortinoRatio(returns, in.RiskFreeRate, 0, 252); sortino != nil {
		out["sortino_ratio"] = *sortino
	}
	if metrics := formulas.CalculateDrawdownMetrics(in.PortfolioValues); metrics != nil {
		out["drawdown"] = metrics
	}
	return Ok(out)
}

// --- analyze_sentiment ---

type sentimentInput struct {
	Symbol  string `json:"symbol" jsonschema:"required,minLength=4"`
	Context string `json:"context,omitempty" jsonschema:"description=Free-text headline or note to score"`
}

// SentimentTool produces a bounded sentiment score from lightweight lexical
// scoring over the supplied context text; there is no external news feed
// in this system, so the tool works entirely off what the caller provides.
type SentimentTool struct{}

func NewSentimentTool() *SentimentTool { return &SentimentTool{} }

func (t *SentimentTool) Name() string          { return "analyze_sentiment" }
func (t *SentimentTool) Description() string   { return "Scores sentiment of supplied context text on a -1..1 scale." }
func (t *SentimentTool) SideEffect() SideEffect { return Pure }
func (t *SentimentTool) InputSchema() *jsonschema.Schema { return SchemaFor(sentimentInput{}) }

var positiveWords = map[string]bool{
	"beat": true, "growth": true, "upgrade": true, "profit": true, "strong": true, "record": true,
}
var negativeWords = map[string]bool{
	"miss": true, "downgrade": true, "loss": true, "weak": true, "decline": true, "recall": true,
}

func (t *SentimentTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in sentimentInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	score := 0.0
	words := tokenize(in.Context)
	if len(words) > 0 {
		hits := 0
		for _, w := range words {
			if positiveWords[w] {
				score++
				hits++
			}
			if negativeWords[w] {
				score--
				hits++
			}
		}
		if hits > 0 {
			score /= float64(hits)
		}
	}
	return Ok(map[string]interface{}{"symbol": in.Symbol, "sentiment_score": score})
}

func tokenize(s string) []string {
	var words []string
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			words = append(words, string(word))
			word = word[:0]
		}
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			word = append(word, r)
		} else {
			flush()
		}
	}
	flush()
	return words
}
