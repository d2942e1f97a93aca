// Package modepolicy derives the tool set visible to a session from its
// Mode. Only TRADING is authored directly; REBALANCING, OBSERVATION and
// STRATEGY_REVIEW are derived from it by subtraction, per the
// specification's note that those two "may be derived... by masking" —
// decided here as "are derived," so the four masks can never drift apart.
package modepolicy

import "github.com/sacahan/casualtrader-go/internal/domain"

// Canonical tool names, mirrored from internal/tool's concrete registrations.
// Kept as plain strings (not an import of internal/tool) so this package has
// no dependency on tool implementations, only on their names.
const (
	ToolGetStockPrice              = "get_stock_price"
	ToolGetCompanyProfile          = "get_company_profile"
	ToolGetIncomeStatement         = "get_income_statement"
	ToolGetBalanceSheet            = "get_balance_sheet"
	ToolGetDailyTrading            = "get_daily_trading"
	ToolCheckTradingDay            = "check_trading_day"
	ToolCalculateTechnicalIndicators = "calculate_technical_indicators"
	ToolAnalyzeFundamentals        = "analyze_fundamentals"
	ToolAnalyzeTechnicals          = "analyze_technicals"
	ToolAssessRisk                 = "assess_risk"
	ToolAnalyzeSentiment           = "analyze_sentiment"
	ToolValidateTrade              = "validate_trade"
	ToolGetPortfolio               = "get_portfolio"
	ToolSimulateBuy                = "simulate_buy"
	ToolSimulateSell               = "simulate_sell"
	ToolRecordStrategyChange       = "record_strategy_change"
)

// Mask is the set of tool names visible in a given mode.
type Mask map[string]bool

func newMask(names ...string) Mask {
	m := make(Mask, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func (m Mask) without(names ...string) Mask {
	out := make(Mask, len(m))
	for k := range m {
		out[k] = true
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}

// tradingMask is the canonical superset: every tool, every side-effect
// class. All other masks are derived from it by subtraction.
var tradingMask = newMask(
	ToolGetStockPrice, ToolGetCompanyProfile, ToolGetIncomeStatement, ToolGetBalanceSheet,
	ToolGetDailyTrading, ToolCheckTradingDay, ToolCalculateTechnicalIndicators,
	ToolAnalyzeFundamentals, ToolAnalyzeTechnicals, ToolAssessRisk, ToolAnalyzeSentiment,
	ToolValidateTrade, ToolGetPortfolio, ToolSimulateBuy, ToolSimulateSell, ToolRecordStrategyChange,
)

// rebalancingMask drops the simulated-trade tools and the fundamental/
// sentiment analyses, per §4.4.
var rebalancingMask = tradingMask.without(
	ToolSimulateBuy, ToolSimulateSell, ToolAnalyzeFundamentals, ToolAnalyzeSentiment,
)

// observationMask is read-only: every write tool is masked out.
var observationMask = tradingMask.without(
	ToolSimulateBuy, ToolSimulateSell, ToolRecordStrategyChange,
)

// strategyReviewMask is read-only except for record_strategy_change.
var strategyReviewMask = tradingMask.without(
	ToolSimulateBuy, ToolSimulateSell,
)

// Masks maps each canonical Mode to its derived tool Mask.
var Masks = map[domain.Mode]Mask{
	domain.ModeTrading:        tradingMask,
	domain.ModeRebalancing:    rebalancingMask,
	domain.ModeObservation:    observationMask,
	domain.ModeStrategyReview: strategyReviewMask,
}

// For returns the tool mask for mode, or nil if mode is not one of the four
// canonical modes.
func For(mode domain.Mode) Mask {
	return Masks[mode]
}
