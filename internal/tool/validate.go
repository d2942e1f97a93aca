package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
)

type validateTradeInput struct {
	Symbol          string  `json:"symbol" jsonschema:"required,minLength=4"`
	Side            string  `json:"side" jsonschema:"required,enum=buy,enum=sell"`
	Quantity        int64   `json:"quantity" jsonschema:"required"`
	Price           float64 `json:"price,omitempty"`
	PortfolioValue  float64 `json:"portfolio_value" jsonschema:"required"`
	HeldQuantity    int64   `json:"held_quantity,omitempty"`
	DailyTradeCount int     `json:"daily_trade_count"`
}

// ValidateConfig carries the configured trading constants validate_trade
// checks against, injected so the tool has no direct dependency on
// internal/config.
type ValidateConfig struct {
	LotSize          int64
	MinTradeAmount   float64
	MaxPositionWeight float64
	DailyTradeLimit  int
}

type validation struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	RiskScore int      `json:"risk_score"`
}

// ValidateTradeTool checks a proposed order against the hard and soft rules.
// simulate_buy/simulate_sell do not call it; they apply only their own
// lot-size, cash and held-quantity checks.
type ValidateTradeTool struct {
	cfg ValidateConfig
}

func NewValidateTradeTool(cfg ValidateConfig) *ValidateTradeTool { return &ValidateTradeTool{cfg: cfg} }

func (t *ValidateTradeTool) Name() string          { return "validate_trade" }
func (t *ValidateTradeTool) Description() string   { return "Validates a proposed trade against lot-size, notional, position, and daily-count rules." }
func (t *ValidateTradeTool) SideEffect() SideEffect { return Pure }
func (t *ValidateTradeTool) InputSchema() *jsonschema.Schema { return SchemaFor(validateTradeInput{}) }

func (t *ValidateTradeTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in validateTradeInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	v := t.validate(in)
	return Ok(v)
}

func (t *ValidateTradeTool) validate(in validateTradeInput) validation {
	var errs, warnings []string
	score := 0

	if len(in.Symbol) < 4 {
		errs = append(errs, "symbol must be at least 4 characters")
		score += 20
	}
	if in.Quantity <= 0 {
		errs = append(errs, "quantity must be positive")
		score += 20
	} else if t.cfg.LotSize > 0 && in.Quantity%t.cfg.LotSize != 0 {
		errs = append(errs, "quantity must be a multiple of the lot size")
		score += 20
	}

	// min_trade_amount is a soft warning, not a hard error: small notional
	// raises the risk score but never fails validation on its own.
	notional := in.Price * float64(in.Quantity)
	if notional > 0 && notional < t.cfg.MinTradeAmount {
		warnings = append(warnings, "notional below minimum trade amount")
		score += 15
	}

	if in.Side == "buy" {
		if in.PortfolioValue > 0 && t.cfg.MaxPositionWeight > 0 {
			weight := notional / in.PortfolioValue
			if weight > t.cfg.MaxPositionWeight {
				errs = append(errs, "position weight exceeds configured ceiling")
				score += 25
			} else if weight > t.cfg.MaxPositionWeight*0.8 {
				warnings = append(warnings, "position weight approaching ceiling")
				score += 10
			}
		}
	} else if in.Side == "sell" {
		if in.HeldQuantity < in.Quantity {
			errs = append(errs, "held quantity insufficient to cover sell")
			score += 25
		}
	} else {
		errs = append(errs, "side must be buy or sell")
		score += 20
	}

	if t.cfg.DailyTradeLimit > 0 && in.DailyTradeCount >= t.cfg.DailyTradeLimit {
		errs = append(errs, "daily trade limit reached")
		score += 20
	}

	if score > 100 {
		score = 100
	}
	if score >= 50 && len(errs) == 0 {
		warnings = append(warnings, "elevated risk score")
	}

	return validation{
		Valid:     len(errs) == 0,
		Errors:    errs,
		Warnings:  warnings,
		RiskScore: score,
	}
}
