package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/gateway"
)

// gatewayFetch is the narrow surface these tools need from *gateway.Gateway,
// kept as an interface so tests can supply a fake without building a real
// Gateway and Fetcher pair.
type gatewayFetch interface {
	Fetch(ctx context.Context, symbol string, k gateway.Kind, forceRefresh bool) (gateway.Result, error)
}

// symbolInput is the shared shape for every tool that takes only a symbol.
type symbolInput struct {
	Symbol       string `json:"symbol" jsonschema:"required,minLength=4,description=TWSE ticker symbol"`
	ForceRefresh bool   `json:"force_refresh,omitempty" jsonschema:"description=Bypass a fresh cache entry and re-fetch from upstream"`
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return apperr.Validation("input", "missing input")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("input", "malformed input: "+err.Error())
	}
	return nil
}

func validateSymbol(symbol string) error {
	if len(symbol) < 4 {
		return apperr.Validation("symbol", "symbol must be at least 4 characters")
	}
	return nil
}

// --- get_stock_price ---

type StockPriceTool struct{ gw gatewayFetch }

func NewStockPriceTool(gw gatewayFetch) *StockPriceTool { return &StockPriceTool{gw: gw} }

func (t *StockPriceTool) Name() string        { return "get_stock_price" }
func (t *StockPriceTool) Description() string { return "Fetches the current quoted price for a symbol." }
func (t *StockPriceTool) SideEffect() SideEffect { return ReadMarket }
func (t *StockPriceTool) InputSchema() *jsonschema.Schema { return SchemaFor(symbolInput{}) }

func (t *StockPriceTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in symbolInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	res, err := t.gw.Fetch(ctx, in.Symbol, gateway.KindQuote, in.ForceRefresh)
	if err != nil {
		return Err(err)
	}
	return Ok(res.Payload)
}

// --- get_company_profile ---

type CompanyProfileTool struct{ gw gatewayFetch }

func NewCompanyProfileTool(gw gatewayFetch) *CompanyProfileTool { return &CompanyProfileTool{gw: gw} }

func (t *CompanyProfileTool) Name() string          { return "get_company_profile" }
func (t *CompanyProfileTool) Description() string   { return "Fetches static issuer profile data for a symbol." }
func (t *CompanyProfileTool) SideEffect() SideEffect { return ReadMarket }
func (t *CompanyProfileTool) InputSchema() *jsonschema.Schema { return SchemaFor(symbolInput{}) }

func (t *CompanyProfileTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in symbolInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	res, err := t.gw.Fetch(ctx, in.Symbol, gateway.KindCompanyProfile, in.ForceRefresh)
	if err != nil {
		return Err(err)
	}
	return Ok(res.Payload)
}

// --- get_income_statement / get_balance_sheet ---

type statementInput struct {
	Symbol       string `json:"symbol" jsonschema:"required,minLength=4"`
	Year         int    `json:"year,omitempty"`
	Season       int    `json:"season,omitempty" jsonschema:"minimum=1,maximum=4"`
	ForceRefresh bool   `json:"force_refresh,omitempty" jsonschema:"description=Bypass a fresh cache entry and re-fetch from upstream"`
}

type IncomeStatementTool struct{ gw gatewayFetch }

func NewIncomeStatementTool(gw gatewayFetch) *IncomeStatementTool { return &IncomeStatementTool{gw: gw} }

func (t *IncomeStatementTool) Name() string          { return "get_income_statement" }
func (t *IncomeStatementTool) Description() string   { return "Fetches the most recent income statement for a symbol." }
func (t *IncomeStatementTool) SideEffect() SideEffect { return ReadMarket }
func (t *IncomeStatementTool) InputSchema() *jsonschema.Schema { return SchemaFor(statementInput{}) }

func (t *IncomeStatementTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in statementInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	res, err := t.gw.Fetch(ctx, in.Symbol, gateway.KindIncomeStatement, in.ForceRefresh)
	if err != nil {
		return Err(err)
	}
	return Ok(res.Payload)
}

type BalanceSheetTool struct{ gw gatewayFetch }

func NewBalanceSheetTool(gw gatewayFetch) *BalanceSheetTool { return &BalanceSheetTool{gw: gw} }

func (t *BalanceSheetTool) Name() string          { return "get_balance_sheet" }
func (t *BalanceSheetTool) Description() string   { return "Fetches the most recent balance sheet for a symbol." }
func (t *BalanceSheetTool) SideEffect() SideEffect { return ReadMarket }
func (t *BalanceSheetTool) InputSchema() *jsonschema.Schema { return SchemaFor(statementInput{}) }

func (t *BalanceSheetTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in statementInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	res, err := t.gw.Fetch(ctx, in.Symbol, gateway.KindBalanceSheet, in.ForceRefresh)
	if err != nil {
		return Err(err)
	}
	return Ok(res.Payload)
}

// --- get_daily_trading ---

type dailyTradingInput struct {
	Symbol       string `json:"symbol" jsonschema:"required,minLength=4"`
	Date         string `json:"date,omitempty" jsonschema:"description=Accepted but not used; the most recent window of bars is always returned"`
	ForceRefresh bool   `json:"force_refresh,omitempty" jsonschema:"description=Bypass a fresh cache entry and re-fetch from upstream"`
}

type DailyTradingTool struct{ gw gatewayFetch }

func NewDailyTradingTool(gw gatewayFetch) *DailyTradingTool { return &DailyTradingTool{gw: gw} }

func (t *DailyTradingTool) Name() string          { return "get_daily_trading" }
func (t *DailyTradingTool) Description() string   { return "Fetches a window of historical OHLCV bars for a symbol." }
func (t *DailyTradingTool) SideEffect() SideEffect { return ReadMarket }
func (t *DailyTradingTool) InputSchema() *jsonschema.Schema { return SchemaFor(dailyTradingInput{}) }

func (t *DailyTradingTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in dailyTradingInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	res, err := t.gw.Fetch(ctx, in.Symbol, gateway.KindDailyTrading, in.ForceRefresh)
	if err != nil {
		return Err(err)
	}
	return Ok(res.Payload)
}
