package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/gateway"
)

// tradeRepo is the narrow repository surface simulate_buy/simulate_sell need.
type tradeRepo interface {
	GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error)
	UpdateAgentRuntimeState(ctx context.Context, s domain.AgentRuntimeState) error
	InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error)
}

// TradeConfig carries the trading constants simulate_buy/simulate_sell need,
// injected the same way ValidateConfig is rather than importing
// internal/config directly.
type TradeConfig struct {
	LotSize int64
	FeeRate float64 // applied both sides, on notional
	TaxRate float64 // applied on sell only, on notional
}

type tradeInput struct {
	Symbol     string  `json:"symbol" jsonschema:"required,minLength=4"`
	Quantity   int64   `json:"quantity" jsonschema:"required,description=Must be a multiple of the lot size"`
	LimitPrice float64 `json:"limit_price,omitempty" jsonschema:"description=Omit for a market order"`
	Reason     string  `json:"reason,omitempty" jsonschema:"description=Decision reason to attach to the fill"`
}

type fillResult struct {
	Executed      bool    `json:"executed"`
	Status        domain.TransactionStatus `json:"status"`
	Symbol        string  `json:"symbol"`
	Side          domain.TradeSide `json:"side"`
	Quantity      int64   `json:"quantity"`
	ExecutedPrice float64 `json:"executed_price,omitempty"`
	Notional      float64 `json:"notional,omitempty"`
	Fee           float64 `json:"fee,omitempty"`
	Tax           float64 `json:"tax,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	TransactionID int64   `json:"transaction_id,omitempty"`
}

func currentQuotePrice(ctx context.Context, gw gatewayFetch, symbol string) (float64, error) {
	res, err := gw.Fetch(ctx, symbol, gateway.KindQuote, false)
	if err != nil {
		return 0, err
	}
	q, ok := res.Payload.(gateway.Quote)
	if !ok {
		return 0, apperr.New(apperr.KindInternal, "gateway returned non-quote payload")
	}
	return q.Price, nil
}

// --- simulate_buy ---

// SimulateBuyTool fills a simulated market or limit buy order against the
// current quoted price, writing one Transaction and updating the agent's
// cash and Holding. Market orders always fill; a limit order fills only if
// the limit is at or above the current price.
type SimulateBuyTool struct {
	repo tradeRepo
	gw   gatewayFetch
	cfg  TradeConfig
	log  zerolog.Logger
	now  func() time.Time
}

func NewSimulateBuyTool(repo tradeRepo, gw gatewayFetch, cfg TradeConfig, log zerolog.Logger) *SimulateBuyTool {
	return &SimulateBuyTool{repo: repo, gw: gw, cfg: cfg, log: log.With().Str("component", "tool.simulate_buy").Logger(), now: time.Now}
}

func (t *SimulateBuyTool) Name() string          { return "simulate_buy" }
func (t *SimulateBuyTool) Description() string   { return "Simulates a market or limit buy order and updates the agent's holding." }
func (t *SimulateBuyTool) SideEffect() SideEffect { return WriteSimulatedTrade }
func (t *SimulateBuyTool) InputSchema() *jsonschema.Schema { return SchemaFor(tradeInput{}) }

func (t *SimulateBuyTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in tradeInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	if in.Quantity <= 0 {
		return Err(apperr.Validation("quantity", "quantity must be positive"))
	}
	if t.cfg.LotSize > 0 && in.Quantity%t.cfg.LotSize != 0 {
		return Err(apperr.Validation("quantity", "quantity must be a multiple of the lot size"))
	}

	agentID := AgentIDFromContext(ctx)
	sessionID := SessionIDFromContext(ctx)
	if agentID == "" {
		return Err(apperr.New(apperr.KindInternal, "no agent scope on context"))
	}

	price, err := currentQuotePrice(ctx, t.gw, in.Symbol)
	if err != nil {
		return Err(err)
	}

	if in.LimitPrice > 0 && in.LimitPrice < price {
		return Ok(fillResult{
			Executed: false, Status: domain.TxFailed, Symbol: in.Symbol, Side: domain.SideBuy,
			Quantity: in.Quantity, Reason: "limit price below current market price",
		})
	}

	state, err := t.repo.GetAgentRuntimeState(ctx, agentID)
	if err != nil {
		return Err(err)
	}

	notional := price * float64(in.Quantity)
	fee := notional * t.cfg.FeeRate
	totalCost := notional + fee
	if state.Cash < totalCost {
		return Ok(fillResult{
			Executed: false, Status: domain.TxFailed, Symbol: in.Symbol, Side: domain.SideBuy,
			Quantity: in.Quantity, Reason: "insufficient cash",
		})
	}

	now := t.now()
	tx := domain.Transaction{
		AgentID: agentID, SessionID: sessionID, Symbol: in.Symbol, Side: domain.SideBuy,
		Quantity: in.Quantity, Price: price, Notional: notional, Fee: fee, Tax: 0,
		Status: domain.TxExecuted, DecisionReason: in.Reason, ExecutedAt: now,
	}
	txID, err := t.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return Err(err)
	}

	existing := state.Holdings[in.Symbol]
	newQty := existing.Quantity + in.Quantity
	newAvgCost := price
	if existing.Quantity > 0 {
		newAvgCost = (existing.AverageCost*float64(existing.Quantity) + notional) / float64(newQty)
	}
	if state.Holdings == nil {
		state.Holdings = make(map[string]domain.Holding)
	}
	state.Holdings[in.Symbol] = domain.Holding{Symbol: in.Symbol, Quantity: newQty, AverageCost: newAvgCost}
	state.Cash -= totalCost
	state.LastActivityAt = now

	if err := t.repo.UpdateAgentRuntimeState(ctx, state); err != nil {
		return Err(err)
	}

	return Ok(fillResult{
		Executed: true, Status: domain.TxExecuted, Symbol: in.Symbol, Side: domain.SideBuy,
		Quantity: in.Quantity, ExecutedPrice: price, Notional: notional, Fee: fee, TransactionID: txID,
	})
}

// --- simulate_sell ---

// SimulateSellTool fills a simulated market or limit sell order, reducing
// (or closing) the agent's Holding. A limit order fills only if the limit
// is at or below the current price. Fee and tax both apply to sells.
type SimulateSellTool struct {
	repo tradeRepo
	gw   gatewayFetch
	cfg  TradeConfig
	log  zerolog.Logger
	now  func() time.Time
}

func NewSimulateSellTool(repo tradeRepo, gw gatewayFetch, cfg TradeConfig, log zerolog.Logger) *SimulateSellTool {
	return &SimulateSellTool{repo: repo, gw: gw, cfg: cfg, log: log.With().Str("component", "tool.simulate_sell").Logger(), now: time.Now}
}

func (t *SimulateSellTool) Name() string          { return "simulate_sell" }
func (t *SimulateSellTool) Description() string   { return "Simulates a market or limit sell order and updates the agent's holding." }
func (t *SimulateSellTool) SideEffect() SideEffect { return WriteSimulatedTrade }
func (t *SimulateSellTool) InputSchema() *jsonschema.Schema { return SchemaFor(tradeInput{}) }

func (t *SimulateSellTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in tradeInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	if err := validateSymbol(in.Symbol); err != nil {
		return Err(err)
	}
	if in.Quantity <= 0 {
		return Err(apperr.Validation("quantity", "quantity must be positive"))
	}
	if t.cfg.LotSize > 0 && in.Quantity%t.cfg.LotSize != 0 {
		return Err(apperr.Validation("quantity", "quantity must be a multiple of the lot size"))
	}

	agentID := AgentIDFromContext(ctx)
	sessionID := SessionIDFromContext(ctx)
	if agentID == "" {
		return Err(apperr.New(apperr.KindInternal, "no agent scope on context"))
	}

	state, err := t.repo.GetAgentRuntimeState(ctx, agentID)
	if err != nil {
		return Err(err)
	}
	held := state.Holdings[in.Symbol]
	if held.Quantity < in.Quantity {
		return Ok(fillResult{
			Executed: false, Status: domain.TxFailed, Symbol: in.Symbol, Side: domain.SideSell,
			Quantity: in.Quantity, Reason: "held quantity insufficient to cover sell",
		})
	}

	price, err := currentQuotePrice(ctx, t.gw, in.Symbol)
	if err != nil {
		return Err(err)
	}

	if in.LimitPrice > 0 && in.LimitPrice > price {
		return Ok(fillResult{
			Executed: false, Status: domain.TxFailed, Symbol: in.Symbol, Side: domain.SideSell,
			Quantity: in.Quantity, Reason: "limit price above current market price",
		})
	}

	now := t.now()
	notional := price * float64(in.Quantity)
	fee := notional * t.cfg.FeeRate
	tax := notional * t.cfg.TaxRate
	proceeds := notional - fee - tax

	tx := domain.Transaction{
		AgentID: agentID, SessionID: sessionID, Symbol: in.Symbol, Side: domain.SideSell,
		Quantity: in.Quantity, Price: price, Notional: notional, Fee: fee, Tax: tax,
		Status: domain.TxExecuted, DecisionReason: in.Reason, ExecutedAt: now,
	}
	txID, err := t.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return Err(err)
	}

	remaining := held.Quantity - in.Quantity
	if remaining == 0 {
		delete(state.Holdings, in.Symbol)
	} else {
		// Average cost basis is untouched by a partial sell, per §4.2.
		state.Holdings[in.Symbol] = domain.Holding{Symbol: in.Symbol, Quantity: remaining, AverageCost: held.AverageCost}
	}
	state.Cash += proceeds
	state.LastActivityAt = now

	if err := t.repo.UpdateAgentRuntimeState(ctx, state); err != nil {
		return Err(err)
	}

	return Ok(fillResult{
		Executed: true, Status: domain.TxExecuted, Symbol: in.Symbol, Side: domain.SideSell,
		Quantity: in.Quantity, ExecutedPrice: price, Notional: notional, Fee: fee, Tax: tax, TransactionID: txID,
	})
}
