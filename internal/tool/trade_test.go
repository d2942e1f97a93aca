package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/gateway"
)

// fakeQuoteGateway always answers with a fixed quote price, regardless of
// symbol, for tests that don't need the real Gateway/Fetcher pipeline.
type fakeQuoteGateway struct {
	price float64
}

func (g fakeQuoteGateway) Fetch(ctx context.Context, symbol string, k gateway.Kind, forceRefresh bool) (gateway.Result, error) {
	return gateway.Result{Payload: gateway.Quote{Symbol: symbol, Price: g.price}}, nil
}

// fakeTradeRepo is a minimal in-memory tradeRepo for trade tool tests.
type fakeTradeRepo struct {
	state domain.AgentRuntimeState
	txs   []domain.Transaction
}

func newFakeTradeRepo(cash float64, holdings map[string]domain.Holding) *fakeTradeRepo {
	if holdings == nil {
		holdings = make(map[string]domain.Holding)
	}
	return &fakeTradeRepo{state: domain.AgentRuntimeState{AgentID: "agent-1", Cash: cash, Holdings: holdings}}
}

func (r *fakeTradeRepo) GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error) {
	return r.state.Clone(), nil
}

func (r *fakeTradeRepo) UpdateAgentRuntimeState(ctx context.Context, s domain.AgentRuntimeState) error {
	r.state = s
	return nil
}

func (r *fakeTradeRepo) InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error) {
	t.ID = int64(len(r.txs) + 1)
	r.txs = append(r.txs, t)
	return t.ID, nil
}

func scopedCtx() context.Context {
	return WithScope(context.Background(), "agent-1", "sess-1")
}

func TestSimulateBuy_FillsMarketOrderAndUpdatesHolding(t *testing.T) {
	repo := newFakeTradeRepo(1_000_000, nil)
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateBuyTool(repo, gw, TradeConfig{LotSize: 1000, FeeRate: 0.001425}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.True(t, fr.Executed)
	assert.Equal(t, domain.TxExecuted, fr.Status)
	assert.InDelta(t, 100_000.0, fr.Notional, 0.001)
	assert.InDelta(t, 142.5, fr.Fee, 0.01)

	holding := repo.state.Holdings["2330"]
	assert.Equal(t, int64(1000), holding.Quantity)
	assert.InDelta(t, 100.0, holding.AverageCost, 0.001)
	assert.InDelta(t, 1_000_000-100_000-142.5, repo.state.Cash, 0.01)
	require.Len(t, repo.txs, 1)
}

func TestSimulateBuy_InsufficientCashFailsWithoutError(t *testing.T) {
	repo := newFakeTradeRepo(1000, nil)
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateBuyTool(repo, gw, TradeConfig{LotSize: 1000, FeeRate: 0.001425}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.False(t, fr.Executed)
	assert.Equal(t, domain.TxFailed, fr.Status)
	assert.Equal(t, "insufficient cash", fr.Reason)
	assert.Empty(t, repo.txs)
}

func TestSimulateBuy_LimitBelowMarketFailsWithoutError(t *testing.T) {
	repo := newFakeTradeRepo(1_000_000, nil)
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateBuyTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000, "limit_price": 90})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.False(t, fr.Executed)
	assert.Equal(t, "limit price below current market price", fr.Reason)
}

func TestSimulateBuy_QuantityMustBeLotMultiple(t *testing.T) {
	repo := newFakeTradeRepo(1_000_000, nil)
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateBuyTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 500})
	res := tr.Execute(scopedCtx(), raw)
	require.False(t, res.OK)
	assert.Equal(t, "quantity", res.Error.Field)
}

func TestSimulateBuy_AverageCostBlendsAcrossFills(t *testing.T) {
	repo := newFakeTradeRepo(10_000_000, map[string]domain.Holding{"2330": {Symbol: "2330", Quantity: 1000, AverageCost: 100}})
	gw := fakeQuoteGateway{price: 120}
	tr := NewSimulateBuyTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	holding := repo.state.Holdings["2330"]
	assert.Equal(t, int64(2000), holding.Quantity)
	assert.InDelta(t, 110.0, holding.AverageCost, 0.001)
}

func TestSimulateSell_FillsAndAppliesFeeAndTax(t *testing.T) {
	repo := newFakeTradeRepo(0, map[string]domain.Holding{"2330": {Symbol: "2330", Quantity: 1000, AverageCost: 80}})
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateSellTool(repo, gw, TradeConfig{LotSize: 1000, FeeRate: 0.001425, TaxRate: 0.003}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.True(t, fr.Executed)
	assert.InDelta(t, 100_000.0, fr.Notional, 0.001)
	assert.InDelta(t, 142.5, fr.Fee, 0.01)
	assert.InDelta(t, 300.0, fr.Tax, 0.01)

	_, stillHeld := repo.state.Holdings["2330"]
	assert.False(t, stillHeld)
	assert.InDelta(t, 100_000-142.5-300.0, repo.state.Cash, 0.01)
}

func TestSimulateSell_PartialSellKeepsAverageCost(t *testing.T) {
	repo := newFakeTradeRepo(0, map[string]domain.Holding{"2330": {Symbol: "2330", Quantity: 2000, AverageCost: 80}})
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateSellTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	holding := repo.state.Holdings["2330"]
	assert.Equal(t, int64(1000), holding.Quantity)
	assert.InDelta(t, 80.0, holding.AverageCost, 0.001)
}

func TestSimulateSell_InsufficientHeldQuantityFailsWithoutError(t *testing.T) {
	repo := newFakeTradeRepo(0, map[string]domain.Holding{"2330": {Symbol: "2330", Quantity: 100, AverageCost: 80}})
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateSellTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.False(t, fr.Executed)
	assert.Equal(t, "held quantity insufficient to cover sell", fr.Reason)
}

func TestSimulateSell_LimitAboveMarketFailsWithoutError(t *testing.T) {
	repo := newFakeTradeRepo(0, map[string]domain.Holding{"2330": {Symbol: "2330", Quantity: 1000, AverageCost: 80}})
	gw := fakeQuoteGateway{price: 100}
	tr := NewSimulateSellTool(repo, gw, TradeConfig{LotSize: 1000}, zerolog.Nop())

	raw, _ := json.Marshal(map[string]interface{}{"symbol": "2330", "quantity": 1000, "limit_price": 110})
	res := tr.Execute(scopedCtx(), raw)
	require.True(t, res.OK)

	fr := res.Data.(fillResult)
	assert.False(t, fr.Executed)
	assert.Equal(t, "limit price above current market price", fr.Reason)
}

