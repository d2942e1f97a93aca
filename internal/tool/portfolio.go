package tool

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/gateway"
)

// portfolioRepo is the narrow repository surface get_portfolio needs.
type portfolioRepo interface {
	GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error)
}

type portfolioInput struct{}

type holdingView struct {
	Symbol        string  `json:"symbol"`
	Quantity      int64   `json:"quantity"`
	AverageCost   float64 `json:"average_cost"`
	CurrentPrice  float64 `json:"current_price,omitempty"`
	MarketValue   float64 `json:"market_value,omitempty"`
	UnrealizedPL  float64 `json:"unrealized_pl,omitempty"`
	PriceUnknown  bool    `json:"price_unknown,omitempty"`
}

type portfolioView struct {
	Cash        float64       `json:"cash"`
	Holdings    []holdingView `json:"holdings"`
	TotalValue  float64       `json:"total_value"`
}

// GetPortfolioTool reports the calling agent's cash balance and current
// holdings, marked to market on a best-effort basis via the gateway.
type GetPortfolioTool struct {
	repo portfolioRepo
	gw   gatewayFetch
	log  zerolog.Logger
}

func NewGetPortfolioTool(repo portfolioRepo, gw gatewayFetch, log zerolog.Logger) *GetPortfolioTool {
	return &GetPortfolioTool{repo: repo, gw: gw, log: log.With().Str("component", "tool.get_portfolio").Logger()}
}

func (t *GetPortfolioTool) Name() string          { return "get_portfolio" }
func (t *GetPortfolioTool) Description() string   { return "Reports cash balance and current holdings, marked to market where possible." }
func (t *GetPortfolioTool) SideEffect() SideEffect { return ReadPortfolio }
func (t *GetPortfolioTool) InputSchema() *jsonschema.Schema { return SchemaFor(portfolioInput{}) }

func (t *GetPortfolioTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	agentID := AgentIDFromContext(ctx)
	if agentID == "" {
		return Err(apperr.New(apperr.KindInternal, "no agent scope on context"))
	}
	state, err := t.repo.GetAgentRuntimeState(ctx, agentID)
	if err != nil {
		return Err(err)
	}

	view := portfolioView{Cash: state.Cash, TotalValue: state.Cash}
	for symbol, h := range state.Holdings {
		hv := holdingView{Symbol: symbol, Quantity: h.Quantity, AverageCost: h.AverageCost}
		res, err := t.gw.Fetch(ctx, symbol, gateway.KindQuote, false)
		if err != nil {
			hv.PriceUnknown = true
			t.log.Debug().Str("symbol", symbol).Err(err).Msg("quote unavailable for mark-to-market")
		} else if q, ok := res.Payload.(gateway.Quote); ok {
			hv.CurrentPrice = q.Price
			hv.MarketValue = q.Price * float64(h.Quantity)
			hv.UnrealizedPL = hv.MarketValue - h.AverageCost*float64(h.Quantity)
			view.TotalValue += hv.MarketValue
		} else {
			hv.PriceUnknown = true
		}
		view.Holdings = append(view.Holdings, hv)
	}
	return Ok(view)
}

// PortfolioValue marks holdings to market through the gateway like
// GetPortfolioTool does, and returns cash plus the total value of holdings.
// Unlike GetPortfolioTool, which leaves a holding without a quote out of
// total_value, it values such a holding at its average cost. Exposed so callers outside a tool invocation, such as a
// scheduled drawdown check, don't have to reimplement the mark-to-market
// walk.
func PortfolioValue(ctx context.Context, gw gatewayFetch, log zerolog.Logger, cash float64, holdings map[string]domain.Holding) float64 {
	total := cash
	for symbol, h := range holdings {
		res, err := gw.Fetch(ctx, symbol, gateway.KindQuote, false)
		if err != nil {
			total += h.AverageCost * float64(h.Quantity)
			log.Debug().Str("symbol", symbol).Err(err).Msg("quote unavailable for mark-to-market")
			continue
		}
		if q, ok := res.Payload.(gateway.Quote); ok {
			total += q.Price * float64(h.Quantity)
		} else {
			total += h.AverageCost * float64(h.Quantity)
		}
	}
	return total
}
