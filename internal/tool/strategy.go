package tool

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
)

// strategyRepo is the narrow repository surface record_strategy_change needs.
type strategyRepo interface {
	InsertStrategyChange(ctx context.Context, c domain.StrategyChange) (int64, error)
}

type strategyChangeInput struct {
	TriggerKind   string  `json:"trigger_kind" jsonschema:"required,enum=manual,enum=auto_performance,enum=auto_market,enum=auto_time,enum=scheduled"`
	TriggerReason string  `json:"trigger_reason" jsonschema:"required"`
	Addition      string  `json:"addition" jsonschema:"required,description=Text appended to the agent's composed instructions"`
	Summary       string  `json:"summary" jsonschema:"required"`
	Explanation   string  `json:"explanation,omitempty" jsonschema:"description=The reasoner's own explanation for the change"`
	PortfolioValue float64 `json:"portfolio_value,omitempty"`
	CashRatio      float64 `json:"cash_ratio,omitempty"`
	UnrealizedPL   float64 `json:"unrealized_pl,omitempty"`
	TradeCount     int     `json:"trade_count,omitempty"`
}

type strategyChangeResult struct {
	ID int64 `json:"id"`
}

// RecordStrategyChangeTool appends an audit record that extends an agent's
// composed instructions. It is the only write tool available outside a
// TRADING/REBALANCING session (STRATEGY_REVIEW, and direct invocation from
// an auto-adjust trigger per §4.6).
type RecordStrategyChangeTool struct {
	repo strategyRepo
	log  zerolog.Logger
	now  func() time.Time
}

func NewRecordStrategyChangeTool(repo strategyRepo, log zerolog.Logger) *RecordStrategyChangeTool {
	return &RecordStrategyChangeTool{repo: repo, log: log.With().Str("component", "tool.record_strategy_change").Logger(), now: time.Now}
}

func (t *RecordStrategyChangeTool) Name() string        { return "record_strategy_change" }
func (t *RecordStrategyChangeTool) Description() string { return "Appends a strategy-change record to the agent's audit log and instruction history." }
func (t *RecordStrategyChangeTool) SideEffect() SideEffect { return WriteStrategyChange }
func (t *RecordStrategyChangeTool) InputSchema() *jsonschema.Schema { return SchemaFor(strategyChangeInput{}) }

func (t *RecordStrategyChangeTool) Execute(ctx context.Context, raw json.RawMessage) Result {
	var in strategyChangeInput
	if err := decode(raw, &in); err != nil {
		return Err(err)
	}
	agentID := AgentIDFromContext(ctx)
	if agentID == "" {
		return Err(apperr.New(apperr.KindInternal, "no agent scope on context"))
	}
	kind := domain.TriggerKind(in.TriggerKind)
	switch kind {
	case domain.TriggerManual, domain.TriggerAutoPerformance, domain.TriggerAutoMarket, domain.TriggerAutoTime, domain.TriggerScheduled:
	default:
		return Err(apperr.Validation("trigger_kind", "unrecognized trigger kind"))
	}

	change := domain.StrategyChange{
		AgentID:       agentID,
		CreatedAt:     t.now(),
		TriggerKind:   kind,
		TriggerReason: in.TriggerReason,
		Addition:      in.Addition,
		Summary:       in.Summary,
		Explanation:   in.Explanation,
		Performance: domain.PerformanceSnapshot{
			PortfolioValue: in.PortfolioValue,
			CashRatio:      in.CashRatio,
			UnrealizedPL:   in.UnrealizedPL,
			TradeCount:     in.TradeCount,
		},
		Applied: true,
	}

	id, err := t.repo.InsertStrategyChange(ctx, change)
	if err != nil {
		return Err(err)
	}
	t.log.Info().Str("agent_id", agentID).Str("trigger_kind", in.TriggerKind).Msg("strategy change recorded")
	return Ok(strategyChangeResult{ID: id})
}
