package composer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sacahan/casualtrader-go/internal/domain"
)

func baseProfile() domain.AgentProfile {
	return domain.AgentProfile{
		ID:            "agent-1",
		Name:          "Momentum Scout",
		Description:   "Chases short-term TWSE momentum.",
		RiskTolerance: 0.8,
		EnabledTools:  map[string]bool{"get_stock_price": true, "simulate_buy": true},
		Preferences: domain.InvestmentPreferences{
			AllowedSectors:    []string{"Semiconductors"},
			MaxPositionWeight: 0.2,
			RebalanceCadence:  "weekly",
		},
	}
}

func TestCompose_IncludesIdentityAndTools(t *testing.T) {
	out := Compose(baseProfile(), nil)
	assert.Contains(t, out, "Momentum Scout")
	assert.Contains(t, out, "Chases short-term TWSE momentum.")
	assert.Contains(t, out, "get_stock_price")
	assert.Contains(t, out, "simulate_buy")
	assert.Contains(t, out, "high") // RiskTolerance 0.8 bands to high
}

func TestCompose_OmitsOptionalSectionsWhenEmpty(t *testing.T) {
	out := Compose(baseProfile(), nil)
	assert.NotContains(t, out, "CUSTOM INSTRUCTIONS")
	assert.NotContains(t, out, "STRATEGY EVOLUTION LOG")
}

func TestCompose_IncludesOptionalSectionsWhenPresent(t *testing.T) {
	p := baseProfile()
	p.Instructions = "Never hold overnight."
	p.StrategyAdjustCriteria = "Review weekly or after a 10% drawdown."

	changes := []domain.StrategyChange{
		{
			CreatedAt:     time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC),
			TriggerKind:   domain.TriggerAutoTime,
			TriggerReason: "weekly cadence elapsed",
			Summary:       "Trimmed semiconductor overweight",
			Addition:      "Reduce 2330 position below 15% of portfolio.",
		},
	}

	out := Compose(p, changes)
	assert.Contains(t, out, "CUSTOM INSTRUCTIONS")
	assert.Contains(t, out, "Never hold overnight.")
	assert.Contains(t, out, "STRATEGY ADJUSTMENT CRITERIA")
	assert.Contains(t, out, "Review weekly or after a 10% drawdown.")
	assert.Contains(t, out, "STRATEGY EVOLUTION LOG")
	assert.Contains(t, out, "Trimmed semiconductor overweight")
	assert.Contains(t, out, "Reduce 2330 position below 15% of portfolio.")
}

func TestCompose_Deterministic(t *testing.T) {
	p := baseProfile()
	assert.Equal(t, Compose(p, nil), Compose(p, nil))
}
