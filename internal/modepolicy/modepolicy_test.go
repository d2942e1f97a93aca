package modepolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sacahan/casualtrader-go/internal/domain"
)

func TestFor_TradingIsTheSuperset(t *testing.T) {
	mask := For(domain.ModeTrading)
	for _, name := range []string{
		ToolGetStockPrice, ToolSimulateBuy, ToolSimulateSell, ToolRecordStrategyChange,
		ToolAnalyzeFundamentals, ToolAnalyzeSentiment,
	} {
		assert.True(t, mask[name], "expected %s visible in TRADING", name)
	}
}

func TestFor_ObservationMasksOutEveryWriteTool(t *testing.T) {
	mask := For(domain.ModeObservation)
	for _, name := range []string{ToolSimulateBuy, ToolSimulateSell, ToolRecordStrategyChange} {
		assert.False(t, mask[name], "expected %s masked out of OBSERVATION", name)
	}
	assert.True(t, mask[ToolGetStockPrice])
}

func TestFor_RebalancingDropsSimulatedTradesAndSomeAnalyses(t *testing.T) {
	mask := For(domain.ModeRebalancing)
	assert.False(t, mask[ToolSimulateBuy])
	assert.False(t, mask[ToolSimulateSell])
	assert.False(t, mask[ToolAnalyzeFundamentals])
	assert.False(t, mask[ToolAnalyzeSentiment])
	assert.True(t, mask[ToolRecordStrategyChange])
}

func TestFor_StrategyReviewAllowsRecordButNotTrades(t *testing.T) {
	mask := For(domain.ModeStrategyReview)
	assert.False(t, mask[ToolSimulateBuy])
	assert.False(t, mask[ToolSimulateSell])
	assert.True(t, mask[ToolRecordStrategyChange])
	assert.True(t, mask[ToolAnalyzeFundamentals])
}

func TestFor_UnrecognizedModeReturnsNil(t *testing.T) {
	mask := For(domain.Mode("NOT_A_MODE"))
	assert.Nil(t, mask)
}

func TestMasks_NeverDriftFromTradingSuperset(t *testing.T) {
	superset := For(domain.ModeTrading)
	for mode, mask := range Masks {
		for name := range mask {
			assert.True(t, superset[name], "mode %s exposes %s not present in TRADING superset", mode, name)
		}
	}
}
