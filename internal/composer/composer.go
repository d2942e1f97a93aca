// Package composer deterministically renders an agent's immutable profile
// and accumulated strategy-change log into the single instruction string
// the reasoner consumes. Compose is a pure function: no clock, no I/O, no
// hidden state — the same inputs always produce the same byte-identical
// output, the way the teacher's pkg/formulas functions are pure over their
// numeric inputs, generalized here to string rendering.
package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sacahan/casualtrader-go/internal/domain"
)

// Compose renders profile and changes (assumed already in insertion order)
// into the instruction string handed to the reasoner. Missing optional
// fields omit their section entirely rather than injecting placeholder
// text, per §4.3's contract.
func Compose(profile domain.AgentProfile, changes []domain.StrategyChange) string {
	var b strings.Builder

	writeSection(&b, "IDENTITY", identitySection(profile))
	writeSection(&b, "MODE RESPONSIBILITIES", modeResponsibilitiesSection())
	if tools := enabledToolsSection(profile); tools != "" {
		writeSection(&b, "ENABLED TOOLS", tools)
	}
	if prefs := preferencesSection(profile); prefs != "" {
		writeSection(&b, "INVESTMENT PREFERENCES", prefs)
	}
	writeSection(&b, "RISK TOLERANCE", riskSection(profile))
	if strings.TrimSpace(profile.Instructions) != "" {
		writeSection(&b, "CUSTOM INSTRUCTIONS", profile.Instructions)
	}
	if strings.TrimSpace(profile.StrategyAdjustCriteria) != "" {
		writeSection(&b, "STRATEGY ADJUSTMENT CRITERIA", profile.StrategyAdjustCriteria)
	}
	if len(changes) > 0 {
		writeSection(&b, "STRATEGY EVOLUTION LOG", evolutionLogSection(changes))
	}

	return b.String()
}

func writeSection(b *strings.Builder, title, body string) {
	if b.Len() > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
}

func identitySection(p domain.AgentProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	if strings.TrimSpace(p.Description) != "" {
		fmt.Fprintf(&b, "Description: %s\n", p.Description)
	}
	fmt.Fprintf(&b, "Model: %s\n", p.AIModel)
	fmt.Fprintf(&b, "Initial funds: %.2f\n", p.InitialFunds)
	fmt.Fprintf(&b, "Max turns per session: %d", p.MaxTurns)
	return b.String()
}

func modeResponsibilitiesSection() string {
	return strings.Join([]string{
		"- OBSERVATION: read market data and portfolio state only; no writes.",
		"- TRADING: full read access plus simulated buy/sell and strategy-change recording.",
		"- REBALANCING: full read access and strategy-change recording, but no new simulated trades; fundamental and sentiment analyses are unavailable.",
		"- STRATEGY_REVIEW: read-only across market, portfolio, and the strategy-change log; only strategy-change recording is a write.",
	}, "\n")
}

func enabledToolsSection(p domain.AgentProfile) string {
	names := make([]string, 0, len(p.EnabledTools))
	for name, enabled := range p.EnabledTools {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return strings.Join(names, ", ")
}

func preferencesSection(p domain.AgentProfile) string {
	prefs := p.Preferences
	var lines []string
	if len(prefs.AllowedSectors) > 0 {
		lines = append(lines, "Allowed sectors: "+strings.Join(prefs.AllowedSectors, ", "))
	}
	if len(prefs.DeniedSectors) > 0 {
		lines = append(lines, "Denied sectors: "+strings.Join(prefs.DeniedSectors, ", "))
	}
	if prefs.MaxPositionWeight > 0 {
		lines = append(lines, fmt.Sprintf("Maximum position weight: %.0f%% of portfolio value", prefs.MaxPositionWeight*100))
	}
	if strings.TrimSpace(prefs.RebalanceCadence) != "" {
		lines = append(lines, "Rebalance cadence: "+prefs.RebalanceCadence)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func riskSection(p domain.AgentProfile) string {
	band := domain.BandRiskTolerance(p.RiskTolerance)
	return fmt.Sprintf("Tolerance: %.2f (%s)", p.RiskTolerance, band)
}

func evolutionLogSection(changes []domain.StrategyChange) string {
	var b strings.Builder
	for i, c := range changes {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%s] (%s) %s\n%s",
			c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
			c.TriggerReason,
			c.Summary,
			c.Addition,
		)
	}
	return b.String()
}
