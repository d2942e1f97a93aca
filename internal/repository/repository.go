// Package repository defines the injected persistence port every other
// component depends on through an interface, never a concrete driver.
// internal/repository/sqlite provides the reference implementation.
package repository

import (
	"context"

	"github.com/sacahan/casualtrader-go/internal/domain"
)

// Page bounds a list query, per the specification's "all reads accept
// bounded limit/offset pagination."
type Page struct {
	Limit  int
	Offset int
}

// Repository is the minimum persistence surface the core depends on.
// Concrete implementations decide storage technology; callers never see it.
type Repository interface {
	// Agent profiles
	InsertAgentProfile(ctx context.Context, p domain.AgentProfile) error
	GetAgentProfile(ctx context.Context, id string) (domain.AgentProfile, error)
	ListAgentProfiles(ctx context.Context, page Page) ([]domain.AgentProfile, error)
	UpdateAgentProfile(ctx context.Context, p domain.AgentProfile) error
	DeleteAgentProfile(ctx context.Context, id string) error

	// Runtime state
	GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error)
	UpdateAgentRuntimeState(ctx context.Context, s domain.AgentRuntimeState) error

	// Strategy changes (append-only)
	InsertStrategyChange(ctx context.Context, c domain.StrategyChange) (int64, error)
	ListStrategyChanges(ctx context.Context, agentID string, page Page) ([]domain.StrategyChange, error)

	// Sessions
	InsertSession(ctx context.Context, s domain.Session) error
	UpdateSession(ctx context.Context, s domain.Session) error
	ListSessions(ctx context.Context, agentID string, page Page) ([]domain.Session, error)

	// Transactions
	InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error)
	ListTransactions(ctx context.Context, agentID, sessionID string, page Page) ([]domain.Transaction, error)
	CountTransactionsOn(ctx context.Context, agentID string, day string) (int, error)

	// Holdings
	UpsertHolding(ctx context.Context, agentID string, h domain.Holding) error
	ListHoldings(ctx context.Context, agentID string) ([]domain.Holding, error)
	DeleteHolding(ctx context.Context, agentID, symbol string) error
}
