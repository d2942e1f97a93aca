// Package memory is a hand-written in-memory repository.Repository fake,
// in the teacher's mock-struct testing style (see
// trader-go/internal/modules/cash_flows/handlers_test.go's MockTradernetClient)
// rather than a generated or reflection-based mock. Used throughout this
// module's tests so they never touch sqlite.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/repository"
)

// Store is an in-memory Repository, safe for concurrent use.
type Store struct {
	mu sync.Mutex

	profiles  map[string]domain.AgentProfile
	runtime   map[string]domain.AgentRuntimeState
	changes   map[string][]domain.StrategyChange
	sessions  map[string]domain.Session
	sessOrder map[string][]string // agentID -> session IDs in insertion order
	txs       []domain.Transaction
	holdings  map[string]map[string]domain.Holding // agentID -> symbol -> holding
}

// New builds an empty in-memory store.
func New() *Store {
	return &Store{
		profiles:  make(map[string]domain.AgentProfile),
		runtime:   make(map[string]domain.AgentRuntimeState),
		changes:   make(map[string][]domain.StrategyChange),
		sessions:  make(map[string]domain.Session),
		sessOrder: make(map[string][]string),
		holdings:  make(map[string]map[string]domain.Holding),
	}
}

var _ repository.Repository = (*Store)(nil)

func paginate[T any](items []T, p repository.Page) []T {
	if p.Offset >= len(items) {
		return nil
	}
	end := len(items)
	if p.Limit > 0 && p.Offset+p.Limit < end {
		end = p.Offset + p.Limit
	}
	return items[p.Offset:end]
}

func (s *Store) InsertAgentProfile(ctx context.Context, p domain.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.profiles[p.ID]; exists {
		return apperr.Conflict("agent profile already exists")
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetAgentProfile(ctx context.Context, id string) (domain.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return p, apperr.NotFound("agent profile not found").WithField("id")
	}
	return p, nil
}

func (s *Store) ListAgentProfiles(ctx context.Context, page repository.Page) ([]domain.AgentProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.AgentProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, page), nil
}

func (s *Store) UpdateAgentProfile(ctx context.Context, p domain.AgentProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; !ok {
		return apperr.NotFound("agent profile not found").WithField("id")
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) DeleteAgentProfile(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return nil
}

func (s *Store) GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.runtime[agentID]
	if !ok {
		return st, apperr.NotFound("runtime state not found").WithField("agent_id")
	}
	return st.Clone(), nil
}

func (s *Store) UpdateAgentRuntimeState(ctx context.Context, st domain.AgentRuntimeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runtime[st.AgentID] = st.Clone()
	return nil
}

func (s *Store) InsertStrategyChange(ctx context.Context, c domain.StrategyChange) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = int64(len(s.changes[c.AgentID]) + 1)
	s.changes[c.AgentID] = append(s.changes[c.AgentID], c)
	return c.ID, nil
}

func (s *Store) ListStrategyChanges(ctx context.Context, agentID string, page repository.Page) ([]domain.StrategyChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return paginate(append([]domain.StrategyChange(nil), s.changes[agentID]...), page), nil
}

func (s *Store) InsertSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	s.sessOrder[sess.AgentID] = append(s.sessOrder[sess.AgentID], sess.ID)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return apperr.NotFound("session not found").WithField("id")
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) ListSessions(ctx context.Context, agentID string, page repository.Page) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.sessOrder[agentID]
	out := make([]domain.Session, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // most recent first
		out = append(out, s.sessions[ids[i]])
	}
	return paginate(out, page), nil
}

func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = int64(len(s.txs) + 1)
	s.txs = append(s.txs, t)
	return t.ID, nil
}

func (s *Store) ListTransactions(ctx context.Context, agentID, sessionID string, page repository.Page) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.Transaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		t := s.txs[i]
		if t.AgentID != agentID {
			continue
		}
		if sessionID != "" && t.SessionID != sessionID {
			continue
		}
		matched = append(matched, t)
	}
	return paginate(matched, page), nil
}

func (s *Store) CountTransactionsOn(ctx context.Context, agentID string, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, t := range s.txs {
		if t.AgentID == agentID && t.ExecutedAt.Format("2006-01-02") == day {
			count++
		}
	}
	return count, nil
}

func (s *Store) UpsertHolding(ctx context.Context, agentID string, h domain.Holding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holdings[agentID] == nil {
		s.holdings[agentID] = make(map[string]domain.Holding)
	}
	s.holdings[agentID][h.Symbol] = h
	return nil
}

func (s *Store) ListHoldings(ctx context.Context, agentID string) ([]domain.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Holding, 0, len(s.holdings[agentID]))
	for _, h := range s.holdings[agentID] {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) DeleteHolding(ctx context.Context, agentID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdings[agentID], symbol)
	return nil
}
