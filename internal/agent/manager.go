package agent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/eventbus"
	"github.com/sacahan/casualtrader-go/internal/repository"
	"github.com/sacahan/casualtrader-go/internal/session"
)

// View is the fleet-facing snapshot the HTTP surface reads: a profile plus
// its current runtime state, per §4.7's "snapshot views ... include
// runtime state."
type View struct {
	Profile domain.AgentProfile
	State   domain.AgentRuntimeState
}

// Manager is the fleet registry from §4.7: create/destroy supervisors,
// list/query agents, dispatch requests, and fan out events. Grounded on the
// teacher's repository-map pattern, generalized from an embeddable base
// repository into a registry of live Supervisors. There is no cross-agent
// locking beyond the registry map itself — each Supervisor serializes its
// own agent's execution independently (§4.7 "Concurrency").
type Manager struct {
	mu          sync.RWMutex
	supervisors map[string]*Supervisor

	repo   repository.Repository
	runner *session.Runner
	bus    *eventbus.Bus
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// New builds an empty Manager.
func New(repo repository.Repository, runner *session.Runner, bus *eventbus.Bus, cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		supervisors: make(map[string]*Supervisor),
		repo:        repo,
		runner:      runner,
		bus:         bus,
		cfg:         cfg,
		log:         log.With().Str("component", "agent_manager").Logger(),
		now:         time.Now,
	}
}

// Create persists profile (assigning an id and CreatedAt if unset) and
// constructs a supervisor in the idle state.
func (m *Manager) Create(ctx context.Context, profile domain.AgentProfile) (string, error) {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = m.now()
	}
	if err := validateProfile(profile); err != nil {
		return "", err
	}

	if err := m.repo.InsertAgentProfile(ctx, profile); err != nil {
		return "", err
	}

	state := domain.AgentRuntimeState{
		AgentID:        profile.ID,
		Mode:           domain.ModeObservation,
		Status:         domain.StatusIdle,
		Cash:           profile.InitialFunds,
		Holdings:       make(map[string]domain.Holding),
		LastActivityAt: m.now(),
	}
	if err := m.repo.UpdateAgentRuntimeState(ctx, state); err != nil {
		return "", err
	}

	sup := newSupervisor(profile, state, m.repo, m.runner, m.bus, m.cfg, m.log)

	m.mu.Lock()
	m.supervisors[profile.ID] = sup
	m.mu.Unlock()

	m.publish(eventbus.AgentCreated, profile.ID, nil)
	return profile.ID, nil
}

func validateProfile(p domain.AgentProfile) error {
	if p.Name == "" {
		return apperr.Validation("name", "name is required")
	}
	if p.InitialFunds <= 0 {
		return apperr.Validation("initial_funds", "initial funds must be positive")
	}
	if p.MaxTurns <= 0 {
		return apperr.Validation("max_turns", "max turns must be positive")
	}
	if p.RiskTolerance < 0 || p.RiskTolerance > 1 {
		return apperr.Validation("risk_tolerance", "risk tolerance must be in [0,1]")
	}
	return nil
}

// Delete stops (bounded) and removes the supervisor. Profile and history
// are retained in the repository per §4.7.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sup, err := m.get(id)
	if err != nil {
		return err
	}
	_, _ = sup.Stop(ctx)

	m.mu.Lock()
	delete(m.supervisors, id)
	m.mu.Unlock()

	m.publish(eventbus.AgentDeleted, id, nil)
	return nil
}

// Get returns a snapshot view of one agent.
func (m *Manager) Get(id string) (View, error) {
	sup, err := m.get(id)
	if err != nil {
		return View{}, err
	}
	return View{Profile: sup.Profile(), State: sup.Snapshot()}, nil
}

// List returns a snapshot view of every agent, ordered by id for stable
// pagination-free listing.
func (m *Manager) List() []View {
	m.mu.RLock()
	sups := make([]*Supervisor, 0, len(m.supervisors))
	for _, s := range m.supervisors {
		sups = append(sups, s)
	}
	m.mu.RUnlock()

	views := make([]View, len(sups))
	for i, s := range sups {
		views[i] = View{Profile: s.Profile(), State: s.Snapshot()}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Profile.ID < views[j].Profile.ID })
	return views
}

func (m *Manager) get(id string) (*Supervisor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sup, ok := m.supervisors[id]
	if !ok {
		return nil, apperr.NotFound("agent not found").WithField("id")
	}
	return sup, nil
}

// StartAgent dispatches a start request to agent id's supervisor.
func (m *Manager) StartAgent(ctx context.Context, id string, mode domain.Mode, turnBudget int, userMessage string) (string, error) {
	sup, err := m.get(id)
	if err != nil {
		return "", err
	}
	return sup.Start(ctx, mode, turnBudget, userMessage)
}

// StopAgent dispatches a stop request to agent id's supervisor.
func (m *Manager) StopAgent(ctx context.Context, id string) (domain.AgentStatus, error) {
	sup, err := m.get(id)
	if err != nil {
		return "", err
	}
	return sup.Stop(ctx)
}

// SetAgentMode dispatches a mode change to agent id's supervisor.
func (m *Manager) SetAgentMode(id string, mode domain.Mode) error {
	sup, err := m.get(id)
	if err != nil {
		return err
	}
	return sup.SetMode(mode)
}

// UpdateAgentProfile dispatches a profile update to agent id's supervisor,
// persisting the result.
func (m *Manager) UpdateAgentProfile(ctx context.Context, id string, upd ProfileUpdate) error {
	sup, err := m.get(id)
	if err != nil {
		return err
	}
	if err := sup.UpdateProfile(upd); err != nil {
		return err
	}
	return m.repo.UpdateAgentProfile(ctx, sup.Profile())
}

// Subscribe exposes the shared event bus subscription, per §4.7.
func (m *Manager) Subscribe() (<-chan eventbus.Event, func()) {
	return m.bus.Subscribe()
}

func (m *Manager) publish(t eventbus.Type, agentID string, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: t, AgentID: agentID, Payload: payload})
}
