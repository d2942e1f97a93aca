// Package agent is the Agent Supervisor (§4.6) and Agent Manager (§4.7): a
// per-agent state machine owning the single in-flight Session, and a
// fleet-level registry of supervisors. Grounded on the teacher's
// scheduler.Scheduler (one cron-driven goroutine fed by registered jobs),
// generalized here from cron triggers to the start/stop/setMode/
// updateProfile command set §4.6 describes.
package agent

import (
	"context"
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

// Supervisor is the per-agent state machine from §4.6. Exactly one
// goroutine (runSession) executes on its behalf at a time; every exported
// method synchronizes through mu rather than sharing state with that
// goroutine directly.
type Supervisor struct {
	mu      sync.Mutex
	agentID string
	profile domain.AgentProfile
	state   domain.AgentRuntimeState

	repo   repository.Repository
	runner *session.Runner
	bus    *eventbus.Bus
	cfg    Config
	log    zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
	now    func() time.Time
}

func newSupervisor(profile domain.AgentProfile, state domain.AgentRuntimeState, repo repository.Repository, runner *session.Runner, bus *eventbus.Bus, cfg Config, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		agentID: profile.ID,
		profile: profile,
		state:   state,
		repo:    repo,
		runner:  runner,
		bus:     bus,
		cfg:     cfg,
		log:     log.With().Str("component", "supervisor").Str("agent_id", profile.ID).Logger(),
		now:     time.Now,
	}
}

// Snapshot returns a point-in-time copy of the runtime state, safe to hand
// to an API response.
func (s *Supervisor) Snapshot() domain.AgentRuntimeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Profile returns the current (possibly updated) profile.
func (s *Supervisor) Profile() domain.AgentProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Start allocates a new session and launches the runner asynchronously,
// returning immediately per §4.6's "synchronous ... launches the runner
// asynchronously, returns immediately." mode, if empty, keeps the agent's
// current mode.
func (s *Supervisor) Start(ctx context.Context, mode domain.Mode, turnBudget int, userMessage string) (string, error) {
	s.mu.Lock()
	if s.state.Status != domain.StatusIdle {
		s.mu.Unlock()
		return "", apperr.Conflict("agent is not idle")
	}
	if mode != "" {
		if !mode.Valid() {
			s.mu.Unlock()
			return "", apperr.Validation("mode", "unrecognized mode")
		}
		s.state.Mode = mode
	}
	if turnBudget <= 0 {
		turnBudget = s.cfg.DefaultTurnBudget
	}

	sessionID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state.Status = domain.StatusRunning
	s.state.LastActivityAt = s.now()

	profile := s.profile
	runtimeSnapshot := s.state.Clone()
	activeMode := s.state.Mode
	done := s.done
	s.mu.Unlock()

	s.publishStatus(domain.StatusRunning)

	go s.runSession(runCtx, done, sessionID, activeMode, turnBudget, userMessage, profile, runtimeSnapshot)

	return sessionID, nil
}

func (s *Supervisor) runSession(ctx context.Context, done chan struct{}, sessionID string, mode domain.Mode, turnBudget int, userMessage string, profile domain.AgentProfile, runtimeSnapshot domain.AgentRuntimeState) {
	defer close(done)

	changes, err := s.repo.ListStrategyChanges(ctx, profile.ID, repository.Page{})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to load strategy changes")
		changes = nil
	}

	initial := domain.Session{
		ID:        sessionID,
		AgentID:   profile.ID,
		Mode:      mode,
		StartedAt: s.now(),
		Status:    domain.SessionRunning,
	}
	if err := s.repo.InsertSession(ctx, initial); err != nil {
		s.log.Error().Err(err).Msg("failed to persist initial session record")
		s.finish(domain.StatusError)
		return
	}

	rec := s.runner.Run(ctx, session.RunInput{
		SessionID:       sessionID,
		AgentID:         profile.ID,
		Profile:         profile,
		RuntimeState:    runtimeSnapshot,
		Mode:            mode,
		StrategyChanges: changes,
		UserMessage:     userMessage,
		TurnBudget:      turnBudget,
		WallClockBudget: s.cfg.SessionWallClockBudget,
		ToolCallTimeout: s.cfg.ToolCallTimeout,
	})

	if err := s.repo.UpdateSession(context.Background(), rec); err != nil {
		s.log.Error().Err(err).Msg("failed to persist final session record")
	}

	// Tool calls during the session mutate cash/holdings via the repository
	// directly; refresh the in-memory snapshot from it rather than trusting
	// the pre-session copy handed to the runner.
	refreshed, err := s.repo.GetAgentRuntimeState(context.Background(), profile.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to refresh runtime state after session")
		s.finish(domain.StatusError)
		return
	}

	s.mu.Lock()
	refreshed.Status = domain.StatusIdle
	refreshed.Mode = s.state.Mode
	refreshed.LastActivityAt = s.now()
	s.state = refreshed
	_ = s.repo.UpdateAgentRuntimeState(context.Background(), s.state)
	s.mu.Unlock()

	s.publishStatus(domain.StatusIdle)
}

// finish transitions straight to StatusError without a clean session
// record, used when a repository fault (not a reasoner/tool fault) makes
// continuing unsafe.
func (s *Supervisor) finish(status domain.AgentStatus) {
	s.mu.Lock()
	s.state.Status = status
	s.mu.Unlock()
	s.publishStatus(status)
}

// Stop requests cancellation of any in-flight session and blocks until the
// agent reaches idle (or error), bounded by cfg.StopGrace. A no-op when
// already idle.
func (s *Supervisor) Stop(ctx context.Context) (domain.AgentStatus, error) {
	s.mu.Lock()
	switch s.state.Status {
	case domain.StatusIdle, domain.StatusError:
		status := s.state.Status
		s.mu.Unlock()
		return status, nil
	}
	s.state.Status = domain.StatusStopping
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	s.publishStatus(domain.StatusStopping)
	if cancel != nil {
		cancel()
	}

	grace := s.cfg.StopGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		s.log.Warn().Msg("stop grace timeout elapsed; session is being hard-cancelled")
		select {
		case <-done:
		case <-time.After(time.Second):
			// The runner did not finalize within the extra grace second;
			// force the supervisor back to idle so it is not stuck
			// forever, annotating the loss in the log.
			s.log.Error().Msg("runner did not finalize after hard cancellation; forcing idle")
			s.mu.Lock()
			s.state.Status = domain.StatusIdle
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	status := s.state.Status
	s.mu.Unlock()
	return status, nil
}

// SetMode changes the agent's mode. Only legal while idle, per §4.4's "Mode
// switch is atomic relative to a Session ... may only occur between
// Sessions."
func (s *Supervisor) SetMode(mode domain.Mode) error {
	if !mode.Valid() {
		return apperr.Validation("mode", "unrecognized mode")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusIdle {
		return apperr.Conflict("mode change rejected: session is active")
	}
	s.state.Mode = mode
	return nil
}

// ProfileUpdate is the subset of AgentProfile fields §3 allows changing
// after creation.
type ProfileUpdate struct {
	Description            *string
	Instructions           *string
	Preferences            *domain.InvestmentPreferences
	RiskTolerance          *float64
	EnabledTools           map[string]bool
	StrategyAdjustCriteria *string
}

// UpdateProfile applies upd to the profile. Every ProfileUpdate field
// (Description, Instructions, Preferences, RiskTolerance, EnabledTools,
// StrategyAdjustCriteria) feeds the composed instructions, so the whole
// call is rejected with a conflict unless the agent is idle. AgentProfile's
// identity fields are immutable and never appear in ProfileUpdate.
func (s *Supervisor) UpdateProfile(upd ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status != domain.StatusIdle {
		return apperr.Conflict("profile update rejected: session is active")
	}
	if upd.Description != nil {
		s.profile.Description = *upd.Description
	}
	if upd.Instructions != nil {
		s.profile.Instructions = *upd.Instructions
	}
	if upd.Preferences != nil {
		s.profile.Preferences = *upd.Preferences
	}
	if upd.RiskTolerance != nil {
		s.profile.RiskTolerance = *upd.RiskTolerance
	}
	if upd.EnabledTools != nil {
		s.profile.EnabledTools = upd.EnabledTools
	}
	if upd.StrategyAdjustCriteria != nil {
		s.profile.StrategyAdjustCriteria = *upd.StrategyAdjustCriteria
	}
	return nil
}

func (s *Supervisor) publishStatus(status domain.AgentStatus) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{
		Type:    eventbus.AgentStatusChanged,
		AgentID: s.agentID,
		Payload: map[string]interface{}{"status": string(status)},
	})
}
