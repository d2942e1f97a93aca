package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sacahan/casualtrader-go/internal/agent"
	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/repository"
)

// createAgentRequest mirrors the subset of domain.AgentProfile a caller may
// set at creation time; identity fields (ID, CreatedAt) are always assigned
// by the Manager.
type createAgentRequest struct {
	Name                   string                       `json:"name"`
	Description            string                       `json:"description"`
	AIModel                string                       `json:"ai_model"`
	InitialFunds           float64                      `json:"initial_funds"`
	MaxTurns               int                          `json:"max_turns"`
	RiskTolerance          float64                      `json:"risk_tolerance"`
	EnabledTools           map[string]bool              `json:"enabled_tools"`
	Preferences            domain.InvestmentPreferences `json:"preferences"`
	Instructions           string                       `json:"instructions"`
	StrategyAdjustCriteria string                       `json:"strategy_adjust_criteria"`
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.log, w, apperr.Validation("body", "malformed JSON"))
		return
	}

	profile := domain.AgentProfile{
		Name:                   req.Name,
		Description:            req.Description,
		AIModel:                req.AIModel,
		InitialFunds:           req.InitialFunds,
		MaxTurns:               req.MaxTurns,
		RiskTolerance:          req.RiskTolerance,
		EnabledTools:           req.EnabledTools,
		Preferences:            req.Preferences,
		Instructions:           req.Instructions,
		StrategyAdjustCriteria: req.StrategyAdjustCriteria,
	}

	id, err := s.manager.Create(r.Context(), profile)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.Get(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Delete(r.Context(), chi.URLParam(r, "agentID")); err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// updateAgentRequest is the §3 "changeable after creation" subset: every
// field is a pointer so an absent key leaves the current value untouched.
type updateAgentRequest struct {
	Description            *string                       `json:"description"`
	Instructions           *string                       `json:"instructions"`
	Preferences            *domain.InvestmentPreferences `json:"preferences"`
	RiskTolerance          *float64                      `json:"risk_tolerance"`
	EnabledTools           map[string]bool               `json:"enabled_tools"`
	StrategyAdjustCriteria *string                       `json:"strategy_adjust_criteria"`
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var req updateAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.log, w, apperr.Validation("body", "malformed JSON"))
		return
	}

	upd := agent.ProfileUpdate{
		Description:            req.Description,
		Instructions:           req.Instructions,
		Preferences:            req.Preferences,
		RiskTolerance:          req.RiskTolerance,
		EnabledTools:           req.EnabledTools,
		StrategyAdjustCriteria: req.StrategyAdjustCriteria,
	}
	if err := s.manager.UpdateAgentProfile(r.Context(), chi.URLParam(r, "agentID"), upd); err != nil {
		writeError(s.log, w, err)
		return
	}
	view, err := s.manager.Get(chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type startAgentRequest struct {
	Mode        domain.Mode `json:"mode"`
	TurnBudget  int         `json:"turn_budget"`
	UserMessage string      `json:"user_message"`
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	var req startAgentRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(s.log, w, apperr.Validation("body", "malformed JSON"))
			return
		}
	}
	sessionID, err := s.manager.StartAgent(r.Context(), chi.URLParam(r, "agentID"), req.Mode, req.TurnBudget, req.UserMessage)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"session_id": sessionID})
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	status, err := s.manager.StopAgent(r.Context(), chi.URLParam(r, "agentID"))
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

type setModeRequest struct {
	Mode domain.Mode `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req setModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.log, w, apperr.Validation("body", "malformed JSON"))
		return
	}
	if err := s.manager.SetAgentMode(chi.URLParam(r, "agentID"), req.Mode); err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(req.Mode)})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, err := s.manager.Get(agentID); err != nil {
		writeError(s.log, w, err)
		return
	}
	state, err := s.repo.GetAgentRuntimeState(r.Context(), agentID)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	page := pageFrom(r)
	txs, err := s.repo.ListTransactions(r.Context(), agentID, "", page)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	page := pageFrom(r)
	changes, err := s.repo.ListStrategyChanges(r.Context(), agentID, page)
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	sessionID := chi.URLParam(r, "sessionID")

	sessions, err := s.repo.ListSessions(r.Context(), agentID, repository.Page{})
	if err != nil {
		writeError(s.log, w, err)
		return
	}
	for _, sess := range sessions {
		if sess.ID == sessionID {
			writeJSON(w, http.StatusOK, sess)
			return
		}
	}
	writeError(s.log, w, apperr.NotFound("session not found"))
}
