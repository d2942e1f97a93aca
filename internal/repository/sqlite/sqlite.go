// Package sqlite is the reference Repository implementation, built on the
// same modernc.org/sqlite driver and database/sql wrapper
// (internal/database.DB) the teacher uses, extended with the schema and
// queries this system's domain actually needs.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/database"
	"github.com/sacahan/casualtrader-go/internal/domain"
	"github.com/sacahan/casualtrader-go/internal/repository"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_profiles (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	ai_model TEXT,
	initial_funds REAL,
	max_turns INTEGER,
	risk_tolerance REAL,
	enabled_tools TEXT,
	preferences TEXT,
	instructions TEXT,
	strategy_adjust_criteria TEXT,
	created_at TEXT
);

CREATE TABLE IF NOT EXISTS agent_runtime_state (
	agent_id TEXT PRIMARY KEY,
	mode TEXT,
	status TEXT,
	cash REAL,
	holdings TEXT,
	last_activity_at TEXT
);

CREATE TABLE IF NOT EXISTS strategy_changes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	created_at TEXT,
	trigger_kind TEXT,
	trigger_reason TEXT,
	addition TEXT,
	summary TEXT,
	explanation TEXT,
	performance TEXT,
	applied INTEGER
);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	mode TEXT,
	started_at TEXT,
	ended_at TEXT,
	status TEXT,
	turns INTEGER,
	final_output TEXT,
	invocations TEXT,
	error TEXT
);

CREATE TABLE IF NOT EXISTS transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	agent_id TEXT NOT NULL,
	session_id TEXT,
	symbol TEXT,
	side TEXT,
	quantity INTEGER,
	price REAL,
	notional REAL,
	fee REAL,
	tax REAL,
	status TEXT,
	decision_reason TEXT,
	executed_at TEXT
);

CREATE TABLE IF NOT EXISTS holdings (
	agent_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	quantity INTEGER,
	average_cost REAL,
	PRIMARY KEY (agent_id, symbol)
);

CREATE INDEX IF NOT EXISTS idx_strategy_changes_agent ON strategy_changes(agent_id);
CREATE INDEX IF NOT EXISTS idx_sessions_agent ON sessions(agent_id);
CREATE INDEX IF NOT EXISTS idx_transactions_agent_session ON transactions(agent_id, session_id);
`

// Store is the sqlite-backed repository.Repository implementation.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// Open connects to path and applies the schema, returning a ready Store.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := database.New(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db, log: log.With().Str("component", "sqlite_repository").Logger()}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

var _ repository.Repository = (*Store)(nil)

func applyPage(p repository.Page) (limit, offset int) {
	limit = p.Limit
	if limit <= 0 {
		limit = 100
	}
	return limit, p.Offset
}

// --- Agent profiles ---

func (s *Store) InsertAgentProfile(ctx context.Context, p domain.AgentProfile) error {
	tools, _ := json.Marshal(p.EnabledTools)
	prefs, _ := json.Marshal(p.Preferences)
	_, err := s.db.Exec(
		`INSERT INTO agent_profiles (id, name, description, ai_model, initial_funds, max_turns,
			risk_tolerance, enabled_tools, preferences, instructions, strategy_adjust_criteria, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.Description, p.AIModel, p.InitialFunds, p.MaxTurns, p.RiskTolerance,
		string(tools), string(prefs), p.Instructions, p.StrategyAdjustCriteria, p.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "insert agent profile", err)
	}
	return nil
}

func scanAgentProfile(row interface{ Scan(...interface{}) error }) (domain.AgentProfile, error) {
	var p domain.AgentProfile
	var tools, prefs, createdAt string
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.AIModel, &p.InitialFunds, &p.MaxTurns,
		&p.RiskTolerance, &tools, &prefs, &p.Instructions, &p.StrategyAdjustCriteria, &createdAt); err != nil {
		return p, err
	}
	_ = json.Unmarshal([]byte(tools), &p.EnabledTools)
	_ = json.Unmarshal([]byte(prefs), &p.Preferences)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return p, nil
}

func (s *Store) GetAgentProfile(ctx context.Context, id string) (domain.AgentProfile, error) {
	row := s.db.QueryRow(`SELECT id, name, description, ai_model, initial_funds, max_turns,
		risk_tolerance, enabled_tools, preferences, instructions, strategy_adjust_criteria, created_at
		FROM agent_profiles WHERE id = ?`, id)
	p, err := scanAgentProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, apperr.NotFound("agent profile not found").WithField("id")
	}
	if err != nil {
		return p, apperr.Wrap(apperr.KindInternal, "get agent profile", err)
	}
	return p, nil
}

func (s *Store) ListAgentProfiles(ctx context.Context, page repository.Page) ([]domain.AgentProfile, error) {
	limit, offset := applyPage(page)
	rows, err := s.db.Query(`SELECT id, name, description, ai_model, initial_funds, max_turns,
		risk_tolerance, enabled_tools, preferences, instructions, strategy_adjust_criteria, created_at
		FROM agent_profiles ORDER BY created_at LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list agent profiles", err)
	}
	defer rows.Close()

	var out []domain.AgentProfile
	for rows.Next() {
		p, err := scanAgentProfile(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan agent profile", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAgentProfile(ctx context.Context, p domain.AgentProfile) error {
	tools, _ := json.Marshal(p.EnabledTools)
	prefs, _ := json.Marshal(p.Preferences)
	res, err := s.db.Exec(`UPDATE agent_profiles SET description=?, preferences=?, risk_tolerance=?,
		enabled_tools=?, instructions=?, strategy_adjust_criteria=? WHERE id=?`,
		p.Description, string(prefs), p.RiskTolerance, string(tools), p.Instructions, p.StrategyAdjustCriteria, p.ID)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update agent profile", err)
	}
	return requireRowAffected(res, "agent profile")
}

func (s *Store) DeleteAgentProfile(ctx context.Context, id string) error {
	_, err := s.db.Exec(`DELETE FROM agent_profiles WHERE id=?`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete agent profile", err)
	}
	return nil
}

// --- Runtime state ---

func (s *Store) GetAgentRuntimeState(ctx context.Context, agentID string) (domain.AgentRuntimeState, error) {
	var st domain.AgentRuntimeState
	var holdings, lastActivity string
	row := s.db.QueryRow(`SELECT agent_id, mode, status, cash, holdings, last_activity_at
		FROM agent_runtime_state WHERE agent_id=?`, agentID)
	if err := row.Scan(&st.AgentID, &st.Mode, &st.Status, &st.Cash, &holdings, &lastActivity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, apperr.NotFound("runtime state not found").WithField("agent_id")
		}
		return st, apperr.Wrap(apperr.KindInternal, "get runtime state", err)
	}
	_ = json.Unmarshal([]byte(holdings), &st.Holdings)
	st.LastActivityAt, _ = time.Parse(time.RFC3339Nano, lastActivity)
	return st, nil
}

func (s *Store) UpdateAgentRuntimeState(ctx context.Context, st domain.AgentRuntimeState) error {
	holdings, _ := json.Marshal(st.Holdings)
	_, err := s.db.Exec(`INSERT INTO agent_runtime_state (agent_id, mode, status, cash, holdings, last_activity_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(agent_id) DO UPDATE SET mode=excluded.mode, status=excluded.status,
			cash=excluded.cash, holdings=excluded.holdings, last_activity_at=excluded.last_activity_at`,
		st.AgentID, st.Mode, st.Status, st.Cash, string(holdings), st.LastActivityAt.Format(time.RFC3339Nano))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "update runtime state", err)
	}
	return nil
}

// --- Strategy changes ---

func (s *Store) InsertStrategyChange(ctx context.Context, c domain.StrategyChange) (int64, error) {
	perf, _ := json.Marshal(c.Performance)
	res, err := s.db.Exec(`INSERT INTO strategy_changes (agent_id, created_at, trigger_kind, trigger_reason,
		addition, summary, explanation, performance, applied) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.AgentID, c.CreatedAt.Format(time.RFC3339Nano), c.TriggerKind, c.TriggerReason,
		c.Addition, c.Summary, c.Explanation, string(perf), boolToInt(c.Applied))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "insert strategy change", err)
	}
	return res.LastInsertId()
}

func (s *Store) ListStrategyChanges(ctx context.Context, agentID string, page repository.Page) ([]domain.StrategyChange, error) {
	limit, offset := applyPage(page)
	rows, err := s.db.Query(`SELECT id, agent_id, created_at, trigger_kind, trigger_reason, addition,
		summary, explanation, performance, applied FROM strategy_changes WHERE agent_id=?
		ORDER BY id LIMIT ? OFFSET ?`, agentID, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list strategy changes", err)
	}
	defer rows.Close()

	var out []domain.StrategyChange
	for rows.Next() {
		var c domain.StrategyChange
		var createdAt, perf string
		var applied int
		if err := rows.Scan(&c.ID, &c.AgentID, &createdAt, &c.TriggerKind, &c.TriggerReason,
			&c.Addition, &c.Summary, &c.Explanation, &perf, &applied); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan strategy change", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		_ = json.Unmarshal([]byte(perf), &c.Performance)
		c.Applied = applied != 0
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Sessions ---

func (s *Store) InsertSession(ctx context.Context, sess domain.Session) error {
	return s.upsertSession(sess, true)
}

func (s *Store) UpdateSession(ctx context.Context, sess domain.Session) error {
	return s.upsertSession(sess, false)
}

func (s *Store) upsertSession(sess domain.Session, insert bool) error {
	invocations, _ := json.Marshal(sess.Invocations)
	sessErr, _ := json.Marshal(sess.Error)
	endedAt := ""
	if !sess.EndedAt.IsZero() {
		endedAt = sess.EndedAt.Format(time.RFC3339Nano)
	}
	var err error
	if insert {
		_, err = s.db.Exec(`INSERT INTO sessions (id, agent_id, mode, started_at, ended_at, status,
			turns, final_output, invocations, error) VALUES (?,?,?,?,?,?,?,?,?,?)`,
			sess.ID, sess.AgentID, sess.Mode, sess.StartedAt.Format(time.RFC3339Nano), endedAt,
			sess.Status, sess.Turns, sess.FinalOutput, string(invocations), string(sessErr))
	} else {
		_, err = s.db.Exec(`UPDATE sessions SET ended_at=?, status=?, turns=?, final_output=?,
			invocations=?, error=? WHERE id=?`,
			endedAt, sess.Status, sess.Turns, sess.FinalOutput, string(invocations), string(sessErr), sess.ID)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "upsert session", err)
	}
	return nil
}

func (s *Store) ListSessions(ctx context.Context, agentID string, page repository.Page) ([]domain.Session, error) {
	limit, offset := applyPage(page)
	rows, err := s.db.Query(`SELECT id, agent_id, mode, started_at, ended_at, status, turns,
		final_output, invocations, error FROM sessions WHERE agent_id=? ORDER BY started_at DESC
		LIMIT ? OFFSET ?`, agentID, limit, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list sessions", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var startedAt, endedAt, invocations, sessErr string
		if err := rows.Scan(&sess.ID, &sess.AgentID, &sess.Mode, &startedAt, &endedAt, &sess.Status,
			&sess.Turns, &sess.FinalOutput, &invocations, &sessErr); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan session", err)
		}
		sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		if endedAt != "" {
			sess.EndedAt, _ = time.Parse(time.RFC3339Nano, endedAt)
		}
		_ = json.Unmarshal([]byte(invocations), &sess.Invocations)
		if sessErr != "" && sessErr != "null" {
			_ = json.Unmarshal([]byte(sessErr), &sess.Error)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// --- Transactions ---

func (s *Store) InsertTransaction(ctx context.Context, t domain.Transaction) (int64, error) {
	res, err := s.db.Exec(`INSERT INTO transactions (agent_id, session_id, symbol, side, quantity,
		price, notional, fee, tax, status, decision_reason, executed_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.AgentID, t.SessionID, t.Symbol, t.Side, t.Quantity, t.Price, t.Notional, t.Fee, t.Tax,
		t.Status, t.DecisionReason, t.ExecutedAt.Format(time.RFC3339Nano))
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "insert transaction", err)
	}
	return res.LastInsertId()
}

func (s *Store) ListTransactions(ctx context.Context, agentID, sessionID string, page repository.Page) ([]domain.Transaction, error) {
	limit, offset := applyPage(page)
	query := `SELECT id, agent_id, session_id, symbol, side, quantity, price, notional, fee, tax,
		status, decision_reason, executed_at FROM transactions WHERE agent_id=?`
	args := []interface{}{agentID}
	if sessionID != "" {
		query += ` AND session_id=?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY executed_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list transactions", err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var executedAt string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.SessionID, &t.Symbol, &t.Side, &t.Quantity,
			&t.Price, &t.Notional, &t.Fee, &t.Tax, &t.Status, &t.DecisionReason, &executedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan transaction", err)
		}
		t.ExecutedAt, _ = time.Parse(time.RFC3339Nano, executedAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) CountTransactionsOn(ctx context.Context, agentID string, day string) (int, error) {
	var count int
	row := s.db.QueryRow(`SELECT COUNT(*) FROM transactions WHERE agent_id=? AND substr(executed_at,1,10)=?`,
		agentID, day)
	if err := row.Scan(&count); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "count transactions", err)
	}
	return count, nil
}

// --- Holdings ---

func (s *Store) UpsertHolding(ctx context.Context, agentID string, h domain.Holding) error {
	_, err := s.db.Exec(`INSERT INTO holdings (agent_id, symbol, quantity, average_cost) VALUES (?,?,?,?)
		ON CONFLICT(agent_id, symbol) DO UPDATE SET quantity=excluded.quantity, average_cost=excluded.average_cost`,
		agentID, h.Symbol, h.Quantity, h.AverageCost)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "upsert holding", err)
	}
	return nil
}

func (s *Store) ListHoldings(ctx context.Context, agentID string) ([]domain.Holding, error) {
	rows, err := s.db.Query(`SELECT symbol, quantity, average_cost FROM holdings WHERE agent_id=?`, agentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "list holdings", err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity, &h.AverageCost); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan holding", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) DeleteHolding(ctx context.Context, agentID, symbol string) error {
	_, err := s.db.Exec(`DELETE FROM holdings WHERE agent_id=? AND symbol=?`, agentID, symbol)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete holding", err)
	}
	return nil
}

func requireRowAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "rows affected", err)
	}
	if n == 0 {
		return apperr.NotFound(what + " not found")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
