package agent

import "time"

// Config carries the session-budget and grace-timeout tunables a Supervisor
// applies to every session it launches, mirroring internal/config.Config's
// session-budget fields without importing that package directly.
type Config struct {
	DefaultTurnBudget      int
	SessionWallClockBudget time.Duration
	ToolCallTimeout        time.Duration
	StopGrace              time.Duration
}
