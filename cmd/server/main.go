package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sacahan/casualtrader-go/internal/agent"
	"github.com/sacahan/casualtrader-go/internal/calendar"
	"github.com/sacahan/casualtrader-go/internal/config"
	"github.com/sacahan/casualtrader-go/internal/eventbus"
	"github.com/sacahan/casualtrader-go/internal/gateway"
	"github.com/sacahan/casualtrader-go/internal/httpapi"
	"github.com/sacahan/casualtrader-go/internal/marketdata"
	"github.com/sacahan/casualtrader-go/internal/reasoner/fake"
	"github.com/sacahan/casualtrader-go/internal/repository/sqlite"
	"github.com/sacahan/casualtrader-go/internal/scheduler"
	"github.com/sacahan/casualtrader-go/internal/session"
	"github.com/sacahan/casualtrader-go/internal/tool"
	"github.com/sacahan/casualtrader-go/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting casualtrader agent fleet")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	repo, err := sqlite.Open(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open repository")
	}
	defer repo.Close()

	mdClient := marketdata.NewClient(log)
	gw := gateway.New(
		cfg.PerSymbolInterval, cfg.GlobalPerMinute, cfg.PerSecondLimit,
		cfg.CacheTTL, cfg.CacheMaxEntries, cfg.CacheMaxBytes,
		mdClient.Fetch, log,
	)

	cal := calendar.New(log)
	registry := buildToolRegistry(repo, gw, cal, cfg, log)

	bus := eventbus.New(cfg.EventSubscriberBuffer, log)

	// The reasoner is an injected contract (§7 "out of scope: the LLM
	// reasoning engine itself"); the fake adapter stands in until a real
	// model integration is wired behind the same interface.
	reasonerAdapter := fake.New(fake.Script{FinalText: "No trade action this session."})
	runner := session.New(reasonerAdapter, registry, bus, log)

	agentCfg := agent.Config{
		DefaultTurnBudget:      cfg.DefaultTurnBudget,
		SessionWallClockBudget: cfg.SessionWallClockBudget,
		ToolCallTimeout:        cfg.ToolCallTimeout,
		StopGrace:              cfg.SupervisorStopGrace,
	}
	manager := agent.New(repo, runner, bus, agentCfg, log)

	recordTool := tool.NewRecordStrategyChangeTool(repo, log)
	autoAdjuster := agent.NewAutoAdjuster(manager, repo, recordTool, gw, agent.AutoAdjustConfig{
		TimeCadence:                7 * 24 * time.Hour,
		PerformanceDrawdownTrigger: 0.1,
	}, log)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob("@every 1m", gatewaySweepJob{gw: gw}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule gateway sweep")
	}
	if err := sched.AddJob("@hourly", autoAdjustJob{adjuster: autoAdjuster}); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule auto-adjust tick")
	}

	apiServer := httpapi.New(manager, repo, cal, log)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: apiServer,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}
	log.Info().Msg("shutdown complete")
}

// buildToolRegistry registers every catalog tool (§4.2) against the shared
// Gateway, Calendar, and repository collaborators. Mode Policy masks this
// root registry down to a per-session view; nothing here is mode-aware.
func buildToolRegistry(repo *sqlite.Store, gw *gateway.Gateway, cal *calendar.Calendar, cfg *config.Config, log zerolog.Logger) *tool.Registry {
	reg := tool.NewRegistry(log)

	reg.Register(tool.NewStockPriceTool(gw))
	reg.Register(tool.NewCompanyProfileTool(gw))
	reg.Register(tool.NewIncomeStatementTool(gw))
	reg.Register(tool.NewBalanceSheetTool(gw))
	reg.Register(tool.NewDailyTradingTool(gw))
	reg.Register(tool.NewCheckTradingDayTool(cal))

	reg.Register(tool.NewIndicatorTool())
	reg.Register(tool.NewFundamentalsTool())
	reg.Register(tool.NewTechnicalsTool())
	reg.Register(tool.NewRiskTool())
	reg.Register(tool.NewSentimentTool())

	reg.Register(tool.NewValidateTradeTool(tool.ValidateConfig{
		LotSize:        cfg.LotSize,
		MinTradeAmount: cfg.MinTradeAmount,
		// MaxPositionWeight is left at zero (disabled) here: it is a
		// per-agent preference (AgentProfile.Preferences.MaxPositionWeight),
		// and validate_trade has no per-call agent context to read it from.
		// The reasoner is expected to pass its own ceiling check using
		// get_portfolio + its composed instructions before calling this.
		DailyTradeLimit: cfg.DailyTradeLimit,
	}))
	reg.Register(tool.NewGetPortfolioTool(repo, gw, log))

	tradeCfg := tool.TradeConfig{LotSize: cfg.LotSize, FeeRate: cfg.FeeRate, TaxRate: cfg.TaxRate}
	reg.Register(tool.NewSimulateBuyTool(repo, gw, tradeCfg, log))
	reg.Register(tool.NewSimulateSellTool(repo, gw, tradeCfg, log))

	reg.Register(tool.NewRecordStrategyChangeTool(repo, log))

	return reg
}

// gatewaySweepJob adapts Gateway.Sweep onto scheduler.Job, evicting stale
// cache entries beyond the grace window on a fixed cadence.
type gatewaySweepJob struct {
	gw *gateway.Gateway
}

func (j gatewaySweepJob) Name() string { return "gateway_sweep" }
func (j gatewaySweepJob) Run() error {
	j.gw.Sweep(5 * time.Minute)
	return nil
}

// autoAdjustJob adapts AutoAdjuster.Tick onto scheduler.Job.
type autoAdjustJob struct {
	adjuster *agent.AutoAdjuster
}

func (j autoAdjustJob) Name() string { return "auto_adjust" }
func (j autoAdjustJob) Run() error {
	j.adjuster.Tick(context.Background())
	return nil
}
