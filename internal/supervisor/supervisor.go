// Package supervisor is the runtime supervisor: it wires every other
// package's constructor together, brings the system up in a fixed order
// (persistence, timers, lockouts, P&L, event bus, router, rule engine,
// enforcement, heartbeat), runs a battery of post-condition checks once
// startup settles, and tears everything down in reverse order on shutdown.
// Lifecycle is expressed through go.uber.org/fx.Lifecycle hooks rather
// than a hand-written boot sequence.
package supervisor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/broker"
	"github.com/kairos-trading/riskguard/internal/clock"
	"github.com/kairos-trading/riskguard/internal/config"
	"github.com/kairos-trading/riskguard/internal/correlator"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/enforcement"
	"github.com/kairos-trading/riskguard/internal/eventbus"
	"github.com/kairos-trading/riskguard/internal/lockout"
	"github.com/kairos-trading/riskguard/internal/notify"
	"github.com/kairos-trading/riskguard/internal/pnl"
	"github.com/kairos-trading/riskguard/internal/protective"
	"github.com/kairos-trading/riskguard/internal/router"
	"github.com/kairos-trading/riskguard/internal/rules"
	"github.com/kairos-trading/riskguard/internal/store"
	"github.com/kairos-trading/riskguard/internal/timer"
)

// Options configures what New builds. Broker is optional; a nil value
// constructs an in-memory broker.Simulator seeded from cfg.Accounts, which
// is what dry-run mode and every test use.
type Options struct {
	ConfigDir  string
	DBPath     string
	Broker     broker.Client
	NotifyCfg  notify.Config
	TickRate   time.Duration // timer wheel granularity, default 500ms
	Heartbeat  time.Duration // default 30s
}

// Supervisor owns every long-lived component and the order they start and
// stop in.
type Supervisor struct {
	Config *config.Bundle
	Logger *zap.Logger
	Clock  clock.Clock

	Store           *store.Store
	Wheel           *timer.Wheel
	LockoutMgr      *lockout.Manager
	PnLTracker      *pnl.Tracker
	Unrealized      *pnl.UnrealizedCalculator
	ProtectiveCache *protective.Cache
	Correlator      *correlator.Correlator
	Bus             *eventbus.Bus
	Router          *router.Router
	Engine          *rules.Engine
	State           *rules.State
	Broker          broker.Client
	Executor        *enforcement.Executor
	Notifier        *notify.Publisher
	Metrics         *Metrics

	heartbeatInterval time.Duration
	unsubscribers     []func()
	busCancel         context.CancelFunc
	heartbeatStop     chan struct{}
}

// New loads configuration, opens the persistence store, and constructs
// every other component. The timer wheel, event bus, heartbeat, and broker
// subscriptions don't begin running until Start.
func New(ctx context.Context, opts Options) (*Supervisor, error) {
	cfg, err := config.LoadAll(opts.ConfigDir)
	if err != nil {
		return nil, err
	}
	logger, err := config.InitLogger(cfg.Risk.General)
	if err != nil {
		return nil, err
	}

	tz, err := time.LoadLocation(cfg.Risk.General.Timezone)
	if err != nil {
		return nil, fmt.Errorf("general.timezone %q: %w", cfg.Risk.General.Timezone, err)
	}

	resetHour, resetMin := 0, 0
	if cfg.Timers.DailyReset.Enabled {
		resetHour, resetMin, err = config.ParseHHMM(cfg.Timers.DailyReset.Time)
		if err != nil {
			return nil, fmt.Errorf("timers_config.daily_reset.time: %w", err)
		}
	}

	db, err := store.Open(ctx, opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening persistence store: %w", err)
	}
	st := store.New(db, logger)

	realClock := clock.Real{}
	tickRate := opts.TickRate
	if tickRate == 0 {
		tickRate = 500 * time.Millisecond
	}
	wheel := timer.New(realClock, logger, tickRate)

	lockoutMgr := lockout.New(st, wheel, realClock, logger)
	pnlTracker := pnl.New(st, realClock, logger, tz, resetHour, resetMin)
	unrealized := pnl.NewUnrealizedCalculator(tickTable(cfg.Risk.Ticks))

	brokerClient := opts.Broker
	if brokerClient == nil {
		brokerClient = newSimulatorFromAccounts(cfg.Accounts)
	}

	apiCfg := cfg.API
	protectiveCache := protective.New(
		time.Duration(apiCfg.ProtectiveCacheTTLSeconds)*time.Second,
		brokerClient,
		logger,
	)
	corr := correlator.New(time.Duration(apiCfg.CorrelatorTTLSeconds) * time.Second)

	bus, err := eventbus.New(logger)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}

	symbolFor := symbolResolver(cfg.Risk.General.Instruments)

	rtr := router.New(
		time.Duration(apiCfg.DedupTTLSeconds)*time.Second,
		protectiveCache,
		corr,
		unrealized,
		pnlTracker,
		st,
		bus,
		symbolFor,
		logger,
	)

	state := rules.NewState(rtr, lockoutMgr, pnlTracker, unrealized, wheel, st, realClock)

	engine := rules.New(bus, logger)
	if err := registerRules(engine, cfg, tz, bus, logger); err != nil {
		return nil, err
	}

	enfCfg := enforcement.DefaultConfig()
	executor, err := enforcement.New(brokerClient, bus, enfCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating enforcement executor: %w", err)
	}

	notifier, err := notify.New(opts.NotifyCfg, bus, logger)
	if err != nil {
		return nil, fmt.Errorf("creating notify publisher: %w", err)
	}

	heartbeat := opts.Heartbeat
	if heartbeat == 0 {
		heartbeat = 30 * time.Second
	}

	metrics := NewMetrics()
	rtr.SetDedupStats(func(hit bool) {
		if hit {
			metrics.DedupHits.Inc()
		} else {
			metrics.DedupMisses.Inc()
		}
	})
	engine.SetMetricsHook(func(ruleID string, d time.Duration, failed bool) {
		metrics.RuleEvaluations.WithLabelValues(ruleID).Inc()
		metrics.RuleLatency.WithLabelValues(ruleID).Observe(d.Seconds())
		if failed {
			metrics.RuleFailures.WithLabelValues(ruleID).Inc()
		}
	})

	return &Supervisor{
		Config:            cfg,
		Logger:            logger,
		Clock:             realClock,
		Store:             st,
		Wheel:             wheel,
		LockoutMgr:        lockoutMgr,
		PnLTracker:        pnlTracker,
		Unrealized:        unrealized,
		ProtectiveCache:   protectiveCache,
		Correlator:        corr,
		Bus:               bus,
		Router:            rtr,
		Engine:            engine,
		State:             state,
		Broker:            brokerClient,
		Executor:          executor,
		Notifier:          notifier,
		Metrics:           metrics,
		heartbeatInterval: heartbeat,
	}, nil
}

func tickTable(ticks map[string]config.TickSpec) map[string]pnl.TickSpec {
	out := make(map[string]pnl.TickSpec, len(ticks))
	for sym, t := range ticks {
		out[sym] = pnl.TickSpec{
			TickSize:  decimal.NewFromFloat(t.TickSize),
			TickValue: decimal.NewFromFloat(t.TickValue),
		}
	}
	return out
}

func symbolResolver(instruments []string) router.SymbolResolver {
	return func(contractID string) (string, bool) {
		for _, sym := range instruments {
			if strings.Contains(contractID, "."+sym+".") || strings.HasSuffix(contractID, "."+sym) {
				return sym, true
			}
		}
		return "", false
	}
}

func newSimulatorFromAccounts(accounts *config.AccountsConfig) *broker.Simulator {
	var infos []*broker.AccountInfo
	for _, id := range accounts.AccountIDs() {
		infos = append(infos, &broker.AccountInfo{ID: id, CanTrade: true})
	}
	return broker.NewSimulator(infos)
}

// registerRules registers the thirteen risk rules. Rules are evaluated in
// registration order and their enforcement actions publish in that order,
// so this list must never be resorted.
func registerRules(engine *rules.Engine, cfg *config.Bundle, tz *time.Location, bus *eventbus.Bus, logger *zap.Logger) error {
	r := cfg.Risk.Rules

	engine.Register(rules.NewMaxContracts(r.MaxContracts))
	engine.Register(rules.NewMaxContractsPerInstrument(r.MaxContractsPerInstrument))
	engine.Register(rules.NewDailyRealizedLoss(r.DailyRealizedLoss, dailyResetHour(cfg), dailyResetMinute(cfg), tz))
	engine.Register(rules.NewDailyUnrealizedLoss(r.DailyUnrealizedLoss, logger))
	engine.Register(rules.NewMaxUnrealizedProfit(r.MaxUnrealizedProfit, logger))
	engine.Register(rules.NewTradeFrequency(r.TradeFrequencyLimit))
	engine.Register(rules.NewCooldownAfterLoss(r.CooldownAfterLoss))
	engine.Register(rules.NewNoStopLossGrace(r.NoStopLossGrace, bus, logger))

	sessionBlock, err := rules.NewSessionBlockOutside(r.SessionBlockOutside, tz, cfg.Timers.Holidays.List)
	if err != nil {
		return fmt.Errorf("rules.session_block_outside: %w", err)
	}
	engine.Register(sessionBlock)

	engine.Register(rules.NewAuthLossGuard(r.AuthLossGuard))
	engine.Register(rules.NewSymbolBlocks(r.SymbolBlocks))
	engine.Register(rules.NewTradeManagement(r.TradeManagement))
	engine.Register(rules.NewDailyRealizedProfit(r.DailyRealizedProfit, dailyResetHour(cfg), dailyResetMinute(cfg), tz))
	return nil
}

func dailyResetHour(cfg *config.Bundle) int {
	h, _, _ := config.ParseHHMM(cfg.Timers.DailyReset.Time)
	return h
}

func dailyResetMinute(cfg *config.Bundle) int {
	_, m, _ := config.ParseHHMM(cfg.Timers.DailyReset.Time)
	return m
}

// Start brings the system up: persistence is already open (New did that),
// so Start runs the timer
// wheel, recovers lockouts from the DB, starts the event bus dispatch
// loop, subscribes the Event Router to the broker and the Rule Engine to
// the Event Bus, then runs the post-condition battery and starts the
// heartbeat.
func (s *Supervisor) Start(ctx context.Context) error {
	go s.Wheel.Run()

	if err := s.LockoutMgr.LoadFromDB(ctx); err != nil {
		return fmt.Errorf("recovering lockouts from database: %w", err)
	}

	// The rule engine is subscribed before the dispatch loop starts, so Run
	// starts it together with the executor and notifier handlers.
	s.Bus.Subscribe("rule-engine", domain.SubjectBrokerEvents, func(ctx context.Context, event *domain.RiskEvent) error {
		s.Engine.Dispatch(ctx, event, s.State)
		return nil
	})

	busCtx, busCancel := context.WithCancel(context.Background())
	s.busCancel = busCancel
	go func() {
		if err := s.Bus.Run(busCtx); err != nil {
			s.Logger.Error("event bus stopped", zap.Error(err))
		}
	}()

	if err := s.Broker.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	for _, subject := range []string{broker.SubjectOrderEvents, broker.SubjectPositionEvents, broker.SubjectAccountEvents, broker.SubjectMarketData} {
		unsub, err := s.Broker.Subscribe(ctx, subject, func(event *domain.RiskEvent) {
			if err := s.Router.Ingest(ctx, event); err != nil {
				s.Logger.Error("router failed to ingest event", zap.String("subject", subject), zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("subscribing to broker subject %s: %w", subject, err)
		}
		s.unsubscribers = append(s.unsubscribers, unsub)
	}

	report := RunPostConditions(ctx, s)
	s.Logger.Info("startup post-conditions", report.zapFields()...)
	if !report.OK() {
		return fmt.Errorf("startup post-conditions failed: %s", report.String())
	}

	s.heartbeatStop = make(chan struct{})
	go RunHeartbeat(s, s.heartbeatInterval, s.heartbeatStop)

	s.Logger.Info("riskguard supervisor started")
	return nil
}

// Stop tears the system down in the reverse of Start's order.
func (s *Supervisor) Stop(ctx context.Context) error {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
	}
	for _, unsub := range s.unsubscribers {
		unsub()
	}
	_ = s.Broker.Disconnect(ctx)
	if s.busCancel != nil {
		s.busCancel()
	}
	if err := s.Bus.Close(); err != nil {
		s.Logger.Warn("closing event bus", zap.Error(err))
	}
	s.Wheel.Stop()
	if s.Notifier != nil {
		s.Notifier.Close()
	}
	s.Executor.Close()
	if err := s.Store.Close(); err != nil {
		return fmt.Errorf("closing persistence store: %w", err)
	}
	s.Logger.Info("riskguard supervisor stopped")
	return nil
}

// RegisterLifecycle wires Start/Stop as fx.Hooks so the fx app drives the
// supervisor's lifecycle.
func RegisterLifecycle(lc fx.Lifecycle, s *Supervisor) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}

