// Package trader implements the autonomous options engine: the five-phase
// daily pipeline, the position monitor, risk enforcement, and the learning
// loop over closed trades.
package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/theta/internal/clients/ai"
	"github.com/aristath/theta/internal/clients/marketdata"
	"github.com/aristath/theta/internal/clients/quotestream"
	"github.com/aristath/theta/internal/domain"
	"github.com/aristath/theta/internal/events"
	"github.com/aristath/theta/internal/scheduler"
	"github.com/aristath/theta/internal/store"
)

// Phase numbers for RunPhase.
const (
	PhaseIntel    = 1
	PhaseAnalyze  = 2
	PhaseExecute  = 3
	PhaseEndOfDay = 4
	PhaseReflect  = 5
)

// phaseJobNames indexes scheduler job names by phase number.
var phaseJobNames = [6]string{"", "morning-scan", "analysis", "execution", "eod-review", "reflection"}

// quoteFreshness bounds how old a streamed tick may be before the monitor
// falls back to a REST quote.
const quoteFreshness = 2 * time.Minute

// Service is the autonomous trading engine. All mutable state lives in the
// Store; the service itself only tracks in-flight execution.
type Service struct {
	store  *store.Store
	md     *marketdata.Client
	ai     *ai.Client
	bus    *events.Bus
	quotes *quotestream.Cache
	sched  *scheduler.Scheduler
	log    zerolog.Logger

	loc *time.Location
	now func() time.Time

	phaseMu      sync.Mutex
	phaseRunning [6]bool
	phaseRunID   [6]string

	jobsMu         sync.Mutex
	jobsRegistered bool

	monitorBusy atomic.Bool
	phaseActive atomic.Int32
	lastTick    atomic.Value // string, ISO-8601
	startedAt   time.Time
}

// New wires the engine. The quote cache may be nil when streaming is
// disabled.
func New(st *store.Store, md *marketdata.Client, aiClient *ai.Client, bus *events.Bus, quotes *quotestream.Cache, sched *scheduler.Scheduler, log zerolog.Logger) *Service {
	loc := MarketLocation()
	s := &Service{
		store:     st,
		md:        md,
		ai:        aiClient,
		bus:       bus,
		quotes:    quotes,
		sched:     sched,
		log:       log.With().Str("component", "trader").Logger(),
		loc:       loc,
		startedAt: time.Now(),
	}
	s.now = func() time.Time { return time.Now().In(s.loc) }
	s.lastTick.Store("")
	return s
}

// today returns the current trading date in the market time zone.
func (s *Service) today() string {
	return s.now().Format(dateLayout)
}

// Start registers the scheduled jobs and, when the master switch is on,
// begins dispatching them. Safe to call once at boot.
func (s *Service) Start() error {
	if !s.store.IsReady() {
		return fmt.Errorf("store not ready, refusing to start trader")
	}
	if err := s.registerJobs(); err != nil {
		return err
	}
	enabled, _ := s.store.Settings.GetBool("enabled", false)
	if enabled {
		s.sched.Start()
		s.log.Info().Msg("Trader started with scheduling enabled")
	} else {
		s.log.Info().Msg("Trader started, scheduling disabled")
	}
	s.broadcastStatus()
	return nil
}

// Stop halts the scheduler. In-flight phases run to completion.
func (s *Service) Stop() {
	s.sched.Stop()
	s.log.Info().Msg("Trader stopped")
}

// Enable persists the master switch and starts dispatching jobs.
func (s *Service) Enable() error {
	if !s.store.IsReady() {
		return fmt.Errorf("store not ready, refusing to enable")
	}
	if err := s.store.Settings.SetBool("enabled", true); err != nil {
		return fmt.Errorf("persisting enabled flag: %w", err)
	}
	if err := s.registerJobs(); err != nil {
		return err
	}
	s.sched.Start()
	s.log.Info().Msg("Autonomous trading enabled")
	s.broadcastStatus()
	return nil
}

// Disable persists the master switch off and stops dispatch. Any phase
// already executing completes; no rollback is attempted.
func (s *Service) Disable() error {
	if err := s.store.Settings.SetBool("enabled", false); err != nil {
		return fmt.Errorf("persisting enabled flag: %w", err)
	}
	s.sched.Stop()
	s.log.Info().Msg("Autonomous trading disabled")
	s.broadcastStatus()
	return nil
}

// registerJobs adds the phase, monitor, and maintenance jobs to the
// scheduler exactly once.
func (s *Service) registerJobs() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if s.jobsRegistered {
		return nil
	}

	phases := []struct {
		num        int
		settingKey string
		fallback   string
	}{
		{PhaseIntel, "morning_scan_time", "06:00"},
		{PhaseAnalyze, "analysis_time", "07:00"},
		{PhaseExecute, "execution_time", "09:31"},
		{PhaseEndOfDay, "eod_review_time", "16:01"},
		{PhaseReflect, "reflection_time", "16:30"},
	}
	for _, p := range phases {
		p := p
		name := phaseJobNames[p.num]
		timeValue := s.store.SettingOr(p.settingKey, p.fallback)
		spec, err := weekdayCronSpec(timeValue)
		if err != nil {
			s.log.Warn().Err(err).Str("key", p.settingKey).Str("value", timeValue).Msg("Bad phase time, using default")
			spec, _ = weekdayCronSpec(p.fallback)
		}
		job := scheduler.FuncJob{JobName: name, Fn: func() error {
			return s.RunPhase(p.num)
		}}
		if err := s.sched.AddJob(spec, job); err != nil {
			return fmt.Errorf("registering %s job: %w", name, err)
		}
	}

	interval, _ := s.store.Settings.GetInt("monitor_interval_sec", 30)
	if interval <= 0 {
		interval = 30
	}
	monitorJob := scheduler.FuncJob{JobName: "position-monitor", Fn: s.MonitorTick}
	if err := s.sched.AddJob(fmt.Sprintf("@every %ds", interval), monitorJob); err != nil {
		return fmt.Errorf("registering monitor job: %w", err)
	}

	pruneJob := scheduler.FuncJob{JobName: "rule-prune", Fn: s.pruneRules}
	if err := s.sched.AddJob("0 45 16 * * FRI", pruneJob); err != nil {
		return fmt.Errorf("registering prune job: %w", err)
	}

	s.jobsRegistered = true
	return nil
}

// TriggerPhase runs one pipeline phase immediately, outside its cron
// schedule, through the scheduler's dispatch path.
func (s *Service) TriggerPhase(phase int) error {
	if phase < PhaseIntel || phase > PhaseReflect {
		return fmt.Errorf("unknown phase %d", phase)
	}
	job := scheduler.FuncJob{JobName: phaseJobNames[phase], Fn: func() error {
		return s.RunPhase(phase)
	}}
	return s.sched.RunNow(job)
}

// RunPhase executes one pipeline phase. A trigger that arrives while the
// same phase is still executing is dropped.
func (s *Service) RunPhase(phase int) error {
	if phase < PhaseIntel || phase > PhaseReflect {
		return fmt.Errorf("unknown phase %d", phase)
	}

	s.phaseMu.Lock()
	if s.phaseRunning[phase] {
		s.phaseMu.Unlock()
		s.log.Warn().Int("phase", phase).Msg("Phase already running, dropping trigger")
		return nil
	}
	s.phaseRunning[phase] = true
	s.phaseRunID[phase] = uuid.New().String()[:8]
	s.phaseMu.Unlock()

	s.phaseActive.Add(1)
	defer func() {
		s.phaseActive.Add(-1)
		s.phaseMu.Lock()
		s.phaseRunning[phase] = false
		s.phaseMu.Unlock()
		s.broadcastStatus()
	}()

	ctx := context.Background()
	start := time.Now()
	s.log.Info().Int("phase", phase).Msg("Phase starting")

	var err error
	switch phase {
	case PhaseIntel:
		err = s.runIntel(ctx)
	case PhaseAnalyze:
		err = s.runAnalyze(ctx)
	case PhaseExecute:
		err = s.runExecute(ctx)
	case PhaseEndOfDay:
		err = s.runEndOfDay(ctx)
	case PhaseReflect:
		err = s.runReflect(ctx)
	}

	if err != nil {
		s.log.Error().Err(err).Int("phase", phase).Dur("elapsed", time.Since(start)).Msg("Phase failed")
		return err
	}
	s.log.Info().Int("phase", phase).Dur("elapsed", time.Since(start)).Msg("Phase finished")
	return nil
}

// ManualClose closes an open trade at the current mid, or at zero when no
// quote is available. An empty reason records "manual".
func (s *Service) ManualClose(tradeID int64, reason string) error {
	trade, err := s.store.Trades.Get(tradeID)
	if err != nil {
		return fmt.Errorf("loading trade %d: %w", tradeID, err)
	}
	if trade == nil {
		return fmt.Errorf("trade %d not found", tradeID)
	}
	if !trade.IsOpen() {
		return fmt.Errorf("trade %d is not open", tradeID)
	}

	exitPrice := 0.0
	var exitSpot *float64
	if opt, err := s.md.GetOptionPremium(context.Background(), trade.Ticker, trade.Strike, trade.Expiry, optionRight(trade.Strategy)); err == nil && opt != nil {
		exitPrice = opt.Mid
	}
	if q, err := s.md.GetQuote(context.Background(), trade.Ticker); err == nil && q != nil {
		exitSpot = &q.Price
	}

	exitReason := domain.ExitManual
	if reason != "" {
		exitReason = domain.ExitReason(reason)
	}
	if err := s.closeTrade(trade, exitPrice, exitSpot, exitReason, events.TradeManualClose); err != nil {
		return err
	}
	s.log.Info().Int64("trade_id", tradeID).Str("reason", string(exitReason)).Msg("Trade closed manually")
	return nil
}

// Status is the control-surface snapshot of the engine.
type Status struct {
	Enabled         bool        `json:"enabled"`
	Running         bool        `json:"running"`
	OpenPositions   int         `json:"open_positions"`
	StartingBalance float64     `json:"starting_balance"`
	CurrentValue    float64     `json:"current_value"`
	TotalPnL        float64     `json:"total_pnl"`
	LastMonitorTick string      `json:"last_monitor_tick,omitempty"`
	Margin          MarginState `json:"margin"`

	UptimeSeconds int64   `json:"uptime_seconds"`
	Hostname      string  `json:"hostname"`
	MemoryUsedPct float64 `json:"memory_used_pct"`
}

// GetStatus assembles the engine status with host telemetry.
func (s *Service) GetStatus() (*Status, error) {
	enabled, _ := s.store.Settings.GetBool("enabled", false)
	openCount, err := s.store.Trades.CountOpen()
	if err != nil {
		return nil, fmt.Errorf("counting open trades: %w", err)
	}
	balance := s.store.PaperBalance()
	value, err := s.store.AccountValue()
	if err != nil {
		return nil, fmt.Errorf("computing account value: %w", err)
	}
	open, err := s.store.Trades.GetOpen()
	if err != nil {
		return nil, fmt.Errorf("loading open trades: %w", err)
	}
	cfg := s.store.LoadTradingConfig()

	status := &Status{
		Enabled:         enabled,
		Running:         s.phaseActive.Load() > 0,
		OpenPositions:   openCount,
		StartingBalance: balance,
		CurrentValue:    value,
		TotalPnL:        value - balance,
		LastMonitorTick: s.lastTick.Load().(string),
		Margin:          PortfolioMargin(open, balance, cfg.MaxMarginPct),
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	}
	if info, err := host.Info(); err == nil {
		status.Hostname = info.Hostname
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryUsedPct = vm.UsedPercent
	}
	return status, nil
}

// broadcastStatus publishes the status snapshot; failures are logged only.
func (s *Service) broadcastStatus() {
	status, err := s.GetStatus()
	if err != nil {
		s.log.Warn().Err(err).Msg("Skipping status broadcast")
		return
	}
	s.bus.Publish(&events.StatusData{
		Enabled:         status.Enabled,
		Running:         status.Running,
		OpenPositions:   status.OpenPositions,
		CurrentValue:    status.CurrentValue,
		StartingBalance: status.StartingBalance,
		TotalPnL:        status.TotalPnL,
		LastMonitorTick: status.LastMonitorTick,
	})
}

func (s *Service) emitProgress(phase int, status events.PhaseStatus, message string) {
	s.phaseMu.Lock()
	runID := s.phaseRunID[phase]
	s.phaseMu.Unlock()
	s.bus.Publish(&events.ProgressData{Phase: phase, RunID: runID, Status: status, Message: message})
	s.bus.Publish(&events.LogData{
		Message:   fmt.Sprintf("phase %d %s: %s", phase, status, message),
		Timestamp: s.now().Format(time.RFC3339),
	})
}

// pruneRules deactivates rules that kept being applied without helping.
func (s *Service) pruneRules() error {
	pruned, err := s.store.Rules.PruneWeak()
	if err != nil {
		return fmt.Errorf("pruning rules: %w", err)
	}
	if pruned > 0 {
		s.log.Info().Int("pruned", pruned).Msg("Deactivated weak rules")
	}
	return nil
}

// optionRight maps a strategy to the option right it trades.
func optionRight(strategy domain.Strategy) string {
	if strategy == domain.StrategyCoveredCall {
		return "call"
	}
	return "put"
}

// weekdayCronSpec converts an "HH:MM" setting into a 6-field weekday cron
// expression.
func weekdayCronSpec(hhmm string) (string, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return "", fmt.Errorf("expected HH:MM, got %q", hhmm)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour in %q", hhmm)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute in %q", hhmm)
	}
	return fmt.Sprintf("0 %d %d * * MON-FRI", minute, hour), nil
}
