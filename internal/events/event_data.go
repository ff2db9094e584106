package events

import (
	"github.com/aristath/theta/internal/domain"
)

// EventData is the interface that all event data types must implement.
// This allows for type-safe event data while maintaining flexibility.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// PhaseStatus is the lifecycle state carried by progress events. Every
// phase emits "starting", zero or more intermediates, and exactly one of
// "complete", "skipped", or "error".
type PhaseStatus string

const (
	PhaseStarting   PhaseStatus = "starting"
	PhaseFetching   PhaseStatus = "fetching"
	PhaseDiscovery  PhaseStatus = "discovery"
	PhaseGrok       PhaseStatus = "grok"
	PhaseCandidates PhaseStatus = "candidates"
	PhaseData       PhaseStatus = "data"
	PhaseAI         PhaseStatus = "ai"
	PhaseComplete   PhaseStatus = "complete"
	PhaseSkipped    PhaseStatus = "skipped"
	PhaseError      PhaseStatus = "error"
)

// StatusData contains data for AutonomousStatus events.
type StatusData struct {
	Enabled         bool    `json:"enabled"`
	Running         bool    `json:"running"`
	OpenPositions   int     `json:"open_positions"`
	CurrentValue    float64 `json:"current_value"`
	StartingBalance float64 `json:"starting_balance"`
	TotalPnL        float64 `json:"total_pnl"`
	LastMonitorTick string  `json:"last_monitor_tick,omitempty"`
}

// EventType returns the event type for StatusData.
func (d *StatusData) EventType() EventType {
	return AutonomousStatus
}

// ProgressData contains data for AutonomousProgress events.
type ProgressData struct {
	Phase   int         `json:"phase"`
	RunID   string      `json:"run_id,omitempty"`
	Status  PhaseStatus `json:"status"`
	Message string      `json:"message"`
}

// EventType returns the event type for ProgressData.
func (d *ProgressData) EventType() EventType {
	return AutonomousProgress
}

// TradeAction describes what happened to a trade in a trade event.
type TradeAction string

const (
	TradeOpened       TradeAction = "opened"
	TradeClosed       TradeAction = "closed"
	TradeStopLoss     TradeAction = "stop_loss"
	TradeProfitTarget TradeAction = "profit_target"
	TradeDTEManage    TradeAction = "dte_manage"
	TradeManualClose  TradeAction = "manual_close"
)

// TradeData contains data for AutonomousTrade events.
type TradeData struct {
	Action  TradeAction   `json:"action"`
	TradeID int64         `json:"trade_id"`
	Trade   *domain.Trade `json:"trade,omitempty"`
}

// EventType returns the event type for TradeData.
func (d *TradeData) EventType() EventType {
	return AutonomousTrade
}

// PositionUpdateData contains data for AutonomousPositionUpdate events.
type PositionUpdateData struct {
	TradeID        int64   `json:"trade_id"`
	CurrentPrice   float64 `json:"current_price"`
	PnLPerContract float64 `json:"pnl_per_contract"`
	PnLPercent     float64 `json:"pnl_percent"`
	PnLTotal       float64 `json:"pnl_total"`
}

// EventType returns the event type for PositionUpdateData.
func (d *PositionUpdateData) EventType() EventType {
	return AutonomousPositionUpdate
}

// LogData contains data for AutonomousLog events.
type LogData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// EventType returns the event type for LogData.
func (d *LogData) EventType() EventType {
	return AutonomousLog
}
