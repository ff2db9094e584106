package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.DB().HealthCheck(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("Database health check failed")
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "theta",
	})
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.trader.GetStatus()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

// handleEnable handles POST /api/autonomous/enable
func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if err := s.trader.Enable(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": true})
}

// handleDisable handles POST /api/autonomous/disable
func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.trader.Disable(); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
}

// handleRunPhase handles POST /api/autonomous/phase/{phase}
// The phase itself runs in the background; triggering an already running
// phase is a no-op.
func (s *Server) handleRunPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := strconv.Atoi(chi.URLParam(r, "phase"))
	if err != nil || phase < 1 || phase > 5 {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "phase must be between 1 and 5",
		})
		return
	}

	go func() {
		if err := s.trader.TriggerPhase(phase); err != nil {
			s.log.Error().Err(err).Int("phase", phase).Msg("Manually triggered phase failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"phase":  phase,
		"status": "triggered",
	})
}

// handleGetConfig handles GET /api/config
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings.GetAll()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// handleUpdateConfig handles PUT /api/config
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var updates map[string]string
	if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "request body must be a JSON object of string settings",
		})
		return
	}
	if len(updates) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "no settings provided",
		})
		return
	}

	for key, value := range updates {
		if err := s.store.Settings.Set(key, value); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	s.log.Info().Int("count", len(updates)).Msg("Settings updated via API")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"updated": len(updates)})
}

// handleListTrades handles GET /api/trades?status=open|closed&limit=N
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	var trades interface{}
	var err error
	switch r.URL.Query().Get("status") {
	case "open":
		trades, err = s.store.Trades.GetOpen()
	case "closed":
		trades, err = s.store.Trades.GetClosed(limit)
	default:
		trades, err = s.store.Trades.GetAll(limit)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}

// handleGetTrade handles GET /api/trades/{id}
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid trade id"})
		return
	}

	trade, err := s.store.Trades.Get(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trade == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "trade not found"})
		return
	}

	reviews, err := s.store.Reviews.GetByTrade(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trade":   trade,
		"reviews": reviews,
	})
}

// handleTradeReviews handles GET /api/trades/{id}/reviews
func (s *Server) handleTradeReviews(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid trade id"})
		return
	}

	trade, err := s.store.Trades.Get(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trade == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "trade not found"})
		return
	}

	reviews, err := s.store.Reviews.GetByTrade(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reviews)
}

// handleCloseTrade handles POST /api/trades/{id}/close
func (s *Server) handleCloseTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid trade id"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	// An empty body means "close at market with the default reason".
	_ = json.NewDecoder(r.Body).Decode(&body)

	trade, err := s.store.Trades.Get(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if trade == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "trade not found"})
		return
	}
	if !trade.IsOpen() {
		s.writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "trade is not open"})
		return
	}

	if err := s.trader.ManualClose(id, body.Reason); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	closed, err := s.store.Trades.Get(id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, closed)
}

// handleLatestScan handles GET /api/scans/latest
func (s *Server) handleLatestScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.Scans.GetLatest()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if scan == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no scans recorded"})
		return
	}
	s.writeJSON(w, http.StatusOK, scan)
}

// handleScanByDate handles GET /api/scans/{date}
func (s *Server) handleScanByDate(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.Scans.GetByDate(chi.URLParam(r, "date"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if scan == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no scan for that date"})
		return
	}
	s.writeJSON(w, http.StatusOK, scan)
}

// handleListSummaries handles GET /api/summaries?limit=N
func (s *Server) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.Summaries.GetRecent(queryInt(r, "limit", 30))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

// handleListRules handles GET /api/rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.Rules.GetActive()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rules)
}

// handleMetrics handles GET /api/metrics?days=N
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Reporting.PerformanceMetrics(queryInt(r, "days", 30))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, metrics)
}

// handleEquityCurve handles GET /api/equity
func (s *Server) handleEquityCurve(w http.ResponseWriter, r *http.Request) {
	curve, err := s.store.Reporting.EquityCurve(s.store.PaperBalance())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, curve)
}

// queryInt reads an integer query parameter, falling back when absent or invalid.
func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error as a JSON response
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.log.Error().Err(err).Msg("Request failed")
	s.writeJSON(w, status, map[string]interface{}{"error": err.Error()})
}
