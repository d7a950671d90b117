package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/recovery"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type quotaResponse struct {
	User      string `json:"user"`
	Category  string `json:"category"`
	Tier      string `json:"tier"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Allowed   bool   `json:"allowed"`
}

// handleQuota reports the current quota position for a user and
// endpoint without consuming a unit.
func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "missing_parameter",
			Message: "endpoint query parameter is required",
		})
		return
	}

	d, err := s.gate.Query(r.Context(), user, endpoint)
	if err != nil {
		s.logger.Warn("quota query failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:   "store_unavailable",
			Message: "quota store is unreachable",
		})
		return
	}

	writeJSON(w, http.StatusOK, quotaResponse{
		User:      user,
		Category:  d.Category,
		Tier:      d.Tier.String(),
		Limit:     d.Limit,
		Remaining: d.Remaining,
		Allowed:   d.Allowed,
	})
}

// handleQuotaReset clears the quota window for a user and endpoint.
func (s *Server) handleQuotaReset(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:   "missing_parameter",
			Message: "endpoint query parameter is required",
		})
		return
	}

	if err := s.gate.Reset(r.Context(), user, endpoint); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:   "store_unavailable",
			Message: "quota store is unreachable",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBreakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]breaker.Snapshot{
		"breakers": s.breakers.Snapshot(),
	})
}

type errorsResponse struct {
	recovery.Stats
	RecentCount   int   `json:"recent_count"`
	WindowSeconds int64 `json:"window_seconds"`
}

// handleErrors reports error history statistics plus the count over the
// trailing five minutes.
func (s *Server) handleErrors(w http.ResponseWriter, _ *http.Request) {
	const window = 5 * time.Minute
	writeJSON(w, http.StatusOK, errorsResponse{
		Stats:         s.coord.Stats(),
		RecentCount:   len(s.coord.Recent(window)),
		WindowSeconds: int64(window.Seconds()),
	})
}
