package server

import (
	"log/slog"
	"net/http"

	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/breaker"
	"github.com/omar1u7777/Lugn-Trygg-sub001/pkg/recovery"
)

// HandlerFunc is an application handler that reports failures instead
// of rendering them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// AdaptErrors turns a failing handler into an http.Handler. Open-breaker
// rejections become 503 so callers back off; everything else goes
// through the coordinator and, when not recovered, renders as 500.
func AdaptErrors(coord *recovery.Coordinator, logger *slog.Logger, service string, fn HandlerFunc) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		if breaker.IsOpen(err) {
			writeJSON(w, http.StatusServiceUnavailable, errorBody{
				Error:   "service_unavailable",
				Message: "a dependency is temporarily unavailable, retry shortly",
			})
			return
		}

		out := coord.HandleError(r.Context(), err, recovery.Context{
			Service:   service,
			Operation: r.Method + " " + r.URL.Path,
		}, nil, 0)
		if out.Recovered {
			writeJSON(w, http.StatusOK, map[string]string{"status": "recovered"})
			return
		}

		logger.Error("request failed",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Error:   "internal_error",
			Message: "the request could not be completed",
		})
	})
}
