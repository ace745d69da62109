package handlers

import (
	"net/http"
	"time"

	"github.com/puente-ai/puente/internal/ledger"
	"github.com/puente-ai/puente/internal/proxy/engine"
	"github.com/puente-ai/puente/internal/timewindow"
)

// StatsHandler serves aggregate usage for a time window.
func StatsHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		win, err := windowFromQuery(r)
		if err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), "invalid_date")
			return
		}
		stats, err := store.Stats(win)
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// DailyStatsHandler serves the per-day rollup. The range defaults to the
// last 30 days ending today (UTC).
func DailyStatsHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := strQuery(r, "start_date")
		end := strQuery(r, "end_date")
		if end == nil {
			s := time.Now().UTC().Format("2006-01-02")
			end = &s
		}
		if start == nil {
			s := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")
			start = &s
		}
		offset, err := intQuery(r, "timezone_offset")
		if err != nil {
			badParam(w, err)
			return
		}
		win, err := timewindow.Build(nil, start, end, offset)
		if err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), "invalid_date")
			return
		}
		daily, err := store.Daily(win)
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, daily)
	}
}

// HourlyStatsHandler serves the hourly rollup for one local calendar day.
// The date parameter is required.
func HourlyStatsHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", "date parameter is required", "missing_date")
			return
		}
		offset, err := intQuery(r, "timezone_offset")
		if err != nil {
			badParam(w, err)
			return
		}
		win, err := timewindow.SingleDay(date, offset)
		if err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), "invalid_date")
			return
		}
		hourly, err := store.Hourly(win)
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, hourly)
	}
}

// DateRangeHandler reports the first and last date with recorded data.
func DateRangeHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng, err := store.DateRange()
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, rng)
	}
}

// ClearErrorsHandler deletes all errored ledger rows.
func ClearErrorsHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := store.ClearErrors()
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
	}
}
