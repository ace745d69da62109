package handlers

import (
	"net/http"

	"github.com/puente-ai/puente/internal/ledger"
	"github.com/puente-ai/puente/internal/proxy/engine"
	"github.com/puente-ai/puente/internal/timewindow"
)

// windowFromQuery builds the time filter shared by the history and stats
// endpoints: last-N-hours, a local date range, or everything.
func windowFromQuery(r *http.Request) (timewindow.Window, error) {
	hours, err := intQuery(r, "hours")
	if err != nil {
		return timewindow.Window{}, err
	}
	offset, err := intQuery(r, "timezone_offset")
	if err != nil {
		return timewindow.Window{}, err
	}
	return timewindow.Build(hours, strQuery(r, "start_date"), strQuery(r, "end_date"), offset)
}

// badParam writes the 400 envelope shared by every malformed query
// parameter.
func badParam(w http.ResponseWriter, err error) {
	engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), "invalid_parameter")
}

// RequestsHandler serves the paginated request history with attribute and
// full-text filters.
func RequestsHandler(store *ledger.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		win, err := windowFromQuery(r)
		if err != nil {
			engine.WriteError(w, http.StatusBadRequest, "invalid_request_error", err.Error(), "invalid_date")
			return
		}
		f := ledger.Filter{
			Window:   win,
			Provider: r.URL.Query().Get("provider"),
			Model:    r.URL.Query().Get("model"),
			Search:   r.URL.Query().Get("search"),
		}
		if f.MinCost, err = floatQuery(r, "min_cost"); err != nil {
			badParam(w, err)
			return
		}
		if f.MaxCost, err = floatQuery(r, "max_cost"); err != nil {
			badParam(w, err)
			return
		}
		offset, err := intQuery(r, "offset")
		if err != nil {
			badParam(w, err)
			return
		}
		if offset != nil {
			f.Offset = *offset
		}
		limit, err := intQuery(r, "limit")
		if err != nil {
			badParam(w, err)
			return
		}
		if limit != nil {
			f.Limit = *limit
		}
		page, err := store.Query(f)
		if err != nil {
			engine.WriteError(w, http.StatusInternalServerError, "api_error", err.Error(), "internal_error")
			return
		}
		writeJSON(w, http.StatusOK, page)
	}
}
