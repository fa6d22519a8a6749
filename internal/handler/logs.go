package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sakif/student-data-vault/internal/apperror"
	"github.com/sakif/student-data-vault/internal/model"
	"github.com/sakif/student-data-vault/internal/service"
)

// LogHandler serves the activity log under /api/logs.
type LogHandler struct {
	logs   *service.LogService
	logger *slog.Logger
}

// NewLogHandler creates a LogHandler.
func NewLogHandler(logs *service.LogService, logger *slog.Logger) *LogHandler {
	return &LogHandler{logs: logs, logger: logger}
}

// HandleList returns matching entries, newest first.
//
// HTTP: GET /api/logs?userId=&role=&action=&from=&to=&limit=
func (h *LogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	filter, err := parseLogFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries, err := h.logs.List(r.Context(), actor, filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleVerify recomputes every digest.
//
// HTTP: GET /api/logs/verify
func (h *LogHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}

	report, err := h.logs.Verify(r.Context(), actor)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

const dateLayout = "2006-01-02"

// parseLogFilter reads the query string. from and to accept RFC 3339 or a
// bare date; a bare date for to covers that whole day.
func parseLogFilter(q url.Values) (model.LogFilter, error) {
	f := model.LogFilter{
		UserID: q.Get("userId"),
		Role:   q.Get("role"),
		Action: q.Get("action"),
	}

	if s := q.Get("from"); s != "" {
		t, _, err := parseTime(s)
		if err != nil || !inLogRange(t) {
			return f, apperror.ValidationFailed("from", "Invalid from date")
		}
		f.From = t
	}

	if s := q.Get("to"); s != "" {
		t, dateOnly, err := parseTime(s)
		if err != nil {
			return f, apperror.ValidationFailed("to", "Invalid to date")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		if !inLogRange(t) {
			return f, apperror.ValidationFailed("to", "Invalid to date")
		}
		f.To = t
	}

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return f, apperror.ValidationFailed("limit", "Limit must be a positive integer")
		}
		f.Limit = n
	}

	return f, nil
}

func parseTime(s string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	t, err = time.Parse(dateLayout, s)
	return t, err == nil, err
}

func inLogRange(t time.Time) bool {
	return !t.Before(model.EarliestLogTime) && !t.After(model.LatestLogTime)
}
