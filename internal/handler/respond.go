package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/campuspulse/campuspulse/internal/errorx"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error to an HTTP status. Anything that is not an
// errorx.Error is logged and reported as fallback.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var e errorx.Error
	if !errors.As(err, &e) {
		logger.Error(fallback, "error", err)
		writeMessage(w, http.StatusInternalServerError, fallback)
		return
	}
	writeJSON(w, statusFor(e.Kind), map[string]string{"error": e.Message, "code": e.Code})
}

func statusFor(kind errorx.Kind) int {
	switch kind {
	case errorx.KindValidation:
		return http.StatusBadRequest
	case errorx.KindPolicy:
		return http.StatusConflict
	case errorx.KindNotFound:
		return http.StatusNotFound
	case errorx.KindPermission:
		return http.StatusForbidden
	case errorx.KindScheduler:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// queryLimit reads ?limit=, clamped to [1, max].
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
