package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/push"
)

type SchedulerHandler struct {
	scheduler *push.Scheduler
	logger    *slog.Logger
}

func NewSchedulerHandler(s *push.Scheduler, logger *slog.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: s, logger: logger}
}

// Status handles GET /api/scheduler/status
func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// Run handles POST /api/scheduler/run
func (h *SchedulerHandler) Run(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.Tick(r.Context())
	if errors.Is(err, errorx.ErrTickBusy) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error(), "code": errorx.ErrTickBusy.Code})
		return
	}
	if err != nil {
		writeError(w, h.logger, err, "tick failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
