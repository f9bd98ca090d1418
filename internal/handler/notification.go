package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campuspulse/campuspulse/internal/auth"
	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/lifecycle"
	"github.com/campuspulse/campuspulse/internal/model"
	"github.com/campuspulse/campuspulse/internal/push"
	"github.com/campuspulse/campuspulse/internal/store"
)

type NotificationHandler struct {
	notifications *store.NotificationStore
	outbox        *push.Outbox
	service       *lifecycle.Service
	clock         clock.Clock
	logger        *slog.Logger
}

func NewNotificationHandler(ns *store.NotificationStore, outbox *push.Outbox, svc *lifecycle.Service, clk clock.Clock, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: ns, outbox: outbox, service: svc, clock: clk, logger: logger}
}

// Inbox handles GET /api/notifications
func (h *NotificationHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	items, err := h.notifications.ListForUser(r.Context(), auth.UserID(r.Context()), queryLimit(r, 50, 200))
	if err != nil {
		writeError(w, h.logger, err, "failed to list notifications")
		return
	}
	if items == nil {
		items = []model.InboxItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

// MarkRead handles POST /api/notifications/{id}/read
func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	ok, err := h.notifications.MarkRead(r.Context(), id, auth.UserID(r.Context()), h.clock.Now())
	if err != nil {
		writeError(w, h.logger, err, "failed to mark notification read")
		return
	}
	if !ok {
		writeError(w, h.logger, errorx.Wrap(errorx.ErrNotificationNotFound, "id %d", id), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type announceRequest struct {
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	UserIDs      []int64        `json:"user_ids"`
	EventID      *int64         `json:"event_id"`
	ScheduledFor *time.Time     `json:"scheduled_for"`
	Data         map[string]any `json:"data"`
}

// Announce handles POST /api/admin/notifications. Recipients are the listed
// users plus, when event_id is set, the event's attendees. A future
// scheduled_for defers delivery to the scheduler.
func (h *NotificationHandler) Announce(w http.ResponseWriter, r *http.Request) {
	var req announceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeMessage(w, http.StatusBadRequest, "title is required")
		return
	}

	ids := append([]int64(nil), req.UserIDs...)
	if req.EventID != nil {
		e, err := h.service.GetEvent(r.Context(), *req.EventID)
		if err != nil {
			writeError(w, h.logger, err, "failed to get event")
			return
		}
		ids = append(ids, e.AttendeeIDs()...)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		writeMessage(w, http.StatusBadRequest, "no recipients")
		return
	}

	n := &model.Notification{
		Title:        req.Title,
		Message:      req.Message,
		Type:         model.NotifTypeAnnouncement,
		RelatedEvent: req.EventID,
		Data:         req.Data,
	}
	for _, id := range ids {
		n.Recipients = append(n.Recipients, model.Recipient{UserID: id})
	}
	if req.ScheduledFor != nil {
		n.ScheduledFor = *req.ScheduledFor
	}

	stored, report, err := h.outbox.Submit(r.Context(), n)
	if err != nil {
		writeError(w, h.logger, err, "failed to create notification")
		return
	}

	h.logger.Info("announcement created",
		"notification_id", stored.ID,
		"recipients", len(ids),
		"by", auth.UserID(r.Context()),
		"deferred", report == nil,
	)
	writeJSON(w, http.StatusCreated, map[string]any{
		"notification": stored,
		"report":       report,
	})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
