package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campuspulse/campuspulse/internal/auth"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/lifecycle"
	"github.com/campuspulse/campuspulse/internal/model"
	"github.com/campuspulse/campuspulse/internal/store"
)

type EventHandler struct {
	service *lifecycle.Service
	events  *store.EventStore
	logger  *slog.Logger
}

func NewEventHandler(svc *lifecycle.Service, es *store.EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: svc, events: es, logger: logger}
}

type eventRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Location     string    `json:"location"`
	StartTime    time.Time `json:"start_time"`
	ExpectedTime int       `json:"expected_time"`
	MaxCapacity  int       `json:"max_capacity"`
	RewardPoints int       `json:"reward_points"`
}

// Create handles POST /api/events. The caller becomes the organizer.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	organizer := auth.UserID(r.Context())
	e, err := h.service.CreateEvent(r.Context(), model.NewEvent{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		OrganizerID:  &organizer,
		StartTime:    req.StartTime,
		ExpectedTime: req.ExpectedTime,
		MaxCapacity:  req.MaxCapacity,
		RewardPoints: req.RewardPoints,
	})
	if err != nil {
		writeError(w, h.logger, err, "failed to create event")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Get handles GET /api/events/{id}
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	e, err := h.service.GetEvent(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err, "failed to get event")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// List handles GET /api/events?status=approved,upcoming. Without a filter
// every status is listed.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []model.EventStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := model.EventStatus(strings.TrimSpace(s))
			if !st.Valid() {
				writeMessage(w, http.StatusBadRequest, "unknown status "+string(st))
				return
			}
			statuses = append(statuses, st)
		}
	} else {
		statuses = []model.EventStatus{
			model.EventPending, model.EventApproved, model.EventUpcoming,
			model.EventOngoing, model.EventCompleted, model.EventCancelled,
		}
	}

	events, err := h.events.ListByStatus(r.Context(), statuses)
	if err != nil {
		writeError(w, h.logger, err, "failed to list events")
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type transitionRequest struct {
	Status model.EventStatus `json:"status"`
}

// Transition handles POST /api/events/{id}/status
func (h *EventHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Status.Valid() {
		writeMessage(w, http.StatusBadRequest, "unknown status")
		return
	}

	e, err := h.service.Transition(r.Context(), id, req.Status)
	if err != nil {
		writeError(w, h.logger, err, "failed to change event status")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Register handles POST /api/events/{id}/register
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	e, err := h.service.Register(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to register")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Unregister handles DELETE /api/events/{id}/register
func (h *EventHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	e, err := h.service.Unregister(r.Context(), id, auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to unregister")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type attendanceRequest struct {
	UserID int64                `json:"user_id"`
	Status model.AttendeeStatus `json:"status"`
}

// MarkAttendance handles POST /api/events/{id}/attendance
func (h *EventHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req attendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.UserID == 0 {
		writeMessage(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ac, _ := auth.FromContext(r.Context())
	actor := lifecycle.Actor{UserID: ac.UserID, Role: ac.Role}
	a, err := h.service.MarkAttendance(r.Context(), actor, id, req.UserID, req.Status)
	if err != nil {
		writeError(w, h.logger, err, "failed to mark attendance")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// FeedbackEligibility handles GET /api/events/{id}/feedback/eligibility
func (h *EventHandler) FeedbackEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	err = h.service.CheckFeedback(r.Context(), id, auth.UserID(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"eligible": true})
	case errorx.KindOf(err) == errorx.KindPolicy:
		writeJSON(w, http.StatusOK, map[string]any{"eligible": false, "reason": err.Error()})
	default:
		writeError(w, h.logger, err, "failed to check feedback eligibility")
	}
}

type feedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// SubmitFeedback handles POST /api/events/{id}/feedback
func (h *EventHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.service.SubmitFeedback(r.Context(), id, auth.UserID(r.Context()), req.Rating, req.Comment); err != nil {
		writeError(w, h.logger, err, "failed to submit feedback")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
