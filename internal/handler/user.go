package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/campuspulse/campuspulse/internal/auth"
	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
	"github.com/campuspulse/campuspulse/internal/push"
	"github.com/campuspulse/campuspulse/internal/store"
)

type UserHandler struct {
	users  *store.UserStore
	tokens *store.DeviceTokenStore
	clock  clock.Clock
	vapid  string
	logger *slog.Logger
}

// NewUserHandler creates the handler. vapidPublicKey may be empty when web
// push is not configured.
func NewUserHandler(us *store.UserStore, ts *store.DeviceTokenStore, clk clock.Clock, vapidPublicKey string, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: us, tokens: ts, clock: clk, vapid: vapidPublicKey, logger: logger}
}

type createUserRequest struct {
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
}

// Create handles POST /api/admin/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Name == "" || req.Email == "" {
		writeMessage(w, http.StatusBadRequest, "name and email are required")
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		writeMessage(w, http.StatusBadRequest, "unknown role")
		return
	}

	u, err := h.users.Create(r.Context(), req.Name, req.Email, req.Role)
	if err != nil {
		writeError(w, h.logger, err, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Me handles GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Wallet handles GET /api/me/wallet
func (h *UserHandler) Wallet(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"wallet":          u.Wallet,
		"level":           u.Level,
		"events_attended": nonNil(u.EventsAttended),
		"feedbacks_given": nonNil(u.FeedbacksGiven),
	})
}

func (h *UserHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	u, err := h.users.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to get user")
		return nil, false
	}
	if u == nil {
		writeError(w, h.logger, errorx.ErrUserNotFound, "")
		return nil, false
	}
	return u, true
}

type deviceRequest struct {
	Token    string         `json:"token"`
	Platform model.Platform `json:"platform"`
}

// RegisterDevice handles POST /api/me/devices. Web tokens are the JSON
// push subscription produced by the browser.
func (h *UserHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}
	if !req.Platform.Valid() {
		writeMessage(w, http.StatusBadRequest, "platform must be ios, android or web")
		return
	}
	if req.Platform == model.PlatformWeb && !push.IsWebSubscription(req.Token) {
		writeMessage(w, http.StatusBadRequest, "web token must be a push subscription")
		return
	}

	d, err := h.tokens.Upsert(r.Context(), auth.UserID(r.Context()), req.Token, req.Platform, h.clock.Now())
	if err != nil {
		writeError(w, h.logger, err, "failed to register device")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// ListDevices handles GET /api/me/devices
func (h *UserHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.ListByUser(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err, "failed to list devices")
		return
	}
	if tokens == nil {
		tokens = []model.DeviceToken{}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// RemoveDevice handles DELETE /api/me/devices
func (h *UserHandler) RemoveDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeMessage(w, http.StatusBadRequest, "token is required")
		return
	}

	removed, err := h.tokens.Remove(r.Context(), auth.UserID(r.Context()), req.Token)
	if err != nil {
		writeError(w, h.logger, err, "failed to remove device")
		return
	}
	if !removed {
		writeMessage(w, http.StatusNotFound, "device not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /api/me/preferences
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, effectiveSettings(u.PushSettings))
}

type preferencesRequest struct {
	Enabled    *bool             `json:"enabled"`
	QuietHours *model.QuietHours `json:"quiet_hours"`
	Categories map[string]bool   `json:"categories"`
}

// UpdatePreferences handles PUT /api/me/preferences. Omitted fields keep
// their current value.
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	settings := u.PushSettings
	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.QuietHours != nil {
		qh := *req.QuietHours
		if qh.Enabled {
			if _, ok := push.ParseClock(qh.Start); !ok {
				writeMessage(w, http.StatusBadRequest, "quiet_hours.start must be HH:MM")
				return
			}
			if _, ok := push.ParseClock(qh.End); !ok {
				writeMessage(w, http.StatusBadRequest, "quiet_hours.end must be HH:MM")
				return
			}
		}
		settings.QuietHours = qh
	}
	for notifType := range req.Categories {
		if _, known := push.DefaultCategories[notifType]; !known {
			writeMessage(w, http.StatusBadRequest, "unknown notification type "+notifType)
			return
		}
	}

	ctx := r.Context()
	if err := h.users.UpdatePushSettings(ctx, u.ID, settings.Enabled, settings.QuietHours); err != nil {
		writeError(w, h.logger, err, "failed to update preferences")
		return
	}
	if settings.Categories == nil {
		settings.Categories = map[string]bool{}
	}
	for notifType, enabled := range req.Categories {
		if err := h.users.SetPreference(ctx, u.ID, notifType, enabled); err != nil {
			writeError(w, h.logger, err, "failed to update preferences")
			return
		}
		settings.Categories[notifType] = enabled
	}

	writeJSON(w, http.StatusOK, effectiveSettings(settings))
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *UserHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapid == "" {
		writeMessage(w, http.StatusNotFound, "web push is not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.vapid})
}

// effectiveSettings fills unset categories with their defaults.
func effectiveSettings(s model.PushSettings) model.PushSettings {
	cats := make(map[string]bool, len(push.DefaultCategories))
	for k, v := range push.DefaultCategories {
		cats[k] = v
	}
	for k, v := range s.Categories {
		cats[k] = v
	}
	s.Categories = cats
	return s
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

