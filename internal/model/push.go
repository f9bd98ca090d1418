package model

import "time"

// Notification type constants
const (
	NotifTypeEventReminder   = "event_reminder"
	NotifTypeEventUpdate     = "event_update"
	NotifTypeAnnouncement    = "announcement"
	NotifTypeFeedbackRequest = "feedback_request"
	NotifTypeReward          = "reward"
)

const (
	// MaxActiveTokensPerPlatform is how many active tokens a user keeps per platform.
	MaxActiveTokensPerPlatform = 5
	// DeviceTokenStaleAfter excludes tokens unused for longer than this from delivery.
	DeviceTokenStaleAfter = 30 * 24 * time.Hour
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

func (p Platform) Valid() bool {
	return p == PlatformIOS || p == PlatformAndroid || p == PlatformWeb
}

type DeviceToken struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	LastUsed  time.Time `json:"last_used"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Deliverable reports whether the token is active and was used recently enough.
func (d DeviceToken) Deliverable(now time.Time) bool {
	return d.Active && now.Sub(d.LastUsed) <= DeviceTokenStaleAfter
}

// PushSettings is a user's delivery configuration.
type PushSettings struct {
	Enabled    bool            `json:"enabled"`
	Categories map[string]bool `json:"categories"`
	QuietHours QuietHours      `json:"quiet_hours"`
}

// QuietHours is a time-of-day window in "HH:MM" form.
type QuietHours struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

type NotificationPreference struct {
	UserID           int64     `json:"user_id"`
	NotificationType string    `json:"notification_type"`
	Enabled          bool      `json:"enabled"`
	UpdatedAt        time.Time `json:"updated_at"`
}
