package push

import (
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

// DefaultCategories is used for notification types a user never configured.
var DefaultCategories = map[string]bool{
	model.NotifTypeEventReminder:   true,
	model.NotifTypeEventUpdate:     true,
	model.NotifTypeAnnouncement:    true,
	model.NotifTypeFeedbackRequest: true,
	model.NotifTypeReward:          true,
}

// WantsNotification reports whether settings allow a push of notifType.
// Unknown types are allowed unless push is switched off entirely.
func WantsNotification(settings model.PushSettings, notifType string) bool {
	if !settings.Enabled {
		return false
	}
	if enabled, ok := settings.Categories[notifType]; ok {
		return enabled
	}
	if enabled, ok := DefaultCategories[notifType]; ok {
		return enabled
	}
	return true
}

// IsQuietHours reports whether now falls inside the user's quiet window,
// compared at minute resolution in now's location. A window whose start is
// after its end spans midnight. Unparsable times never silence a user.
func IsQuietHours(settings model.PushSettings, now time.Time) bool {
	qh := settings.QuietHours
	if !qh.Enabled {
		return false
	}
	start, ok := ParseClock(qh.Start)
	if !ok {
		return false
	}
	end, ok := ParseClock(qh.End)
	if !ok {
		return false
	}

	cur := now.Hour()*60 + now.Minute()
	if start > end {
		return cur >= start || cur <= end
	}
	return cur >= start && cur <= end
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
