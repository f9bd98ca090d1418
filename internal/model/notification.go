package model

import "time"

type Notification struct {
	ID           int64          `json:"id"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Type         string         `json:"type"`
	RelatedEvent *int64         `json:"related_event"`
	ReminderType string         `json:"reminder_type,omitempty"`
	Recipients   []Recipient    `json:"recipients"`
	Data         map[string]any `json:"data"`
	ScheduledFor time.Time      `json:"scheduled_for"`
	PushStatus   PushStatus     `json:"push_status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// RecipientIDs returns recipient user ids in order.
func (n *Notification) RecipientIDs() []int64 {
	ids := make([]int64, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}

type Recipient struct {
	UserID      int64      `json:"user_id"`
	Read        bool       `json:"read"`
	Delivered   bool       `json:"delivered"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// PushStatus is the aggregate outcome of the last dispatch. SentAt is nil
// until a dispatch has been attempted.
type PushStatus struct {
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sent_at"`
	Error  string     `json:"error"`
}

// InboxItem is a notification as seen by one recipient.
type InboxItem struct {
	Notification
	Read      bool `json:"read"`
	Delivered bool `json:"delivered"`
}
