package model

import "time"

type Role string

const (
	RoleUser    Role = "user"
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleStudent, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role may manage attendance and events.
func (r Role) Privileged() bool {
	return r == RoleStaff || r == RoleAdmin
}

type User struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	Role           Role          `json:"role"`
	Wallet         int           `json:"wallet"`
	Level          int           `json:"level"`
	EventsAttended []int64       `json:"events_attended"`
	FeedbacksGiven []int64       `json:"feedbacks_given"`
	DeviceTokens   []DeviceToken `json:"device_tokens,omitempty"`
	PushSettings   PushSettings  `json:"push_settings"`
	CreatedAt      time.Time     `json:"created_at"`
}

type CreditKind string

const (
	CreditAttendance CreditKind = "attendance"
	CreditFeedback   CreditKind = "feedback"
)
