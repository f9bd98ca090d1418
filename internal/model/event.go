package model

import "time"

type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventApproved  EventStatus = "approved"
	EventUpcoming  EventStatus = "upcoming"
	EventOngoing   EventStatus = "ongoing"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventApproved, EventUpcoming, EventOngoing, EventCompleted, EventCancelled:
		return true
	}
	return false
}

// OpenForRegistration reports whether attendees may join or leave in this status.
func (s EventStatus) OpenForRegistration() bool {
	return s == EventApproved || s == EventUpcoming
}

type AttendeeStatus string

const (
	AttendeeRegistered AttendeeStatus = "registered"
	AttendeeAttended   AttendeeStatus = "attended"
	AttendeeAbsent     AttendeeStatus = "absent"
	AttendeeCheckedIn  AttendeeStatus = "checked_in"
)

func (s AttendeeStatus) Valid() bool {
	switch s {
	case AttendeeRegistered, AttendeeAttended, AttendeeAbsent, AttendeeCheckedIn:
		return true
	}
	return false
}

type Event struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Location     string      `json:"location"`
	OrganizerID  *int64      `json:"organizer_id"`
	Status       EventStatus `json:"status"`
	StartTime    time.Time   `json:"start_time"`
	ExpectedTime int         `json:"expected_time"`
	MaxCapacity  int         `json:"max_capacity"`
	RewardPoints int         `json:"reward_points"`
	Attendees    []Attendee  `json:"attendees"`
	Feedback     []Feedback  `json:"feedback"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Attendee returns the attendee entry for userID, if any.
func (e *Event) Attendee(userID int64) (*Attendee, bool) {
	for i := range e.Attendees {
		if e.Attendees[i].UserID == userID {
			return &e.Attendees[i], true
		}
	}
	return nil, false
}

// HasFeedbackFrom reports whether userID already left feedback.
func (e *Event) HasFeedbackFrom(userID int64) bool {
	for _, f := range e.Feedback {
		if f.UserID == userID {
			return true
		}
	}
	return false
}

// AttendeeIDs returns attendee user ids in registration order.
func (e *Event) AttendeeIDs() []int64 {
	ids := make([]int64, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		ids = append(ids, a.UserID)
	}
	return ids
}

type Attendee struct {
	UserID       int64          `json:"user_id"`
	Status       AttendeeStatus `json:"status"`
	CheckInTime  *time.Time     `json:"check_in_time"`
	RegisteredAt time.Time      `json:"registered_at"`
}

type Feedback struct {
	UserID    int64     `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent holds the fields an organizer supplies when creating an event.
type NewEvent struct {
	Title        string
	Description  string
	Location     string
	OrganizerID  *int64
	StartTime    time.Time
	ExpectedTime int
	MaxCapacity  int
	RewardPoints int
}
