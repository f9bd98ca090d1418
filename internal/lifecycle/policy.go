package lifecycle

import (
	"time"

	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
)

var transitions = map[model.EventStatus][]model.EventStatus{
	model.EventPending:  {model.EventApproved, model.EventCancelled},
	model.EventApproved: {model.EventUpcoming, model.EventOngoing, model.EventCancelled},
	model.EventUpcoming: {model.EventOngoing, model.EventCancelled},
	model.EventOngoing:  {model.EventCompleted, model.EventCancelled},
}

// CanTransition reports whether an event may move from one status to another.
// Completed and cancelled events are terminal.
func CanTransition(from, to model.EventStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckRegister returns the reason userID may not join e, or nil.
func CheckRegister(e *model.Event, userID int64) error {
	if !e.Status.OpenForRegistration() {
		return errorx.Wrap(errorx.ErrRegistrationClosed, "event is %s", e.Status)
	}
	if _, ok := e.Attendee(userID); ok {
		return errorx.ErrAlreadyRegistered
	}
	if len(e.Attendees) >= e.MaxCapacity {
		return errorx.Wrap(errorx.ErrCapacityExceeded, "%d of %d spots taken", len(e.Attendees), e.MaxCapacity)
	}
	return nil
}

// CheckUnregister returns the reason userID may not leave e at now, or nil.
func CheckUnregister(e *model.Event, userID int64, now time.Time) error {
	a, ok := e.Attendee(userID)
	if !ok {
		return errorx.ErrNotRegistered
	}
	if !e.Status.OpenForRegistration() {
		return errorx.Wrap(errorx.ErrRegistrationClosed, "event is %s", e.Status)
	}
	if !now.Before(e.StartTime) {
		return errorx.Wrap(errorx.ErrRegistrationClosed, "event already started")
	}
	if a.Status != model.AttendeeRegistered {
		return errorx.Wrap(errorx.ErrRegistrationClosed, "attendance already recorded as %s", a.Status)
	}
	return nil
}

// CheckFeedback returns the first rule that keeps u from rating e at now,
// or nil when feedback is allowed.
func CheckFeedback(e *model.Event, u *model.User, now time.Time, cfg Config) error {
	if u.Role.Privileged() {
		return errorx.Wrap(errorx.ErrFeedbackNotEligible, "%s accounts cannot give feedback", u.Role)
	}
	if opens := FeedbackOpensAt(e, cfg); now.Before(opens) {
		return errorx.Wrap(errorx.ErrFeedbackNotEligible, "feedback opens at %s", opens.UTC().Format(time.RFC3339))
	}
	a, ok := e.Attendee(u.ID)
	if !ok || a.Status != model.AttendeeAttended {
		return errorx.Wrap(errorx.ErrFeedbackNotEligible, "attendance not confirmed")
	}
	if e.HasFeedbackFrom(u.ID) {
		return errorx.Wrap(errorx.ErrFeedbackNotEligible, "feedback already submitted")
	}
	return nil
}

// EndTime is the start time plus the expected duration.
func EndTime(e *model.Event, cfg Config) time.Time {
	return e.StartTime.Add(time.Duration(e.ExpectedTime) * cfg.ExpectedTimeUnit)
}

// FeedbackOpensAt is the end time plus the cool-down.
func FeedbackOpensAt(e *model.Event, cfg Config) time.Time {
	return EndTime(e, cfg).Add(cfg.FeedbackCooldown)
}
