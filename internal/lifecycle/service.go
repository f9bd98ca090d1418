// Package lifecycle decides who may act on an event and when, and applies the
// resulting attendee, status and wallet changes.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campuspulse/campuspulse/internal/clock"
	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
)

type Config struct {
	// ExpectedTimeUnit converts Event.ExpectedTime into a duration.
	ExpectedTimeUnit time.Duration
	FeedbackCooldown time.Duration
}

func DefaultConfig() Config {
	return Config{
		ExpectedTimeUnit: time.Minute,
		FeedbackCooldown: 5 * time.Minute,
	}
}

type EventRepository interface {
	Create(ctx context.Context, ne model.NewEvent, now time.Time) (*model.Event, error)
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	ListByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error)
	UpdateStatus(ctx context.Context, id int64, from, to model.EventStatus, now time.Time) (bool, error)
	AddAttendee(ctx context.Context, eventID, userID int64, now time.Time) (bool, error)
	RemoveAttendee(ctx context.Context, eventID, userID int64, now time.Time) (bool, error)
	SetAttendeeStatus(ctx context.Context, eventID, userID int64, status model.AttendeeStatus, checkIn *time.Time) (bool, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	ApplyCredit(ctx context.Context, userID, eventID int64, kind model.CreditKind, points int) (bool, error)
	SubmitFeedback(ctx context.Context, userID, eventID int64, rating int, comment string, now time.Time) (bool, error)
}

// Notifier delivers follow-up notifications produced by lifecycle changes.
type Notifier interface {
	Notify(ctx context.Context, n *model.Notification) error
}

// Actor is the authenticated caller of a privileged operation.
type Actor struct {
	UserID int64
	Role   model.Role
}

type Service struct {
	events   EventRepository
	users    UserRepository
	clock    clock.Clock
	cfg      Config
	notifier Notifier
	logger   *slog.Logger
}

func NewService(events EventRepository, users UserRepository, clk clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.ExpectedTimeUnit <= 0 {
		cfg.ExpectedTimeUnit = time.Minute
	}
	if cfg.FeedbackCooldown < 0 {
		cfg.FeedbackCooldown = 0
	}
	return &Service{
		events: events,
		users:  users,
		clock:  clk,
		cfg:    cfg,
		logger: logger.With("component", "lifecycle"),
	}
}

// SetNotifier enables follow-up notifications. A nil notifier disables them.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) Config() Config {
	return s.cfg
}

// CreateEvent validates ne and stores it as pending.
func (s *Service) CreateEvent(ctx context.Context, ne model.NewEvent) (*model.Event, error) {
	ne.Title = strings.TrimSpace(ne.Title)
	switch {
	case ne.Title == "":
		return nil, errorx.Validation("title is required")
	case ne.StartTime.IsZero():
		return nil, errorx.Validation("start_time is required")
	case ne.ExpectedTime <= 0:
		return nil, errorx.Validation("expected_time must be positive")
	case ne.MaxCapacity <= 0:
		return nil, errorx.Validation("max_capacity must be positive")
	case ne.RewardPoints < 0:
		return nil, errorx.Validation("reward_points cannot be negative")
	}

	e, err := s.events.Create(ctx, ne, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.logger.Info("event created", "event_id", e.ID, "start", e.StartTime)
	return e, nil
}

func (s *Service) GetEvent(ctx context.Context, eventID int64) (*model.Event, error) {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	if e == nil {
		return nil, errorx.Wrap(errorx.ErrEventNotFound, "id %d", eventID)
	}
	return e, nil
}

func (s *Service) getUser(ctx context.Context, userID int64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u == nil {
		return nil, errorx.Wrap(errorx.ErrUserNotFound, "id %d", userID)
	}
	return u, nil
}

// Register adds userID to the event's attendees. Attendance credit is only
// granted later by MarkAttendance.
func (s *Service) Register(ctx context.Context, eventID, userID int64) (*model.Event, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return nil, err
	}
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := CheckRegister(e, userID); err != nil {
		return nil, err
	}

	ok, err := s.events.AddAttendee(ctx, eventID, userID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	e, err = s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with a concurrent change; report the current reason.
		if err := CheckRegister(e, userID); err != nil {
			return nil, err
		}
		return nil, errorx.ErrCapacityExceeded
	}

	s.logger.Info("user registered", "event_id", eventID, "user_id", userID, "attendees", len(e.Attendees))
	return e, nil
}

// Unregister removes userID from an event that has not started.
func (s *Service) Unregister(ctx context.Context, eventID, userID int64) (*model.Event, error) {
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := CheckUnregister(e, userID, now); err != nil {
		return nil, err
	}

	ok, err := s.events.RemoveAttendee(ctx, eventID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("unregister: %w", err)
	}

	e, err = s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := CheckUnregister(e, userID, now); err != nil {
			return nil, err
		}
		return nil, errorx.ErrNotRegistered
	}

	s.logger.Info("user unregistered", "event_id", eventID, "user_id", userID)
	return e, nil
}

// MarkAttendance records an attendee's status. Marking a user attended
// credits the event reward to their wallet at most once.
func (s *Service) MarkAttendance(ctx context.Context, actor Actor, eventID, userID int64, status model.AttendeeStatus) (*model.Attendee, error) {
	if !actor.Role.Privileged() {
		return nil, errorx.Wrap(errorx.ErrPermissionDenied, "only staff or admins can mark attendance")
	}
	if !status.Valid() {
		return nil, errorx.Validation("invalid attendee status %q", status)
	}

	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	a, ok := e.Attendee(userID)
	if !ok {
		return nil, errorx.ErrNotRegistered
	}

	now := s.clock.Now()
	var checkIn *time.Time
	if (status == model.AttendeeCheckedIn || status == model.AttendeeAttended) && a.CheckInTime == nil {
		checkIn = &now
	}
	ok, err = s.events.SetAttendeeStatus(ctx, eventID, userID, status, checkIn)
	if err != nil {
		return nil, fmt.Errorf("mark attendance: %w", err)
	}
	if !ok {
		return nil, errorx.ErrNotRegistered
	}

	if status == model.AttendeeAttended {
		if err := s.creditAttendance(ctx, e, userID); err != nil {
			return nil, err
		}
	}

	e, err = s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	a, _ = e.Attendee(userID)
	s.logger.Info("attendance marked", "event_id", eventID, "user_id", userID, "status", status, "by", actor.UserID)
	return a, nil
}

func (s *Service) creditAttendance(ctx context.Context, e *model.Event, userID int64) error {
	credited, err := s.users.ApplyCredit(ctx, userID, e.ID, model.CreditAttendance, e.RewardPoints)
	if err != nil {
		return fmt.Errorf("credit attendance: %w", err)
	}
	if !credited {
		return nil
	}
	s.notify(ctx, &model.Notification{
		Title:        "Reward earned",
		Message:      fmt.Sprintf("Thanks for attending %s!", e.Title),
		Type:         model.NotifTypeReward,
		RelatedEvent: &e.ID,
		Recipients:   []model.Recipient{{UserID: userID}},
		Data:         map[string]any{"event_id": e.ID, "kind": string(model.CreditAttendance)},
	})
	return nil
}

// Transition moves an event to status to if the transition table allows it.
func (s *Service) Transition(ctx context.Context, eventID int64, to model.EventStatus) (*model.Event, error) {
	if !to.Valid() {
		return nil, errorx.Validation("invalid event status %q", to)
	}
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, e, to); err != nil {
		return nil, err
	}
	return s.GetEvent(ctx, eventID)
}

func (s *Service) transition(ctx context.Context, e *model.Event, to model.EventStatus) error {
	from := e.Status
	if !CanTransition(from, to) {
		return errorx.Wrap(errorx.ErrInvalidTransition, "%s to %s", from, to)
	}
	ok, err := s.events.UpdateStatus(ctx, e.ID, from, to, s.clock.Now())
	if err != nil {
		return fmt.Errorf("transition event: %w", err)
	}
	if !ok {
		return errorx.Wrap(errorx.ErrInvalidTransition, "event %d is no longer %s", e.ID, from)
	}
	s.logger.Info("event transitioned", "event_id", e.ID, "from", from, "to", to)

	switch to {
	case model.EventCancelled:
		if ids := e.AttendeeIDs(); len(ids) > 0 {
			s.notify(ctx, &model.Notification{
				Title:        "Event cancelled",
				Message:      fmt.Sprintf("%s has been cancelled.", e.Title),
				Type:         model.NotifTypeEventUpdate,
				RelatedEvent: &e.ID,
				Recipients:   recipients(ids),
				Data:         map[string]any{"event_id": e.ID, "status": string(to)},
			})
		}
	case model.EventCompleted:
		var ids []int64
		for _, a := range e.Attendees {
			if a.Status == model.AttendeeAttended {
				ids = append(ids, a.UserID)
			}
		}
		if len(ids) > 0 {
			s.notify(ctx, &model.Notification{
				Title:        "How was it?",
				Message:      fmt.Sprintf("Rate %s and earn coins.", e.Title),
				Type:         model.NotifTypeFeedbackRequest,
				RelatedEvent: &e.ID,
				Recipients:   recipients(ids),
				ScheduledFor: FeedbackOpensAt(e, s.cfg),
				Data:         map[string]any{"event_id": e.ID},
			})
		}
	}
	return nil
}

// AdvanceReport lists the events AdvanceByTime moved.
type AdvanceReport struct {
	Started   []int64 `json:"started"`
	Completed []int64 `json:"completed"`
}

// AdvanceByTime starts open events whose start time has passed and completes
// ongoing events whose expected end has passed. Failures on one event do not
// stop the others; the first is returned.
func (s *Service) AdvanceByTime(ctx context.Context) (AdvanceReport, error) {
	var report AdvanceReport
	now := s.clock.Now()

	open, err := s.events.ListByStatus(ctx, []model.EventStatus{model.EventApproved, model.EventUpcoming})
	if err != nil {
		return report, fmt.Errorf("list open events: %w", err)
	}
	ongoing, err := s.events.ListByStatus(ctx, []model.EventStatus{model.EventOngoing})
	if err != nil {
		return report, fmt.Errorf("list ongoing events: %w", err)
	}

	var errs []error
	for i := range open {
		e := &open[i]
		if now.Before(e.StartTime) {
			continue
		}
		if err := s.transition(ctx, e, model.EventOngoing); err != nil {
			if !errors.Is(err, errorx.ErrInvalidTransition) {
				errs = append(errs, err)
			}
			continue
		}
		report.Started = append(report.Started, e.ID)
		// Short events may already be over.
		if !now.Before(EndTime(e, s.cfg)) {
			ongoing = append(ongoing, *e)
			ongoing[len(ongoing)-1].Status = model.EventOngoing
		}
	}

	for i := range ongoing {
		if now.Before(EndTime(&ongoing[i], s.cfg)) {
			continue
		}
		// Reload so the completion notice sees final attendee statuses.
		e, err := s.GetEvent(ctx, ongoing[i].ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.transition(ctx, e, model.EventCompleted); err != nil {
			if !errors.Is(err, errorx.ErrInvalidTransition) {
				errs = append(errs, err)
			}
			continue
		}
		report.Completed = append(report.Completed, e.ID)
	}

	return report, errors.Join(errs...)
}

// CanGiveFeedback reports whether userID may rate the event now.
func (s *Service) CanGiveFeedback(ctx context.Context, eventID, userID int64) (bool, error) {
	err := s.CheckFeedback(ctx, eventID, userID)
	if errors.Is(err, errorx.ErrFeedbackNotEligible) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CheckFeedback is CanGiveFeedback with the failing rule as an error.
func (s *Service) CheckFeedback(ctx context.Context, eventID, userID int64) error {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return err
	}
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	return CheckFeedback(e, u, s.clock.Now(), s.cfg)
}

// SubmitFeedback stores a rating and credits the feedback reward once.
func (s *Service) SubmitFeedback(ctx context.Context, eventID, userID int64, rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return errorx.Validation("rating must be between 1 and 5")
	}
	if err := s.CheckFeedback(ctx, eventID, userID); err != nil {
		return err
	}

	ok, err := s.users.SubmitFeedback(ctx, userID, eventID, rating, strings.TrimSpace(comment), s.clock.Now())
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	if !ok {
		return errorx.Wrap(errorx.ErrFeedbackNotEligible, "feedback already submitted")
	}
	s.logger.Info("feedback submitted", "event_id", eventID, "user_id", userID, "rating", rating)
	return nil
}

func (s *Service) notify(ctx context.Context, n *model.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("follow-up notification failed", "type", n.Type, "error", err)
	}
}

func recipients(ids []int64) []model.Recipient {
	out := make([]model.Recipient, len(ids))
	for i, id := range ids {
		out[i] = model.Recipient{UserID: id}
	}
	return out
}
