package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, title, description, location, organizer_id, status, start_time, expected_time, max_capacity, reward_points, created_at, updated_at`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var organizerID sql.NullInt64
	err := scanner.Scan(&e.ID, &e.Title, &e.Description, &e.Location, &organizerID, &e.Status,
		&e.StartTime, &e.ExpectedTime, &e.MaxCapacity, &e.RewardPoints, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if organizerID.Valid {
		e.OrganizerID = &organizerID.Int64
	}
	e.Attendees = []model.Attendee{}
	e.Feedback = []model.Feedback{}
	return &e, nil
}

// Create inserts a pending event.
func (s *EventStore) Create(ctx context.Context, ne model.NewEvent, now time.Time) (*model.Event, error) {
	var organizerID sql.NullInt64
	if ne.OrganizerID != nil {
		organizerID = sql.NullInt64{Int64: *ne.OrganizerID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO events (title, description, location, organizer_id, status, start_time, expected_time, max_capacity, reward_points, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ne.Title, ne.Description, ne.Location, organizerID, model.EventPending, ne.StartTime.UTC(),
		ne.ExpectedTime, ne.MaxCapacity, ne.RewardPoints, now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the event with attendees and feedback, or nil when missing.
func (s *EventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}

	attendees, err := s.listAttendees(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	e.Attendees = append(e.Attendees, attendees[id]...)

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, rating, comment, created_at FROM event_feedback WHERE event_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f model.Feedback
		if err := rows.Scan(&f.UserID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		e.Feedback = append(e.Feedback, f)
	}
	return e, rows.Err()
}

// ListByStatus returns events in any of statuses ordered by start time.
// Attendees and feedback are not loaded.
func (s *EventStore) ListByStatus(ctx context.Context, statuses []model.EventStatus) ([]model.Event, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events WHERE status IN (`+placeholders(len(statuses))+`)
		 ORDER BY start_time ASC, id ASC`,
		statusArgs(statuses)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list events by status: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListReminderCandidates returns events in any of statuses starting in
// (from, to] that have at least one attendee, with attendees loaded.
func (s *EventStore) ListReminderCandidates(ctx context.Context, statuses []model.EventStatus, from, to time.Time) ([]model.Event, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := statusArgs(statuses)
	args = append(args, from.UTC(), to.UTC())

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventCols+` FROM events e
		 WHERE e.status IN (`+placeholders(len(statuses))+`)
		   AND e.start_time > ? AND e.start_time <= ?
		   AND EXISTS (SELECT 1 FROM event_attendees a WHERE a.event_id = e.id)
		 ORDER BY e.start_time ASC, e.id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list reminder candidates: %w", err)
	}
	events, err := scanEvents(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return events, nil
	}

	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	attendees, err := s.listAttendees(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].Attendees = append(events[i].Attendees, attendees[events[i].ID]...)
	}
	return events, nil
}

// UpdateStatus moves the event from one status to another. It reports false
// when the event is no longer in from.
func (s *EventStore) UpdateStatus(ctx context.Context, id int64, from, to model.EventStatus, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE events SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, now.UTC(), id, from,
	)
	if err != nil {
		return false, fmt.Errorf("update event status: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// AddAttendee registers userID in a single guarded insert: the event must be
// open for registration, under capacity, and the user not yet present.
func (s *EventStore) AddAttendee(ctx context.Context, eventID, userID int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_attendees (event_id, user_id, status, registered_at)
		 SELECT e.id, ?, ?, ? FROM events e
		 WHERE e.id = ? AND e.status IN (?, ?)
		   AND (SELECT COUNT(*) FROM event_attendees a WHERE a.event_id = e.id) < e.max_capacity`,
		userID, model.AttendeeRegistered, now.UTC(), eventID, model.EventApproved, model.EventUpcoming,
	)
	if err != nil {
		return false, fmt.Errorf("insert attendee: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// RemoveAttendee deletes a still-registered attendee of an open event that
// has not started yet.
func (s *EventStore) RemoveAttendee(ctx context.Context, eventID, userID int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM event_attendees
		 WHERE event_id = ? AND user_id = ? AND status = ?
		   AND EXISTS (
		     SELECT 1 FROM events e
		     WHERE e.id = event_attendees.event_id AND e.status IN (?, ?) AND e.start_time > ?
		   )`,
		eventID, userID, model.AttendeeRegistered, model.EventApproved, model.EventUpcoming, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("delete attendee: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// SetAttendeeStatus updates an attendee. A non-nil checkIn overwrites the
// check-in time; nil keeps the existing one.
func (s *EventStore) SetAttendeeStatus(ctx context.Context, eventID, userID int64, status model.AttendeeStatus, checkIn *time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE event_attendees SET status = ?, check_in_time = COALESCE(?, check_in_time)
		 WHERE event_id = ? AND user_id = ?`,
		status, nullTime(checkIn), eventID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("update attendee: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

func (s *EventStore) listAttendees(ctx context.Context, eventIDs []int64) (map[int64][]model.Attendee, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_id, user_id, status, check_in_time, registered_at FROM event_attendees
		 WHERE event_id IN (`+placeholders(len(eventIDs))+`) ORDER BY event_id, id`,
		int64Args(eventIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query attendees: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]model.Attendee)
	for rows.Next() {
		var eventID int64
		var a model.Attendee
		var checkIn sql.NullTime
		if err := rows.Scan(&eventID, &a.UserID, &a.Status, &checkIn, &a.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan attendee: %w", err)
		}
		a.CheckInTime = timePtr(checkIn)
		out[eventID] = append(out[eventID], a)
	}
	return out, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func statusArgs(statuses []model.EventStatus) []any {
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return args
}
