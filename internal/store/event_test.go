package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

func TestEventCreate(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	start := testNow.Add(48 * time.Hour)

	e, err := es.Create(context.Background(), model.NewEvent{
		Title:        "Hackathon",
		Location:     "Library",
		StartTime:    start,
		ExpectedTime: 90,
		MaxCapacity:  30,
		RewardPoints: 25,
	}, testNow)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if e.Status != model.EventPending {
		t.Errorf("status = %q, want %q", e.Status, model.EventPending)
	}
	if !e.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", e.StartTime, start)
	}
	if len(e.Attendees) != 0 {
		t.Errorf("attendees = %d, want 0", len(e.Attendees))
	}
}

func TestAddAttendeeCapacity(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow.Add(24*time.Hour), 2, model.EventApproved)
	a := createTestUser(t, db, "a", model.RoleStudent)
	b := createTestUser(t, db, "b", model.RoleStudent)
	c := createTestUser(t, db, "c", model.RoleStudent)

	for _, uid := range []int64{a, b} {
		ok, err := es.AddAttendee(ctx, eid, uid, testNow)
		if err != nil {
			t.Fatalf("add attendee %d: %v", uid, err)
		}
		if !ok {
			t.Fatalf("expected attendee %d added", uid)
		}
	}
	if ok, _ := es.AddAttendee(ctx, eid, c, testNow); ok {
		t.Error("expected third attendee rejected at capacity")
	}

	if ok, _ := es.RemoveAttendee(ctx, eid, a, testNow); !ok {
		t.Fatal("expected attendee removed")
	}
	if ok, _ := es.AddAttendee(ctx, eid, c, testNow); !ok {
		t.Error("expected attendee added after a spot freed")
	}

	e, _ := es.GetByID(ctx, eid)
	ids := e.AttendeeIDs()
	if len(ids) != 2 || ids[0] != b || ids[1] != c {
		t.Errorf("attendees = %v, want [%d %d]", ids, b, c)
	}
}

func TestAddAttendeeDuplicate(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow.Add(24*time.Hour), 10, model.EventUpcoming)
	uid := createTestUser(t, db, "a", model.RoleStudent)

	es.AddAttendee(ctx, eid, uid, testNow)
	if ok, _ := es.AddAttendee(ctx, eid, uid, testNow); ok {
		t.Error("expected duplicate registration ignored")
	}
}

func TestAddAttendeeClosedStatus(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "a", model.RoleStudent)

	for _, status := range []model.EventStatus{model.EventPending, model.EventOngoing, model.EventCompleted, model.EventCancelled} {
		eid := createTestEvent(t, db, testNow.Add(24*time.Hour), 10, status)
		if ok, _ := es.AddAttendee(ctx, eid, uid, testNow); ok {
			t.Errorf("status %s: expected registration rejected", status)
		}
	}
}

func TestAddAttendeeConcurrentNeverExceedsCapacity(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow.Add(24*time.Hour), 3, model.EventApproved)

	var users []int64
	for i := 0; i < 12; i++ {
		users = append(users, createTestUser(t, db, fmt.Sprintf("u%d", i), model.RoleStudent))
	}

	var wg sync.WaitGroup
	var added atomic.Int32
	for _, uid := range users {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			ok, err := es.AddAttendee(ctx, eid, uid, testNow)
			if err != nil {
				t.Errorf("add attendee: %v", err)
				return
			}
			if ok {
				added.Add(1)
			}
		}(uid)
	}
	wg.Wait()

	if added.Load() != 3 {
		t.Errorf("added = %d, want 3", added.Load())
	}
	e, _ := es.GetByID(ctx, eid)
	if len(e.Attendees) != 3 {
		t.Errorf("attendees = %d, want 3", len(e.Attendees))
	}
}

func TestRemoveAttendeeRules(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow.Add(time.Hour), 10, model.EventApproved)
	uid := createTestUser(t, db, "a", model.RoleStudent)
	es.AddAttendee(ctx, eid, uid, testNow)

	if ok, _ := es.RemoveAttendee(ctx, eid, uid, testNow.Add(2*time.Hour)); ok {
		t.Error("expected removal rejected after start")
	}

	now := testNow
	es.SetAttendeeStatus(ctx, eid, uid, model.AttendeeCheckedIn, &now)
	if ok, _ := es.RemoveAttendee(ctx, eid, uid, testNow); ok {
		t.Error("expected checked-in attendee kept")
	}
}

func TestSetAttendeeStatusKeepsCheckIn(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow, 10, model.EventApproved)
	uid := createTestUser(t, db, "a", model.RoleStudent)
	es.AddAttendee(ctx, eid, uid, testNow.Add(-time.Hour))

	checkIn := testNow.Add(5 * time.Minute)
	if ok, err := es.SetAttendeeStatus(ctx, eid, uid, model.AttendeeCheckedIn, &checkIn); err != nil || !ok {
		t.Fatalf("check in: ok=%v err=%v", ok, err)
	}
	if ok, err := es.SetAttendeeStatus(ctx, eid, uid, model.AttendeeAbsent, nil); err != nil || !ok {
		t.Fatalf("mark absent: ok=%v err=%v", ok, err)
	}

	e, _ := es.GetByID(ctx, eid)
	a, _ := e.Attendee(uid)
	if a.Status != model.AttendeeAbsent {
		t.Errorf("status = %q, want %q", a.Status, model.AttendeeAbsent)
	}
	if a.CheckInTime == nil || !a.CheckInTime.Equal(checkIn) {
		t.Errorf("check_in_time = %v, want %v", a.CheckInTime, checkIn)
	}

	if ok, _ := es.SetAttendeeStatus(ctx, eid, 999, model.AttendeeAttended, nil); ok {
		t.Error("expected unknown attendee not updated")
	}
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow, 10, model.EventPending)

	ok, err := es.UpdateStatus(ctx, eid, model.EventPending, model.EventApproved, testNow)
	if err != nil || !ok {
		t.Fatalf("update status: ok=%v err=%v", ok, err)
	}
	if ok, _ := es.UpdateStatus(ctx, eid, model.EventPending, model.EventCancelled, testNow); ok {
		t.Error("expected stale from status rejected")
	}
}

func TestListReminderCandidates(t *testing.T) {
	db := setupTestDB(t)
	es := NewEventStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "a", model.RoleStudent)

	withAttendee := createTestEvent(t, db, testNow.Add(2*time.Hour), 10, model.EventApproved)
	es.AddAttendee(ctx, withAttendee, uid, testNow)
	createTestEvent(t, db, testNow.Add(2*time.Hour), 10, model.EventApproved) // empty
	tooFar := createTestEvent(t, db, testNow.Add(30*time.Hour), 10, model.EventUpcoming)
	es.AddAttendee(ctx, tooFar, uid, testNow)
	past := createTestEvent(t, db, testNow.Add(-time.Minute), 10, model.EventApproved)
	es.AddAttendee(ctx, past, uid, testNow.Add(-time.Hour))

	events, err := es.ListReminderCandidates(ctx,
		[]model.EventStatus{model.EventApproved, model.EventUpcoming}, testNow, testNow.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].ID != withAttendee {
		t.Errorf("event id = %d, want %d", events[0].ID, withAttendee)
	}
	if len(events[0].Attendees) != 1 || events[0].Attendees[0].UserID != uid {
		t.Errorf("attendees = %+v", events[0].Attendees)
	}
}
