package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/campuspulse/campuspulse/internal/database"
	"github.com/campuspulse/campuspulse/internal/model"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, name string, role model.Role) int64 {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), name, fmt.Sprintf("%s@campus.test", name), role)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

// createTestEvent creates an event and moves it to status.
func createTestEvent(t *testing.T, db *sql.DB, start time.Time, capacity int, status model.EventStatus) int64 {
	t.Helper()
	es := NewEventStore(db)
	e, err := es.Create(context.Background(), model.NewEvent{
		Title:        "Robotics Club Kickoff",
		StartTime:    start,
		ExpectedTime: 120,
		MaxCapacity:  capacity,
	}, testNow)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if status != model.EventPending {
		if _, err := db.Exec(`UPDATE events SET status = ? WHERE id = ?`, status, e.ID); err != nil {
			t.Fatalf("set event status: %v", err)
		}
	}
	return e.ID
}
