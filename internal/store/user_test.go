package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
)

func TestUserCreate(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	u, err := us.Create(context.Background(), "Alice", "alice@campus.test", model.RoleStudent)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if u.Wallet != 0 {
		t.Errorf("wallet = %d, want 0", u.Wallet)
	}
	if u.Level != 1 {
		t.Errorf("level = %d, want 1", u.Level)
	}
	if !u.PushSettings.Enabled {
		t.Error("expected push enabled by default")
	}
	if u.PushSettings.QuietHours.Start != "22:00" || u.PushSettings.QuietHours.End != "08:00" {
		t.Errorf("quiet hours = %s-%s, want 22:00-08:00", u.PushSettings.QuietHours.Start, u.PushSettings.QuietHours.End)
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)

	if _, err := us.Create(context.Background(), "Alice", "alice@campus.test", model.RoleStudent); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := us.Create(context.Background(), "Alice Two", "alice@campus.test", model.RoleStudent)
	if !errors.Is(err, errorx.ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestUserGetByIDMissing(t *testing.T) {
	db := setupTestDB(t)
	u, err := NewUserStore(db).GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil, got %+v", u)
	}
}

func TestApplyCreditOnce(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "bob", model.RoleStudent)

	ok, err := us.ApplyCredit(ctx, uid, 1, model.CreditAttendance, 0)
	if err != nil {
		t.Fatalf("apply credit: %v", err)
	}
	if !ok {
		t.Fatal("expected first credit to apply")
	}
	ok, err = us.ApplyCredit(ctx, uid, 1, model.CreditAttendance, 0)
	if err != nil {
		t.Fatalf("apply credit again: %v", err)
	}
	if ok {
		t.Error("expected second credit to be a no-op")
	}

	u, _ := us.GetByID(ctx, uid)
	if u.Wallet != 15 {
		t.Errorf("wallet = %d, want 15", u.Wallet)
	}
	if len(u.EventsAttended) != 1 || u.EventsAttended[0] != 1 {
		t.Errorf("events attended = %v, want [1]", u.EventsAttended)
	}
}

func TestApplyCreditLevelsUp(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "carol", model.RoleStudent)

	for eventID := int64(1); eventID <= 5; eventID++ {
		if _, err := us.ApplyCredit(ctx, uid, eventID, model.CreditAttendance, 20); err != nil {
			t.Fatalf("credit event %d: %v", eventID, err)
		}
	}
	if _, err := us.ApplyCredit(ctx, uid, 3, model.CreditFeedback, 0); err != nil {
		t.Fatalf("credit feedback: %v", err)
	}

	u, _ := us.GetByID(ctx, uid)
	if u.Wallet != 105 {
		t.Errorf("wallet = %d, want 105", u.Wallet)
	}
	if u.Level != 2 {
		t.Errorf("level = %d, want 2", u.Level)
	}
	if len(u.FeedbacksGiven) != 1 {
		t.Errorf("feedbacks given = %v, want one entry", u.FeedbacksGiven)
	}
}

func TestApplyCreditConcurrent(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "dave", model.RoleStudent)

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := us.ApplyCredit(ctx, uid, 42, model.CreditAttendance, 10)
			if err != nil {
				t.Errorf("apply credit: %v", err)
				return
			}
			if ok {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if applied != 1 {
		t.Errorf("applied = %d, want 1", applied)
	}
	u, _ := us.GetByID(ctx, uid)
	if u.Wallet != 10 {
		t.Errorf("wallet = %d, want 10", u.Wallet)
	}
}

func TestApplyCreditUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewUserStore(db).ApplyCredit(context.Background(), 999, 1, model.CreditFeedback, 0)
	if !errors.Is(err, errorx.ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestRecomputeLevel(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "erin", model.RoleStudent)

	for eventID := int64(1); eventID <= 5; eventID++ {
		us.ApplyCredit(ctx, uid, eventID, model.CreditAttendance, 0)
	}
	if _, err := db.Exec(`UPDATE users SET level = 1 WHERE id = ?`, uid); err != nil {
		t.Fatalf("corrupt level: %v", err)
	}

	level, err := us.RecomputeLevel(ctx, uid)
	if err != nil {
		t.Fatalf("recompute level: %v", err)
	}
	if level != 2 {
		t.Errorf("level = %d, want 2", level)
	}
}

func TestPreferencesAndPushProfiles(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	ts := NewDeviceTokenStore(db)
	ctx := context.Background()
	uid := createTestUser(t, db, "frank", model.RoleStudent)

	if err := us.SetPreference(ctx, uid, model.NotifTypeAnnouncement, false); err != nil {
		t.Fatalf("set preference: %v", err)
	}
	if err := us.SetPreference(ctx, uid, model.NotifTypeAnnouncement, true); err != nil {
		t.Fatalf("update preference: %v", err)
	}
	if err := us.UpdatePushSettings(ctx, uid, true, model.QuietHours{Enabled: true, Start: "23:00", End: "07:00"}); err != nil {
		t.Fatalf("update push settings: %v", err)
	}
	if _, err := ts.Upsert(ctx, uid, "tok-1", model.PlatformIOS, testNow); err != nil {
		t.Fatalf("upsert token: %v", err)
	}

	prefs, err := us.GetPreferences(ctx, uid)
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(prefs) != 1 || !prefs[0].Enabled {
		t.Errorf("prefs = %+v, want one enabled row", prefs)
	}

	profiles, err := us.ListPushProfiles(ctx, []int64{uid, 999})
	if err != nil {
		t.Fatalf("list push profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("len(profiles) = %d, want 1", len(profiles))
	}
	p := profiles[0]
	if len(p.DeviceTokens) != 1 || p.DeviceTokens[0].Token != "tok-1" {
		t.Errorf("tokens = %+v, want tok-1", p.DeviceTokens)
	}
	if !p.PushSettings.Categories[model.NotifTypeAnnouncement] {
		t.Error("expected announcement category enabled")
	}
	if !p.PushSettings.QuietHours.Enabled || p.PushSettings.QuietHours.Start != "23:00" {
		t.Errorf("quiet hours = %+v", p.PushSettings.QuietHours)
	}
}

func TestSubmitFeedbackCreditsOnce(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow, 10, model.EventCompleted)
	uid := createTestUser(t, db, "a", model.RoleStudent)

	if ok, err := us.SubmitFeedback(ctx, uid, eid, 4, "great", testNow); err != nil || !ok {
		t.Fatalf("submit feedback: ok=%v err=%v", ok, err)
	}
	if ok, _ := us.SubmitFeedback(ctx, uid, eid, 5, "again", testNow); ok {
		t.Error("expected duplicate feedback ignored")
	}

	e, _ := es.GetByID(ctx, eid)
	if len(e.Feedback) != 1 || e.Feedback[0].Rating != 4 {
		t.Errorf("feedback = %+v, want one rating 4", e.Feedback)
	}
	if !e.HasFeedbackFrom(uid) {
		t.Error("expected HasFeedbackFrom true")
	}
	u, _ := us.GetByID(ctx, uid)
	if u.Wallet != 5 {
		t.Errorf("wallet = %d, want 5", u.Wallet)
	}
	if len(u.FeedbacksGiven) != 1 || u.FeedbacksGiven[0] != eid {
		t.Errorf("feedbacks given = %v, want [%d]", u.FeedbacksGiven, eid)
	}
}

func TestSubmitFeedbackRollsBackWhenCreditFails(t *testing.T) {
	db := setupTestDB(t)
	us := NewUserStore(db)
	es := NewEventStore(db)
	ctx := context.Background()
	eid := createTestEvent(t, db, testNow, 10, model.EventCompleted)
	uid := createTestUser(t, db, "a", model.RoleStudent)

	if _, err := db.Exec(`CREATE TRIGGER reject_feedback_credit BEFORE INSERT ON user_credits
		WHEN NEW.kind = 'feedback' BEGIN SELECT RAISE(ABORT, 'credit unavailable'); END`); err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	if _, err := us.SubmitFeedback(ctx, uid, eid, 4, "great", testNow); err == nil {
		t.Fatal("expected credit failure")
	}
	e, _ := es.GetByID(ctx, eid)
	if e.HasFeedbackFrom(uid) {
		t.Fatal("feedback kept after failed credit")
	}

	if _, err := db.Exec(`DROP TRIGGER reject_feedback_credit`); err != nil {
		t.Fatalf("drop trigger: %v", err)
	}
	if ok, err := us.SubmitFeedback(ctx, uid, eid, 4, "great", testNow); err != nil || !ok {
		t.Fatalf("retry feedback: ok=%v err=%v", ok, err)
	}
	u, _ := us.GetByID(ctx, uid)
	if u.Wallet != 5 || len(u.FeedbacksGiven) != 1 {
		t.Errorf("wallet = %d feedbacks = %v, want 5 and one entry", u.Wallet, u.FeedbacksGiven)
	}
}
