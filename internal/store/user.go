package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspulse/campuspulse/internal/errorx"
	"github.com/campuspulse/campuspulse/internal/model"
	"github.com/campuspulse/campuspulse/internal/wallet"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var pushEnabled, quietEnabled int
	err := scanner.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Wallet, &u.Level,
		&pushEnabled, &quietEnabled, &u.PushSettings.QuietHours.Start, &u.PushSettings.QuietHours.End, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.PushSettings.Enabled = pushEnabled != 0
	u.PushSettings.QuietHours.Enabled = quietEnabled != 0
	return &u, nil
}

const userCols = `id, name, email, role, wallet, level, push_enabled, quiet_hours_enabled, quiet_hours_start, quiet_hours_end, created_at`

func (s *UserStore) Create(ctx context.Context, name, email string, role model.Role) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, role) VALUES (?, ?, ?)`,
		name, email, role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errorx.Wrap(errorx.ErrEmailTaken, "%s", email)
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID returns the user with credited sets and category preferences, or
// nil when it does not exist. Device tokens are not loaded.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.EventsAttended, u.FeedbacksGiven, err = loadCredits(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	cats, err := loadCategories(ctx, s.db, []int64{id})
	if err != nil {
		return nil, err
	}
	u.PushSettings.Categories = cats[id]
	return u, nil
}

// ListPushProfiles returns the users in ids with device tokens and push
// settings populated. Unknown ids are omitted.
func (s *UserStore) ListPushProfiles(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list push profiles: %w", err)
	}
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	rows.Close()

	tokens, err := listTokensByUsers(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	cats, err := loadCategories(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].DeviceTokens = tokens[users[i].ID]
		users[i].PushSettings.Categories = cats[users[i].ID]
	}
	return users, nil
}

// ApplyCredit credits the wallet for (eventID, kind) at most once. The ledger
// rules decide the new balance and level; the unique user_credits row is the
// guard that makes concurrent credits for the same event a no-op.
func (s *UserStore) ApplyCredit(ctx context.Context, userID, eventID int64, kind model.CreditKind, points int) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin credit: %w", err)
	}
	defer tx.Rollback()

	ok, err := applyCredit(ctx, tx, userID, eventID, kind, points)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit credit: %w", err)
	}
	return true, nil
}

// SubmitFeedback stores the rating and the feedback credit together. It
// reports false, changing nothing, when the user already rated the event.
func (s *UserStore) SubmitFeedback(ctx context.Context, userID, eventID int64, rating int, comment string, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin feedback: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_feedback (event_id, user_id, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		eventID, userID, rating, comment, now.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert feedback: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := applyCredit(ctx, tx, userID, eventID, model.CreditFeedback, 0); err != nil {
		return false, fmt.Errorf("credit feedback: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit feedback: %w", err)
	}
	return true, nil
}

func applyCredit(ctx context.Context, tx *sql.Tx, userID, eventID int64, kind model.CreditKind, points int) (bool, error) {
	var acct wallet.Account
	err := tx.QueryRowContext(ctx, `SELECT wallet, level FROM users WHERE id = ?`, userID).Scan(&acct.Wallet, &acct.Level)
	if err == sql.ErrNoRows {
		return false, errorx.Wrap(errorx.ErrUserNotFound, "id %d", userID)
	}
	if err != nil {
		return false, fmt.Errorf("load wallet: %w", err)
	}
	acct.EventsAttended, acct.FeedbacksGiven, err = loadCredits(ctx, tx, userID)
	if err != nil {
		return false, err
	}

	var next wallet.Account
	var ok bool
	switch kind {
	case model.CreditAttendance:
		next, ok = wallet.CreditAttendance(acct, eventID, points)
	case model.CreditFeedback:
		next, ok = wallet.CreditFeedback(acct, eventID)
	default:
		return false, errorx.Validation("unknown credit kind %q", kind)
	}
	if !ok {
		return false, nil
	}

	delta := next.Wallet - acct.Wallet
	result, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO user_credits (user_id, event_id, kind, points) VALUES (?, ?, ?, ?)`,
		userID, eventID, kind, delta,
	)
	if err != nil {
		return false, fmt.Errorf("insert credit: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET wallet = wallet + ?, level = ? WHERE id = ?`,
		delta, next.Level, userID,
	); err != nil {
		return false, fmt.Errorf("update wallet: %w", err)
	}
	return true, nil
}

// RecomputeLevel rewrites the cached level from the credited sets.
func (s *UserStore) RecomputeLevel(ctx context.Context, userID int64) (int, error) {
	attended, feedbacks, err := loadCredits(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	level := wallet.Level(len(attended), len(feedbacks))
	result, err := s.db.ExecContext(ctx, `UPDATE users SET level = ? WHERE id = ?`, level, userID)
	if err != nil {
		return 0, fmt.Errorf("update level: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return 0, errorx.Wrap(errorx.ErrUserNotFound, "id %d", userID)
	}
	return level, nil
}

// UpdatePushSettings stores the global switch and quiet-hours window.
func (s *UserStore) UpdatePushSettings(ctx context.Context, userID int64, enabled bool, qh model.QuietHours) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET push_enabled = ?, quiet_hours_enabled = ?, quiet_hours_start = ?, quiet_hours_end = ?
		 WHERE id = ?`,
		boolInt(enabled), boolInt(qh.Enabled), qh.Start, qh.End, userID,
	)
	if err != nil {
		return fmt.Errorf("update push settings: %w", err)
	}
	return nil
}

// GetPreferences returns the per-type preference rows for a user.
func (s *UserStore) GetPreferences(ctx context.Context, userID int64) ([]model.NotificationPreference, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, notification_type, enabled, updated_at
		 FROM notification_preferences WHERE user_id = ? ORDER BY notification_type`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("get notification preferences: %w", err)
	}
	defer rows.Close()

	var prefs []model.NotificationPreference
	for rows.Next() {
		var p model.NotificationPreference
		var enabledInt int
		if err := rows.Scan(&p.UserID, &p.NotificationType, &enabledInt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan notification preference: %w", err)
		}
		p.Enabled = enabledInt != 0
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// SetPreference upserts a notification preference.
func (s *UserStore) SetPreference(ctx context.Context, userID int64, notifType string, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preferences (user_id, notification_type, enabled)
		 VALUES (?, ?, ?)
		 ON CONFLICT(user_id, notification_type) DO UPDATE SET enabled = excluded.enabled, updated_at = CURRENT_TIMESTAMP`,
		userID, notifType, boolInt(enabled),
	)
	if err != nil {
		return fmt.Errorf("set notification preference: %w", err)
	}
	return nil
}

func loadCredits(ctx context.Context, q querier, userID int64) (attended, feedbacks []int64, err error) {
	rows, err := q.QueryContext(ctx,
		`SELECT event_id, kind FROM user_credits WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	attended, feedbacks = []int64{}, []int64{}
	for rows.Next() {
		var eventID int64
		var kind model.CreditKind
		if err := rows.Scan(&eventID, &kind); err != nil {
			return nil, nil, fmt.Errorf("scan credit: %w", err)
		}
		switch kind {
		case model.CreditAttendance:
			attended = append(attended, eventID)
		case model.CreditFeedback:
			feedbacks = append(feedbacks, eventID)
		}
	}
	return attended, feedbacks, rows.Err()
}

func loadCategories(ctx context.Context, q querier, userIDs []int64) (map[int64]map[string]bool, error) {
	out := make(map[int64]map[string]bool)
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, notification_type, enabled FROM notification_preferences
		 WHERE user_id IN (`+placeholders(len(userIDs))+`)`,
		int64Args(userIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var notifType string
		var enabledInt int
		if err := rows.Scan(&userID, &notifType, &enabledInt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		if out[userID] == nil {
			out[userID] = make(map[string]bool)
		}
		out[userID][notifType] = enabledInt != 0
	}
	return out, rows.Err()
}
