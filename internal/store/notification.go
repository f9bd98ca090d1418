package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationCols = `id, title, message, type, related_event_id, reminder_type, data, scheduled_for, push_sent, push_sent_at, push_error, created_at`

func scanNotification(scanner interface{ Scan(...any) error }) (*model.Notification, error) {
	var n model.Notification
	var relatedEvent sql.NullInt64
	var reminderType sql.NullString
	var data string
	var pushSent int
	var pushSentAt sql.NullTime
	err := scanner.Scan(&n.ID, &n.Title, &n.Message, &n.Type, &relatedEvent, &reminderType, &data,
		&n.ScheduledFor, &pushSent, &pushSentAt, &n.PushStatus.Error, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	if relatedEvent.Valid {
		n.RelatedEvent = &relatedEvent.Int64
	}
	n.ReminderType = reminderType.String
	n.PushStatus.Sent = pushSent != 0
	n.PushStatus.SentAt = timePtr(pushSentAt)
	if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
		return nil, fmt.Errorf("decode notification data: %w", err)
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	n.Recipients = []model.Recipient{}
	return &n, nil
}

// Create stores a notification and its recipients in one transaction.
func (s *NotificationStore) Create(ctx context.Context, n *model.Notification, now time.Time) (*model.Notification, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create notification: %w", err)
	}
	defer tx.Rollback()

	id, _, err := insertNotification(ctx, tx, `INSERT INTO`, n, now)
	if err != nil {
		return nil, err
	}
	if err := insertRecipients(ctx, tx, id, n.RecipientIDs()); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create notification: %w", err)
	}
	return s.GetByID(ctx, id)
}

// CreateReminder inserts an event_reminder unless one already exists for the
// same event and reminder type. It reports false, with a nil notification,
// when another caller created it first.
func (s *NotificationStore) CreateReminder(ctx context.Context, n *model.Notification, now time.Time) (*model.Notification, bool, error) {
	if n.RelatedEvent == nil || n.ReminderType == "" {
		return nil, false, fmt.Errorf("create reminder: related event and reminder type required")
	}
	n.Type = model.NotifTypeEventReminder

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin create reminder: %w", err)
	}
	defer tx.Rollback()

	id, inserted, err := insertNotification(ctx, tx, `INSERT OR IGNORE INTO`, n, now)
	if err != nil {
		return nil, false, err
	}
	if !inserted {
		return nil, false, nil
	}
	if err := insertRecipients(ctx, tx, id, n.RecipientIDs()); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit create reminder: %w", err)
	}

	created, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ReminderExists reports whether a reminder was already created.
func (s *NotificationStore) ReminderExists(ctx context.Context, eventID int64, reminderType string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE type = ? AND related_event_id = ? AND reminder_type = ?`,
		model.NotifTypeEventReminder, eventID, reminderType,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check reminder: %w", err)
	}
	return count > 0, nil
}

// GetByID returns the notification with recipients, or nil when missing.
func (s *NotificationStore) GetByID(ctx context.Context, id int64) (*model.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `SELECT `+notificationCols+` FROM notifications WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, read, delivered, read_at, delivered_at FROM notification_recipients
		 WHERE notification_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r model.Recipient
		var read, delivered int
		var readAt, deliveredAt sql.NullTime
		if err := rows.Scan(&r.UserID, &read, &delivered, &readAt, &deliveredAt); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		r.Read = read != 0
		r.Delivered = delivered != 0
		r.ReadAt = timePtr(readAt)
		r.DeliveredAt = timePtr(deliveredAt)
		n.Recipients = append(n.Recipients, r)
	}
	return n, rows.Err()
}

// StaleDispatchClaim is how long a dispatch claim holds before another
// dispatcher may take the notification over.
const StaleDispatchClaim = 15 * time.Minute

// ListPending returns notifications due at now that were never dispatched
// and are not claimed by a running dispatch, oldest first.
func (s *NotificationStore) ListPending(ctx context.Context, now time.Time, limit int) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM notifications
		 WHERE push_sent_at IS NULL AND scheduled_for <= ?
		   AND (dispatch_started_at IS NULL OR dispatch_started_at <= ?)
		 ORDER BY scheduled_for ASC, id ASC LIMIT ?`,
		now.UTC(), now.Add(-StaleDispatchClaim).UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	out := make([]model.Notification, 0, len(ids))
	for _, id := range ids {
		n, err := s.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if n != nil {
			out = append(out, *n)
		}
	}
	return out, nil
}

// ClaimDispatch marks the notification as being dispatched. It reports false
// when it was already pushed or another dispatcher holds a fresh claim.
func (s *NotificationStore) ClaimDispatch(ctx context.Context, id int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET dispatch_started_at = ?
		 WHERE id = ? AND push_sent_at IS NULL
		   AND (dispatch_started_at IS NULL OR dispatch_started_at <= ?)`,
		now.UTC(), id, now.Add(-StaleDispatchClaim).UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim dispatch: %w", err)
	}
	n, _ := result.RowsAffected()
	return n == 1, nil
}

// ReleaseDispatch drops a claim so the next tick retries the notification.
func (s *NotificationStore) ReleaseDispatch(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET dispatch_started_at = NULL WHERE id = ? AND push_sent_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("release dispatch: %w", err)
	}
	return nil
}

// UpdatePushStatus records the aggregate outcome of a dispatch.
func (s *NotificationStore) UpdatePushStatus(ctx context.Context, id int64, status model.PushStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET push_sent = ?, push_sent_at = ?, push_error = ? WHERE id = ?`,
		boolInt(status.Sent), nullTime(status.SentAt), status.Error, id,
	)
	if err != nil {
		return fmt.Errorf("update push status: %w", err)
	}
	return nil
}

func (s *NotificationStore) MarkDelivered(ctx context.Context, id, userID int64, now time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE notification_recipients SET delivered = 1, delivered_at = ?
		 WHERE notification_id = ? AND user_id = ?`,
		now.UTC(), id, userID,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

// MarkRead marks the notification read for userID. It reports false when
// the user is not a recipient.
func (s *NotificationStore) MarkRead(ctx context.Context, id, userID int64, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE notification_recipients SET read = 1, read_at = COALESCE(read_at, ?)
		 WHERE notification_id = ? AND user_id = ?`,
		now.UTC(), id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("mark read: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// ListForUser returns the user's inbox, newest first.
func (s *NotificationStore) ListForUser(ctx context.Context, userID int64, limit int) ([]model.InboxItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT n.id, n.title, n.message, n.type, n.related_event_id, n.reminder_type, n.data,
		        n.scheduled_for, n.push_sent, n.push_sent_at, n.push_error, n.created_at,
		        r.read, r.delivered
		 FROM notifications n
		 JOIN notification_recipients r ON r.notification_id = n.id
		 WHERE r.user_id = ?
		 ORDER BY n.created_at DESC, n.id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()

	items := []model.InboxItem{}
	for rows.Next() {
		var read, delivered int
		n, err := scanNotification(scanFunc(func(dest ...any) error {
			return rows.Scan(append(dest, &read, &delivered)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scan inbox item: %w", err)
		}
		items = append(items, model.InboxItem{Notification: *n, Read: read != 0, Delivered: delivered != 0})
	}
	return items, rows.Err()
}

// DeleteOlderThan removes dispatched notifications created before cutoff.
func (s *NotificationStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE push_sent_at IS NOT NULL AND created_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

type scanFunc func(dest ...any) error

func (f scanFunc) Scan(dest ...any) error { return f(dest...) }

func insertNotification(ctx context.Context, tx *sql.Tx, verb string, n *model.Notification, now time.Time) (int64, bool, error) {
	data := n.Data
	if data == nil {
		data = map[string]any{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return 0, false, fmt.Errorf("encode notification data: %w", err)
	}

	var relatedEvent sql.NullInt64
	if n.RelatedEvent != nil {
		relatedEvent = sql.NullInt64{Int64: *n.RelatedEvent, Valid: true}
	}
	var reminderType sql.NullString
	if n.ReminderType != "" {
		reminderType = sql.NullString{String: n.ReminderType, Valid: true}
	}
	scheduledFor := n.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = now
	}

	result, err := tx.ExecContext(ctx,
		verb+` notifications (title, message, type, related_event_id, reminder_type, data, scheduled_for, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.Title, n.Message, n.Type, relatedEvent, reminderType, string(encoded), scheduledFor.UTC(), now.UTC(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert notification: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return 0, false, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("last insert id: %w", err)
	}
	return id, true, nil
}

func insertRecipients(ctx context.Context, tx *sql.Tx, id int64, userIDs []int64) error {
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO notification_recipients (notification_id, user_id) VALUES (?, ?)`,
			id, userID,
		); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}
	return nil
}
