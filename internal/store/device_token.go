package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/campuspulse/campuspulse/internal/model"
)

type DeviceTokenStore struct {
	db *sql.DB
}

func NewDeviceTokenStore(db *sql.DB) *DeviceTokenStore {
	return &DeviceTokenStore{db: db}
}

const tokenCols = `id, user_id, token, platform, last_used, active, created_at`

func scanToken(scanner interface{ Scan(...any) error }) (*model.DeviceToken, error) {
	var d model.DeviceToken
	var active int
	if err := scanner.Scan(&d.ID, &d.UserID, &d.Token, &d.Platform, &d.LastUsed, &active, &d.CreatedAt); err != nil {
		return nil, err
	}
	d.Active = active != 0
	return &d, nil
}

// Upsert registers token for the user, refreshing it when it already exists
// (including moving it from another user). Afterwards only the most recently
// used MaxActiveTokensPerPlatform active tokens of that platform are kept.
func (s *DeviceTokenStore) Upsert(ctx context.Context, userID int64, token string, platform model.Platform, now time.Time) (*model.DeviceToken, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin upsert token: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO device_tokens (user_id, token, platform, last_used, active)
		 VALUES (?, ?, ?, ?, 1)
		 ON CONFLICT(token) DO UPDATE SET user_id = excluded.user_id, platform = excluded.platform,
		   last_used = excluded.last_used, active = 1`,
		userID, token, platform, now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert device token: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM device_tokens
		 WHERE user_id = ? AND platform = ? AND active = 1 AND id NOT IN (
		   SELECT id FROM device_tokens
		   WHERE user_id = ? AND platform = ? AND active = 1
		   ORDER BY last_used DESC, id DESC LIMIT ?
		 )`,
		userID, platform, userID, platform, model.MaxActiveTokensPerPlatform,
	)
	if err != nil {
		return nil, fmt.Errorf("evict device tokens: %w", err)
	}

	d, err := scanToken(tx.QueryRowContext(ctx, `SELECT `+tokenCols+` FROM device_tokens WHERE token = ?`, token))
	if err != nil {
		return nil, fmt.Errorf("get device token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit upsert token: %w", err)
	}
	return d, nil
}

// Remove deletes the user's token. It reports whether a row was deleted.
func (s *DeviceTokenStore) Remove(ctx context.Context, userID int64, token string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM device_tokens WHERE user_id = ? AND token = ?`, userID, token)
	if err != nil {
		return false, fmt.Errorf("delete device token: %w", err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// Deactivate marks a token the transport rejected as expired.
func (s *DeviceTokenStore) Deactivate(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE device_tokens SET active = 0 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("deactivate device token: %w", err)
	}
	return nil
}

func (s *DeviceTokenStore) ListByUser(ctx context.Context, userID int64) ([]model.DeviceToken, error) {
	tokens, err := listTokensByUsers(ctx, s.db, []int64{userID})
	if err != nil {
		return nil, err
	}
	return tokens[userID], nil
}

func listTokensByUsers(ctx context.Context, q querier, userIDs []int64) (map[int64][]model.DeviceToken, error) {
	out := make(map[int64][]model.DeviceToken)
	if len(userIDs) == 0 {
		return out, nil
	}
	rows, err := q.QueryContext(ctx,
		`SELECT `+tokenCols+` FROM device_tokens
		 WHERE user_id IN (`+placeholders(len(userIDs))+`)
		 ORDER BY user_id, last_used DESC, id DESC`,
		int64Args(userIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		d, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device token: %w", err)
		}
		out[d.UserID] = append(out[d.UserID], *d)
	}
	return out, rows.Err()
}
